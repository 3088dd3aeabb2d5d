package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/platform/pagination"
	"github.com/brightcart/api/internal/repositories"
)

const capturesCollection = "paymentCaptures"

type orderDetailsDocument struct {
	CustomerName    string          `firestore:"customerName"`
	CustomerEmail   string          `firestore:"customerEmail"`
	CustomerPhone   string          `firestore:"customerPhone"`
	Items           []itemDocument  `firestore:"items"`
	ShippingAddress addressDocument `firestore:"shippingAddress"`
	ShippingCost    string          `firestore:"shippingCost"`
	ClientTotal     string          `firestore:"clientTotal,omitempty"`
}

type captureDocument struct {
	UserID        string               `firestore:"userId"`
	Gateway       string               `firestore:"gateway"`
	TransactionID string               `firestore:"transactionId"`
	PaymentID     string               `firestore:"paymentId"`
	Amount        int64                `firestore:"amount"`
	Currency      string               `firestore:"currency,omitempty"`
	Details       orderDetailsDocument `firestore:"orderDetails"`
	State         string               `firestore:"state"`
	OrderID       string               `firestore:"orderId,omitempty"`
	OrderNumber   string               `firestore:"orderNumber,omitempty"`
	MissingField  string               `firestore:"missingField,omitempty"`
	LastError     string               `firestore:"lastError,omitempty"`
	Attempts      int                  `firestore:"attempts"`
	CreatedAt     time.Time            `firestore:"createdAt"`
	UpdatedAt     time.Time            `firestore:"updatedAt"`
}

// CaptureRepository stores verified payments in the paymentCaptures collection.
type CaptureRepository struct {
	provider *pfirestore.Provider
	captures *pfirestore.Collection[captureDocument]
	now      func() time.Time
}

var _ repositories.CaptureRepository = (*CaptureRepository)(nil)

// NewCaptureRepository constructs a Firestore backed capture repository.
func NewCaptureRepository(provider *pfirestore.Provider) (*CaptureRepository, error) {
	if provider == nil {
		return nil, errors.New("capture repository requires firestore provider")
	}
	return &CaptureRepository{
		provider: provider,
		captures: pfirestore.NewCollection[captureDocument](provider, capturesCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Save creates the capture unless one with the same ID exists, in which case the stored capture is
// returned and created is false.
func (r *CaptureRepository) Save(ctx context.Context, capture domain.PaymentCapture) (domain.PaymentCapture, bool, error) {
	ref, err := r.captures.Doc(ctx, capture.ID)
	if err != nil {
		return domain.PaymentCapture{}, false, err
	}
	now := r.now()
	if capture.CreatedAt.IsZero() {
		capture.CreatedAt = now
	}
	capture.UpdatedAt = now

	var (
		stored  domain.PaymentCapture
		created bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case pfirestore.IsNotFound(err):
		case err != nil:
			return err
		case snap.Exists():
			doc, err := r.captures.Decode(snap)
			if err != nil {
				return err
			}
			stored, err = decodeCapture(capture.ID, doc)
			created = false
			return err
		}
		stored, created = capture, true
		return tx.Create(ref, encodeCapture(capture))
	})
	if err != nil {
		return domain.PaymentCapture{}, false, err
	}
	return stored, created, nil
}

// FindByID returns the capture with the given ID.
func (r *CaptureRepository) FindByID(ctx context.Context, captureID string) (domain.PaymentCapture, error) {
	doc, err := r.captures.Get(ctx, captureID)
	if err != nil {
		return domain.PaymentCapture{}, err
	}
	return decodeCapture(captureID, doc)
}

// Update overwrites an existing capture.
func (r *CaptureRepository) Update(ctx context.Context, capture domain.PaymentCapture) error {
	ref, err := r.captures.Doc(ctx, capture.ID)
	if err != nil {
		return err
	}
	capture.UpdatedAt = r.now()
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, encodeCapture(capture))
	})
	return pfirestore.WrapError("captures.update", err)
}

// List returns captures newest first filtered by state and age.
func (r *CaptureRepository) List(ctx context.Context, filter repositories.CaptureListFilter) (domain.CursorPage[domain.PaymentCapture], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.PaymentCapture]{}, err
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	docs, ids, err := r.captures.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(filter.States) > 0 {
			states := make([]string, len(filter.States))
			for i, s := range filter.States {
				states[i] = string(s)
			}
			q = q.Where("state", "in", states)
		}
		if filter.CreatedBefore != nil {
			q = q.Where("createdAt", "<", *filter.CreatedBefore)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.PaymentCapture]{}, err
	}

	var page domain.CursorPage[domain.PaymentCapture]
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		capture, err := decodeCapture(ids[i], doc)
		if err != nil {
			return domain.CursorPage[domain.PaymentCapture]{}, err
		}
		page.Items = append(page.Items, capture)
	}
	return page, nil
}

func encodeCapture(c domain.PaymentCapture) captureDocument {
	details := orderDetailsDocument{
		CustomerName:    c.Details.CustomerName,
		CustomerEmail:   c.Details.CustomerEmail,
		CustomerPhone:   c.Details.CustomerPhone,
		Items:           encodeItems(c.Details.Items),
		ShippingAddress: encodeAddress(c.Details.ShippingAddress),
		ShippingCost:    c.Details.ShippingCost.String(),
	}
	if c.Details.ClientTotal != nil {
		details.ClientTotal = c.Details.ClientTotal.String()
	}
	return captureDocument{
		UserID:        c.UserID,
		Gateway:       c.Gateway,
		TransactionID: c.TransactionID,
		PaymentID:     c.PaymentID,
		Amount:        c.Amount,
		Currency:      c.Currency,
		Details:       details,
		State:         string(c.State),
		OrderID:       c.OrderID,
		OrderNumber:   c.OrderNumber,
		MissingField:  c.MissingField,
		LastError:     c.LastError,
		Attempts:      c.Attempts,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func decodeCapture(id string, doc captureDocument) (domain.PaymentCapture, error) {
	items, err := decodeItems(doc.Details.Items)
	if err != nil {
		return domain.PaymentCapture{}, fmt.Errorf("capture %s: %w", id, err)
	}
	shipping, err := parseMoney("shippingCost", doc.Details.ShippingCost)
	if err != nil {
		return domain.PaymentCapture{}, fmt.Errorf("capture %s: %w", id, err)
	}
	details := domain.OrderDetails{
		CustomerName:    doc.Details.CustomerName,
		CustomerEmail:   doc.Details.CustomerEmail,
		CustomerPhone:   doc.Details.CustomerPhone,
		Items:           items,
		ShippingAddress: decodeAddress(doc.Details.ShippingAddress),
		ShippingCost:    shipping,
	}
	if doc.Details.ClientTotal != "" {
		total, err := parseMoney("clientTotal", doc.Details.ClientTotal)
		if err != nil {
			return domain.PaymentCapture{}, fmt.Errorf("capture %s: %w", id, err)
		}
		details.ClientTotal = &total
	}
	return domain.PaymentCapture{
		ID:            id,
		UserID:        doc.UserID,
		Gateway:       doc.Gateway,
		TransactionID: doc.TransactionID,
		PaymentID:     doc.PaymentID,
		Amount:        doc.Amount,
		Currency:      doc.Currency,
		Details:       details,
		State:         domain.CaptureState(doc.State),
		OrderID:       doc.OrderID,
		OrderNumber:   doc.OrderNumber,
		MissingField:  doc.MissingField,
		LastError:     doc.LastError,
		Attempts:      doc.Attempts,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}
