package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/platform/pagination"
	"github.com/brightcart/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
)

type paymentDocument struct {
	Gateway       string `firestore:"gateway"`
	TransactionID string `firestore:"transactionId"`
	PaymentID     string `firestore:"paymentId"`
	CaptureID     string `firestore:"captureId"`
}

type orderDocument struct {
	OrderNumber     string          `firestore:"orderNumber"`
	UserID          string          `firestore:"userId"`
	CustomerName    string          `firestore:"customerName"`
	CustomerEmail   string          `firestore:"customerEmail"`
	CustomerPhone   string          `firestore:"customerPhone"`
	Items           []itemDocument  `firestore:"items"`
	Subtotal        string          `firestore:"subtotal"`
	ShippingCost    string          `firestore:"shippingCost"`
	Tax             string          `firestore:"tax"`
	TotalAmount     string          `firestore:"totalAmount"`
	Status          string          `firestore:"status"`
	ShippingAddress addressDocument `firestore:"shippingAddress"`
	PaymentMethod   string          `firestore:"paymentMethod"`
	PaymentStatus   string          `firestore:"paymentStatus"`
	Payment         paymentDocument `firestore:"payment"`
	TrackingNumber  string          `firestore:"trackingNumber,omitempty"`
	CreatedAt       time.Time       `firestore:"createdAt"`
	UpdatedAt       time.Time       `firestore:"updatedAt"`
}

// orderNumberDocument reserves an order number. Its ID is the number itself, which is what makes
// the number unique.
type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository stores orders alongside an orderNumbers index collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	numbers  *pfirestore.Collection[orderNumberDocument]
	now      func() time.Time
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		numbers:  pfirestore.NewCollection[orderNumberDocument](provider, orderNumbersCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Insert writes the order and its number reservation in one transaction.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.OrderNumber) == "" {
		return errors.New("orders.insert: id and order number are required")
	}
	orderRef, err := r.orders.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	numberRef, err := r.numbers.Doc(ctx, order.OrderNumber)
	if err != nil {
		return err
	}

	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	doc := encodeOrder(order)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if exists, err := docExists(tx, orderRef); err != nil {
			return err
		} else if exists {
			return repositories.ErrOrderExists
		}
		if exists, err := docExists(tx, numberRef); err != nil {
			return err
		} else if exists {
			return repositories.ErrDuplicateOrderNumber
		}
		if err := tx.Create(numberRef, orderNumberDocument{OrderID: order.ID, CreatedAt: now}); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
	if pfirestore.IsAlreadyExists(err) || pfirestore.IsAborted(err) {
		// A concurrent commit won the race; retrying with a new number re-reads both documents.
		return repositories.ErrDuplicateOrderNumber
	}
	return err
}

func docExists(tx *firestore.Transaction, ref *firestore.DocumentRef) (bool, error) {
	snap, err := tx.Get(ref)
	if pfirestore.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return snap.Exists(), nil
}

// FindByOrderNumber returns the order holding the number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	docs, ids, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, repositories.NewStoreError(repositories.ErrorKindNotFound, "order number %s not found", orderNumber)
	}
	return decodeOrder(ids[0], docs[0])
}

// FindByID returns the order with the given ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(orderID, doc)
}

// Update persists the mutable fields of an existing order: status, payment status and tracking
// number. Identity, number and monetary fields are never rewritten. The stored status is re-read
// inside the transaction and must still equal expected.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	ref, err := r.orders.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(order.Status)},
		{Path: "paymentStatus", Value: string(order.PaymentStatus)},
		{Path: "trackingNumber", Value: order.TrackingNumber},
		{Path: "updatedAt", Value: r.now()},
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if pfirestore.IsNotFound(err) {
			return repositories.NewStoreError(repositories.ErrorKindNotFound, "order %s not found", order.ID)
		}
		if err != nil {
			return err
		}
		stored, err := r.orders.Decode(snap)
		if err != nil {
			return err
		}
		if domain.OrderStatus(stored.Status) != expected {
			return repositories.ErrOrderStatusChanged
		}
		return tx.Update(ref, updates)
	})
}

// List returns orders newest first, optionally scoped to one account and set of statuses.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	docs, ids, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Status[0]))
		default:
			statuses := make([]string, len(filter.Status))
			for i, s := range filter.Status {
				statuses[i] = string(s)
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		order, err := decodeOrder(ids[i], doc)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.Items = append(page.Items, order)
	}
	return page, nil
}

// Summarize counts orders, sums revenue outside cancelled orders and returns the most recent ones.
func (r *OrderRepository) Summarize(ctx context.Context, recent int) (repositories.OrderSummary, error) {
	type revenueRow struct {
		TotalAmount string `firestore:"totalAmount"`
		Status      string `firestore:"status"`
	}
	rows := pfirestore.NewCollection[revenueRow](r.provider, ordersCollection)
	totals, _, err := rows.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Select("totalAmount", "status")
	})
	if err != nil {
		return repositories.OrderSummary{}, err
	}

	summary := repositories.OrderSummary{TotalOrders: len(totals), TotalRevenue: decimal.Zero}
	for _, row := range totals {
		if row.Status == string(domain.OrderStatusCancelled) {
			continue
		}
		amount, err := parseMoney("totalAmount", row.TotalAmount)
		if err != nil {
			return repositories.OrderSummary{}, err
		}
		summary.TotalRevenue = summary.TotalRevenue.Add(amount)
	}

	if recent > 0 {
		page, err := r.List(ctx, repositories.OrderListFilter{Pagination: domain.Pagination{PageSize: recent}})
		if err != nil {
			return repositories.OrderSummary{}, err
		}
		summary.Recent = page.Items
	}
	return summary, nil
}

func encodeOrder(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		CustomerName:    order.Customer.Name,
		CustomerEmail:   order.Customer.Email,
		CustomerPhone:   order.Customer.Phone,
		Items:           encodeItems(order.Items),
		Subtotal:        moneyString(order.Subtotal),
		ShippingCost:    moneyString(order.ShippingCost),
		Tax:             moneyString(order.Tax),
		TotalAmount:     moneyString(order.TotalAmount),
		Status:          string(order.Status),
		ShippingAddress: encodeAddress(order.ShippingAddress),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentStatus:   string(order.PaymentStatus),
		Payment:         paymentDocument(order.Payment),
		TrackingNumber:  order.TrackingNumber,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func decodeOrder(id string, doc orderDocument) (domain.Order, error) {
	items, err := decodeItems(doc.Items)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, err)
	}
	order := domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		UserID:      doc.UserID,
		Customer: domain.Customer{
			Name:  doc.CustomerName,
			Email: doc.CustomerEmail,
			Phone: doc.CustomerPhone,
		},
		Items:           items,
		Status:          domain.OrderStatus(doc.Status),
		ShippingAddress: decodeAddress(doc.ShippingAddress),
		PaymentMethod:   domain.PaymentMethod(doc.PaymentMethod),
		PaymentStatus:   domain.PaymentStatus(doc.PaymentStatus),
		Payment:         domain.PaymentReference(doc.Payment),
		TrackingNumber:  doc.TrackingNumber,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	for _, field := range []struct {
		name   string
		raw    string
		target *decimal.Decimal
	}{
		{"subtotal", doc.Subtotal, &order.Subtotal},
		{"shippingCost", doc.ShippingCost, &order.ShippingCost},
		{"tax", doc.Tax, &order.Tax},
		{"totalAmount", doc.TotalAmount, &order.TotalAmount},
	} {
		value, err := parseMoney(field.name, field.raw)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s: %w", id, err)
		}
		*field.target = value
	}
	return order, nil
}
