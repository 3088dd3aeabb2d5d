package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/pagination"
	"github.com/brightcart/api/internal/repositories"
)

// CaptureRepository keeps payment captures in memory.
type CaptureRepository struct {
	mu       sync.RWMutex
	captures map[string]domain.PaymentCapture
	now      func() time.Time
}

var _ repositories.CaptureRepository = (*CaptureRepository)(nil)

// NewCaptureRepository returns an empty store.
func NewCaptureRepository() *CaptureRepository {
	return &CaptureRepository{
		captures: make(map[string]domain.PaymentCapture),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source.
func (r *CaptureRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *CaptureRepository) Save(_ context.Context, capture domain.PaymentCapture) (domain.PaymentCapture, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.captures[capture.ID]; ok {
		return cloneCapture(stored), false, nil
	}
	now := r.now()
	if capture.CreatedAt.IsZero() {
		capture.CreatedAt = now
	}
	capture.UpdatedAt = now
	r.captures[capture.ID] = cloneCapture(capture)
	return cloneCapture(capture), true, nil
}

func (r *CaptureRepository) FindByID(_ context.Context, captureID string) (domain.PaymentCapture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	capture, ok := r.captures[captureID]
	if !ok {
		return domain.PaymentCapture{}, repositories.NewStoreError(repositories.ErrorKindNotFound, "capture %s not found", captureID)
	}
	return cloneCapture(capture), nil
}

func (r *CaptureRepository) Update(_ context.Context, capture domain.PaymentCapture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.captures[capture.ID]; !ok {
		return repositories.NewStoreError(repositories.ErrorKindNotFound, "capture %s not found", capture.ID)
	}
	capture.UpdatedAt = r.now()
	r.captures[capture.ID] = cloneCapture(capture)
	return nil
}

func (r *CaptureRepository) List(_ context.Context, filter repositories.CaptureListFilter) (domain.CursorPage[domain.PaymentCapture], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.PaymentCapture]{}, err
	}
	r.mu.RLock()
	matches := lo.Filter(lo.Values(r.captures), func(c domain.PaymentCapture, _ int) bool {
		if len(filter.States) > 0 && !slices.Contains(filter.States, c.State) {
			return false
		}
		return filter.CreatedBefore == nil || c.CreatedAt.Before(*filter.CreatedBefore)
	})
	r.mu.RUnlock()

	key := func(c domain.PaymentCapture) (time.Time, string) { return c.CreatedAt, c.ID }
	sortNewestFirst(matches, key)
	items, next := paginate(matches, cursor, filter.Pagination.PageSize, key)
	return domain.CursorPage[domain.PaymentCapture]{Items: lo.Map(items, func(c domain.PaymentCapture, _ int) domain.PaymentCapture {
		return cloneCapture(c)
	}), NextPageToken: next}, nil
}

func cloneCapture(c domain.PaymentCapture) domain.PaymentCapture {
	c.Details.Items = slices.Clone(c.Details.Items)
	return c
}
