package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
)

// MaxOrderNumberAttempts bounds how many candidate numbers one order may try.
const MaxOrderNumberAttempts = 10

// ErrGenerationExhausted is returned when no unique order number was found within the attempt
// budget. The request may be retried.
var ErrGenerationExhausted = errors.New("order number: generation exhausted")

// OrderNumberAllocatorDeps wires the allocator.
type OrderNumberAllocatorDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	RandSuffix  func() int
	MaxAttempts int
}

// OrderNumberAllocator assigns an order number and inserts the order in one step. The first
// candidate uses a random suffix; after any collision the suffix comes from a per-day counter.
// Uniqueness is enforced by the repository, so a lost race surfaces as
// repositories.ErrDuplicateOrderNumber and is retried with a new candidate.
type OrderNumberAllocator struct {
	orders      repositories.OrderRepository
	counters    repositories.CounterRepository
	now         func() time.Time
	randSuffix  func() int
	maxAttempts int

	mu         sync.Mutex
	configured string
}

// NewOrderNumberAllocator validates dependencies.
func NewOrderNumberAllocator(deps OrderNumberAllocatorDeps) (*OrderNumberAllocator, error) {
	if deps.Orders == nil {
		return nil, errors.New("order number allocator: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order number allocator: counter repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	randSuffix := deps.RandSuffix
	if randSuffix == nil {
		span := domain.OrderNumberMaxSuffix - domain.OrderNumberMinSuffix + 1
		randSuffix = func() int { return domain.OrderNumberMinSuffix + rand.IntN(span) }
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = MaxOrderNumberAttempts
	}
	return &OrderNumberAllocator{
		orders:      deps.Orders,
		counters:    deps.Counters,
		now:         func() time.Time { return clock().UTC() },
		randSuffix:  randSuffix,
		maxAttempts: attempts,
	}, nil
}

// Insert assigns order.OrderNumber and persists the order. Errors other than number collisions
// are returned unchanged.
func (a *OrderNumberAllocator) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = a.now()
	}
	order.UpdatedAt = order.CreatedAt
	collided := false
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		number, err := a.candidate(ctx, collided)
		if err != nil {
			if repositories.IsCounterExhausted(err) {
				return domain.Order{}, ErrGenerationExhausted
			}
			return domain.Order{}, err
		}

		taken, err := a.taken(ctx, number)
		if err != nil {
			return domain.Order{}, err
		}
		if taken {
			collided = true
			continue
		}

		order.OrderNumber = number
		err = a.orders.Insert(ctx, order)
		switch {
		case err == nil:
			return order, nil
		case errors.Is(err, repositories.ErrDuplicateOrderNumber):
			collided = true
		default:
			return domain.Order{}, err
		}
	}
	return domain.Order{}, ErrGenerationExhausted
}

// taken is the advisory pre-check; the insert is authoritative.
func (a *OrderNumberAllocator) taken(ctx context.Context, number string) (bool, error) {
	_, err := a.orders.FindByOrderNumber(ctx, number)
	switch {
	case err == nil:
		return true, nil
	case repositories.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("order number lookup: %w", err)
	}
}

func (a *OrderNumberAllocator) candidate(ctx context.Context, fromCounter bool) (string, error) {
	now := a.now()
	if !fromCounter {
		return domain.FormatOrderNumber(now, a.randSuffix())
	}
	counterID, err := a.dailyCounter(ctx, now)
	if err != nil {
		return "", err
	}
	seq, err := a.counters.Next(ctx, counterID, 1)
	if err != nil {
		return "", err
	}
	return domain.FormatOrderNumber(now, domain.OrderNumberMinSuffix-1+int(seq))
}

// dailyCounter returns the counter for the UTC day of now, bounding it to the suffix range the
// first time this process uses it.
func (a *OrderNumberAllocator) dailyCounter(ctx context.Context, now time.Time) (string, error) {
	id := "orders:" + domain.OrderNumberDay(now)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.configured == id {
		return id, nil
	}
	limit := int64(domain.OrderNumberMaxSuffix - domain.OrderNumberMinSuffix + 1)
	if err := a.counters.Configure(ctx, id, repositories.CounterConfig{Step: 1, MaxValue: &limit}); err != nil {
		return "", err
	}
	a.configured = id
	return id, nil
}
