package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/brightcart/api/internal/repositories"
)

type counterState struct {
	current int64
	step    int64
	max     *int64
}

// CounterRepository hands out sequence values from an in-memory map.
type CounterRepository struct {
	mu       sync.Mutex
	counters map[string]*counterState
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

func NewCounterRepository() *CounterRepository {
	return &CounterRepository{counters: make(map[string]*counterState)}
}

func (r *CounterRepository) Next(_ context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" || step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "invalid counter request", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.state(id)
	increment := step
	if increment == 0 {
		increment = max(state.step, 1)
	}
	value := state.current + increment
	if state.max != nil && value > *state.max {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted,
			fmt.Sprintf("counter %s exceeded max value %d", id, *state.max), nil)
	}
	state.current = value
	state.step = increment
	return value, nil
}

func (r *CounterRepository) Configure(_ context.Context, counterID string, cfg repositories.CounterConfig) error {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.state(id)
	if cfg.Step > 0 {
		state.step = cfg.Step
	}
	if cfg.MaxValue != nil {
		limit := *cfg.MaxValue
		state.max = &limit
	}
	if cfg.InitialValue != nil {
		state.current = *cfg.InitialValue
	}
	return nil
}

func (r *CounterRepository) state(id string) *counterState {
	state, ok := r.counters[id]
	if !ok {
		state = &counterState{}
		r.counters[id] = state
	}
	return state
}
