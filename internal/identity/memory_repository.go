package identity

import (
	"context"
	"fmt"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	byName map[string]Operator
}

// NewMemoryRepository builds an in-memory operator store.
func NewMemoryRepository() Repository {
	return &memoryRepository{byName: make(map[string]Operator)}
}

func (r *memoryRepository) Create(_ context.Context, op Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[op.Name]; exists {
		return fmt.Errorf("%w: %s", ErrExists, op.Name)
	}
	r.byName[op.Name] = op
	return nil
}

func (r *memoryRepository) FindByName(_ context.Context, name string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byName[name]
	if !ok {
		return Operator{}, ErrNotFound
	}
	return op, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, op := range r.byName {
		if op.ID == id {
			return op, nil
		}
	}
	return Operator{}, ErrNotFound
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, op := range r.byName {
		if op.ID == id {
			op.TokenVersion = version
			r.byName[name] = op
			return nil
		}
	}
	return ErrNotFound
}
