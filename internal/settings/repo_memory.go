package settings

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory settings repository useful for tests.
type MemoryRepo struct {
	mu  sync.RWMutex
	cur *CallSettings
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) GetCallSettings(ctx context.Context) (CallSettings, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cur == nil {
		return CallSettings{}, false, nil
	}
	return *r.cur, true, nil
}

func (r *MemoryRepo) PutCallSettings(ctx context.Context, s CallSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = &s
	return nil
}
