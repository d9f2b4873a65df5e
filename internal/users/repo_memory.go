package users

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory user lookup useful for tests.
// It is not intended for production use.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryDirectory(seed ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User, len(seed))}
	for _, u := range seed {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryDirectory) Add(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) Find(ctx context.Context, id string) (User, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return u, ok, nil
}
