package chat

import (
	"context"
	"sync"
)

// MemoryFinder is an in-memory chat lookup useful for tests.
type MemoryFinder struct {
	mu    sync.RWMutex
	chats map[[2]string]string // sorted participant pair -> chat id
}

func NewMemoryFinder() *MemoryFinder {
	return &MemoryFinder{chats: make(map[[2]string]string)}
}

func (f *MemoryFinder) AddActive(chatID, userA, userB string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[pairKey(userA, userB)] = chatID
}

func (f *MemoryFinder) FindActiveBetween(ctx context.Context, userA, userB string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, ok := f.chats[pairKey(userA, userB)]
	return id, ok, nil
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
