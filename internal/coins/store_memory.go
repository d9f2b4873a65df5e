package coins

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory coin store useful for tests.
// It mirrors the conditional-update semantics of the Postgres store under a
// single mutex, so race-losing mutations report matched=false the same way.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	txs      []Transaction
	byKey    map[string]int // idempotency key -> index into txs
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		byKey:    make(map[string]int),
	}
}

// Seed creates or replaces an account. Test helper.
func (s *MemoryStore) Seed(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accounts[a.UserID] = &cp
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (s *MemoryStore) LockForCall(ctx context.Context, callerID, receiverID string, amount int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	caller, ok := s.accounts[callerID]
	if !ok {
		return false, ErrAccountNotFound
	}
	receiver, ok := s.accounts[receiverID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if caller.Balance < amount || caller.OnCall || receiver.OnCall {
		return false, nil
	}
	caller.Balance -= amount
	caller.LockedBalance += amount
	caller.OnCall = true
	caller.UpdatedAt = now
	receiver.OnCall = true
	receiver.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) Settle(ctx context.Context, callerID, receiverID string, amount int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	caller, ok := s.accounts[callerID]
	if !ok {
		return false, ErrAccountNotFound
	}
	receiver, ok := s.accounts[receiverID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if caller.LockedBalance < amount {
		return false, nil
	}
	caller.LockedBalance -= amount
	caller.UpdatedAt = now
	receiver.Balance += amount
	receiver.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) Refund(ctx context.Context, callerID string, amount int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	caller, ok := s.accounts[callerID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if caller.LockedBalance < amount {
		return false, nil
	}
	caller.LockedBalance -= amount
	caller.Balance += amount
	caller.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) SetOnCall(ctx context.Context, on bool, now time.Time, userIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		if a, ok := s.accounts[id]; ok {
			a.OnCall = on
			a.UpdatedAt = now
		}
	}
	return nil
}

func (s *MemoryStore) AppendTransaction(ctx context.Context, t Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[t.IdempotencyKey]; exists {
		return ErrDuplicateTransaction
	}
	s.byKey[t.IdempotencyKey] = len(s.txs)
	s.txs = append(s.txs, t)
	return nil
}

func (s *MemoryStore) FindTransactionByIdempotency(ctx context.Context, key string) (Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[key]
	if !ok {
		return Transaction{}, false, nil
	}
	return s.txs[i], true, nil
}

func (s *MemoryStore) ListTransactionsByUser(ctx context.Context, userID string, from, to time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, t := range s.txs {
		if t.UserID != userID {
			continue
		}
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Transactions returns a copy of every recorded transaction. Test helper.
func (s *MemoryStore) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transaction, len(s.txs))
	copy(out, s.txs)
	return out
}
