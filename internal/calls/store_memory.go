package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory ledger store useful for tests.
// Conditional updates behave like the Postgres store: a transition whose
// expected status no longer matches reports matched=false.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Ledger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Ledger)}
}

func (s *MemoryStore) Create(ctx context.Context, l Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[l.ID] = cloneLedger(l)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return Ledger{}, ErrCallNotFound
	}
	return cloneLedger(l), nil
}

func (s *MemoryStore) Update(ctx context.Context, l Ledger, expect Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[l.ID]
	if !ok {
		return false, ErrCallNotFound
	}
	if cur.Status != expect {
		return false, nil
	}
	s.rows[l.ID] = cloneLedger(l)
	return true, nil
}

func (s *MemoryStore) ActiveByParticipant(ctx context.Context, userID string) (Ledger, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.rows {
		if l.Participant(userID) && !l.Status.IsTerminal() {
			return cloneLedger(l), true, nil
		}
	}
	return Ledger{}, false, nil
}

func (s *MemoryStore) ListStale(ctx context.Context, cutoff time.Time) ([]Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Ledger
	for _, l := range s.rows {
		switch l.Status {
		case StatusPending, StatusRinging, StatusAccepted:
			if l.RequestedAt.Before(cutoff) {
				out = append(out, cloneLedger(l))
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByParticipant(ctx context.Context, userID string, from, to time.Time) ([]Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Ledger
	for _, l := range s.rows {
		if !l.Participant(userID) {
			continue
		}
		if l.RequestedAt.Before(from) || !l.RequestedAt.Before(to) {
			continue
		}
		out = append(out, cloneLedger(l))
	}
	return out, nil
}

func cloneLedger(l Ledger) Ledger {
	out := l
	if l.RejoinedUserIDs != nil {
		out.RejoinedUserIDs = append([]string(nil), l.RejoinedUserIDs...)
	}
	if l.AcceptedAt != nil {
		t := *l.AcceptedAt
		out.AcceptedAt = &t
	}
	if l.ConnectedAt != nil {
		t := *l.ConnectedAt
		out.ConnectedAt = &t
	}
	if l.EndedAt != nil {
		t := *l.EndedAt
		out.EndedAt = &t
	}
	return out
}
