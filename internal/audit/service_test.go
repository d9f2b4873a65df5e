package audit

import (
	"context"
	"testing"
)

func TestAppend_FillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)

	if err := s.LogCall(context.Background(), EventTypeCallBilled, "call-1", "u1", "charged"); err != nil {
		t.Fatalf("append: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be filled, got %+v", e)
	}
	if e.CallID != "call-1" || e.Type != EventTypeCallBilled {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAppend_RejectsMissingType(t *testing.T) {
	s := NewService(NewMemoryRepo())
	if err := s.Append(context.Background(), Event{CallID: "c"}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestNilService_IsNoOp(t *testing.T) {
	var s *Service
	if err := s.LogCall(context.Background(), EventTypeCallSwept, "c", "", "swept"); err != nil {
		t.Fatalf("expected nil service no-op, got %v", err)
	}
}
