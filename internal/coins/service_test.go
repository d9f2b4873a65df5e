package coins

import (
	"context"
	"testing"
	"time"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store, nil, time.Minute)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return svc, store
}

func TestLock_MovesSpendableToLocked(t *testing.T) {
	svc, store := newTestService()
	store.Seed(Account{UserID: "caller", Balance: 500})
	store.Seed(Account{UserID: "receiver"})

	if err := svc.Lock(context.Background(), "call-1", "caller", "receiver", 500); err != nil {
		t.Fatalf("lock: %v", err)
	}

	caller, _ := store.Get(context.Background(), "caller")
	if caller.Balance != 0 || caller.LockedBalance != 500 || !caller.OnCall {
		t.Fatalf("unexpected caller account: %+v", caller)
	}
	receiver, _ := store.Get(context.Background(), "receiver")
	if !receiver.OnCall {
		t.Fatalf("expected receiver flagged on call")
	}
}

func TestLock_RejectsInsufficientBalance(t *testing.T) {
	svc, store := newTestService()
	store.Seed(Account{UserID: "caller", Balance: 499})
	store.Seed(Account{UserID: "receiver"})

	if err := svc.Lock(context.Background(), "call-1", "caller", "receiver", 500); err != ErrLockFailed {
		t.Fatalf("expected ErrLockFailed, got %v", err)
	}
	caller, _ := store.Get(context.Background(), "caller")
	if caller.Balance != 499 || caller.LockedBalance != 0 || caller.OnCall {
		t.Fatalf("lock must be all-or-nothing, got %+v", caller)
	}
}

func TestLock_RejectsWhenEitherPartyOnCall(t *testing.T) {
	svc, store := newTestService()
	store.Seed(Account{UserID: "caller", Balance: 1000})
	store.Seed(Account{UserID: "receiver", OnCall: true})

	if err := svc.Lock(context.Background(), "call-1", "caller", "receiver", 500); err != ErrLockFailed {
		t.Fatalf("expected ErrLockFailed, got %v", err)
	}
	caller, _ := store.Get(context.Background(), "caller")
	if caller.Balance != 1000 || caller.OnCall {
		t.Fatalf("caller must be untouched after lost race, got %+v", caller)
	}
}

func TestSettle_CreditsReceiverOnce(t *testing.T) {
	svc, store := newTestService()
	store.Seed(Account{UserID: "caller", Balance: 500})
	store.Seed(Account{UserID: "receiver"})
	if err := svc.Lock(context.Background(), "call-1", "caller", "receiver", 500); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if err := svc.Settle(context.Background(), "call-1", "caller", "receiver", 500); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// Duplicate delivery.
	if err := svc.Settle(context.Background(), "call-1", "caller", "receiver", 500); err != nil {
		t.Fatalf("settle retry: %v", err)
	}

	caller, _ := store.Get(context.Background(), "caller")
	receiver, _ := store.Get(context.Background(), "receiver")
	if caller.Balance != 0 || caller.LockedBalance != 0 {
		t.Fatalf("unexpected caller account: %+v", caller)
	}
	if receiver.Balance != 500 {
		t.Fatalf("expected receiver credited exactly once, got %+v", receiver)
	}
	if n := len(store.Transactions()); n != 2 {
		t.Fatalf("expected debit+credit pair, got %d transactions", n)
	}
}

func TestRefund_RestoresCallerOnce(t *testing.T) {
	svc, store := newTestService()
	store.Seed(Account{UserID: "caller", Balance: 500})
	store.Seed(Account{UserID: "receiver"})
	if err := svc.Lock(context.Background(), "call-1", "caller", "receiver", 500); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if err := svc.Refund(context.Background(), "call-1", "caller", 500); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := svc.Refund(context.Background(), "call-1", "caller", 500); err != nil {
		t.Fatalf("refund retry: %v", err)
	}

	caller, _ := store.Get(context.Background(), "caller")
	if caller.Balance != 500 || caller.LockedBalance != 0 {
		t.Fatalf("expected caller restored exactly once, got %+v", caller)
	}
	if n := len(store.Transactions()); n != 1 {
		t.Fatalf("expected single refund transaction, got %d", n)
	}
}

func TestSettleThenRefund_OnlyOneResolves(t *testing.T) {
	svc, store := newTestService()
	store.Seed(Account{UserID: "caller", Balance: 500})
	store.Seed(Account{UserID: "receiver"})
	if err := svc.Lock(context.Background(), "call-1", "caller", "receiver", 500); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if err := svc.Settle(context.Background(), "call-1", "caller", "receiver", 500); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// A late refund attempt finds the locked amount drained and posts nothing.
	if err := svc.Refund(context.Background(), "call-1", "caller", 500); err != nil {
		t.Fatalf("refund after settle: %v", err)
	}

	caller, _ := store.Get(context.Background(), "caller")
	receiver, _ := store.Get(context.Background(), "receiver")
	// Balance conservation: caller change + receiver change == 0.
	if caller.Balance != 0 || receiver.Balance != 500 {
		t.Fatalf("coins created or destroyed: caller=%+v receiver=%+v", caller, receiver)
	}
}

func TestClearOnCall_DropsFlags(t *testing.T) {
	svc, store := newTestService()
	store.Seed(Account{UserID: "a", OnCall: true})
	store.Seed(Account{UserID: "b", OnCall: true})

	if err := svc.ClearOnCall(context.Background(), "call-1", "a", "b"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	a, _ := store.Get(context.Background(), "a")
	b, _ := store.Get(context.Background(), "b")
	if a.OnCall || b.OnCall {
		t.Fatalf("expected flags cleared")
	}
}
