package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"paircall-platform/internal/calls"
	"paircall-platform/internal/coins"
)

func ts(min int) time.Time {
	return time.Date(2026, time.March, 14, 10, min, 0, 0, time.UTC)
}

func tsp(min int) *time.Time {
	t := ts(min)
	return &t
}

func seedStores(t *testing.T) (*calls.MemoryStore, *coins.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	callStore := calls.NewMemoryStore()

	rows := []calls.Ledger{
		{
			ID: "c1", CallerID: "member-1", ReceiverID: "creator-1",
			Status: calls.StatusEnded, BillingStatus: calls.BillingCharged,
			CoinAmount: 500, RequestedAt: ts(0), ConnectedAt: tsp(1), EndedAt: tsp(6),
			RejoinCount: 1,
		},
		{
			ID: "c2", CallerID: "member-1", ReceiverID: "creator-1",
			Status: calls.StatusMissed, BillingStatus: calls.BillingRefunded,
			CoinAmount: 500, RequestedAt: ts(10), EndedAt: tsp(11),
		},
		{
			ID: "c3", CallerID: "member-2", ReceiverID: "creator-1",
			Status: calls.StatusRejected, BillingStatus: calls.BillingRefunded,
			CoinAmount: 500, RequestedAt: ts(20), EndedAt: tsp(20),
		},
	}
	for _, l := range rows {
		if err := callStore.Create(ctx, l); err != nil {
			t.Fatalf("seed call %s: %v", l.ID, err)
		}
	}

	coinStore := coins.NewMemoryStore()
	txs := []coins.Transaction{
		{ID: "t1", UserID: "member-1", Type: coins.TransactionTypeCallDebit, Amount: -500, CallID: "c1",
			IdempotencyKey: coins.IdempotencyKey("c1", coins.TransactionTypeCallDebit), CreatedAt: ts(1)},
		{ID: "t2", UserID: "creator-1", Type: coins.TransactionTypeCallCredit, Amount: 500, CallID: "c1",
			IdempotencyKey: coins.IdempotencyKey("c1", coins.TransactionTypeCallCredit), CreatedAt: ts(1)},
		{ID: "t3", UserID: "member-1", Type: coins.TransactionTypeCallRefund, Amount: 500, CallID: "c2",
			IdempotencyKey: coins.IdempotencyKey("c2", coins.TransactionTypeCallRefund), CreatedAt: ts(11)},
	}
	for _, tx := range txs {
		if err := coinStore.AppendTransaction(ctx, tx); err != nil {
			t.Fatalf("seed tx %s: %v", tx.ID, err)
		}
	}
	return callStore, coinStore
}

func window() TimeRange {
	return TimeRange{From: ts(0).Add(-time.Minute), To: ts(59)}
}

func TestCallsSummary(t *testing.T) {
	callStore, coinStore := seedStores(t)
	svc := NewService(NewStoreRepository(callStore, coinStore))

	got, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{UserID: "creator-1", Range: window()})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.TotalCalls != 3 || got.EndedCalls != 1 || got.MissedCalls != 1 || got.RejectedCalls != 1 {
		t.Fatalf("buckets: %+v", got)
	}
	if got.TotalConnectedSeconds != 300 || got.AverageConnectedSeconds != 300 {
		t.Fatalf("connected seconds: %+v", got)
	}
	if got.TotalRejoins != 1 {
		t.Fatalf("rejoins %d, want 1", got.TotalRejoins)
	}
}

func TestCallsSummaryScopedToParticipant(t *testing.T) {
	callStore, coinStore := seedStores(t)
	svc := NewService(NewStoreRepository(callStore, coinStore))

	got, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{UserID: "member-2", Range: window()})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.TotalCalls != 1 || got.RejectedCalls != 1 {
		t.Fatalf("member-2 summary: %+v", got)
	}
}

func TestCoinsSummary(t *testing.T) {
	callStore, coinStore := seedStores(t)
	svc := NewService(NewStoreRepository(callStore, coinStore))

	caller, err := svc.CoinsSummary(context.Background(), CoinsSummaryRequest{UserID: "member-1", Range: window()})
	if err != nil {
		t.Fatalf("caller summary: %v", err)
	}
	if caller.SpentCoins != 500 || caller.RefundedCoins != 500 || caller.EarnedCoins != 0 {
		t.Fatalf("caller coins: %+v", caller)
	}
	if caller.NetCoins != 0 {
		t.Fatalf("caller net %d, want 0", caller.NetCoins)
	}

	receiver, err := svc.CoinsSummary(context.Background(), CoinsSummaryRequest{UserID: "creator-1", Range: window()})
	if err != nil {
		t.Fatalf("receiver summary: %v", err)
	}
	if receiver.EarnedCoins != 500 || receiver.NetCoins != 500 {
		t.Fatalf("receiver coins: %+v", receiver)
	}
}

func TestSummaryValidation(t *testing.T) {
	svc := NewService(nil)

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: window()}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing user: %v", err)
	}
	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{UserID: "u", Range: TimeRange{From: ts(5), To: ts(1)}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("inverted range: %v", err)
	}
}
