package reporting

import (
	"context"
	"time"

	"paircall-platform/internal/calls"
	"paircall-platform/internal/coins"
)

// StoreRepository serves reports straight from the call store and the coin
// transaction log; no separate reporting tables.
type StoreRepository struct {
	calls calls.Store
	coins coins.Store
}

func NewStoreRepository(callStore calls.Store, coinStore coins.Store) *StoreRepository {
	return &StoreRepository{calls: callStore, coins: coinStore}
}

func (r *StoreRepository) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Ledger, error) {
	return r.calls.ListByParticipant(ctx, userID, from, to)
}

func (r *StoreRepository) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]coins.Transaction, error) {
	return r.coins.ListTransactionsByUser(ctx, userID, from, to)
}
