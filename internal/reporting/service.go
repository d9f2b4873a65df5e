package reporting

import (
	"context"
	"errors"
	"time"

	"paircall-platform/internal/calls"
	"paircall-platform/internal/coins"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Implementations should
// query immutable sources (the call ledger and the coin transaction log).
type Repository interface {
	ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Ledger, error)
	ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]coins.Transaction, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID}
	for _, l := range rows {
		out.TotalCalls++
		out.TotalRejoins += l.RejoinCount
		if l.ConnectedAt != nil && l.EndedAt != nil {
			out.TotalConnectedSeconds += int(l.EndedAt.Sub(*l.ConnectedAt) / time.Second)
		}
		switch l.Status {
		case calls.StatusEnded:
			out.EndedCalls++
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusRejected:
			out.RejectedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusCancelled:
			out.CancelledCalls++
		default:
			out.ActiveCalls++
		}
	}
	if connected := out.EndedCalls; connected > 0 {
		out.AverageConnectedSeconds = out.TotalConnectedSeconds / connected
	}
	return out, nil
}

func (s *Service) CoinsSummary(ctx context.Context, req CoinsSummaryRequest) (CoinsSummary, error) {
	if req.UserID == "" {
		return CoinsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CoinsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CoinsSummary{}, errors.New("reporting: repository not configured")
	}

	txs, err := s.repo.ListTransactions(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CoinsSummary{}, err
	}

	out := CoinsSummary{UserID: req.UserID}
	for _, t := range txs {
		switch t.Type {
		case coins.TransactionTypeCallDebit:
			out.SpentCoins += -t.Amount
		case coins.TransactionTypeCallCredit:
			out.EarnedCoins += t.Amount
		case coins.TransactionTypeCallRefund:
			out.RefundedCoins += t.Amount
		}
		out.NetCoins += t.Amount
	}
	return out, nil
}
