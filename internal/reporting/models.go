package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

// CallsSummary aggregates one user's call history over a window, bucketed by
// how each call ended.
type CallsSummary struct {
	UserID string `json:"user_id"`

	TotalCalls     int `json:"total_calls"`
	EndedCalls     int `json:"ended_calls"`
	MissedCalls    int `json:"missed_calls"`
	RejectedCalls  int `json:"rejected_calls"`
	FailedCalls    int `json:"failed_calls"`
	CancelledCalls int `json:"cancelled_calls"`
	ActiveCalls    int `json:"active_calls"`

	TotalConnectedSeconds   int `json:"total_connected_seconds"`
	AverageConnectedSeconds int `json:"average_connected_seconds"`
	TotalRejoins            int `json:"total_rejoins"`
}

type CoinsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

// CoinsSummary aggregates a user's call-related coin movement: what they
// spent as a caller, earned as a receiver, and got back from failed calls.
type CoinsSummary struct {
	UserID string `json:"user_id"`

	SpentCoins    int64 `json:"spent_coins"`
	EarnedCoins   int64 `json:"earned_coins"`
	RefundedCoins int64 `json:"refunded_coins"`
	NetCoins      int64 `json:"net_coins"`
}
