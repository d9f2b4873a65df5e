package settings

import "time"

// CallSettings is the platform-wide price sheet for video calls.
// The values are read once at call creation and frozen on the call ledger,
// so edits here never change the billing of in-flight calls.
type CallSettings struct {
	// CoinPrice is the cost of one call entitlement, in coins.
	CoinPrice int64 `json:"coin_price" db:"coin_price"`

	// DurationSeconds is the entitlement length bought by CoinPrice.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty" db:"updated_by"`
}
