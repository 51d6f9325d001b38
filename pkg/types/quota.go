package types

import "time"

// RateWindow is the fixed-window counter state for one client key.
type RateWindow struct {
	ClientKey   string    `json:"client_key"`
	WindowStart time.Time `json:"window_start"`
	Count       int64     `json:"count"`
}

// QuotaDecision is the outcome of one quota admission check.
type QuotaDecision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Count     int64
	ResetAt   time.Time
}
