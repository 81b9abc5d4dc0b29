package model

import "time"

// VaultState is the persisted snapshot of an engine. Amounts are decimal
// strings and addresses are hex so the file stays readable.
type VaultState struct {
	Owner         string `json:"owner"`
	Amount        string `json:"amount"`
	IntervalNanos int64  `json:"interval_ns"`
	// IntervalSeconds is read only from files that predate IntervalNanos.
	IntervalSeconds int64             `json:"interval_seconds,omitempty"`
	LastTimestamp   int64             `json:"last_timestamp"`
	Users           []string          `json:"users"`
	Balances        map[string]string `json:"balances"`
	Holdings        map[string]string `json:"holdings"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
