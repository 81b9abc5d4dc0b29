package recorder

// DepositEvent records custody growing.
type DepositEvent struct {
	User         string
	Asset        string
	Amount       string
	BalanceAfter string
	TotalAfter   string
}

// WithdrawalEvent records an owner withdrawal.
type WithdrawalEvent struct {
	Caller     string
	To         string
	Asset      string
	Amount     string
	TotalAfter string
}

// Upkeep outcomes.
const (
	UpkeepPerformed = "PERFORMED"
	UpkeepRejected  = "REJECTED" // not due
	UpkeepFailed    = "FAILED"   // due, but the action failed
)

// UpkeepEvent records one PerformUpkeep attempt.
type UpkeepEvent struct {
	RunID         string `json:"run_id"`
	Timestamp     int64  `json:"timestamp"`
	Mode          string `json:"mode"`
	Status        string `json:"status"`
	ErrorCode     string `json:"error_code,omitempty"`
	SourceAsset   string `json:"source_asset"`
	DestAsset     string `json:"dest_asset"`
	Recipient     string `json:"recipient,omitempty"`
	AmountIn      string `json:"amount_in"`
	AmountOut     string `json:"amount_out,omitempty"`
	Fee           string `json:"fee,omitempty"`
	LastTimestamp int64  `json:"last_timestamp"`
}

// PolicyEvent records an owner-gated parameter change.
type PolicyEvent struct {
	Caller   string
	Field    string // "amount", "interval" or "owner"
	OldValue string
	NewValue string
}

// Recorder persists vault history for audit and analysis.
type Recorder interface {
	RecordDeposit(evt *DepositEvent) error
	RecordWithdrawal(evt *WithdrawalEvent) error
	RecordUpkeep(evt *UpkeepEvent) error
	RecordPolicyChange(evt *PolicyEvent) error
	RecentUpkeeps(limit int) ([]UpkeepEvent, error)
	Close() error
}
