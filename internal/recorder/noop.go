package recorder

// NoopRecorder is used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordDeposit(_ *DepositEvent) error        { return nil }
func (n *NoopRecorder) RecordWithdrawal(_ *WithdrawalEvent) error  { return nil }
func (n *NoopRecorder) RecordUpkeep(_ *UpkeepEvent) error          { return nil }
func (n *NoopRecorder) RecordPolicyChange(_ *PolicyEvent) error    { return nil }
func (n *NoopRecorder) RecentUpkeeps(_ int) ([]UpkeepEvent, error) { return nil, nil }
func (n *NoopRecorder) Close() error                               { return nil }
