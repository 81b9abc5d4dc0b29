// Package fund implements the vault engine: deposits, owner policy and the
// check/perform upkeep cycle that converts or pays out custody once per
// interval.
package fund

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"DCAKeeper/internal/clock"
	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/ledger"
	"DCAKeeper/internal/metrics"
	"DCAKeeper/internal/model"
	"DCAKeeper/internal/policy"
	"DCAKeeper/internal/recorder"
	"DCAKeeper/internal/swap"
	"DCAKeeper/internal/token"
)

// Settings configures a vault on first start. Once a state file exists the
// persisted owner, amount and interval take precedence.
type Settings struct {
	Owner       common.Address
	Amount      *uint256.Int
	Interval    time.Duration
	Mode        model.Mode
	SourceAsset common.Address
	DestAsset   common.Address
	// Recipient receives upkeep proceeds. Zero means the current owner in
	// withdraw mode and "keep in custody" in swap mode, where the owner takes
	// the output out with WithdrawAsset.
	Recipient common.Address
	StateFile string
}

// core is everything an invocation may mutate. Invocations work on a clone
// and swap it in only on success.
type core struct {
	ledger   *ledger.Ledger
	holdings *ledger.Holdings
	clock    *clock.Clock
	policy   *policy.Policy
}

func (c *core) clone() *core {
	return &core{
		ledger:   c.ledger.Clone(),
		holdings: c.holdings.Clone(),
		clock:    c.clock.Clone(),
		policy:   c.policy.Clone(),
	}
}

// Manager is the vault engine. Every exported method runs to completion under
// one lock, so concurrent callers observe a serial history.
type Manager struct {
	mu       sync.Mutex
	state    *core
	settings Settings

	tokens   token.Transferer
	executor *swap.Executor
	recorder recorder.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithExecutor sets the swap executor; required in swap mode.
func WithExecutor(e *swap.Executor) Option { return func(m *Manager) { m.executor = e } }

// WithRecorder sets the history recorder.
func WithRecorder(r recorder.Recorder) Option { return func(m *Manager) { m.recorder = r } }

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

// NewManager creates a Manager, loading or initializing state from disk.
func NewManager(s Settings, tokens token.Transferer, opts ...Option) (*Manager, error) {
	if !s.Mode.Valid() {
		return nil, xerrors.Newf(xerrors.CodeInvalidAmount, "unknown mode %q", s.Mode)
	}
	if tokens == nil {
		return nil, xerrors.New(xerrors.CodeTransferFailed, "no asset transferer configured")
	}
	if s.Mode == model.ModeSwap && s.SourceAsset == s.DestAsset {
		return nil, xerrors.New(xerrors.CodeInvalidIdentity, "swap mode needs distinct source and destination assets")
	}

	m := &Manager{
		settings: s,
		tokens:   tokens,
		recorder: recorder.NewNoopRecorder(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if s.Mode == model.ModeSwap && m.executor == nil {
		return nil, xerrors.New(xerrors.CodeInvalidIdentity, "swap mode needs a swap executor")
	}

	var persisted *model.VaultState
	if s.StateFile != "" {
		st, err := LoadState(s.StateFile)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load state")
		}
		persisted = st
	}

	if persisted != nil {
		c, err := restore(persisted, s.SourceAsset)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "restore state")
		}
		m.state = c
		m.logger.Info("vault state restored",
			zap.String("file", s.StateFile),
			zap.Int("users", c.ledger.Len()),
			zap.String("custody", c.ledger.Total().Dec()))
	} else {
		pol, err := policy.New(s.Owner, s.Amount)
		if err != nil {
			return nil, err
		}
		if s.Interval < 0 {
			return nil, xerrors.Newf(xerrors.CodeInvalidAmount, "interval %s is negative", s.Interval)
		}
		m.state = &core{
			ledger:   ledger.New(),
			holdings: ledger.NewHoldings(),
			clock:    clock.New(s.Interval, 0),
			policy:   pol,
		}
		if err := m.save(m.state); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "save initial state")
		}
	}
	m.publish()
	return m, nil
}

// SetClock overrides the time source, primarily for deterministic testing.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Settings returns the immutable deployment settings.
func (m *Manager) Settings() Settings { return m.settings }

// Deposit accepts native currency sent along with the call.
func (m *Manager) Deposit(ctx context.Context, user common.Address, amount *uint256.Int) error {
	return m.DepositToken(ctx, user, model.NativeAsset, amount)
}

// DepositToken pulls amount of asset from user, which must have approved the
// vault beforehand. Only the configured source asset is accepted.
func (m *Manager) DepositToken(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if asset != m.settings.SourceAsset {
		return xerrors.New(xerrors.CodeInvalidIdentity, "asset not accepted by this vault", xerrors.WithMetadata("asset", asset.Hex()))
	}

	next := m.state.clone()
	if err := next.ledger.Deposit(user, amount); err != nil {
		return err
	}
	if err := next.holdings.Credit(asset, amount); err != nil {
		return err
	}
	if err := m.checkAllowance(ctx, user, asset, amount); err != nil {
		return err
	}
	if err := m.tokens.TransferFrom(ctx, asset, user, amount); err != nil {
		m.logger.Warn("deposit pull failed", zap.String("user", user.Hex()), zap.Error(err))
		return transferError(err, "pull deposit")
	}
	now := m.now()
	next.clock.Arm(now)
	m.commit(next)

	m.logger.Info("deposit accepted",
		zap.String("user", user.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("custody", next.ledger.Total().Dec()))
	m.metrics.ObserveDeposit(asset.Hex())
	m.record(func() error {
		return m.recorder.RecordDeposit(&recorder.DepositEvent{
			User:         user.Hex(),
			Asset:        asset.Hex(),
			Amount:       amount.Dec(),
			BalanceAfter: next.ledger.BalanceOf(user).Dec(),
			TotalAfter:   next.ledger.Total().Dec(),
		})
	})
	return nil
}

// checkAllowance fails a token deposit before anything is pulled when the
// transferer can tell the user has not approved enough.
func (m *Manager) checkAllowance(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	if asset == model.NativeAsset {
		return nil
	}
	reader, ok := m.tokens.(token.AllowanceReader)
	if !ok {
		return nil
	}
	allowed, err := reader.Allowance(ctx, asset, user)
	if err != nil {
		return transferError(err, "read allowance")
	}
	if allowed.Lt(amount) {
		return xerrors.New(xerrors.CodeTransferFailed, "allowance below deposit",
			xerrors.WithMetadata("user", user.Hex()),
			xerrors.WithMetadata("allowance", allowed.Dec()))
	}
	return nil
}

// Withdraw pays amount of the source asset to to. Owner only.
func (m *Manager) Withdraw(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	return m.WithdrawAsset(ctx, caller, m.settings.SourceAsset, to, amount)
}

// WithdrawAsset pays amount of asset to to. Owner only. The source asset
// comes out of depositor balances in deposit order; any other asset, such as
// swap output kept in custody, comes straight out of holdings.
func (m *Manager) WithdrawAsset(ctx context.Context, caller, asset, to common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := next.policy.Authorize(caller); err != nil {
		return err
	}
	if (to == common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidIdentity, "withdrawal recipient must not be the zero address")
	}
	if asset == m.settings.SourceAsset {
		if err := m.payout(ctx, next, to, amount); err != nil {
			return err
		}
	} else if err := m.payHolding(ctx, next, asset, to, amount); err != nil {
		return err
	}
	m.commit(next)

	m.logger.Info("withdrawal", zap.String("asset", asset.Hex()), zap.String("to", to.Hex()), zap.String("amount", amount.Dec()))
	m.record(func() error {
		return m.recorder.RecordWithdrawal(&recorder.WithdrawalEvent{
			Caller:     caller.Hex(),
			To:         to.Hex(),
			Asset:      asset.Hex(),
			Amount:     amount.Dec(),
			TotalAfter: next.ledger.Total().Dec(),
		})
	})
	return nil
}

// payout debits amount of the source asset from next and transfers it out.
func (m *Manager) payout(ctx context.Context, next *core, to common.Address, amount *uint256.Int) error {
	if err := next.ledger.Debit(amount); err != nil {
		return err
	}
	if err := next.holdings.Debit(m.settings.SourceAsset, amount); err != nil {
		return err
	}
	if err := m.tokens.Transfer(ctx, m.settings.SourceAsset, to, amount); err != nil {
		m.logger.Warn("payout failed", zap.String("to", to.Hex()), zap.Error(err))
		return transferError(err, "payout")
	}
	return nil
}

// payHolding debits a non-source asset from next and transfers it out.
func (m *Manager) payHolding(ctx context.Context, next *core, asset, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return xerrors.New(xerrors.CodeInvalidAmount, "withdrawal amount must be positive")
	}
	if err := next.holdings.Debit(asset, amount); err != nil {
		return err
	}
	if err := m.tokens.Transfer(ctx, asset, to, amount); err != nil {
		m.logger.Warn("payout failed", zap.String("asset", asset.Hex()), zap.String("to", to.Hex()), zap.Error(err))
		return transferError(err, "payout")
	}
	return nil
}

// ChangeAmount replaces the per-upkeep amount. Owner only.
func (m *Manager) ChangeAmount(_ context.Context, caller common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	old := next.policy.Amount()
	if err := next.policy.ChangeAmount(caller, amount); err != nil {
		return err
	}
	m.commit(next)
	m.policyChanged(caller, "amount", old.Dec(), amount.Dec())
	return nil
}

// ChangeInterval replaces the upkeep interval. Owner only.
func (m *Manager) ChangeInterval(_ context.Context, caller common.Address, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := next.policy.Authorize(caller); err != nil {
		return err
	}
	old := next.clock.Interval()
	if err := next.clock.SetInterval(interval); err != nil {
		return err
	}
	m.commit(next)
	m.policyChanged(caller, "interval", old.String(), interval.String())
	return nil
}

// TransferOwnership hands the owner capability to newOwner. Owner only.
func (m *Manager) TransferOwnership(_ context.Context, caller, newOwner common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := next.policy.TransferOwnership(caller, newOwner); err != nil {
		return err
	}
	m.commit(next)
	m.policyChanged(caller, "owner", caller.Hex(), newOwner.Hex())
	return nil
}

func (m *Manager) policyChanged(caller common.Address, field, oldValue, newValue string) {
	m.logger.Info("policy changed",
		zap.String("field", field),
		zap.String("old", oldValue),
		zap.String("new", newValue))
	m.record(func() error {
		return m.recorder.RecordPolicyChange(&recorder.PolicyEvent{
			Caller:   caller.Hex(),
			Field:    field,
			OldValue: oldValue,
			NewValue: newValue,
		})
	})
}

// commit installs next as the live state and persists it. A failed write is
// logged; the in-memory state stays authoritative.
func (m *Manager) commit(next *core) {
	m.state = next
	if err := m.save(next); err != nil {
		m.logger.Error("failed to save vault state", zap.String("file", m.settings.StateFile), zap.Error(err))
	}
	m.publish()
}

func (m *Manager) save(c *core) error {
	if m.settings.StateFile == "" {
		return nil
	}
	return SaveState(m.settings.StateFile, snapshot(c))
}

func (m *Manager) publish() {
	m.metrics.SetVault(toFloat(m.state.ledger.Total()), m.state.clock.LastTimestamp(), m.state.ledger.Len())
}

func (m *Manager) record(fn func() error) {
	if err := fn(); err != nil {
		m.logger.Error("record event", zap.Error(err))
	}
}

// transferError keeps coded collaborator errors and classifies the rest as
// failed transfers.
func transferError(err error, op string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeTransferFailed, err, op)
}

func toFloat(a *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(a.ToBig()).Float64()
	return f
}

func newRunID() string {
	return uuid.NewString()
}
