package fund

import (
	"bytes"
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/model"
	"DCAKeeper/internal/recorder"
)

// CheckUpkeep reports whether an upkeep is due and, if so, the perform data
// describing it. checkData is accepted for keeper compatibility and ignored.
func (m *Manager) CheckUpkeep(_ context.Context, _ []byte) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.clock.IsDue(m.now(), m.state.ledger.Total()) {
		return false, nil, nil
	}
	data, err := EncodePerformData(m.plan(m.state))
	if err != nil {
		return false, nil, err
	}
	return true, data, nil
}

// State derives the current upkeep state.
func (m *Manager) State() model.UpkeepState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clock.Evaluate(m.now(), m.state.ledger.Total())
}

// plan derives what an upkeep would do against c right now.
func (m *Manager) plan(c *core) model.PerformData {
	pd := model.PerformData{SourceAsset: m.settings.SourceAsset, DestAsset: m.settings.DestAsset}
	switch m.settings.Mode {
	case model.ModeSwap:
		pd.Amount = c.policy.Amount()
	default:
		pd.DestAsset = m.settings.SourceAsset
		pd.Amount = c.ledger.Total()
	}
	return pd
}

// PerformUpkeep runs the due action and advances the clock. It re-checks
// dueness itself; performData is only compared against a fresh plan and
// never trusted. If the action fails no state changes and the clock stays
// put, so the next due cycle can retry. In swap mode the recipient payout
// runs after the swap is committed; its failure is reported in
// UpkeepReport.PayoutErr rather than as an error.
func (m *Manager) PerformUpkeep(ctx context.Context, performData []byte) (model.UpkeepReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	mode := string(m.settings.Mode)
	if !m.state.clock.IsDue(now, m.state.ledger.Total()) {
		m.logger.Debug("upkeep not needed", zap.Int64("last_timestamp", m.state.clock.LastTimestamp()))
		m.metrics.ObserveUpkeep(mode, recorder.UpkeepRejected)
		m.record(func() error {
			return m.recorder.RecordUpkeep(&recorder.UpkeepEvent{
				RunID:         newRunID(),
				Timestamp:     now.Unix(),
				Mode:          mode,
				Status:        recorder.UpkeepRejected,
				ErrorCode:     string(xerrors.CodeUpkeepNotNeeded),
				LastTimestamp: m.state.clock.LastTimestamp(),
			})
		})
		return model.UpkeepReport{}, xerrors.New(xerrors.CodeUpkeepNotNeeded, "")
	}

	plan := m.plan(m.state)
	m.checkPerformData(performData, plan)

	next := m.state.clone()
	report := model.UpkeepReport{
		RunID:       newRunID(),
		Mode:        m.settings.Mode,
		PerformedAt: now,
		AmountIn:    plan.Amount,
	}

	var err error
	switch m.settings.Mode {
	case model.ModeSwap:
		err = m.performSwap(ctx, next, plan, &report)
	default:
		err = m.performWithdraw(ctx, next, plan, &report)
	}
	if err == nil {
		err = next.clock.MarkActed(now)
	}
	if err != nil {
		m.logger.Warn("upkeep failed", zap.String("run_id", report.RunID), zap.Error(err))
		m.metrics.ObserveUpkeep(mode, recorder.UpkeepFailed)
		m.record(func() error {
			return m.recorder.RecordUpkeep(upkeepEvent(report, recorder.UpkeepFailed, string(xerrors.CodeOf(err)), m.state.clock.LastTimestamp()))
		})
		return model.UpkeepReport{}, err
	}

	m.commit(next)
	if report.Swap != nil && m.settings.Recipient != (common.Address{}) {
		m.payProceeds(ctx, &report)
	}
	m.logger.Info("upkeep performed",
		zap.String("run_id", report.RunID),
		zap.String("mode", mode),
		zap.String("amount_in", report.AmountIn.Dec()),
		zap.String("recipient", report.Recipient.Hex()),
		zap.Int64("last_timestamp", next.clock.LastTimestamp()))
	m.metrics.ObserveUpkeep(mode, recorder.UpkeepPerformed)
	if report.Swap != nil {
		m.metrics.ObserveSwap(report.Swap.DestAsset.Hex(), toFloat(report.Swap.AmountOut))
	}
	payoutCode := ""
	if report.PayoutErr != nil {
		payoutCode = string(xerrors.CodeOf(report.PayoutErr))
	}
	m.record(func() error {
		return m.recorder.RecordUpkeep(upkeepEvent(report, recorder.UpkeepPerformed, payoutCode, next.clock.LastTimestamp()))
	})
	return report, nil
}

func (m *Manager) performWithdraw(ctx context.Context, next *core, plan model.PerformData, report *model.UpkeepReport) error {
	recipient := m.settings.Recipient
	if (recipient == common.Address{}) {
		recipient = next.policy.Owner()
	}
	report.Recipient = recipient
	return m.payout(ctx, next, recipient, plan.Amount)
}

func (m *Manager) performSwap(ctx context.Context, next *core, plan model.PerformData, report *model.UpkeepReport) error {
	if total := next.ledger.Total(); total.Lt(plan.Amount) {
		return xerrors.Newf(xerrors.CodeInsufficientFund, "custody %s below swap amount %s", total.Dec(), plan.Amount.Dec())
	}
	quote, err := m.executor.Quote(ctx, plan.SourceAsset, plan.DestAsset, plan.Amount)
	if err != nil {
		return err
	}
	if err := next.ledger.Debit(plan.Amount); err != nil {
		return err
	}
	res, err := m.executor.Swap(ctx, next.holdings, plan.SourceAsset, plan.DestAsset, plan.Amount, quote.MinAmountOut)
	if err != nil {
		return err
	}
	report.Swap = &res
	return nil
}

// payProceeds forwards committed swap output to the recipient as a step of
// its own. On failure the output stays in custody for the owner to withdraw;
// the swap is never undone or repeated.
func (m *Manager) payProceeds(ctx context.Context, report *model.UpkeepReport) {
	res := report.Swap
	recipient := m.settings.Recipient
	next := m.state.clone()
	err := next.holdings.Debit(res.DestAsset, res.AmountOut)
	if err == nil {
		if err = m.tokens.Transfer(ctx, res.DestAsset, recipient, res.AmountOut); err != nil {
			err = transferError(err, "pay swap proceeds")
		}
	}
	if err != nil {
		report.PayoutErr = err
		m.logger.Warn("swap proceeds kept in custody",
			zap.String("run_id", report.RunID),
			zap.String("recipient", recipient.Hex()),
			zap.String("amount_out", res.AmountOut.Dec()),
			zap.Error(err))
		return
	}
	m.commit(next)
	report.Recipient = recipient
}

// checkPerformData logs when the caller's performData is malformed or stale.
func (m *Manager) checkPerformData(data []byte, plan model.PerformData) {
	if len(data) == 0 {
		return
	}
	fresh, err := EncodePerformData(plan)
	if err != nil || bytes.Equal(fresh, data) {
		return
	}
	supplied, err := DecodePerformData(data)
	if err != nil {
		m.logger.Debug("ignoring malformed perform data", zap.Error(err))
		return
	}
	m.logger.Debug("perform data is stale, using fresh plan",
		zap.String("supplied_amount", model.AmountString(supplied.Amount)),
		zap.String("planned_amount", plan.Amount.Dec()))
}

func upkeepEvent(r model.UpkeepReport, status, code string, last int64) *recorder.UpkeepEvent {
	evt := &recorder.UpkeepEvent{
		RunID:         r.RunID,
		Timestamp:     r.PerformedAt.Unix(),
		Mode:          string(r.Mode),
		Status:        status,
		ErrorCode:     code,
		Recipient:     r.Recipient.Hex(),
		AmountIn:      model.AmountString(r.AmountIn),
		LastTimestamp: last,
	}
	if r.Swap != nil {
		evt.SourceAsset = r.Swap.SourceAsset.Hex()
		evt.DestAsset = r.Swap.DestAsset.Hex()
		evt.AmountOut = model.AmountString(r.Swap.AmountOut)
		evt.Fee = model.AmountString(r.Swap.Fee)
	}
	return evt
}

// TotalFunds returns the custodied amount of the source asset.
func (m *Manager) TotalFunds() *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ledger.Total()
}

// BalanceOf returns user's deposited balance.
func (m *Manager) BalanceOf(user common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ledger.BalanceOf(user)
}

// UserAt returns the index-th depositor.
func (m *Manager) UserAt(index uint64) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ledger.UserAt(index)
}

// UserCount returns the number of distinct depositors.
func (m *Manager) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ledger.Len()
}

// Holdings returns the vault's custody of asset.
func (m *Manager) Holdings(asset common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.holdings.Balance(asset)
}

// Amount returns the configured per-upkeep amount.
func (m *Manager) Amount() *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.policy.Amount()
}

// Owner returns the current policy owner.
func (m *Manager) Owner() common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.policy.Owner()
}

// LastTimestamp returns the last upkeep (or arming) time in unix seconds; 0
// before the first deposit.
func (m *Manager) LastTimestamp() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clock.LastTimestamp()
}

// Interval returns the configured upkeep interval.
func (m *Manager) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clock.Interval()
}
