package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/metrics"
	"DCAKeeper/internal/model"
)

type fakeKeeper struct {
	due      bool
	checkErr error
	results  []error
	performs int
	lastData []byte
}

func (f *fakeKeeper) CheckUpkeep(context.Context, []byte) (bool, []byte, error) {
	return f.due, []byte("plan"), f.checkErr
}

func (f *fakeKeeper) PerformUpkeep(_ context.Context, data []byte) (model.UpkeepReport, error) {
	f.lastData = data
	i := f.performs
	f.performs++
	if i < len(f.results) && f.results[i] != nil {
		return model.UpkeepReport{}, f.results[i]
	}
	return model.UpkeepReport{RunID: "run-1", Mode: model.ModeWithdraw}, nil
}

func newTestScheduler(k Keeper, opts ...Option) *Scheduler {
	opts = append([]Option{WithRetries(3, time.Millisecond)}, opts...)
	return NewScheduler(context.Background(), k, zap.NewNop(), opts...)
}

func TestRunOnce_Idle(t *testing.T) {
	k := &fakeKeeper{}
	_, outcome, err := newTestScheduler(k).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickIdle, outcome)
	assert.Zero(t, k.performs)
}

func TestRunOnce_ForwardsPerformData(t *testing.T) {
	k := &fakeKeeper{due: true}
	report, outcome, err := newTestScheduler(k).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickPerformed, outcome)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, []byte("plan"), k.lastData)
}

func TestRunOnce_RetriesRetryableFailures(t *testing.T) {
	k := &fakeKeeper{due: true, results: []error{
		xerrors.New(xerrors.CodeSlippageExceeded, ""),
		xerrors.New(xerrors.CodeTransferFailed, ""),
	}}
	_, outcome, err := newTestScheduler(k).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickPerformed, outcome)
	assert.Equal(t, 3, k.performs)
}

func TestRunOnce_GivesUp(t *testing.T) {
	tests := []struct {
		name     string
		results  []error
		performs int
	}{
		{"not retryable", []error{xerrors.New(xerrors.CodeInsufficientFund, "")}, 1},
		{"attempts exhausted", []error{
			xerrors.New(xerrors.CodeTransferFailed, ""),
			xerrors.New(xerrors.CodeTransferFailed, ""),
			xerrors.New(xerrors.CodeTransferFailed, ""),
		}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &fakeKeeper{due: true, results: tt.results}
			_, outcome, err := newTestScheduler(k).RunOnce(context.Background())
			require.Error(t, err)
			assert.Equal(t, TickFailed, outcome)
			assert.Equal(t, tt.performs, k.performs)
		})
	}
}

func TestRunOnce_LostRace(t *testing.T) {
	k := &fakeKeeper{due: true, results: []error{xerrors.New(xerrors.CodeUpkeepNotNeeded, "")}}
	_, outcome, err := newTestScheduler(k).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickLost, outcome)
	assert.Equal(t, 1, k.performs)
}

func TestRunOnce_CheckError(t *testing.T) {
	k := &fakeKeeper{checkErr: errors.New("boom")}
	_, outcome, err := newTestScheduler(k).RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, TickFailed, outcome)
}

func TestTick_RecordsMetrics(t *testing.T) {
	mt := metrics.NewMetrics(prometheus.NewRegistry())
	k := &fakeKeeper{due: true}
	s := newTestScheduler(k, WithMetrics(mt), WithBreaker(func() bool { return true }))

	s.tick()
	k.due = false
	s.tick()

	assert.Equal(t, 1.0, testutil.ToFloat64(mt.KeeperTicks.WithLabelValues(TickPerformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.KeeperTicks.WithLabelValues(TickIdle)))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.RouterBreakerOn))
}

func TestRegister_RejectsBadSpec(t *testing.T) {
	s := newTestScheduler(&fakeKeeper{})
	assert.Error(t, s.Register("every now and then"))
	require.NoError(t, s.Register("@every 10s"))
	s.Start()
	s.Stop()
}

type capture struct{ msgs []string }

func (c *capture) Notify(_ context.Context, text string) error {
	c.msgs = append(c.msgs, text)
	return nil
}

func TestTick_NotifiesPerformedAndFailed(t *testing.T) {
	n := &capture{}
	k := &fakeKeeper{due: true, results: []error{nil, xerrors.New(xerrors.CodeInsufficientFund, "")}}
	s := newTestScheduler(k, WithNotifier(n))

	s.tick()
	s.tick()
	k.due = false
	s.tick()

	require.Len(t, n.msgs, 2)
	assert.Contains(t, n.msgs[0], "run-1")
	assert.Contains(t, n.msgs[1], "INSUFFICIENT_FUNDS")
}
