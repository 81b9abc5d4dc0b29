// Package scheduler is the off-chain keeper driver: on every cron tick it
// asks the vault whether upkeep is due and, if so, performs it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/metrics"
	"DCAKeeper/internal/model"
	"DCAKeeper/internal/notifier"
)

// Keeper is the check/perform surface the driver calls.
type Keeper interface {
	CheckUpkeep(ctx context.Context, checkData []byte) (bool, []byte, error)
	PerformUpkeep(ctx context.Context, performData []byte) (model.UpkeepReport, error)
}

// Tick outcomes, also used as metric labels.
const (
	TickIdle      = "idle"
	TickPerformed = "performed"
	TickLost      = "lost" // another driver performed first
	TickFailed    = "failed"
)

// Scheduler manages the keeper cron task.
type Scheduler struct {
	Cron     *cron.Cron
	Keeper   Keeper
	Metrics  *metrics.Metrics
	Notifier notifier.Notifier
	Ctx      context.Context

	logger      *zap.Logger
	attempts    uint
	retryDelay  time.Duration
	breakerOpen func() bool
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithRetries sets how many times a retryable perform failure is attempted.
func WithRetries(attempts uint, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.attempts = attempts
		s.retryDelay = delay
	}
}

// WithBreaker reports the router breaker state into metrics on every tick.
func WithBreaker(open func() bool) Option {
	return func(s *Scheduler) { s.breakerOpen = open }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.Metrics = m }
}

// WithNotifier reports performed and failed ticks to n.
func WithNotifier(n notifier.Notifier) Option {
	return func(s *Scheduler) { s.Notifier = n }
}

// NewScheduler creates a new Scheduler. Ticks that fire while the previous
// one is still running are skipped.
func NewScheduler(ctx context.Context, k Keeper, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	s := &Scheduler{
		Cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cronLog))),
		Keeper:     k,
		Notifier:   notifier.Noop{},
		Ctx:        ctx,
		logger:     logger,
		attempts:   3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.attempts == 0 {
		s.attempts = 1
	}
	return s
}

// Register schedules the keeper tick, e.g. "@every 10s" or "*/10 * * * * *".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register keeper task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunOnce performs one check/perform round and reports its outcome as one of
// the Tick constants.
func (s *Scheduler) RunOnce(ctx context.Context) (model.UpkeepReport, string, error) {
	due, data, err := s.Keeper.CheckUpkeep(ctx, nil)
	if err != nil {
		return model.UpkeepReport{}, TickFailed, fmt.Errorf("check upkeep: %w", err)
	}
	if !due {
		return model.UpkeepReport{}, TickIdle, nil
	}

	var report model.UpkeepReport
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(xerrors.RetryableError),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying upkeep", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	err = r.Do(func() error {
		rep, err := s.Keeper.PerformUpkeep(ctx, data)
		if err != nil {
			return err
		}
		report = rep
		return nil
	})
	switch {
	case errors.Is(err, xerrors.ErrUpkeepNotNeeded):
		return model.UpkeepReport{}, TickLost, nil
	case err != nil:
		return model.UpkeepReport{}, TickFailed, err
	}
	return report, TickPerformed, nil
}

func (s *Scheduler) tick() {
	if s.breakerOpen != nil {
		s.Metrics.SetBreakerOpen(s.breakerOpen())
	}

	report, outcome, err := s.RunOnce(s.Ctx)
	switch outcome {
	case TickFailed:
		s.logger.Error("keeper tick failed", zap.String("code", string(xerrors.CodeOf(err))), zap.Error(err))
		s.notify(notifier.FormatFailure(err))
	case TickPerformed:
		s.logger.Info("keeper performed upkeep", zap.String("run_id", report.RunID), zap.String("mode", string(report.Mode)))
		s.notify(notifier.FormatUpkeep(report))
	case TickLost:
		s.logger.Info("upkeep already performed by another driver")
	default:
		s.logger.Debug("keeper tick idle")
	}
	s.Metrics.ObserveTick(outcome)
}

func (s *Scheduler) notify(text string) {
	if err := s.Notifier.Notify(s.Ctx, text); err != nil {
		s.logger.Warn("notify failed", zap.Error(err))
	}
}
