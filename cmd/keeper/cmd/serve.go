package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"DCAKeeper/internal/api"
	"DCAKeeper/internal/notifier"
	"DCAKeeper/internal/scheduler"
)

var runOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the keeper loop and the HTTP API",
	Long: `Serve drives checkUpkeep/performUpkeep on the configured cron cadence and
serves the vault API until interrupted.

Example:
  keeper serve -c configs/config.yaml --run-on-start`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run one keeper round before the first cron tick")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	if a.cfg.API.JWTSecret == "" {
		logger.Warn("api.jwt_secret is empty; authenticated endpoints are disabled")
	}

	var notify notifier.Notifier = notifier.Noop{}
	var tg *notifier.TelegramNotifier
	if a.cfg.Telegram.BotToken != "" {
		tg = notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy, logger.Named("telegram"))
		notify = tg
	}

	sched := scheduler.NewScheduler(ctx, a.vault, logger.Named("scheduler"),
		scheduler.WithRetries(a.cfg.Schedule.Retries, time.Second),
		scheduler.WithBreaker(a.breakerOpen),
		scheduler.WithMetrics(a.metrics),
		scheduler.WithNotifier(notify))
	if err := sched.Register(a.cfg.Schedule.KeeperCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if runOnStart {
		go func() {
			if _, outcome, err := sched.RunOnce(ctx); err != nil {
				logger.Warn("initial keeper round failed", zap.String("outcome", outcome), zap.Error(err))
			}
		}()
	}

	if tg != nil {
		go tg.StartPolling(ctx, func(ctx context.Context, command string) string {
			return a.handleCommand(ctx, sched, command)
		})
		logger.Info("telegram polling started")
	}

	srv := &http.Server{
		Addr: a.cfg.API.Addr,
		Handler: api.NewServer(a.vault, api.NewValidator(a.cfg.API.JWTSecret),
			api.WithRecorder(a.recorder),
			api.WithGatherer(a.registry),
			api.WithLogger(logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("keeper is running", zap.String("mode", a.cfg.Vault.Mode), zap.String("cron", a.cfg.Schedule.KeeperCron))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
	logger.Info("keeper stopped")
	return nil
}

// handleCommand answers operator chat commands.
func (a *app) handleCommand(ctx context.Context, sched *scheduler.Scheduler, command string) string {
	switch command {
	case "/status":
		return notifier.FormatStatus(a.vault.Status())
	case "/check":
		due, _, err := a.vault.CheckUpkeep(ctx, nil)
		if err != nil {
			return notifier.FormatFailure(err)
		}
		return fmt.Sprintf("upkeep needed: %t", due)
	case "/perform":
		report, outcome, err := sched.RunOnce(ctx)
		switch {
		case err != nil:
			return notifier.FormatFailure(err)
		case outcome == scheduler.TickPerformed:
			return notifier.FormatUpkeep(report)
		default:
			return "upkeep not needed (" + outcome + ")"
		}
	case "/help", "/start":
		return "Commands: /status /check /perform"
	}
	return ""
}
