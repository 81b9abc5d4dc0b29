package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"DCAKeeper/internal/config"
	"DCAKeeper/internal/evm"
	"DCAKeeper/internal/fund"
	"DCAKeeper/internal/logging"
	"DCAKeeper/internal/metrics"
	"DCAKeeper/internal/model"
	"DCAKeeper/internal/recorder"
	"DCAKeeper/internal/swap"
	"DCAKeeper/internal/token"
)

var (
	simVault = common.HexToAddress("0x000000000000000000000000000000000000dCA0")
	simPool  = common.HexToAddress("0x000000000000000000000000000000000000dCA1")
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	recorder recorder.Recorder
	vault    *fund.Manager
	router   *swap.GuardedRouter
	client   *ethclient.Client
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// newApp wires the vault from config. When journal is false the recorder is a
// no-op, which lets read-only commands run beside a serving keeper.
func newApp(ctx context.Context, journal bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(a.registry)

	a.recorder = recorder.NewNoopRecorder()
	if journal && cfg.Database.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
			logger.Warn("create database dir failed", zap.Error(err))
		}
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger.Named("recorder"))
		if err != nil {
			logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		} else {
			a.recorder = sr
		}
	}

	settings, err := vaultSettings(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		tokens token.Transferer
		router swap.Router
	)
	if cfg.Chain.RPCURL != "" {
		tokens, router, err = a.chainBackend(ctx, settings)
	} else {
		tokens, router, err = a.simBackend(settings)
	}
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []fund.Option{
		fund.WithRecorder(a.recorder),
		fund.WithMetrics(a.metrics),
		fund.WithLogger(logger.Named("vault")),
	}
	if settings.Mode == model.ModeSwap {
		a.router = swap.NewGuardedRouter("router", router)
		opts = append(opts, fund.WithExecutor(swap.NewExecutor(a.router, cfg.Vault.SlippageBps)))
	}
	a.vault, err = fund.NewManager(settings, tokens, opts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init vault: %w", err)
	}
	return a, nil
}

func vaultSettings(cfg *config.Config) (fund.Settings, error) {
	amount, err := cfg.AmountWei()
	if err != nil {
		return fund.Settings{}, err
	}
	src, err := cfg.ResolveAsset(cfg.Vault.SourceAsset)
	if err != nil {
		return fund.Settings{}, fmt.Errorf("vault.source_asset: %w", err)
	}
	s := fund.Settings{
		Owner:       common.HexToAddress(cfg.Vault.Owner),
		Amount:      amount,
		Interval:    cfg.Vault.Interval,
		Mode:        model.Mode(cfg.Vault.Mode),
		SourceAsset: src,
		StateFile:   cfg.Vault.StateFile,
	}
	if s.Mode == model.ModeSwap {
		if s.DestAsset, err = cfg.ResolveAsset(cfg.Vault.DestAsset); err != nil {
			return fund.Settings{}, fmt.Errorf("vault.dest_asset: %w", err)
		}
	}
	if cfg.Vault.Recipient != "" {
		s.Recipient = common.HexToAddress(cfg.Vault.Recipient)
	}
	return s, nil
}

func (a *app) chainBackend(ctx context.Context, s fund.Settings) (token.Transferer, swap.Router, error) {
	client, err := evm.Dial(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	a.client = client
	tx, err := evm.NewTransactor(client, a.cfg.Chain.PrivateKey, a.cfg.Chain.ChainID, a.logger.Named("evm"))
	if err != nil {
		return nil, nil, fmt.Errorf("init transactor: %w", err)
	}
	a.logger.Info("chain backend",
		zap.String("rpc", a.cfg.Chain.RPCURL),
		zap.Int64("chain_id", a.cfg.Chain.ChainID),
		zap.String("keeper", tx.From().Hex()))

	var router swap.Router
	if s.Mode == model.ModeSwap {
		router = evm.NewRouter(tx, common.HexToAddress(a.cfg.Chain.RouterAddress))
	}
	return evm.NewTransferer(tx), router, nil
}

func (a *app) simBackend(s fund.Settings) (token.Transferer, swap.Router, error) {
	vault := simVault
	if a.cfg.Chain.VaultAddress != "" {
		vault = common.HexToAddress(a.cfg.Chain.VaultAddress)
	}
	book := token.NewBook(vault)

	balance, err := model.ParseAmount(a.cfg.Sim.Balance)
	if err != nil {
		return nil, nil, fmt.Errorf("sim.balance: %w", err)
	}
	for _, acct := range a.cfg.Sim.Accounts {
		holder := common.HexToAddress(acct)
		book.Mint(s.SourceAsset, holder, balance)
		if s.SourceAsset != model.NativeAsset {
			book.Approve(s.SourceAsset, holder, balance)
		}
	}
	a.logger.Info("in-memory backend", zap.String("vault", vault.Hex()), zap.Int("accounts", len(a.cfg.Sim.Accounts)))

	if s.Mode != model.ModeSwap {
		return book, nil, nil
	}
	reserveIn, err := model.ParseAmount(a.cfg.Sim.ReserveIn)
	if err != nil {
		return nil, nil, fmt.Errorf("sim.reserve_in: %w", err)
	}
	reserveOut, err := model.ParseAmount(a.cfg.Sim.ReserveOut)
	if err != nil {
		return nil, nil, fmt.Errorf("sim.reserve_out: %w", err)
	}
	sim := swap.NewSimRouter(a.cfg.Sim.FeeBps)
	sim.AddPool(s.SourceAsset, s.DestAsset, reserveIn, reserveOut)
	return book, swap.NewSettledRouter(sim, book, simPool, s.DestAsset, reserveOut), nil
}

func (a *app) breakerOpen() bool {
	return a.router != nil && a.router.State() == gobreaker.StateOpen
}

func (a *app) close() {
	if err := a.recorder.Close(); err != nil {
		a.logger.Warn("close recorder", zap.Error(err))
	}
	if a.client != nil {
		a.client.Close()
	}
	_ = a.logger.Sync()
}
