package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"DCAKeeper/internal/model"
)

// DefaultAmount is 0.01 ether in wei.
const DefaultAmount = "10000000000000000"

// Network holds per-chain asset addresses.
type Network struct {
	Name      string `yaml:"name"`
	WETHToken string `yaml:"weth_token"`
	DAIToken  string `yaml:"dai_token"`
}

// DefaultNetworks maps chain IDs to well-known asset addresses.
var DefaultNetworks = map[int64]Network{
	31337: {
		Name:      "localhost",
		WETHToken: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		DAIToken:  "0x6b175474e89094c44da98b954eedeac495271d0f",
	},
	420: {
		Name:      "goerli",
		WETHToken: "0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6",
		DAIToken:  "0xdc31ee1784292379fbb2964b3b9c4124d8f89c60",
	},
}

// Config holds all application configuration.
type Config struct {
	Vault struct {
		Owner       string        `yaml:"owner"`
		Amount      string        `yaml:"amount"`
		Interval    time.Duration `yaml:"interval"`
		Mode        string        `yaml:"mode"`
		SourceAsset string        `yaml:"source_asset"`
		DestAsset   string        `yaml:"dest_asset"`
		Recipient   string        `yaml:"recipient"`
		SlippageBps uint64        `yaml:"slippage_bps"`
		StateFile   string        `yaml:"state_file"`
	} `yaml:"vault"`
	Chain struct {
		RPCURL        string `yaml:"rpc_url"`
		ChainID       int64  `yaml:"chain_id"`
		PrivateKey    string `yaml:"private_key"`
		RouterAddress string `yaml:"router_address"`
		VaultAddress  string `yaml:"vault_address"`
		Network       string `yaml:"network"`
	} `yaml:"chain"`
	Networks map[int64]Network `yaml:"networks"`
	// Sim backs the vault with an in-memory token book and pool when no
	// RPC URL is configured.
	Sim struct {
		Accounts   []string `yaml:"accounts"`
		Balance    string   `yaml:"balance"`
		FeeBps     uint64   `yaml:"fee_bps"`
		ReserveIn  string   `yaml:"reserve_in"`
		ReserveOut string   `yaml:"reserve_out"`
	} `yaml:"sim"`
	Schedule struct {
		KeeperCron string `yaml:"keeper_cron"`
		Retries    uint   `yaml:"retries"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
	API   struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"api"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("KEEPER_OWNER"); v != "" {
		cfg.Vault.Owner = v
	}
	if v := os.Getenv("KEEPER_AMOUNT"); v != "" {
		cfg.Vault.Amount = v
	}
	if v := os.Getenv("KEEPER_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return nil, fmt.Errorf("KEEPER_INTERVAL: %w", err)
		}
		cfg.Vault.Interval = d
	}
	if v := os.Getenv("KEEPER_MODE"); v != "" {
		cfg.Vault.Mode = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" && cfg.Proxy == "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Defaults
	if cfg.Vault.Amount == "" {
		cfg.Vault.Amount = DefaultAmount
	}
	if cfg.Vault.Interval == 0 {
		cfg.Vault.Interval = 10 * time.Second
	}
	if cfg.Vault.Mode == "" {
		cfg.Vault.Mode = string(model.ModeWithdraw)
	}
	if cfg.Vault.SlippageBps == 0 {
		cfg.Vault.SlippageBps = 50
	}
	if cfg.Vault.StateFile == "" {
		cfg.Vault.StateFile = "data/vault_state.json"
	}
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 31337
	}
	if cfg.Networks == nil {
		cfg.Networks = make(map[int64]Network, len(DefaultNetworks))
	}
	for id, n := range DefaultNetworks {
		if _, ok := cfg.Networks[id]; !ok {
			cfg.Networks[id] = n
		}
	}
	if cfg.Sim.Balance == "" {
		cfg.Sim.Balance = "100 ether"
	}
	if cfg.Sim.FeeBps == 0 {
		cfg.Sim.FeeBps = 30
	}
	if cfg.Sim.ReserveIn == "" {
		cfg.Sim.ReserveIn = "1000 ether"
	}
	if cfg.Sim.ReserveOut == "" {
		cfg.Sim.ReserveOut = "2000000 ether"
	}
	if cfg.Schedule.KeeperCron == "" {
		cfg.Schedule.KeeperCron = "@every 10s"
	}
	if cfg.Schedule.Retries == 0 {
		cfg.Schedule.Retries = 3
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/keeper.db"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Vault.Owner) {
		return fmt.Errorf("vault.owner must be a hex address")
	}
	amount, err := c.AmountWei()
	if err != nil {
		return fmt.Errorf("vault.amount: %w", err)
	}
	if amount.IsZero() {
		return fmt.Errorf("vault.amount must be positive")
	}
	if c.Vault.Interval < 0 {
		return fmt.Errorf("vault.interval must not be negative")
	}
	mode := model.Mode(c.Vault.Mode)
	if !mode.Valid() {
		return fmt.Errorf("vault.mode must be %q or %q", model.ModeWithdraw, model.ModeSwap)
	}
	if c.Vault.SlippageBps >= 10_000 {
		return fmt.Errorf("vault.slippage_bps must be below 10000")
	}
	for field, v := range map[string]string{
		"vault.source_asset": c.Vault.SourceAsset,
		"vault.dest_asset":   c.Vault.DestAsset,
	} {
		if v != "" && !isAssetRef(v) {
			return fmt.Errorf("%s must be a hex address or a network token name", field)
		}
	}
	for field, v := range map[string]string{
		"vault.recipient":     c.Vault.Recipient,
		"chain.vault_address": c.Chain.VaultAddress,
	} {
		if v != "" && !common.IsHexAddress(v) {
			return fmt.Errorf("%s must be a hex address", field)
		}
	}
	if mode == model.ModeSwap {
		if c.Vault.DestAsset == "" {
			return fmt.Errorf("vault.dest_asset is required in swap mode")
		}
		if c.Chain.RPCURL != "" && !common.IsHexAddress(c.Chain.RouterAddress) {
			return fmt.Errorf("chain.router_address is required in swap mode")
		}
	}
	for _, a := range c.Sim.Accounts {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("sim.accounts: %q is not a hex address", a)
		}
	}
	if c.Sim.FeeBps >= 10_000 {
		return fmt.Errorf("sim.fee_bps must be below 10000")
	}
	if c.Chain.RPCURL != "" && c.Chain.PrivateKey == "" {
		return fmt.Errorf("chain.private_key is required with chain.rpc_url")
	}
	if c.Schedule.KeeperCron == "" {
		return fmt.Errorf("schedule.keeper_cron is required")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// AmountWei parses vault.amount, accepting unit suffixes such as "0.01 ether".
func (c *Config) AmountWei() (*uint256.Int, error) {
	return model.ParseAmount(c.Vault.Amount)
}

// Network returns the asset table selected by chain.network, falling back to
// the entry for chain.chain_id.
func (c *Config) Network() (Network, bool) {
	if c.Chain.Network != "" {
		for _, n := range c.Networks {
			if strings.EqualFold(n.Name, c.Chain.Network) {
				return n, true
			}
		}
		return Network{}, false
	}
	n, ok := c.Networks[c.Chain.ChainID]
	return n, ok
}

// ResolveAsset turns an asset reference into an address. "native" or empty is
// the native asset; "weth" and "dai" look up the configured network.
func (c *Config) ResolveAsset(ref string) (common.Address, error) {
	switch strings.ToLower(strings.TrimSpace(ref)) {
	case "", "native", "eth":
		return model.NativeAsset, nil
	case "weth", "dai":
		n, ok := c.Network()
		if !ok {
			return common.Address{}, fmt.Errorf("no network configured for chain %d", c.Chain.ChainID)
		}
		addr := n.WETHToken
		if strings.EqualFold(ref, "dai") {
			addr = n.DAIToken
		}
		if !common.IsHexAddress(addr) {
			return common.Address{}, fmt.Errorf("network %s has no %s token", n.Name, ref)
		}
		return common.HexToAddress(addr), nil
	}
	if !common.IsHexAddress(ref) {
		return common.Address{}, fmt.Errorf("invalid asset %q", ref)
	}
	return common.HexToAddress(ref), nil
}

func isAssetRef(v string) bool {
	switch strings.ToLower(v) {
	case "native", "eth", "weth", "dai":
		return true
	}
	return common.IsHexAddress(v)
}

// parseInterval accepts a Go duration or a bare number of seconds.
func parseInterval(v string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
