package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DCAKeeper/internal/model"
)

const ownerHex = "0x1111111111111111111111111111111111111111"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultAmount, cfg.Vault.Amount)
	assert.Equal(t, 10*time.Second, cfg.Vault.Interval)
	assert.Equal(t, "withdraw", cfg.Vault.Mode)
	assert.Equal(t, "@every 10s", cfg.Schedule.KeeperCron)
	assert.Equal(t, int64(31337), cfg.Chain.ChainID)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Contains(t, cfg.Networks, int64(420))

	amount, err := cfg.AmountWei()
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", amount.Dec())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
vault:
  owner: "0x2222222222222222222222222222222222222222"
  amount: "0.5 ether"
  interval: 1m
  mode: swap
  source_asset: weth
  dest_asset: dai
chain:
  chain_id: 420
log:
  level: debug
`)
	t.Setenv("KEEPER_OWNER", ownerHex)
	t.Setenv("KEEPER_INTERVAL", "30")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ownerHex, cfg.Vault.Owner)
	assert.Equal(t, 30*time.Second, cfg.Vault.Interval)
	assert.Equal(t, "warn", cfg.Log.Level)

	amount, err := cfg.AmountWei()
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", amount.Dec())

	weth, err := cfg.ResolveAsset(cfg.Vault.SourceAsset)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6"), weth)
}

func TestLoad_BadIntervalEnv(t *testing.T) {
	t.Setenv("KEEPER_INTERVAL", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"missing owner", func(c *Config) { c.Vault.Owner = "" }, "vault.owner"},
		{"zero amount", func(c *Config) { c.Vault.Amount = "0" }, "vault.amount must be positive"},
		{"bad amount", func(c *Config) { c.Vault.Amount = "lots" }, "vault.amount"},
		{"negative interval", func(c *Config) { c.Vault.Interval = -time.Second }, "vault.interval"},
		{"unknown mode", func(c *Config) { c.Vault.Mode = "yolo" }, "vault.mode"},
		{"swap without dest", func(c *Config) { c.Vault.Mode = "swap" }, "vault.dest_asset"},
		{"bad recipient", func(c *Config) { c.Vault.Recipient = "weth" }, "vault.recipient"},
		{"slippage", func(c *Config) { c.Vault.SlippageBps = 10_000 }, "slippage_bps"},
		{"rpc without key", func(c *Config) { c.Chain.RPCURL = "http://localhost:8545" }, "private_key"},
		{"half telegram", func(c *Config) { c.Telegram.BotToken = "t"; c.Telegram.ChatID = "" }, "telegram"},
		{"bad sim account", func(c *Config) { c.Sim.Accounts = []string{"alice"} }, "sim.accounts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			require.NoError(t, err)
			cfg.Vault.Owner = ownerHex
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveAsset(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	native, err := cfg.ResolveAsset("")
	require.NoError(t, err)
	assert.Equal(t, model.NativeAsset, native)

	dai, err := cfg.ResolveAsset("DAI")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f"), dai)

	cfg.Chain.Network = "goerli"
	dai, err = cfg.ResolveAsset("dai")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xdc31ee1784292379fbb2964b3b9c4124d8f89c60"), dai)

	cfg.Chain.Network = "mars"
	_, err = cfg.ResolveAsset("weth")
	assert.Error(t, err)

	_, err = cfg.ResolveAsset("not-an-address")
	assert.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("../../configs/config.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Vault.Interval)
	assert.Len(t, cfg.Sim.Accounts, 2)
	assert.Equal(t, uint64(30), cfg.Sim.FeeBps)

	amount, err := cfg.AmountWei()
	require.NoError(t, err)
	assert.Equal(t, DefaultAmount, amount.Dec())
}
