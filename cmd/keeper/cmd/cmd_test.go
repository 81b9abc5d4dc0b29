package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DCAKeeper/internal/api"
	"DCAKeeper/internal/fund"
	"DCAKeeper/internal/scheduler"
)

func writeConfig(t *testing.T, mode string) string {
	t.Helper()
	dir := t.TempDir()
	body := `
vault:
  owner: "0x1111111111111111111111111111111111111111"
  amount: "1 ether"
  interval: 1m
  mode: ` + mode + `
  source_asset: native
  dest_asset: dai
  state_file: ` + filepath.Join(dir, "state.json") + `
sim:
  accounts: ["0x2222222222222222222222222222222222222222"]
database:
  sqlite_path: ` + filepath.Join(dir, "keeper.db") + `
api:
  jwt_secret: test-secret
log:
  level: error
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	for _, mode := range []string{"withdraw", "swap"} {
		t.Run(mode, func(t *testing.T) {
			out, err := run(t, "status", "-c", writeConfig(t, mode))
			require.NoError(t, err)

			var st fund.Status
			require.NoError(t, json.Unmarshal([]byte(out), &st))
			assert.Equal(t, mode, string(st.Mode))
			assert.Equal(t, "1000000000000000000", st.Amount)
			assert.Equal(t, int64(60), st.IntervalSeconds)
			assert.Equal(t, "idle", st.State)
		})
	}
}

func TestCheckCommand_EmptyVault(t *testing.T) {
	out, err := run(t, "check", "-c", writeConfig(t, "withdraw"))
	require.NoError(t, err)
	assert.Contains(t, out, "upkeep needed: false")
}

func TestTokenCommand(t *testing.T) {
	caller := "0x2222222222222222222222222222222222222222"
	out, err := run(t, "token", "-c", writeConfig(t, "withdraw"), "--caller", caller)
	require.NoError(t, err)

	got, err := api.NewValidator("test-secret").VerifyToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(caller), strings.ToLower(got.Hex()))
}

func TestConfigValidationFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vault:\n  owner: nobody\n"), 0o644))
	_, err := run(t, "status", "-c", path)
	assert.Error(t, err)
}

func TestHandleCommand(t *testing.T) {
	cfgPath = writeConfig(t, "withdraw")
	ctx := context.Background()
	a, err := newApp(ctx, false)
	require.NoError(t, err)
	defer a.close()
	sched := scheduler.NewScheduler(ctx, a.vault, a.logger)

	assert.Contains(t, a.handleCommand(ctx, sched, "/status"), "Vault status")
	assert.Equal(t, "upkeep needed: false", a.handleCommand(ctx, sched, "/check"))
	assert.Equal(t, "upkeep not needed (idle)", a.handleCommand(ctx, sched, "/perform"))
	assert.Empty(t, a.handleCommand(ctx, sched, "hello"))
}
