package fund

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"DCAKeeper/internal/clock"
	"DCAKeeper/internal/ledger"
	"DCAKeeper/internal/model"
	"DCAKeeper/internal/policy"
)

// LoadState reads the vault state from a JSON file. Returns nil if the file doesn't exist.
func LoadState(filePath string) (*model.VaultState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state model.VaultState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState writes the vault state to a JSON file, replacing it atomically.
func SaveState(filePath string, state *model.VaultState) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}

func snapshot(c *core) *model.VaultState {
	users := c.ledger.Users()
	st := &model.VaultState{
		Owner:         c.policy.Owner().Hex(),
		Amount:        c.policy.Amount().Dec(),
		IntervalNanos: int64(c.clock.Interval()),
		LastTimestamp: c.clock.LastTimestamp(),
		Users:         make([]string, 0, len(users)),
		Balances:      make(map[string]string, len(users)),
		Holdings:      make(map[string]string),
	}
	for _, u := range users {
		st.Users = append(st.Users, u.Hex())
		st.Balances[u.Hex()] = c.ledger.BalanceOf(u).Dec()
	}
	for asset, v := range c.holdings.Assets() {
		st.Holdings[asset.Hex()] = v.Dec()
	}
	return st
}

// restore rebuilds the engine state from st. The ledger total must equal the
// recorded holding of source, or the file does not describe a consistent vault.
func restore(st *model.VaultState, source common.Address) (*core, error) {
	owner, err := parseAddress(st.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	amount, err := uint256.FromDecimal(st.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	pol, err := policy.New(owner, amount)
	if err != nil {
		return nil, err
	}

	users := make([]common.Address, 0, len(st.Users))
	for _, u := range st.Users {
		addr, err := parseAddress(u)
		if err != nil {
			return nil, fmt.Errorf("user: %w", err)
		}
		users = append(users, addr)
	}
	balances := make(map[common.Address]*uint256.Int, len(st.Balances))
	for k, v := range st.Balances {
		addr, err := parseAddress(k)
		if err != nil {
			return nil, fmt.Errorf("balance key: %w", err)
		}
		bal, err := uint256.FromDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", k, err)
		}
		balances[addr] = bal
	}
	led, err := ledger.Restore(users, balances)
	if err != nil {
		return nil, err
	}

	holdings := ledger.NewHoldings()
	for k, v := range st.Holdings {
		addr, err := parseAddress(k)
		if err != nil {
			return nil, fmt.Errorf("holding key: %w", err)
		}
		amt, err := uint256.FromDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("holding of %s: %w", k, err)
		}
		if err := holdings.Credit(addr, amt); err != nil {
			return nil, err
		}
	}

	if held := holdings.Balance(source); !held.Eq(led.Total()) {
		return nil, fmt.Errorf("ledger total %s does not match holding %s of %s", led.Total().Dec(), held.Dec(), source.Hex())
	}

	interval := time.Duration(st.IntervalNanos)
	if interval == 0 && st.IntervalSeconds != 0 {
		interval = time.Duration(st.IntervalSeconds) * time.Second
	}
	if interval < 0 {
		return nil, fmt.Errorf("interval %s is negative", interval)
	}

	return &core{
		ledger:   led,
		holdings: holdings,
		clock:    clock.New(interval, st.LastTimestamp),
		policy:   pol,
	}, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
