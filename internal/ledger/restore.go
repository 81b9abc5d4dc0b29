package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Restore rebuilds a ledger from persisted users and balances. Every balance
// key must appear in users.
func Restore(users []common.Address, balances map[common.Address]*uint256.Int) (*Ledger, error) {
	l := New()
	seen := make(map[common.Address]bool, len(users))
	for _, u := range users {
		if seen[u] {
			return nil, fmt.Errorf("duplicate user %s", u.Hex())
		}
		seen[u] = true
		bal := balances[u]
		if bal == nil {
			bal = new(uint256.Int)
		}
		total, overflow := new(uint256.Int).AddOverflow(l.total, bal)
		if overflow {
			return nil, fmt.Errorf("balances overflow at %s", u.Hex())
		}
		l.users = append(l.users, u)
		l.balances[u] = bal.Clone()
		l.total = total
	}
	for u := range balances {
		if !seen[u] {
			return nil, fmt.Errorf("balance for unlisted user %s", u.Hex())
		}
	}
	return l, nil
}
