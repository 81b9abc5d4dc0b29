// Package ledger keeps per-user deposit balances and the engine's per-asset
// custody. Neither type is safe for concurrent use; fund.Manager serializes
// access.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "DCAKeeper/internal/errors"
)

// Ledger tracks deposited balances of the configured asset and the order in
// which users first deposited.
type Ledger struct {
	balances map[common.Address]*uint256.Int
	users    []common.Address
	total    *uint256.Int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*uint256.Int),
		total:    new(uint256.Int),
	}
}

// Deposit credits amount to user, appending user on first deposit.
func (l *Ledger) Deposit(user common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return xerrors.New(xerrors.CodeInvalidAmount, "deposit amount must be positive")
	}
	if (user == common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidIdentity, "depositor must not be the zero address")
	}
	newTotal, overflow := new(uint256.Int).AddOverflow(l.total, amount)
	if overflow {
		return xerrors.New(xerrors.CodeInvalidAmount, "deposit overflows custody")
	}

	bal, ok := l.balances[user]
	if !ok {
		bal = new(uint256.Int)
		l.users = append(l.users, user)
	}
	// Cannot overflow: bal <= total.
	l.balances[user] = new(uint256.Int).Add(bal, amount)
	l.total = newTotal
	return nil
}

// Debit removes amount from custody, drawing users down in deposit order.
func (l *Ledger) Debit(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return xerrors.New(xerrors.CodeInvalidAmount, "debit amount must be positive")
	}
	if amount.Gt(l.total) {
		return xerrors.Newf(xerrors.CodeInsufficientFund, "custody %s below requested %s", l.total.Dec(), amount.Dec())
	}

	remaining := amount.Clone()
	for _, user := range l.users {
		if remaining.IsZero() {
			break
		}
		bal := l.balances[user]
		if bal.IsZero() {
			continue
		}
		take := remaining
		if bal.Lt(remaining) {
			take = bal
		}
		l.balances[user] = new(uint256.Int).Sub(bal, take)
		remaining = new(uint256.Int).Sub(remaining, take)
	}
	l.total = new(uint256.Int).Sub(l.total, amount)
	return nil
}

// Total returns the aggregate custodied amount.
func (l *Ledger) Total() *uint256.Int {
	return l.total.Clone()
}

// BalanceOf returns user's balance; unknown users have zero.
func (l *Ledger) BalanceOf(user common.Address) *uint256.Int {
	if bal, ok := l.balances[user]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

// UserAt returns the index-th depositor.
func (l *Ledger) UserAt(index uint64) (common.Address, error) {
	if index >= uint64(len(l.users)) {
		return common.Address{}, xerrors.Newf(xerrors.CodeIndexOutOfRange, "index %d, %d users", index, len(l.users))
	}
	return l.users[index], nil
}

// Len returns the number of distinct depositors.
func (l *Ledger) Len() int {
	return len(l.users)
}

// Users returns a copy of the depositors in insertion order.
func (l *Ledger) Users() []common.Address {
	out := make([]common.Address, len(l.users))
	copy(out, l.users)
	return out
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		balances: make(map[common.Address]*uint256.Int, len(l.balances)),
		users:    make([]common.Address, len(l.users)),
		total:    l.total.Clone(),
	}
	copy(c.users, l.users)
	for k, v := range l.balances {
		c.balances[k] = v.Clone()
	}
	return c
}
