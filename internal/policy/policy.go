// Package policy guards the owner-mutable parameters of a vault.
package policy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "DCAKeeper/internal/errors"
)

// Policy holds the owner capability and the per-upkeep amount.
type Policy struct {
	owner  common.Address
	amount *uint256.Int
}

// New returns a policy owned by owner.
func New(owner common.Address, amount *uint256.Int) (*Policy, error) {
	if (owner == common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidIdentity, "owner must not be the zero address")
	}
	if amount == nil || amount.IsZero() {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "amount must be positive")
	}
	return &Policy{owner: owner, amount: amount.Clone()}, nil
}

// Owner returns the current owner.
func (p *Policy) Owner() common.Address { return p.owner }

// Amount returns the configured amount.
func (p *Policy) Amount() *uint256.Int { return p.amount.Clone() }

// Authorize fails with Unauthorized unless caller is the owner.
func (p *Policy) Authorize(caller common.Address) error {
	if caller != p.owner {
		return xerrors.New(xerrors.CodeUnauthorized, "", xerrors.WithMetadata("caller", caller.Hex()))
	}
	return nil
}

// ChangeAmount replaces the amount.
func (p *Policy) ChangeAmount(caller common.Address, amount *uint256.Int) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return xerrors.New(xerrors.CodeInvalidAmount, "amount must be positive")
	}
	p.amount = amount.Clone()
	return nil
}

// TransferOwnership hands the owner capability to newOwner immediately.
func (p *Policy) TransferOwnership(caller, newOwner common.Address) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	if (newOwner == common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidIdentity, "new owner must not be the zero address")
	}
	p.owner = newOwner
	return nil
}

// Clone returns a copy.
func (p *Policy) Clone() *Policy {
	return &Policy{owner: p.owner, amount: p.amount.Clone()}
}
