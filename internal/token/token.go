// Package token abstracts the asset-transfer collaborator the vault moves
// funds through.
package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Transferer moves assets in and out of the vault's custody. Failures must be
// reported as TRANSFER_FAILED; implementations never partially transfer.
type Transferer interface {
	// TransferFrom pulls amount of asset from holder into the vault. For
	// tokens this spends an allowance the holder granted the vault.
	TransferFrom(ctx context.Context, asset, holder common.Address, amount *uint256.Int) error
	// Transfer pays amount of asset from the vault to recipient.
	Transfer(ctx context.Context, asset, recipient common.Address, amount *uint256.Int) error
}

// AllowanceReader is implemented by transferers that can report allowances.
type AllowanceReader interface {
	Allowance(ctx context.Context, asset, holder common.Address) (*uint256.Int, error)
}
