package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/model"
)

const erc20ABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var erc20 = mustABI(erc20ABI)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Transferer moves assets in and out of the keeper account, which acts as the
// vault. It implements token.Transferer and token.AllowanceReader.
type Transferer struct {
	tx *Transactor
}

// NewTransferer returns a Transferer whose vault is tx's account.
func NewTransferer(tx *Transactor) *Transferer {
	return &Transferer{tx: tx}
}

// Vault returns the custody account.
func (t *Transferer) Vault() common.Address { return t.tx.From() }

// TransferFrom pulls an approved ERC20 amount from holder. Native value cannot
// be pulled; on-chain vaults take wrapped native tokens instead.
func (t *Transferer) TransferFrom(ctx context.Context, asset, holder common.Address, amount *uint256.Int) error {
	if asset == model.NativeAsset {
		return xerrors.New(xerrors.CodeTransferFailed, "native value cannot be pulled; deposit wrapped tokens")
	}
	data, err := erc20.Pack("transferFrom", holder, t.tx.From(), amount.ToBig())
	if err != nil {
		return err
	}
	if _, err := t.tx.Send(ctx, asset, nil, data); err != nil {
		return xerrors.Wrap(xerrors.CodeTransferFailed, err, "transferFrom", xerrors.WithMetadata("asset", asset.Hex()))
	}
	return nil
}

// Transfer pays amount of asset to recipient. The native asset is sent as value.
func (t *Transferer) Transfer(ctx context.Context, asset, recipient common.Address, amount *uint256.Int) error {
	var err error
	if asset == model.NativeAsset {
		_, err = t.tx.Send(ctx, recipient, amount.ToBig(), nil)
	} else {
		var data []byte
		data, err = erc20.Pack("transfer", recipient, amount.ToBig())
		if err != nil {
			return err
		}
		_, err = t.tx.Send(ctx, asset, nil, data)
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransferFailed, err, "transfer", xerrors.WithMetadata("asset", asset.Hex()))
	}
	return nil
}

// Allowance returns how much of asset holder has approved the vault to pull.
func (t *Transferer) Allowance(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	return callUint(ctx, t.tx, asset, "allowance", holder, t.tx.From())
}

// BalanceOf returns holder's balance of asset.
func (t *Transferer) BalanceOf(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	return balanceOf(ctx, t.tx, asset, holder)
}

func balanceOf(ctx context.Context, tx *Transactor, asset, holder common.Address) (*uint256.Int, error) {
	if asset == model.NativeAsset {
		bal, err := tx.backend.BalanceAt(ctx, holder, nil)
		if err != nil {
			return nil, err
		}
		return toUint(bal)
	}
	return callUint(ctx, tx, asset, "balanceOf", holder)
}

func callUint(ctx context.Context, tx *Transactor, contract common.Address, method string, args ...any) (*uint256.Int, error) {
	data, err := erc20.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := tx.Call(ctx, contract, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	vals, err := erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, vals[0])
	}
	return toUint(v)
}

func toUint(v *big.Int) (*uint256.Int, error) {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("value %s overflows uint256", v)
	}
	return u, nil
}
