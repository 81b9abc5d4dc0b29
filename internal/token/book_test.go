package token

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "DCAKeeper/internal/errors"
)

var (
	vault = common.HexToAddress("0x7a0000000000000000000000000000000000007a")
	user  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	dai   = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
)

func TestBook_TransferFromNeedsAllowance(t *testing.T) {
	ctx := context.Background()
	b := NewBook(vault)
	b.Mint(dai, user, uint256.NewInt(100))

	err := b.TransferFrom(ctx, dai, user, uint256.NewInt(10))
	assert.True(t, errors.Is(err, xerrors.ErrTransferFailed))

	b.Approve(dai, user, uint256.NewInt(10))
	require.NoError(t, b.TransferFrom(ctx, dai, user, uint256.NewInt(10)))
	assert.Equal(t, uint64(90), b.BalanceOf(dai, user).Uint64())
	assert.Equal(t, uint64(10), b.BalanceOf(dai, vault).Uint64())

	left, err := b.Allowance(ctx, dai, user)
	require.NoError(t, err)
	assert.True(t, left.IsZero())
}

func TestBook_NativePullWithoutAllowance(t *testing.T) {
	ctx := context.Background()
	b := NewBook(vault)
	b.Mint(common.Address{}, user, uint256.NewInt(5))

	require.NoError(t, b.TransferFrom(ctx, common.Address{}, user, uint256.NewInt(5)))
	err := b.TransferFrom(ctx, common.Address{}, user, uint256.NewInt(1))
	assert.True(t, errors.Is(err, xerrors.ErrTransferFailed))
}

func TestBook_TransferFromVault(t *testing.T) {
	ctx := context.Background()
	b := NewBook(vault)
	err := b.Transfer(ctx, dai, user, uint256.NewInt(1))
	assert.True(t, errors.Is(err, xerrors.ErrTransferFailed))

	b.Mint(dai, vault, uint256.NewInt(3))
	require.NoError(t, b.Transfer(ctx, dai, user, uint256.NewInt(3)))
	assert.Equal(t, uint64(3), b.BalanceOf(dai, user).Uint64())
}

func TestBook_ExchangeIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	pool := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	b := NewBook(vault)
	b.Mint(weth, vault, uint256.NewInt(10))
	b.Mint(dai, pool, uint256.NewInt(50))
	b.Approve(dai, pool, uint256.NewInt(20))

	err := b.Exchange(ctx, pool, weth, dai, uint256.NewInt(10), uint256.NewInt(30))
	assert.True(t, errors.Is(err, xerrors.ErrTransferFailed), "allowance short")
	assert.Equal(t, uint64(10), b.BalanceOf(weth, vault).Uint64(), "give leg untouched")
	assert.True(t, b.BalanceOf(weth, pool).IsZero())

	assert.Error(t, b.CanExchange(pool, weth, dai, uint256.NewInt(11), uint256.NewInt(1)))
	require.NoError(t, b.CanExchange(pool, weth, dai, uint256.NewInt(10), uint256.NewInt(20)))

	require.NoError(t, b.Exchange(ctx, pool, weth, dai, uint256.NewInt(10), uint256.NewInt(20)))
	assert.True(t, b.BalanceOf(weth, vault).IsZero())
	assert.Equal(t, uint64(10), b.BalanceOf(weth, pool).Uint64())
	assert.Equal(t, uint64(20), b.BalanceOf(dai, vault).Uint64())
	assert.Equal(t, uint64(30), b.BalanceOf(dai, pool).Uint64())
	left, err := b.Allowance(ctx, dai, pool)
	require.NoError(t, err)
	assert.True(t, left.IsZero())
}
