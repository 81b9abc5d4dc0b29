package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "DCAKeeper/internal/errors"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestDeposit_CreditsOnlyDepositor(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit(alice, uint256.NewInt(100)))
	require.NoError(t, l.Deposit(bob, uint256.NewInt(7)))
	require.NoError(t, l.Deposit(alice, uint256.NewInt(50)))

	assert.Equal(t, uint64(150), l.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(7), l.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(157), l.Total().Uint64())
}

func TestDeposit_UserAppendedOnce(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Deposit(alice, uint256.NewInt(1)))
	}
	require.NoError(t, l.Deposit(bob, uint256.NewInt(1)))

	require.Equal(t, 2, l.Len())
	first, err := l.UserAt(0)
	require.NoError(t, err)
	assert.Equal(t, alice, first)
	second, err := l.UserAt(1)
	require.NoError(t, err)
	assert.Equal(t, bob, second)
}

func TestDeposit_Rejects(t *testing.T) {
	l := New()
	err := l.Deposit(alice, new(uint256.Int))
	assert.True(t, errors.Is(err, xerrors.ErrInvalidAmount))

	err = l.Deposit(common.Address{}, uint256.NewInt(1))
	assert.True(t, errors.Is(err, xerrors.ErrInvalidIdentity))

	full := new(uint256.Int).SetAllOne()
	require.NoError(t, l.Deposit(alice, full))
	err = l.Deposit(bob, uint256.NewInt(1))
	assert.True(t, errors.Is(err, xerrors.ErrInvalidAmount))
	assert.Equal(t, 1, l.Len(), "failed deposit must not append the user")
}

func TestUserAt_OutOfRange(t *testing.T) {
	l := New()
	_, err := l.UserAt(0)
	assert.True(t, errors.Is(err, xerrors.ErrIndexOutOfRange))
}

func TestDebit_DrawsInDepositOrder(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit(alice, uint256.NewInt(30)))
	require.NoError(t, l.Deposit(bob, uint256.NewInt(20)))

	require.NoError(t, l.Debit(uint256.NewInt(40)))
	assert.Equal(t, uint64(0), l.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(10), l.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(10), l.Total().Uint64())

	err := l.Debit(uint256.NewInt(11))
	assert.True(t, errors.Is(err, xerrors.ErrInsufficientFunds))
	assert.Equal(t, uint64(10), l.Total().Uint64())
}

func TestClone_IsIndependent(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit(alice, uint256.NewInt(5)))
	c := l.Clone()
	require.NoError(t, c.Deposit(bob, uint256.NewInt(5)))

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, uint64(5), l.Total().Uint64())
	assert.Equal(t, uint64(10), c.Total().Uint64())
}

func TestRestore(t *testing.T) {
	l, err := Restore([]common.Address{alice, bob}, map[common.Address]*uint256.Int{
		alice: uint256.NewInt(3),
		bob:   uint256.NewInt(4),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), l.Total().Uint64())

	_, err = Restore([]common.Address{alice}, map[common.Address]*uint256.Int{bob: uint256.NewInt(1)})
	assert.Error(t, err)
}

func TestHoldings(t *testing.T) {
	h := NewHoldings()
	dai := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	require.NoError(t, h.Credit(dai, uint256.NewInt(9)))
	err := h.Debit(dai, uint256.NewInt(10))
	assert.True(t, errors.Is(err, xerrors.ErrInsufficientFunds))
	require.NoError(t, h.Debit(dai, uint256.NewInt(9)))
	assert.Empty(t, h.Assets())
}
