package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/model"
	"DCAKeeper/internal/swap"
)

const testKey = "0x4f3edf983ac636a65a842ce7c78d9aa706d3b113b37e2b8c3c6d53295d85f81b"

var (
	routerAddr = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	weth       = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai        = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	bob        = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// fakeChain answers the handful of calls the package makes.
type fakeChain struct {
	mu         sync.Mutex
	sent       []*types.Transaction
	tokenBal   map[common.Address]*big.Int
	allowance  *big.Int
	quote      *big.Int
	swapOut    *big.Int
	revert     bool
	pendingFor int
	nonce      uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{tokenBal: make(map[common.Address]*big.Int), allowance: new(big.Int)}
}

func methodOf(t abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("no selector")
	}
	m, err := t.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	return m, args, err
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, args, err := methodOf(uniV2, msg.Data); err == nil && m.Name == "getAmountsOut" {
		if f.quote == nil {
			return nil, errors.New("execution reverted: UniswapV2Library: INSUFFICIENT_LIQUIDITY")
		}
		return m.Outputs.Pack([]*big.Int{args[0].(*big.Int), f.quote})
	}
	m, _, err := methodOf(erc20, msg.Data)
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "balanceOf":
		bal := f.tokenBal[*msg.To]
		if bal == nil {
			bal = new(big.Int)
		}
		return m.Outputs.Pack(bal)
	case "allowance":
		return m.Outputs.Pack(f.allowance)
	}
	return nil, errors.New("unexpected call " + m.Name)
}

func (f *fakeChain) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(42), nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonce++
	if tx.To() != nil && *tx.To() == routerAddr && !f.revert {
		if m, args, err := methodOf(uniV2, tx.Data()); err == nil && m.Name == "swapExactTokensForTokens" {
			out := args[2].([]common.Address)[1]
			prev := f.tokenBal[out]
			if prev == nil {
				prev = new(big.Int)
			}
			f.tokenBal[out] = new(big.Int).Add(prev, f.swapOut)
		}
	}
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingFor > 0 {
		f.pendingFor--
		return nil, ethereum.NotFound
	}
	status := types.ReceiptStatusSuccessful
	if f.revert {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{TxHash: hash, Status: status}, nil
}

func newTestTransactor(t *testing.T, chain *fakeChain) *Transactor {
	t.Helper()
	tx, err := NewTransactor(chain, testKey, 31337, nil)
	require.NoError(t, err)
	tx.pollInterval = time.Millisecond
	return tx
}

func TestTransactor_SignsLegacyTx(t *testing.T) {
	chain := newFakeChain()
	chain.pendingFor = 2
	tx := newTestTransactor(t, chain)

	require.NoError(t, NewTransferer(tx).Transfer(context.Background(), model.NativeAsset, bob, uint256.NewInt(1_000)))
	require.Len(t, chain.sent, 1)

	sent := chain.sent[0]
	assert.Equal(t, bob, *sent.To())
	assert.Equal(t, int64(1_000), sent.Value().Int64())
	assert.Equal(t, uint64(60_000), sent.Gas(), "estimate plus margin")

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), sent)
	require.NoError(t, err)
	assert.Equal(t, tx.From(), from)
}

func TestTransferer_ERC20(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	tx := newTestTransactor(t, chain)
	tr := NewTransferer(tx)

	require.NoError(t, tr.Transfer(ctx, dai, bob, uint256.NewInt(5)))
	require.NoError(t, tr.TransferFrom(ctx, weth, bob, uint256.NewInt(7)))
	require.Len(t, chain.sent, 2)

	m, args, err := methodOf(erc20, chain.sent[0].Data())
	require.NoError(t, err)
	assert.Equal(t, "transfer", m.Name)
	assert.Equal(t, dai, *chain.sent[0].To())
	assert.Equal(t, bob, args[0])
	assert.Equal(t, int64(5), args[1].(*big.Int).Int64())

	m, args, err = methodOf(erc20, chain.sent[1].Data())
	require.NoError(t, err)
	assert.Equal(t, "transferFrom", m.Name)
	assert.Equal(t, []any{bob, tx.From()}, args[:2])
	assert.Equal(t, uint64(1), chain.sent[1].Nonce())
}

func TestTransferer_RejectsNativePull(t *testing.T) {
	chain := newFakeChain()
	tr := NewTransferer(newTestTransactor(t, chain))

	err := tr.TransferFrom(context.Background(), model.NativeAsset, bob, uint256.NewInt(1))
	assert.True(t, errors.Is(err, xerrors.ErrTransferFailed))
	assert.Empty(t, chain.sent)
}

func TestTransferer_Reverted(t *testing.T) {
	chain := newFakeChain()
	chain.revert = true
	tr := NewTransferer(newTestTransactor(t, chain))

	err := tr.Transfer(context.Background(), dai, bob, uint256.NewInt(1))
	assert.True(t, errors.Is(err, xerrors.ErrTransferFailed))
	assert.True(t, errors.Is(err, ErrReverted))
}

func TestTransferer_Reads(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	chain.allowance = big.NewInt(99)
	chain.tokenBal[dai] = big.NewInt(1234)
	tr := NewTransferer(newTestTransactor(t, chain))

	allowed, err := tr.Allowance(ctx, weth, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), allowed.Uint64())

	bal, err := tr.BalanceOf(ctx, dai, tr.Vault())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), bal.Uint64())

	native, err := tr.BalanceOf(ctx, model.NativeAsset, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), native.Uint64())
}

func TestRouter_Quote(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	r := NewRouter(newTestTransactor(t, chain), routerAddr)

	_, err := r.GetAmountOutMin(ctx, weth, dai, uint256.NewInt(10))
	assert.True(t, errors.Is(err, swap.ErrInsufficientLiquidity))

	chain.quote = big.NewInt(1234)
	out, err := r.GetAmountOutMin(ctx, weth, dai, uint256.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), out.Uint64())
}

func TestRouter_Swap(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	chain.tokenBal[dai] = big.NewInt(100)
	chain.swapOut = big.NewInt(997)
	tx := newTestTransactor(t, chain)
	r := NewRouter(tx, routerAddr)
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	out, fee, err := r.SwapExactTokens(ctx, weth, dai, uint256.NewInt(1_000), uint256.NewInt(990))
	require.NoError(t, err)
	assert.Equal(t, uint64(997), out.Uint64())
	assert.Equal(t, uint64(3), fee.Uint64())

	require.Len(t, chain.sent, 2)
	m, args, err := methodOf(erc20, chain.sent[0].Data())
	require.NoError(t, err)
	assert.Equal(t, "approve", m.Name)
	assert.Equal(t, weth, *chain.sent[0].To())
	assert.Equal(t, routerAddr, args[0])

	m, args, err = methodOf(uniV2, chain.sent[1].Data())
	require.NoError(t, err)
	assert.Equal(t, "swapExactTokensForTokens", m.Name)
	assert.Equal(t, int64(990), args[1].(*big.Int).Int64())
	assert.Equal(t, []common.Address{weth, dai}, args[2])
	assert.Equal(t, tx.From(), args[3])
	assert.Equal(t, int64(1_700_000_300), args[4].(*big.Int).Int64())
}

func TestRouter_SwapRevertIsNotRetriedAsLiquidity(t *testing.T) {
	chain := newFakeChain()
	chain.revert = true
	r := NewRouter(newTestTransactor(t, chain), routerAddr)

	_, _, err := r.SwapExactTokens(context.Background(), weth, dai, uint256.NewInt(1_000), uint256.NewInt(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReverted))
	assert.False(t, errors.Is(err, swap.ErrInsufficientLiquidity))
}

func TestNewTransactor_BadKey(t *testing.T) {
	_, err := NewTransactor(newFakeChain(), "nope", 1, nil)
	assert.Error(t, err)
}
