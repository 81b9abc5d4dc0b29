package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"DCAKeeper/internal/swap"
)

const routerABI = `[
{"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var uniV2 = mustABI(routerABI)

// Router drives a UniswapV2 compatible router contract. The keeper account
// approves and swaps its own custody.
type Router struct {
	tx       *Transactor
	address  common.Address
	feeBps   uint64
	deadline time.Duration
	now      func() time.Time
}

// NewRouter binds the router deployed at address.
func NewRouter(tx *Transactor, address common.Address) *Router {
	return &Router{tx: tx, address: address, feeBps: 30, deadline: 5 * time.Minute, now: time.Now}
}

// GetAmountOutMin implements swap.Router with the router's own quote.
func (r *Router) GetAmountOutMin(ctx context.Context, in, out common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	data, err := uniV2.Pack("getAmountsOut", amountIn.ToBig(), []common.Address{in, out})
	if err != nil {
		return nil, err
	}
	raw, err := r.tx.Call(ctx, r.address, data)
	if err != nil {
		// getAmountsOut reverts for unknown pairs and empty reserves.
		return nil, fmt.Errorf("%w: getAmountsOut: %v", swap.ErrInsufficientLiquidity, err)
	}
	vals, err := uniV2.Unpack("getAmountsOut", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack getAmountsOut: %w", err)
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) != 2 {
		return nil, fmt.Errorf("getAmountsOut returned %v", vals[0])
	}
	return toUint(amounts[1])
}

// SwapExactTokens implements swap.Router. The output is measured as the
// keeper's balance change of out; fee is the output forgone to the pool fee.
func (r *Router) SwapExactTokens(ctx context.Context, in, out common.Address, amountIn, amountOutMin *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	self := r.tx.From()
	before, err := balanceOf(ctx, r.tx, out, self)
	if err != nil {
		return nil, nil, fmt.Errorf("balance before swap: %w", err)
	}

	approve, err := erc20.Pack("approve", r.address, amountIn.ToBig())
	if err != nil {
		return nil, nil, err
	}
	if _, err := r.tx.Send(ctx, in, nil, approve); err != nil {
		return nil, nil, fmt.Errorf("approve router: %w", err)
	}

	deadline := big.NewInt(r.now().Add(r.deadline).Unix())
	data, err := uniV2.Pack("swapExactTokensForTokens",
		amountIn.ToBig(), amountOutMin.ToBig(), []common.Address{in, out}, self, deadline)
	if err != nil {
		return nil, nil, err
	}
	if _, err := r.tx.Send(ctx, r.address, nil, data); err != nil {
		return nil, nil, fmt.Errorf("swapExactTokensForTokens: %w", err)
	}

	after, err := balanceOf(ctx, r.tx, out, self)
	if err != nil {
		return nil, nil, fmt.Errorf("balance after swap: %w", err)
	}
	if after.Lt(before) {
		return nil, nil, fmt.Errorf("balance of %s fell during swap", out.Hex())
	}
	amountOut := new(uint256.Int).Sub(after, before)
	fee := new(uint256.Int).Div(
		new(uint256.Int).Mul(amountOut, uint256.NewInt(r.feeBps)),
		uint256.NewInt(10_000-r.feeBps))
	return amountOut, fee, nil
}
