package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "DCAKeeper/internal/errors"
)

type pairKey struct{ in, out common.Address }

type pool struct {
	reserveIn  *uint256.Int
	reserveOut *uint256.Int
}

// SimRouter is a constant-product router with one pool per direction. It
// backs local runs and tests.
type SimRouter struct {
	mu     sync.Mutex
	feeBps uint64
	pools  map[pairKey]*pool
}

// NewSimRouter returns a router charging feeBps on every swap.
func NewSimRouter(feeBps uint64) *SimRouter {
	return &SimRouter{feeBps: feeBps, pools: make(map[pairKey]*pool)}
}

// AddPool seeds liquidity for swaps from in to out.
func (r *SimRouter) AddPool(in, out common.Address, reserveIn, reserveOut *uint256.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[pairKey{in, out}] = &pool{reserveIn: reserveIn.Clone(), reserveOut: reserveOut.Clone()}
}

// Reserves returns the pool reserves for in->out.
func (r *SimRouter) Reserves(in, out common.Address) (*uint256.Int, *uint256.Int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[pairKey{in, out}]
	if !ok {
		return nil, nil, false
	}
	return p.reserveIn.Clone(), p.reserveOut.Clone(), true
}

// GetAmountOutMin implements Router.
func (r *SimRouter) GetAmountOutMin(_ context.Context, in, out common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[pairKey{in, out}]
	if !ok {
		return nil, fmt.Errorf("%w: no pool %s->%s", ErrInsufficientLiquidity, in.Hex(), out.Hex())
	}
	amountOut, _, err := r.amountOut(p, amountIn)
	return amountOut, err
}

// SwapExactTokens implements Router.
func (r *SimRouter) SwapExactTokens(_ context.Context, in, out common.Address, amountIn, amountOutMin *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[pairKey{in, out}]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no pool %s->%s", ErrInsufficientLiquidity, in.Hex(), out.Hex())
	}
	amountOut, fee, err := r.amountOut(p, amountIn)
	if err != nil {
		return nil, nil, err
	}
	if amountOut.Lt(amountOutMin) {
		return nil, nil, xerrors.Newf(xerrors.CodeSlippageExceeded, "output %s below minimum %s", amountOut.Dec(), amountOutMin.Dec())
	}
	p.reserveIn = new(uint256.Int).Add(p.reserveIn, amountIn)
	p.reserveOut = new(uint256.Int).Sub(p.reserveOut, amountOut)
	return amountOut, fee, nil
}

// amountOut applies x*y=k after the fee; fee is the output lost to it.
func (r *SimRouter) amountOut(p *pool, amountIn *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	gross, err := constantProduct(amountIn, bpsDenominator, p)
	if err != nil {
		return nil, nil, err
	}
	net, err := constantProduct(amountIn, bpsDenominator-r.feeBps, p)
	if err != nil {
		return nil, nil, err
	}
	if net.IsZero() || !net.Lt(p.reserveOut) {
		return nil, nil, fmt.Errorf("%w: output %s against reserve %s", ErrInsufficientLiquidity, net.Dec(), p.reserveOut.Dec())
	}
	return net, new(uint256.Int).Sub(gross, net), nil
}

func constantProduct(amountIn *uint256.Int, feeFactor uint64, p *pool) (*uint256.Int, error) {
	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(feeFactor))
	if overflow {
		return nil, fmt.Errorf("%w: amount too large", ErrInsufficientLiquidity)
	}
	scaledReserve, overflow := new(uint256.Int).MulOverflow(p.reserveIn, uint256.NewInt(bpsDenominator))
	if overflow {
		return nil, fmt.Errorf("%w: reserve too large", ErrInsufficientLiquidity)
	}
	denom, overflow := new(uint256.Int).AddOverflow(scaledReserve, inWithFee)
	if overflow || denom.IsZero() {
		return nil, fmt.Errorf("%w: degenerate pool", ErrInsufficientLiquidity)
	}
	out, _ := new(uint256.Int).MulDivOverflow(inWithFee, p.reserveOut, denom)
	return out, nil
}
