package swap

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"DCAKeeper/internal/token"
)

// SettledRouter moves the token side of every swap through a Book, so local
// runs see the vault's balances change the way they would on chain. The pool
// account holds the output liquidity.
type SettledRouter struct {
	Router
	book *token.Book
	pool common.Address
}

// NewSettledRouter wraps next. The pool account is funded with liquidity of
// out and approves the vault to pull it.
func NewSettledRouter(next Router, book *token.Book, pool, out common.Address, liquidity *uint256.Int) *SettledRouter {
	book.Mint(out, pool, liquidity)
	book.Approve(out, pool, liquidity)
	return &SettledRouter{Router: next, book: book, pool: pool}
}

// SwapExactTokens implements Router. Both book legs are checked against the
// quoted output before the inner router trades, so a swap that cannot settle
// never moves the pool.
func (r *SettledRouter) SwapExactTokens(ctx context.Context, in, out common.Address, amountIn, amountOutMin *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	quoted, err := r.Router.GetAmountOutMin(ctx, in, out, amountIn)
	if err != nil {
		return nil, nil, err
	}
	if err := r.book.CanExchange(r.pool, in, out, amountIn, quoted); err != nil {
		return nil, nil, fmt.Errorf("settle: %w", err)
	}
	amountOut, fee, err := r.Router.SwapExactTokens(ctx, in, out, amountIn, amountOutMin)
	if err != nil {
		return nil, nil, err
	}
	if err := r.book.Exchange(ctx, r.pool, in, out, amountIn, amountOut); err != nil {
		return nil, nil, fmt.Errorf("settle: %w", err)
	}
	return amountOut, fee, nil
}
