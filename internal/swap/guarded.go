package swap

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sony/gobreaker"

	xerrors "DCAKeeper/internal/errors"
)

// GuardedRouter shields a remote Router behind a circuit breaker. Quotes are
// read-only and retried with backoff; swaps are never retried here.
type GuardedRouter struct {
	next          Router
	cb            *gobreaker.CircuitBreaker
	quoteAttempts uint
	quoteDelay    time.Duration
}

// NewGuardedRouter wraps next. The breaker opens after five consecutive failures.
func NewGuardedRouter(name string, next Router) *GuardedRouter {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Reverts for slippage or liquidity are market conditions, not an
		// unhealthy router.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInsufficientLiquidity) || errors.Is(err, xerrors.ErrSlippageExceeded)
		},
	})
	return &GuardedRouter{next: next, cb: cb, quoteAttempts: 3, quoteDelay: 200 * time.Millisecond}
}

// State exposes the breaker state for metrics.
func (g *GuardedRouter) State() gobreaker.State {
	return g.cb.State()
}

// GetAmountOutMin implements Router.
func (g *GuardedRouter) GetAmountOutMin(ctx context.Context, in, out common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		var quoted *uint256.Int
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(g.quoteAttempts),
			retry.Delay(g.quoteDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, ErrInsufficientLiquidity)
			}),
		)
		err := r.Do(func() error {
			v, err := g.next.GetAmountOutMin(ctx, in, out, amountIn)
			if err != nil {
				return err
			}
			quoted = v
			return nil
		})
		return quoted, err
	})
	if err != nil {
		return nil, err
	}
	return res.(*uint256.Int), nil
}

// SwapExactTokens implements Router.
func (g *GuardedRouter) SwapExactTokens(ctx context.Context, in, out common.Address, amountIn, amountOutMin *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	type fill struct{ out, fee *uint256.Int }
	res, err := g.cb.Execute(func() (interface{}, error) {
		o, f, err := g.next.SwapExactTokens(ctx, in, out, amountIn, amountOutMin)
		return fill{o, f}, err
	})
	if err != nil {
		return nil, nil, err
	}
	filled := res.(fill)
	return filled.out, filled.fee, nil
}
