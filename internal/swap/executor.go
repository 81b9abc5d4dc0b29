// Package swap quotes and executes exchanges through a DEX router while
// keeping vault custody consistent with what the router reports.
package swap

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/ledger"
	"DCAKeeper/internal/model"
)

const bpsDenominator = 10_000

// ErrInsufficientLiquidity is returned by routers that cannot fill an order.
var ErrInsufficientLiquidity = errors.New("swap: insufficient liquidity")

// Router is the pricing and execution collaborator.
type Router interface {
	// GetAmountOutMin returns the output the router expects for amountIn.
	GetAmountOutMin(ctx context.Context, assetIn, assetOut common.Address, amountIn *uint256.Int) (*uint256.Int, error)
	// SwapExactTokens exchanges exactly amountIn and reverts if the output
	// would be below amountOutMin. fee is denominated in assetOut.
	SwapExactTokens(ctx context.Context, assetIn, assetOut common.Address, amountIn, amountOutMin *uint256.Int) (amountOut, fee *uint256.Int, err error)
}

// Executor wraps a Router with custody checks and a slippage tolerance.
type Executor struct {
	router      Router
	slippageBps uint64
	now         func() time.Time
}

// NewExecutor returns an executor that lowers every quoted floor by slippageBps.
func NewExecutor(router Router, slippageBps uint64) *Executor {
	if slippageBps > bpsDenominator {
		slippageBps = bpsDenominator
	}
	return &Executor{router: router, slippageBps: slippageBps, now: time.Now}
}

// Quote asks the router for a fresh slippage floor.
func (e *Executor) Quote(ctx context.Context, src, dst common.Address, amountIn *uint256.Int) (model.SwapQuote, error) {
	if err := checkPair(src, dst, amountIn); err != nil {
		return model.SwapQuote{}, err
	}
	expected, err := e.router.GetAmountOutMin(ctx, src, dst, amountIn)
	if err != nil {
		return model.SwapQuote{}, routerError(err, "quote")
	}
	floor, overflow := new(uint256.Int).MulDivOverflow(expected, uint256.NewInt(bpsDenominator-e.slippageBps), uint256.NewInt(bpsDenominator))
	if overflow {
		return model.SwapQuote{}, xerrors.New(xerrors.CodeInvalidAmount, "quote overflows")
	}
	return model.SwapQuote{
		SourceAsset:  src,
		DestAsset:    dst,
		AmountIn:     amountIn.Clone(),
		MinAmountOut: floor,
		QuotedAt:     e.now(),
	}, nil
}

// Swap exchanges amountIn of src held in h for dst. On success h loses
// exactly amountIn of src and gains exactly the reported output of dst; on
// failure h is untouched.
func (e *Executor) Swap(ctx context.Context, h *ledger.Holdings, src, dst common.Address, amountIn, minOut *uint256.Int) (model.SwapResult, error) {
	if err := checkPair(src, dst, amountIn); err != nil {
		return model.SwapResult{}, err
	}
	if minOut == nil {
		minOut = new(uint256.Int)
	}
	if held := h.Balance(src); held.Lt(amountIn) {
		return model.SwapResult{}, xerrors.Newf(xerrors.CodeInsufficientFund, "vault holds %s of %s, swap needs %s", held.Dec(), src.Hex(), amountIn.Dec())
	}

	out, fee, err := e.router.SwapExactTokens(ctx, src, dst, amountIn, minOut)
	if err != nil {
		return model.SwapResult{}, routerError(err, "swap")
	}
	if out == nil || out.Lt(minOut) {
		return model.SwapResult{}, xerrors.Newf(xerrors.CodeSlippageExceeded, "router returned %s below floor %s", model.AmountString(out), minOut.Dec())
	}

	next := h.Clone()
	if err := next.Debit(src, amountIn); err != nil {
		return model.SwapResult{}, err
	}
	if err := next.Credit(dst, out); err != nil {
		return model.SwapResult{}, err
	}
	*h = *next

	return model.SwapResult{
		SourceAsset: src,
		DestAsset:   dst,
		AmountIn:    amountIn.Clone(),
		AmountOut:   out.Clone(),
		Fee:         model.CloneAmount(fee),
	}, nil
}

func checkPair(src, dst common.Address, amountIn *uint256.Int) error {
	if src == dst {
		return xerrors.New(xerrors.CodeInvalidIdentity, "source and destination asset are the same")
	}
	if amountIn == nil || amountIn.IsZero() {
		return xerrors.New(xerrors.CodeInvalidAmount, "swap amount must be positive")
	}
	return nil
}

// routerError classifies collaborator failures. Liquidity and slippage
// reverts become SLIPPAGE_EXCEEDED, coded errors pass through, and anything
// else is a failed transfer.
func routerError(err error, op string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	if errors.Is(err, ErrInsufficientLiquidity) {
		return xerrors.Wrap(xerrors.CodeSlippageExceeded, err, op)
	}
	return xerrors.Wrap(xerrors.CodeTransferFailed, err, op)
}
