package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NativeAsset designates the chain's native currency.
var NativeAsset = common.Address{}

// Mode selects what an upkeep does once due.
type Mode string

const (
	// ModeWithdraw pays the whole custody out to the recipient.
	ModeWithdraw Mode = "withdraw"
	// ModeSwap converts Amount of the source asset into the destination asset.
	ModeSwap Mode = "swap"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeWithdraw || m == ModeSwap
}

// UpkeepState is derived on every read from the clock and ledger.
type UpkeepState int

const (
	StateIdle UpkeepState = iota
	StateDue
)

func (s UpkeepState) String() string {
	switch s {
	case StateDue:
		return "due"
	default:
		return "idle"
	}
}

// SwapQuote is produced immediately before a swap and never cached.
type SwapQuote struct {
	SourceAsset  common.Address
	DestAsset    common.Address
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	QuotedAt     time.Time
}

// SwapResult reports a completed exchange.
type SwapResult struct {
	SourceAsset common.Address
	DestAsset   common.Address
	AmountIn    *uint256.Int
	AmountOut   *uint256.Int
	// Fee is what the router reports it levied, in the destination asset.
	Fee *uint256.Int
}

// UpkeepReport describes one successful PerformUpkeep.
type UpkeepReport struct {
	RunID       string
	Mode        Mode
	PerformedAt time.Time
	Recipient   common.Address
	AmountIn    *uint256.Int
	Swap        *SwapResult
	// PayoutErr is set when the swap settled but forwarding its output to
	// the configured recipient failed. The output stays in custody.
	PayoutErr error
}

// PerformData is what CheckUpkeep hands to PerformUpkeep.
type PerformData struct {
	SourceAsset common.Address
	DestAsset   common.Address
	Amount      *uint256.Int
}
