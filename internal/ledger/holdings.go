package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "DCAKeeper/internal/errors"
)

// Holdings is the engine's custody per asset.
type Holdings struct {
	assets map[common.Address]*uint256.Int
}

// NewHoldings returns empty holdings.
func NewHoldings() *Holdings {
	return &Holdings{assets: make(map[common.Address]*uint256.Int)}
}

// Balance returns the custody of asset.
func (h *Holdings) Balance(asset common.Address) *uint256.Int {
	if v, ok := h.assets[asset]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Credit increases custody of asset.
func (h *Holdings) Credit(asset common.Address, amount *uint256.Int) error {
	cur := h.Balance(asset)
	sum, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return xerrors.New(xerrors.CodeInvalidAmount, "credit overflows holdings", xerrors.WithMetadata("asset", asset.Hex()))
	}
	h.assets[asset] = sum
	return nil
}

// Debit decreases custody of asset.
func (h *Holdings) Debit(asset common.Address, amount *uint256.Int) error {
	cur := h.Balance(asset)
	if cur.Lt(amount) {
		return xerrors.Newf(xerrors.CodeInsufficientFund, "holding %s of %s, need %s", cur.Dec(), asset.Hex(), amount.Dec())
	}
	left := new(uint256.Int).Sub(cur, amount)
	if left.IsZero() {
		delete(h.assets, asset)
		return nil
	}
	h.assets[asset] = left
	return nil
}

// Assets returns a copy of every non-zero holding.
func (h *Holdings) Assets() map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(h.assets))
	for k, v := range h.assets {
		out[k] = v.Clone()
	}
	return out
}

// Clone returns a deep copy.
func (h *Holdings) Clone() *Holdings {
	return &Holdings{assets: h.Assets()}
}
