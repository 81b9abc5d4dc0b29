package token

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "DCAKeeper/internal/errors"
)

// Book is an in-memory Transferer used for local runs and tests. The native
// asset is treated like any token except that pulling it needs no allowance,
// mirroring value sent along with a payable call.
type Book struct {
	mu         sync.Mutex
	vault      common.Address
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

// NewBook returns a book in which vault is the custody account.
func NewBook(vault common.Address) *Book {
	return &Book{
		vault:      vault,
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Vault returns the custody account.
func (b *Book) Vault() common.Address { return b.vault }

// Mint credits holder out of thin air.
func (b *Book) Mint(asset, holder common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset, holder, amount)
}

// Approve sets the allowance holder grants the vault.
func (b *Book) Approve(asset, holder common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allowances[asset] == nil {
		b.allowances[asset] = make(map[common.Address]*uint256.Int)
	}
	b.allowances[asset][holder] = amount.Clone()
}

// BalanceOf returns holder's balance of asset.
func (b *Book) BalanceOf(asset, holder common.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(asset, holder).Clone()
}

// Allowance implements AllowanceReader.
func (b *Book) Allowance(_ context.Context, asset, holder common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.allowances[asset][holder]; ok {
		return v.Clone(), nil
	}
	return new(uint256.Int), nil
}

// TransferFrom implements Transferer.
func (b *Book) TransferFrom(_ context.Context, asset, holder common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if asset != (common.Address{}) {
		allowed := b.allowances[asset][holder]
		if allowed == nil || allowed.Lt(amount) {
			return xerrors.New(xerrors.CodeTransferFailed, "allowance below amount", xerrors.WithMetadata("holder", holder.Hex()))
		}
	}
	if err := b.move(asset, holder, b.vault, amount); err != nil {
		return err
	}
	if asset != (common.Address{}) {
		b.allowances[asset][holder] = new(uint256.Int).Sub(b.allowances[asset][holder], amount)
	}
	return nil
}

// Transfer implements Transferer.
func (b *Book) Transfer(_ context.Context, asset, recipient common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(asset, b.vault, recipient, amount)
}

// CanExchange reports whether Exchange would succeed with the same arguments.
func (b *Book) CanExchange(counterparty, give, take common.Address, amountGive, amountTake *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkExchange(counterparty, give, take, amountGive, amountTake)
}

// Exchange pays amountGive of give from the vault to counterparty and pulls
// amountTake of take back against counterparty's allowance. Either both legs
// move or neither does.
func (b *Book) Exchange(_ context.Context, counterparty, give, take common.Address, amountGive, amountTake *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkExchange(counterparty, give, take, amountGive, amountTake); err != nil {
		return err
	}
	_ = b.move(give, b.vault, counterparty, amountGive)
	_ = b.move(take, counterparty, b.vault, amountTake)
	if take != (common.Address{}) {
		b.allowances[take][counterparty] = new(uint256.Int).Sub(b.allowances[take][counterparty], amountTake)
	}
	return nil
}

func (b *Book) checkExchange(counterparty, give, take common.Address, amountGive, amountTake *uint256.Int) error {
	if bal := b.balance(give, b.vault); bal.Lt(amountGive) {
		return xerrors.Newf(xerrors.CodeTransferFailed, "vault holds %s of %s, need %s", bal.Dec(), give.Hex(), amountGive.Dec())
	}
	if bal := b.balance(take, counterparty); bal.Lt(amountTake) {
		return xerrors.Newf(xerrors.CodeTransferFailed, "%s holds %s of %s, need %s", counterparty.Hex(), bal.Dec(), take.Hex(), amountTake.Dec())
	}
	if take != (common.Address{}) {
		allowed := b.allowances[take][counterparty]
		if allowed == nil || allowed.Lt(amountTake) {
			return xerrors.New(xerrors.CodeTransferFailed, "allowance below amount", xerrors.WithMetadata("holder", counterparty.Hex()))
		}
	}
	return nil
}

func (b *Book) move(asset, from, to common.Address, amount *uint256.Int) error {
	bal := b.balance(asset, from)
	if bal.Lt(amount) {
		return xerrors.Newf(xerrors.CodeTransferFailed, "%s holds %s of %s, need %s", from.Hex(), bal.Dec(), asset.Hex(), amount.Dec())
	}
	if b.balances[asset] == nil {
		b.balances[asset] = make(map[common.Address]*uint256.Int)
	}
	b.balances[asset][from] = new(uint256.Int).Sub(bal, amount)
	b.credit(asset, to, amount)
	return nil
}

func (b *Book) balance(asset, holder common.Address) *uint256.Int {
	if v, ok := b.balances[asset][holder]; ok {
		return v
	}
	return new(uint256.Int)
}

func (b *Book) credit(asset, holder common.Address, amount *uint256.Int) {
	if b.balances[asset] == nil {
		b.balances[asset] = make(map[common.Address]*uint256.Int)
	}
	b.balances[asset][holder] = new(uint256.Int).Add(b.balance(asset, holder), amount)
}
