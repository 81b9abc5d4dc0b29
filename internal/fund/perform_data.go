package fund

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"DCAKeeper/internal/model"
)

// performDataArgs is the ABI layout of performData: (address src, address dst, uint256 amount).
var performDataArgs = func() abi.Arguments {
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uintT, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "src", Type: addressT}, {Name: "dst", Type: addressT}, {Name: "amount", Type: uintT}}
}()

// EncodePerformData ABI-encodes pd so on-chain style keepers can forward it verbatim.
func EncodePerformData(pd model.PerformData) ([]byte, error) {
	amount := new(big.Int)
	if pd.Amount != nil {
		amount = pd.Amount.ToBig()
	}
	return performDataArgs.Pack(pd.SourceAsset, pd.DestAsset, amount)
}

// DecodePerformData reverses EncodePerformData.
func DecodePerformData(data []byte) (model.PerformData, error) {
	vals, err := performDataArgs.Unpack(data)
	if err != nil {
		return model.PerformData{}, fmt.Errorf("unpack perform data: %w", err)
	}
	if len(vals) != 3 {
		return model.PerformData{}, fmt.Errorf("perform data has %d fields", len(vals))
	}
	src, ok1 := vals[0].(common.Address)
	dst, ok2 := vals[1].(common.Address)
	amt, ok3 := vals[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return model.PerformData{}, fmt.Errorf("perform data has unexpected field types")
	}
	amount, overflow := uint256.FromBig(amt)
	if overflow {
		return model.PerformData{}, fmt.Errorf("perform data amount overflows")
	}
	return model.PerformData{SourceAsset: src, DestAsset: dst, Amount: amount}, nil
}
