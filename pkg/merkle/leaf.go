package merkle

import (
	"fmt"
	"math/big"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ClaimLeafLength is the size of abi.encodePacked(uint256, address, uint256)
const ClaimLeafLength = 32 + common.AddressLength + 32

// EncodeClaimLeaf packs a claim the way MerkleDistributor.sol hashes it:
// abi.encodePacked(uint256 index, address account, uint256 amount).
func EncodeClaimLeaf(index uint64, account common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("claim amount for %s must be a non-negative integer", account.Hex())
	}
	amt, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("claim amount %s for %s does not fit in uint256", amount.String(), account.Hex())
	}

	idx := uint256.NewInt(index).Bytes32()
	amtBytes := amt.Bytes32()

	data := make([]byte, 0, ClaimLeafLength)
	data = append(data, idx[:]...)
	data = append(data, account.Bytes()...)
	data = append(data, amtBytes[:]...)
	return data, nil
}

// DecodeClaimLeaf reverses EncodeClaimLeaf
func DecodeClaimLeaf(data []byte) (*types.ClaimLeaf, error) {
	if len(data) != ClaimLeafLength {
		return nil, fmt.Errorf("claim leaf must be %d bytes, got %d", ClaimLeafLength, len(data))
	}
	idx := new(uint256.Int).SetBytes32(data[:32])
	if !idx.IsUint64() {
		return nil, fmt.Errorf("claim index %s does not fit in uint64", idx.Dec())
	}
	amount := new(uint256.Int).SetBytes32(data[32+common.AddressLength:])

	return &types.ClaimLeaf{
		Index:   idx.Uint64(),
		Account: common.BytesToAddress(data[32 : 32+common.AddressLength]),
		Amount:  amount.ToBig(),
	}, nil
}
