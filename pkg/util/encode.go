package util

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func uint256Arguments() abi.Arguments {
	uint256Type, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{{Type: uint256Type}}
}

// EncodeUint256 ABI-encodes a single uint256 value
func EncodeUint256(v *big.Int) ([]byte, error) {
	if v == nil || v.Sign() < 0 {
		return nil, fmt.Errorf("uint256 value must be a non-negative integer")
	}
	encoded, err := uint256Arguments().Pack(v)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// DecodeUint256 reads the first uint256 word of ABI-encoded return data
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("return data too short for uint256: %d bytes", len(data))
	}
	out, err := uint256Arguments().Unpack(data[:32])
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected decoded type %T", out[0])
	}
	return v, nil
}
