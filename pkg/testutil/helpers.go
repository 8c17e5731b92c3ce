package testutil

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// CreateTestAccounts creates n distinct accounts in ascending address order
func CreateTestAccounts(n int) []common.Address {
	accounts := make([]common.Address, n)
	for i := 0; i < n; i++ {
		accounts[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
	}
	return accounts
}

// CreateTestBalances assigns each account a balance in [1, maxBalance] drawn from seed
func CreateTestBalances(t *testing.T, accounts []common.Address, maxBalance int64, seed int64) types.Balances {
	if t != nil && maxBalance < 1 {
		t.Fatalf("maxBalance must be at least 1, got %d", maxBalance)
	}
	rng := rand.New(rand.NewSource(seed))
	balances := make(types.Balances, len(accounts))
	for _, account := range accounts {
		balances[account] = big.NewInt(rng.Int63n(maxBalance) + 1)
	}
	return balances
}

// CreateTestTimestamps creates n block timestamps starting at genesis, blockTime seconds apart
func CreateTestTimestamps(n int, genesis, blockTime uint64) []uint64 {
	timestamps := make([]uint64, n)
	for i := range timestamps {
		timestamps[i] = genesis + uint64(i)*blockTime
	}
	return timestamps
}
