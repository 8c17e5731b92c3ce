package contractCaller

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
)

// MockTransfer is a token transfer recorded on the mock chain
type MockTransfer struct {
	Block uint64
	From  common.Address
	To    common.Address
	Value *big.Int
}

// MockContractCallerStub provides an in-memory implementation of IContractCaller for testing.
// Balances are not versioned by block; every snapshot sees the same values.
type MockContractCallerStub struct {
	mu sync.Mutex

	Timestamps     []uint64
	Transfers      []MockTransfer
	Contracts      map[common.Address]bool
	TokenBalances  types.Balances
	StakedBalances types.Balances

	// Err, when set, is returned from every call
	Err error

	ParticipantQueries [][2]uint64
}

var _ IContractCaller = (*MockContractCallerStub)(nil)

func (m *MockContractCallerStub) LatestBlock(ctx context.Context) (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, 0, m.Err
	}
	if len(m.Timestamps) == 0 {
		return 0, 0, fmt.Errorf("mock chain has no blocks")
	}
	tip := uint64(len(m.Timestamps) - 1)
	return tip, m.Timestamps[tip], nil
}

func (m *MockContractCallerStub) BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	if blockNumber >= uint64(len(m.Timestamps)) {
		return 0, fmt.Errorf("block %d not found", blockNumber)
	}
	return m.Timestamps[blockNumber], nil
}

func (m *MockContractCallerStub) GetTransferParticipants(ctx context.Context, fromBlock, toBlock uint64) ([]common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.ParticipantQueries = append(m.ParticipantQueries, [2]uint64{fromBlock, toBlock})

	seen := make(map[common.Address]struct{})
	for _, transfer := range m.Transfers {
		if transfer.Block < fromBlock || transfer.Block > toBlock {
			continue
		}
		if transfer.Value == nil || transfer.Value.Sign() == 0 {
			continue
		}
		for _, account := range []common.Address{transfer.From, transfer.To} {
			if account != (common.Address{}) {
				seen[account] = struct{}{}
			}
		}
	}
	out := make([]common.Address, 0, len(seen))
	for account := range seen {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out, nil
}

func (m *MockContractCallerStub) FilterExternallyOwned(ctx context.Context, accounts []common.Address, blockNumber uint64) ([]common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return util.Filter(accounts, func(account common.Address) bool {
		return !m.Contracts[account]
	}), nil
}

func (m *MockContractCallerStub) GetTokenBalances(ctx context.Context, accounts []common.Address, blockNumber uint64) (types.Balances, error) {
	return m.lookup(accounts, m.TokenBalances)
}

func (m *MockContractCallerStub) GetStakedBalances(ctx context.Context, accounts []common.Address, blockNumber uint64) (types.Balances, error) {
	return m.lookup(accounts, m.StakedBalances)
}

func (m *MockContractCallerStub) lookup(accounts []common.Address, source types.Balances) (types.Balances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(types.Balances, len(accounts))
	for _, account := range accounts {
		if v, ok := source[account]; ok && v != nil {
			out[account] = new(big.Int).Set(v)
		} else {
			out[account] = new(big.Int)
		}
	}
	return out, nil
}
