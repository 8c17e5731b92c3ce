package contractCaller

import (
	"context"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/blockLocator"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/contractCaller/caller"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// IContractCaller is everything a distribution run reads from the chain.
// It doubles as the timestamp and tip source for the block locator.
type IContractCaller interface {
	blockLocator.IChainSource

	// GetTransferParticipants returns every sender and receiver of a non-zero token
	// transfer in the inclusive block range, deduplicated and sorted.
	GetTransferParticipants(ctx context.Context, fromBlock, toBlock uint64) ([]common.Address, error)

	// FilterExternallyOwned drops accounts that have contract code at blockNumber
	FilterExternallyOwned(ctx context.Context, accounts []common.Address, blockNumber uint64) ([]common.Address, error)

	// GetTokenBalances reads token balances at blockNumber
	GetTokenBalances(ctx context.Context, accounts []common.Address, blockNumber uint64) (types.Balances, error)

	// GetStakedBalances reads staked amounts at blockNumber
	GetStakedBalances(ctx context.Context, accounts []common.Address, blockNumber uint64) (types.Balances, error)
}

var _ IContractCaller = (*caller.ContractCaller)(nil)
