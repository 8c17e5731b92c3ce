package caller

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	multicallABIJson = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall.Call[]","name":"calls","type":"tuple[]"}],"name":"aggregate","outputs":[{"internalType":"uint256","name":"blockNumber","type":"uint256"},{"internalType":"bytes[]","name":"returnData","type":"bytes[]"}],"stateMutability":"nonpayable","type":"function"}]`

	tokenABIJson = `[{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	stakingABIJson = `[{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"stakes","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	MulticallABI = mustParseABI(multicallABIJson)
	TokenABI     = mustParseABI(tokenABIJson)
	StakingABI   = mustParseABI(stakingABIJson)

	// TransferTopic is keccak256("Transfer(address,address,uint256)")
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded ABI: %v", err))
	}
	return parsed
}

// Call is one entry of a Multicall aggregate batch
type Call struct {
	Target   common.Address
	CallData []byte
}

// IChainClient is the subset of *ethclient.Client the caller uses
type IChainClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethTypes.Header, error)
	FilterLogs(ctx context.Context, q geth.FilterQuery) ([]ethTypes.Log, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// IBatchCaller sends several JSON-RPC requests in one round trip. *rpc.Client
// satisfies it, and *ethclient.Client exposes one through Client().
type IBatchCaller interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

type rpcClientProvider interface {
	Client() *rpc.Client
}

type ContractCallerConfig struct {
	TokenAddress     common.Address
	StakingAddress   common.Address
	MulticallAddress common.Address

	MulticallBatchSize uint64
	LogWindowSize      uint64

	// RequestsPerSecond paces RPC requests; zero disables pacing
	RequestsPerSecond float64
}

type ContractCaller struct {
	client  IChainClient
	batcher IBatchCaller
	config  *ContractCallerConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewContractCaller(
	client IChainClient,
	cfg *ContractCallerConfig,
	logger *zap.Logger,
) (*ContractCaller, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("contract caller config cannot be nil")
	}
	if cfg.MulticallBatchSize == 0 {
		return nil, fmt.Errorf("multicall batch size must be greater than zero")
	}
	if cfg.LogWindowSize == 0 {
		return nil, fmt.Errorf("log window size must be greater than zero")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	logger.Sugar().Infow("Using distribution contracts",
		"token", cfg.TokenAddress.Hex(),
		"staking", cfg.StakingAddress.Hex(),
		"multicall", cfg.MulticallAddress.Hex(),
	)

	var batcher IBatchCaller
	switch c := client.(type) {
	case IBatchCaller:
		batcher = c
	case rpcClientProvider:
		if rc := c.Client(); rc != nil {
			batcher = rc
		}
	}

	return &ContractCaller{
		client:  client,
		batcher: batcher,
		config:  cfg,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (cc *ContractCaller) wait(ctx context.Context) error {
	if err := cc.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}
	return nil
}

func (cc *ContractCaller) LatestBlock(ctx context.Context) (uint64, uint64, error) {
	if err := cc.wait(ctx); err != nil {
		return 0, 0, err
	}
	header, err := cc.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get latest block header")
	}
	return header.Number.Uint64(), header.Time, nil
}

func (cc *ContractCaller) BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	if err := cc.wait(ctx); err != nil {
		return 0, err
	}
	header, err := cc.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get header for block %d", blockNumber)
	}
	return header.Time, nil
}

func (cc *ContractCaller) GetTransferParticipants(ctx context.Context, fromBlock, toBlock uint64) ([]common.Address, error) {
	seen := make(map[common.Address]struct{})
	for _, window := range util.Windows(fromBlock, toBlock, cc.config.LogWindowSize) {
		if err := cc.wait(ctx); err != nil {
			return nil, err
		}
		logs, err := cc.client.FilterLogs(ctx, geth.FilterQuery{
			FromBlock: new(big.Int).SetUint64(window[0]),
			ToBlock:   new(big.Int).SetUint64(window[1]),
			Addresses: []common.Address{cc.config.TokenAddress},
			Topics:    [][]common.Hash{{TransferTopic}},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to filter transfer logs for blocks %d-%d", window[0], window[1])
		}

		for _, log := range logs {
			from, to, value, ok := decodeTransfer(log)
			if !ok || value.Sign() == 0 {
				continue
			}
			for _, account := range []common.Address{from, to} {
				if account == (common.Address{}) {
					continue
				}
				seen[account] = struct{}{}
			}
		}
		cc.logger.Sugar().Debugw("Scanned transfer logs",
			"fromBlock", window[0],
			"toBlock", window[1],
			"logs", len(logs),
			"participants", len(seen),
		)
	}

	participants := make([]common.Address, 0, len(seen))
	for account := range seen {
		participants = append(participants, account)
	}
	sort.Slice(participants, func(i, j int) bool {
		return bytes.Compare(participants[i][:], participants[j][:]) < 0
	})
	return participants, nil
}

// decodeTransfer reads an ERC20 Transfer log. Malformed logs are reported as not ok.
func decodeTransfer(log ethTypes.Log) (common.Address, common.Address, *big.Int, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != TransferTopic || len(log.Data) < 32 {
		return common.Address{}, common.Address{}, nil, false
	}
	from := common.BytesToAddress(log.Topics[1].Bytes())
	to := common.BytesToAddress(log.Topics[2].Bytes())
	value, err := util.DecodeUint256(log.Data)
	if err != nil {
		return common.Address{}, common.Address{}, nil, false
	}
	return from, to, value, true
}

// FilterExternallyOwned drops accounts that have code at blockNumber. Code is
// fetched with batched eth_getCode requests, MulticallBatchSize per round trip,
// when the client supports batching.
func (cc *ContractCaller) FilterExternallyOwned(ctx context.Context, accounts []common.Address, blockNumber uint64) ([]common.Address, error) {
	owned := make([]common.Address, 0, len(accounts))
	for _, batch := range util.Chunk(accounts, int(cc.config.MulticallBatchSize)) {
		codes, err := cc.codeAt(ctx, batch, blockNumber)
		if err != nil {
			return nil, err
		}
		for i, account := range batch {
			if len(codes[i]) == 0 {
				owned = append(owned, account)
			}
		}
	}
	cc.logger.Sugar().Infow("Filtered contract accounts",
		"accounts", len(accounts),
		"externallyOwned", len(owned),
		"block", blockNumber,
		"batched", cc.batcher != nil,
	)
	return owned, nil
}

// codeAt returns the code of every account, in order
func (cc *ContractCaller) codeAt(ctx context.Context, accounts []common.Address, blockNumber uint64) ([][]byte, error) {
	codes := make([][]byte, len(accounts))

	if cc.batcher == nil {
		block := new(big.Int).SetUint64(blockNumber)
		for i, account := range accounts {
			if err := cc.wait(ctx); err != nil {
				return nil, err
			}
			code, err := cc.client.CodeAt(ctx, account, block)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to get code for %s at block %d", account.Hex(), blockNumber)
			}
			codes[i] = code
		}
		return codes, nil
	}

	if err := cc.wait(ctx); err != nil {
		return nil, err
	}
	results := make([]hexutil.Bytes, len(accounts))
	elems := util.Map(accounts, func(account common.Address, i uint64) rpc.BatchElem {
		return rpc.BatchElem{
			Method: "eth_getCode",
			Args:   []interface{}{account, hexutil.EncodeUint64(blockNumber)},
			Result: &results[i],
		}
	})
	if err := cc.batcher.BatchCallContext(ctx, elems); err != nil {
		return nil, errors.Wrapf(err, "failed to batch get code for %d accounts at block %d", len(accounts), blockNumber)
	}
	for i, elem := range elems {
		if elem.Error != nil {
			return nil, errors.Wrapf(elem.Error, "failed to get code for %s at block %d", accounts[i].Hex(), blockNumber)
		}
		codes[i] = results[i]
	}
	return codes, nil
}

func (cc *ContractCaller) GetTokenBalances(ctx context.Context, accounts []common.Address, blockNumber uint64) (types.Balances, error) {
	return cc.readBalances(ctx, TokenABI, "balanceOf", cc.config.TokenAddress, accounts, blockNumber)
}

func (cc *ContractCaller) GetStakedBalances(ctx context.Context, accounts []common.Address, blockNumber uint64) (types.Balances, error) {
	return cc.readBalances(ctx, StakingABI, "stakes", cc.config.StakingAddress, accounts, blockNumber)
}

// readBalances calls a single-address uint256 view for every account through
// Multicall, MulticallBatchSize calls at a time.
func (cc *ContractCaller) readBalances(
	ctx context.Context,
	contractABI abi.ABI,
	method string,
	target common.Address,
	accounts []common.Address,
	blockNumber uint64,
) (types.Balances, error) {
	balances := make(types.Balances, len(accounts))
	for _, batch := range util.Chunk(accounts, int(cc.config.MulticallBatchSize)) {
		calls := make([]Call, len(batch))
		for i, account := range batch {
			data, err := contractABI.Pack(method, account)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to pack %s call for %s", method, account.Hex())
			}
			calls[i] = Call{Target: target, CallData: data}
		}

		results, err := cc.Aggregate(ctx, calls, blockNumber)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s for %d accounts", method, len(batch))
		}
		for i, account := range batch {
			value, err := util.DecodeUint256(results[i])
			if err != nil {
				return nil, errors.Wrapf(err, "failed to decode %s result for %s", method, account.Hex())
			}
			balances[account] = value
		}
	}
	return balances, nil
}

// Aggregate executes calls in one Multicall eth_call at blockNumber and returns
// the raw return data of each call in order.
func (cc *ContractCaller) Aggregate(ctx context.Context, calls []Call, blockNumber uint64) ([][]byte, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	input, err := MulticallABI.Pack("aggregate", calls)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack multicall aggregate")
	}

	if err := cc.wait(ctx); err != nil {
		return nil, err
	}
	multicall := cc.config.MulticallAddress
	output, err := cc.client.CallContract(ctx, geth.CallMsg{
		To:   &multicall,
		Data: input,
	}, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return nil, errors.Wrapf(err, "multicall aggregate failed at block %d", blockNumber)
	}

	unpacked, err := MulticallABI.Unpack("aggregate", output)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack multicall aggregate result")
	}
	if len(unpacked) != 2 {
		return nil, fmt.Errorf("unexpected multicall output length %d", len(unpacked))
	}
	returnData, ok := unpacked[1].([][]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected multicall return data type %T", unpacked[1])
	}
	if len(returnData) != len(calls) {
		return nil, fmt.Errorf("multicall returned %d results for %d calls", len(returnData), len(calls))
	}
	return returnData, nil
}
