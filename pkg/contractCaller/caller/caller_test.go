package caller

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/blockLocator"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddress     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stakingAddress   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	multicallAddress = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

// fakeChain answers the RPC calls the caller makes from in-memory state
type fakeChain struct {
	timestamps []uint64
	logs       []ethTypes.Log
	code       map[common.Address][]byte
	balances   map[common.Address]*big.Int
	stakes     map[common.Address]*big.Int

	filterQueries  []geth.FilterQuery
	aggregateCalls int
	codeAtCalls    int
	callErr        error
	dropResult     bool
}

func (f *fakeChain) HeaderByNumber(_ context.Context, number *big.Int) (*ethTypes.Header, error) {
	n := uint64(len(f.timestamps) - 1)
	if number != nil {
		n = number.Uint64()
	}
	if n >= uint64(len(f.timestamps)) {
		return nil, fmt.Errorf("block %d not found", n)
	}
	return &ethTypes.Header{Number: new(big.Int).SetUint64(n), Time: f.timestamps[n]}, nil
}

func (f *fakeChain) FilterLogs(_ context.Context, q geth.FilterQuery) ([]ethTypes.Log, error) {
	f.filterQueries = append(f.filterQueries, q)
	out := make([]ethTypes.Log, 0)
	for _, log := range f.logs {
		if log.BlockNumber >= q.FromBlock.Uint64() && log.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeChain) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.codeAtCalls++
	return f.code[account], nil
}

// batchingChain adds JSON-RPC batching on top of fakeChain
type batchingChain struct {
	*fakeChain
	batches  [][]rpc.BatchElem
	elemErr  map[common.Address]error
	batchErr error
}

func (b *batchingChain) BatchCallContext(_ context.Context, elems []rpc.BatchElem) error {
	if b.batchErr != nil {
		return b.batchErr
	}
	b.batches = append(b.batches, elems)
	for i := range elems {
		if elems[i].Method != "eth_getCode" {
			elems[i].Error = fmt.Errorf("unsupported method %s", elems[i].Method)
			continue
		}
		account := elems[i].Args[0].(common.Address)
		if err, ok := b.elemErr[account]; ok {
			elems[i].Error = err
			continue
		}
		*elems[i].Result.(*hexutil.Bytes) = b.code[account]
	}
	return nil
}

func (f *fakeChain) CallContract(_ context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	if msg.To == nil || *msg.To != multicallAddress {
		return nil, fmt.Errorf("unexpected call target")
	}
	f.aggregateCalls++

	method, err := MulticallABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(args[0], new([]Call)).(*[]Call)

	results := make([][]byte, 0, len(calls))
	for _, call := range calls {
		var source map[common.Address]*big.Int
		var contractABI abi.ABI
		switch call.Target {
		case tokenAddress:
			source, contractABI = f.balances, TokenABI
		case stakingAddress:
			source, contractABI = f.stakes, StakingABI
		default:
			return nil, fmt.Errorf("unexpected multicall target %s", call.Target.Hex())
		}
		inner, err := contractABI.MethodById(call.CallData[:4])
		if err != nil {
			return nil, err
		}
		innerArgs, err := inner.Inputs.Unpack(call.CallData[4:])
		if err != nil {
			return nil, err
		}
		value := source[innerArgs[0].(common.Address)]
		if value == nil {
			value = new(big.Int)
		}
		encoded, err := util.EncodeUint256(value)
		if err != nil {
			return nil, err
		}
		results = append(results, encoded)
	}
	if f.dropResult {
		results = results[:len(results)-1]
	}
	return method.Outputs.Pack(blockNumber, results)
}

func transferLog(t *testing.T, block uint64, from, to common.Address, value int64) ethTypes.Log {
	t.Helper()
	data, err := util.EncodeUint256(big.NewInt(value))
	require.NoError(t, err)
	return ethTypes.Log{
		Address:     tokenAddress,
		BlockNumber: block,
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: data,
	}
}

func newTestCaller(t *testing.T, chain *fakeChain, batchSize, window uint64) *ContractCaller {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	cc, err := NewContractCaller(chain, &ContractCallerConfig{
		TokenAddress:       tokenAddress,
		StakingAddress:     stakingAddress,
		MulticallAddress:   multicallAddress,
		MulticallBatchSize: batchSize,
		LogWindowSize:      window,
	}, l)
	require.NoError(t, err)
	return cc
}

func account(i int64) common.Address {
	return common.BigToAddress(big.NewInt(0x1000 + i))
}

func TestNewContractCaller(t *testing.T) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	_, err = NewContractCaller(nil, &ContractCallerConfig{MulticallBatchSize: 1, LogWindowSize: 1}, l)
	assert.Error(t, err)
	_, err = NewContractCaller(&fakeChain{}, nil, l)
	assert.Error(t, err)
	_, err = NewContractCaller(&fakeChain{}, &ContractCallerConfig{LogWindowSize: 1}, l)
	assert.Error(t, err)
	_, err = NewContractCaller(&fakeChain{}, &ContractCallerConfig{MulticallBatchSize: 1}, l)
	assert.Error(t, err)
	_, err = NewContractCaller(&fakeChain{}, &ContractCallerConfig{MulticallBatchSize: 1, LogWindowSize: 1, RequestsPerSecond: 100}, l)
	assert.NoError(t, err)
}

func TestContractCaller_Blocks(t *testing.T) {
	chain := &fakeChain{timestamps: []uint64{100, 112, 125, 137}}
	cc := newTestCaller(t, chain, 10, 10)
	ctx := context.Background()

	number, ts, err := cc.LatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), number)
	assert.Equal(t, uint64(137), ts)

	ts, err = cc.BlockTimestamp(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(112), ts)

	_, err = cc.BlockTimestamp(ctx, 10)
	assert.Error(t, err)
}

func TestContractCaller_LocatorSource(t *testing.T) {
	timestamps := make([]uint64, 500)
	for i := range timestamps {
		timestamps[i] = 1_600_000_000 + uint64(i)*13
	}
	cc := newTestCaller(t, &fakeChain{timestamps: timestamps}, 10, 10)

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	locator := blockLocator.NewLocator(cc, nil, l)

	block, err := locator.FindBlock(context.Background(), timestamps[321]-5)
	require.NoError(t, err)
	assert.Equal(t, uint64(321), block)
}

func TestContractCaller_GetTransferParticipants(t *testing.T) {
	minted := account(1)
	alice := account(2)
	bob := account(3)
	carol := account(4)
	late := account(5)
	zeroValue := account(6)

	chain := &fakeChain{
		logs: []ethTypes.Log{
			transferLog(t, 5, common.Address{}, minted, 1000),
			transferLog(t, 15, minted, alice, 10),
			transferLog(t, 25, bob, carol, 1),
			transferLog(t, 26, zeroValue, zeroValue, 0),
			transferLog(t, 40, carol, late, 1),
			// not a transfer log
			{BlockNumber: 12, Topics: []common.Hash{common.HexToHash("0x01")}},
		},
	}
	cc := newTestCaller(t, chain, 10, 10)

	participants, err := cc.GetTransferParticipants(context.Background(), 0, 30)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{minted, alice, bob, carol}, participants)

	require.Len(t, chain.filterQueries, 4)
	assert.Equal(t, uint64(0), chain.filterQueries[0].FromBlock.Uint64())
	assert.Equal(t, uint64(9), chain.filterQueries[0].ToBlock.Uint64())
	assert.Equal(t, uint64(30), chain.filterQueries[3].FromBlock.Uint64())
	assert.Equal(t, uint64(30), chain.filterQueries[3].ToBlock.Uint64())
	for _, q := range chain.filterQueries {
		assert.Equal(t, []common.Address{tokenAddress}, q.Addresses)
		assert.Equal(t, [][]common.Hash{{TransferTopic}}, q.Topics)
	}
}

func TestContractCaller_FilterExternallyOwned(t *testing.T) {
	eoa1 := account(1)
	contract := account(2)
	eoa2 := account(3)
	chain := &fakeChain{code: map[common.Address][]byte{contract: {0x60, 0x80}}}
	cc := newTestCaller(t, chain, 10, 10)

	owned, err := cc.FilterExternallyOwned(context.Background(), []common.Address{eoa1, contract, eoa2}, 100)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{eoa1, eoa2}, owned)
}

func TestContractCaller_FilterExternallyOwnedBatched(t *testing.T) {
	accounts := make([]common.Address, 7)
	for i := range accounts {
		accounts[i] = account(int64(i + 1))
	}
	chain := &batchingChain{fakeChain: &fakeChain{code: map[common.Address][]byte{
		accounts[1]: {0x60, 0x80},
		accounts[5]: {0x60, 0x80},
	}}}
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	cc, err := NewContractCaller(chain, &ContractCallerConfig{MulticallBatchSize: 3, LogWindowSize: 10}, l)
	require.NoError(t, err)
	ctx := context.Background()

	owned, err := cc.FilterExternallyOwned(ctx, accounts, 100)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{accounts[0], accounts[2], accounts[3], accounts[4], accounts[6]}, owned)

	// 7 accounts in batches of 3, and no per-account lookups
	require.Len(t, chain.batches, 3)
	assert.Len(t, chain.batches[0], 3)
	assert.Len(t, chain.batches[2], 1)
	assert.Equal(t, 0, chain.codeAtCalls)
	assert.Equal(t, []interface{}{accounts[0], "0x64"}, chain.batches[0][0].Args)

	t.Run("element error", func(t *testing.T) {
		chain.elemErr = map[common.Address]error{accounts[4]: errors.New("missing trie node")}
		defer func() { chain.elemErr = nil }()

		_, err := cc.FilterExternallyOwned(ctx, accounts, 100)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing trie node")
		assert.Contains(t, err.Error(), accounts[4].Hex())
	})

	t.Run("batch error", func(t *testing.T) {
		chain.batchErr = errors.New("connection reset")
		defer func() { chain.batchErr = nil }()

		_, err := cc.FilterExternallyOwned(ctx, accounts, 100)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestContractCaller_FilterExternallyOwnedUnbatched(t *testing.T) {
	chain := &fakeChain{code: map[common.Address][]byte{account(2): {0x01}}}
	cc := newTestCaller(t, chain, 2, 10)

	owned, err := cc.FilterExternallyOwned(context.Background(), []common.Address{account(1), account(2), account(3)}, 5)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{account(1), account(3)}, owned)
	assert.Equal(t, 3, chain.codeAtCalls)
}

func TestContractCaller_Balances(t *testing.T) {
	accounts := []common.Address{account(1), account(2), account(3), account(4), account(5)}
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	chain := &fakeChain{
		balances: map[common.Address]*big.Int{
			accounts[0]: big.NewInt(10),
			accounts[2]: huge,
			accounts[4]: big.NewInt(7),
		},
		stakes: map[common.Address]*big.Int{
			accounts[1]: big.NewInt(3),
		},
	}
	cc := newTestCaller(t, chain, 2, 10)
	ctx := context.Background()

	balances, err := cc.GetTokenBalances(ctx, accounts, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, chain.aggregateCalls)
	require.Len(t, balances, 5)
	assert.Equal(t, int64(10), balances[accounts[0]].Int64())
	assert.Equal(t, int64(0), balances[accounts[1]].Int64())
	assert.Equal(t, huge.String(), balances[accounts[2]].String())
	assert.Equal(t, int64(7), balances[accounts[4]].Int64())

	stakes, err := cc.GetStakedBalances(ctx, accounts, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stakes[accounts[1]].Int64())
	assert.Equal(t, int64(0), stakes[accounts[0]].Int64())

	empty, err := cc.GetTokenBalances(ctx, nil, 100)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestContractCaller_AggregateErrors(t *testing.T) {
	accounts := []common.Address{account(1), account(2)}

	t.Run("rpc failure", func(t *testing.T) {
		chain := &fakeChain{callErr: fmt.Errorf("connection refused")}
		cc := newTestCaller(t, chain, 10, 10)
		_, err := cc.GetTokenBalances(context.Background(), accounts, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("short result", func(t *testing.T) {
		chain := &fakeChain{dropResult: true}
		cc := newTestCaller(t, chain, 10, 10)
		_, err := cc.GetTokenBalances(context.Background(), accounts, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "results for")
	})
}
