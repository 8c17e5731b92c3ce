package contractCaller

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/blockLocator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMockContractCallerStub(t *testing.T) {
	a := common.HexToAddress("0x0000000000000000000000000000000000000001")
	b := common.HexToAddress("0x0000000000000000000000000000000000000002")
	c := common.HexToAddress("0x0000000000000000000000000000000000000003")

	m := &MockContractCallerStub{
		Timestamps: []uint64{100, 100, 105, 110, 110, 115},
		Transfers: []MockTransfer{
			{Block: 1, From: common.Address{}, To: a, Value: big.NewInt(5)},
			{Block: 2, From: a, To: b, Value: big.NewInt(1)},
			{Block: 3, From: b, To: c, Value: big.NewInt(0)},
			{Block: 5, From: b, To: c, Value: big.NewInt(1)},
		},
		Contracts:      map[common.Address]bool{b: true},
		TokenBalances:  map[common.Address]*big.Int{a: big.NewInt(4)},
		StakedBalances: map[common.Address]*big.Int{c: big.NewInt(9)},
	}
	ctx := context.Background()

	tip, ts, err := m.LatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), tip)
	assert.Equal(t, uint64(115), ts)

	participants, err := m.GetTransferParticipants(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{a, b}, participants)

	owned, err := m.FilterExternallyOwned(ctx, []common.Address{a, b, c}, 5)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{a, c}, owned)

	balances, err := m.GetTokenBalances(ctx, []common.Address{a, c}, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), balances[a].Int64())
	assert.Equal(t, int64(0), balances[c].Int64())

	stakes, err := m.GetStakedBalances(ctx, []common.Address{c}, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(9), stakes[c].Int64())

	// usable as a locator source
	block, err := blockLocator.NewLocator(m, nil, zap.NewNop()).FindBlock(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), block)

	m.Err = errors.New("boom")
	_, err = m.GetTokenBalances(ctx, []common.Address{a}, 5)
	assert.Error(t, err)
}
