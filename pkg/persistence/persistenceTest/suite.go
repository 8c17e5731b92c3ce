// Package persistenceTest holds behaviour checks shared by every persistence backend.
package persistenceTest

import (
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend for one subtest
type Factory func(t *testing.T) persistence.IDistributorPersistence

// SampleDistribution builds a small distribution for the given block
func SampleDistribution(blockHeight uint64) *types.Distribution {
	return &types.Distribution{
		MerkleRoot:  fmt.Sprintf("0x%064x", blockHeight),
		TokenTotal:  "0x3e8",
		BlockHeight: blockHeight,
		Claims: map[string]*types.Claim{
			"0x000000000000000000000000000000000000000a": {
				Index:  0,
				Amount: "0xfa",
				Proof:  []string{fmt.Sprintf("0x%064x", 1)},
			},
			"0x000000000000000000000000000000000000000b": {
				Index:  1,
				Amount: "0x2ee",
				Proof:  []string{fmt.Sprintf("0x%064x", 2)},
			},
		},
	}
}

// SampleBalanceReport builds a one-entry balance report
func SampleBalanceReport() types.BalanceReport {
	return types.BalanceReport{
		"0x000000000000000000000000000000000000000a": {
			TotalBalance:   big.NewInt(3),
			StakingBalance: big.NewInt(1),
			HoldingBalance: big.NewInt(2),
		},
	}
}

// SampleState builds the state a run at the given block would leave
func SampleState(blockHeight uint64) *persistence.DistributorState {
	return &persistence.DistributorState{
		LastRunId:         fmt.Sprintf("run-%d", blockHeight),
		LastSnapshotBlock: blockHeight,
		LastSnapshotTime:  1617840000,
		LastMerkleRoot:    fmt.Sprintf("0x%064x", blockHeight),
		LastRunAt:         1617840100,
	}
}

// SampleRun returns the arguments of SaveDistributionRun for one completed run
func SampleRun(blockHeight uint64) (*types.Distribution, types.BalanceReport, *persistence.DistributorState) {
	return SampleDistribution(blockHeight), SampleBalanceReport(), SampleState(blockHeight)
}

// RunPersistenceSuite exercises the IDistributorPersistence contract
func RunPersistenceSuite(t *testing.T, newPersistence Factory) {
	t.Run("AddressSet", func(t *testing.T) {
		p := newPersistence(t)
		defer func() { _ = p.Close() }()

		loaded, err := p.LoadAddressSet()
		require.NoError(t, err)
		assert.Nil(t, loaded, "first run has no address set")

		set := &types.AddressSet{
			Addresses: []string{"0x000000000000000000000000000000000000000a", "0x000000000000000000000000000000000000000b"},
			Latest:    12178618,
		}
		require.NoError(t, p.SaveAddressSet(set))

		loaded, err = p.LoadAddressSet()
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, set, loaded)

		set.Latest = 12200000
		set.Addresses = append(set.Addresses, "0x000000000000000000000000000000000000000c")
		require.NoError(t, p.SaveAddressSet(set))

		loaded, err = p.LoadAddressSet()
		require.NoError(t, err)
		assert.Equal(t, uint64(12200000), loaded.Latest)
		assert.Len(t, loaded.Addresses, 3)

		assert.Error(t, p.SaveAddressSet(nil))
	})

	t.Run("Distributions", func(t *testing.T) {
		p := newPersistence(t)
		defer func() { _ = p.Close() }()

		blocks, err := p.ListDistributionBlocks()
		require.NoError(t, err)
		assert.Empty(t, blocks)

		missing, err := p.LoadDistribution(42)
		require.NoError(t, err)
		assert.Nil(t, missing)

		for _, block := range []uint64{300, 100, 200} {
			require.NoError(t, p.SaveDistributionRun(SampleRun(block)))
		}
		// saving the same block again overwrites
		require.NoError(t, p.SaveDistributionRun(SampleRun(200)))

		blocks, err = p.ListDistributionBlocks()
		require.NoError(t, err)
		assert.Equal(t, []uint64{100, 200, 300}, blocks)

		loaded, err := p.LoadDistribution(200)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, SampleDistribution(200), loaded)

		// stored copies are not affected by later changes to the caller's value
		dist, report, state := SampleRun(400)
		require.NoError(t, p.SaveDistributionRun(dist, report, state))
		dist.MerkleRoot = "0xchanged"
		loaded, err = p.LoadDistribution(400)
		require.NoError(t, err)
		assert.Equal(t, SampleDistribution(400).MerkleRoot, loaded.MerkleRoot)

		assert.Error(t, p.SaveDistributionRun(nil, SampleBalanceReport(), SampleState(1)))
	})

	t.Run("BalanceReport", func(t *testing.T) {
		p := newPersistence(t)
		defer func() { _ = p.Close() }()

		missing, err := p.LoadBalanceReport(7)
		require.NoError(t, err)
		assert.Nil(t, missing)

		huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
		report := types.BalanceReport{
			"0x000000000000000000000000000000000000000a": {
				TotalBalance:   new(big.Int).Add(huge, big.NewInt(5)),
				StakingBalance: big.NewInt(5),
				HoldingBalance: huge,
			},
		}
		require.NoError(t, p.SaveDistributionRun(SampleDistribution(7), report, SampleState(7)))

		loaded, err := p.LoadBalanceReport(7)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		entry := loaded["0x000000000000000000000000000000000000000a"]
		require.NotNil(t, entry)
		assert.Equal(t, 0, report["0x000000000000000000000000000000000000000a"].TotalBalance.Cmp(entry.TotalBalance))
		assert.Equal(t, 0, huge.Cmp(entry.HoldingBalance))
		assert.Equal(t, int64(5), entry.StakingBalance.Int64())

		missing, err = p.LoadBalanceReport(8)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("DistributorState", func(t *testing.T) {
		p := newPersistence(t)
		defer func() { _ = p.Close() }()

		state, err := p.LoadDistributorState()
		require.NoError(t, err)
		assert.Nil(t, state)

		original := &persistence.DistributorState{
			LastRunId:         "3f1c9d1e-0000-4000-8000-000000000000",
			LastSnapshotBlock: 12345,
			LastSnapshotTime:  1617840000,
			LastMerkleRoot:    fmt.Sprintf("0x%064x", 9),
			LastRunAt:         1617840100,
		}
		require.NoError(t, p.SaveDistributionRun(SampleDistribution(original.LastSnapshotBlock), SampleBalanceReport(), original))

		state, err = p.LoadDistributorState()
		require.NoError(t, err)
		assert.Equal(t, original, state)

		// the latest run replaces the state
		require.NoError(t, p.SaveDistributionRun(SampleRun(12400)))
		state, err = p.LoadDistributorState()
		require.NoError(t, err)
		assert.Equal(t, SampleState(12400), state)
	})

	t.Run("DistributionRun", func(t *testing.T) {
		p := newPersistence(t)
		defer func() { _ = p.Close() }()

		dist := SampleDistribution(500)
		report := types.BalanceReport{
			"0x000000000000000000000000000000000000000b": {
				TotalBalance:   big.NewInt(30),
				StakingBalance: big.NewInt(10),
				HoldingBalance: big.NewInt(20),
			},
		}
		state := &persistence.DistributorState{
			LastRunId:         "5a0c1f7e-0000-4000-8000-000000000000",
			LastSnapshotBlock: 500,
			LastSnapshotTime:  1617840000,
			LastMerkleRoot:    dist.MerkleRoot,
			LastRunAt:         1617840100,
		}
		require.NoError(t, p.SaveDistributionRun(dist, report, state))

		loaded, err := p.LoadDistribution(500)
		require.NoError(t, err)
		assert.Equal(t, dist, loaded)

		blocks, err := p.ListDistributionBlocks()
		require.NoError(t, err)
		assert.Equal(t, []uint64{500}, blocks)

		loadedReport, err := p.LoadBalanceReport(500)
		require.NoError(t, err)
		require.Contains(t, loadedReport, "0x000000000000000000000000000000000000000b")
		assert.Equal(t, int64(30), loadedReport["0x000000000000000000000000000000000000000b"].TotalBalance.Int64())

		loadedState, err := p.LoadDistributorState()
		require.NoError(t, err)
		assert.Equal(t, state, loadedState)

		// Invalid input leaves nothing behind
		assert.Error(t, p.SaveDistributionRun(SampleDistribution(600), report, nil))
		assert.Error(t, p.SaveDistributionRun(SampleDistribution(600), nil, state))
		assert.Error(t, p.SaveDistributionRun(nil, report, state))
		missing, err := p.LoadDistribution(600)
		require.NoError(t, err)
		assert.Nil(t, missing)
		blocks, err = p.ListDistributionBlocks()
		require.NoError(t, err)
		assert.Equal(t, []uint64{500}, blocks)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		p := newPersistence(t)
		defer func() { _ = p.Close() }()

		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func(block uint64) {
				defer wg.Done()
				errs <- p.SaveDistributionRun(SampleRun(block))
			}(uint64(1000 + i))
			go func(block uint64) {
				defer wg.Done()
				_, err := p.LoadDistribution(block)
				errs <- err
			}(uint64(1000 + i))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		blocks, err := p.ListDistributionBlocks()
		require.NoError(t, err)
		assert.Len(t, blocks, 20)
	})

	t.Run("Lifecycle", func(t *testing.T) {
		p := newPersistence(t)

		require.NoError(t, p.HealthCheck())
		require.NoError(t, p.Close())
		require.NoError(t, p.Close(), "close is idempotent")

		assert.Error(t, p.HealthCheck())
		assert.Error(t, p.SaveAddressSet(&types.AddressSet{}))
		_, err := p.LoadAddressSet()
		assert.Error(t, err)
		assert.Error(t, p.SaveDistributionRun(SampleRun(1)))
		_, err = p.LoadDistribution(1)
		assert.Error(t, err)
		_, err = p.ListDistributionBlocks()
		assert.Error(t, err)
		_, err = p.LoadBalanceReport(1)
		assert.Error(t, err)
		_, err = p.LoadDistributorState()
		assert.Error(t, err)
	})
}
