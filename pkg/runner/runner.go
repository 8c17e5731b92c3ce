package runner

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/allocation"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/blockLocator"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/contractCaller"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/publisher"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RunnerConfig struct {
	// StartBlock is where participant discovery begins when nothing is cached
	StartBlock uint64

	TotalDistribution *big.Int

	// SnapshotTime is a unix timestamp; zero means the latest SnapshotPeriod boundary
	SnapshotTime   int64
	SnapshotPeriod time.Duration

	MinBlockTime uint64
	MaxBlockTime uint64
}

// RunResult describes a completed distribution run
type RunResult struct {
	RunId                string
	SnapshotTime         time.Time
	SnapshotBlock        uint64
	Recipients           int
	Distribution         *types.Distribution
	DistributionLocation string
	BalanceLocation      string
}

// Runner performs one distribution: locate the snapshot block, discover
// participants, read balances, build and verify the tree, then store and
// publish the artifacts.
type Runner struct {
	caller    contractCaller.IContractCaller
	store     persistence.IDistributorPersistence
	publisher publisher.IPublisher
	locator   *blockLocator.Locator
	config    *RunnerConfig
	logger    *zap.Logger

	now func() time.Time
}

func NewRunner(
	caller contractCaller.IContractCaller,
	store persistence.IDistributorPersistence,
	pub publisher.IPublisher,
	cfg *RunnerConfig,
	logger *zap.Logger,
) (*Runner, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("persistence cannot be nil")
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("runner config cannot be nil")
	}
	if cfg.TotalDistribution == nil || cfg.TotalDistribution.Sign() < 0 {
		return nil, fmt.Errorf("total distribution must be a non-negative amount")
	}
	if cfg.SnapshotPeriod <= 0 {
		cfg.SnapshotPeriod = distribution.DefaultSnapshotPeriod
	}

	return &Runner{
		caller:    caller,
		store:     store,
		publisher: pub,
		locator: blockLocator.NewLocator(caller, &blockLocator.LocatorConfig{
			MinBlockTime: cfg.MinBlockTime,
			MaxBlockTime: cfg.MaxBlockTime,
		}, logger),
		config: cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SnapshotTime is the configured snapshot time, or the most recent period boundary
func (r *Runner) SnapshotTime() time.Time {
	if r.config.SnapshotTime > 0 {
		return time.Unix(r.config.SnapshotTime, 0).UTC()
	}
	return distribution.SnapshotTime(r.now(), r.config.SnapshotPeriod)
}

// LocateBlock returns the first block produced at or after timestamp
func (r *Runner) LocateBlock(ctx context.Context, timestamp time.Time) (uint64, error) {
	if timestamp.Unix() < 0 {
		return 0, fmt.Errorf("timestamp %d is before the unix epoch", timestamp.Unix())
	}
	return r.locator.FindBlock(ctx, uint64(timestamp.Unix()))
}

// Run executes a full distribution. Nothing is stored or published unless the
// distribution was built and verified. Both artifacts are published before the
// run is persisted; a failure at either step withdraws what was published.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	runId := uuid.New().String()
	sugar := r.logger.Sugar().With("runId", runId)

	snapshotTime := r.SnapshotTime()
	sugar.Infow("Starting distribution run",
		"snapshotTime", snapshotTime.Format(time.RFC3339),
		"total", r.config.TotalDistribution.String(),
	)

	snapshotBlock, err := r.LocateBlock(ctx, snapshotTime)
	if err != nil {
		return nil, fmt.Errorf("failed to locate snapshot block: %w", err)
	}
	sugar.Infow("Located snapshot block", "block", snapshotBlock)

	if state, err := r.store.LoadDistributorState(); err != nil {
		return nil, fmt.Errorf("failed to load distributor state: %w", err)
	} else if state != nil && state.LastSnapshotBlock == snapshotBlock {
		sugar.Warnw("Snapshot block was already distributed, rebuilding",
			"block", snapshotBlock,
			"lastRunId", state.LastRunId,
			"lastMerkleRoot", state.LastMerkleRoot,
		)
	}

	participants, err := r.DiscoverParticipants(ctx)
	if err != nil {
		return nil, err
	}

	accounts, err := r.caller.FilterExternallyOwned(ctx, participants, snapshotBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to filter contract accounts: %w", err)
	}

	holder, err := r.caller.GetTokenBalances(ctx, accounts, snapshotBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to read token balances: %w", err)
	}
	staker, err := r.caller.GetStakedBalances(ctx, accounts, snapshotBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to read staked balances: %w", err)
	}
	balances := distribution.MergeBalances(holder, staker)
	report := distribution.BuildBalanceReport(holder, staker)

	result, err := distribution.Build(balances, r.config.TotalDistribution, snapshotBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to build distribution: %w", err)
	}
	dist := result.Distribution
	if err := distribution.Verify(dist); err != nil {
		return nil, fmt.Errorf("built distribution failed verification: %w", err)
	}
	sugar.Infow("Built distribution",
		"merkleRoot", dist.MerkleRoot,
		"tokenTotal", dist.TokenTotal,
		"recipients", len(dist.Claims),
	)

	distData, err := distribution.MarshalDistribution(dist)
	if err != nil {
		return nil, err
	}
	reportData, err := distribution.MarshalBalanceReport(report)
	if err != nil {
		return nil, err
	}

	distName := distribution.DistributionFileName(snapshotTime)
	balanceName := distribution.BalanceFileName(snapshotTime)

	distLocation, err := r.publisher.Publish(ctx, distName, distData)
	if err != nil {
		return nil, fmt.Errorf("failed to publish distribution: %w", err)
	}
	balanceLocation, err := r.publisher.Publish(ctx, balanceName, reportData)
	if err != nil {
		r.unpublish(ctx, sugar, distName)
		return nil, fmt.Errorf("failed to publish balance report: %w", err)
	}

	if err := r.store.SaveDistributionRun(dist, report, &persistence.DistributorState{
		LastRunId:         runId,
		LastSnapshotBlock: snapshotBlock,
		LastSnapshotTime:  snapshotTime.Unix(),
		LastMerkleRoot:    dist.MerkleRoot,
		LastRunAt:         r.now().Unix(),
	}); err != nil {
		r.unpublish(ctx, sugar, distName, balanceName)
		return nil, fmt.Errorf("failed to save distribution run: %w", err)
	}

	sugar.Infow("Distribution run complete",
		"distribution", distLocation,
		"balances", balanceLocation,
	)

	return &RunResult{
		RunId:                runId,
		SnapshotTime:         snapshotTime,
		SnapshotBlock:        snapshotBlock,
		Recipients:           len(dist.Claims),
		Distribution:         dist,
		DistributionLocation: distLocation,
		BalanceLocation:      balanceLocation,
	}, nil
}

// DiscoverParticipants extends the cached participant set with every account
// that sent or received tokens since the last scanned block, up to the tip.
// The updated cache is saved before returning.
func (r *Runner) DiscoverParticipants(ctx context.Context) ([]common.Address, error) {
	cached, err := r.store.LoadAddressSet()
	if err != nil {
		return nil, fmt.Errorf("failed to load address set: %w", err)
	}

	known := make(map[common.Address]struct{})
	fromBlock := r.config.StartBlock
	if cached != nil {
		for _, addr := range cached.Addresses {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("cached address set contains invalid address %q", addr)
			}
			known[common.HexToAddress(addr)] = struct{}{}
		}
		fromBlock = cached.Latest + 1
	}

	tip, _, err := r.caller.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}

	latest := tip
	if fromBlock <= tip {
		found, err := r.caller.GetTransferParticipants(ctx, fromBlock, tip)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer participants: %w", err)
		}
		for _, account := range found {
			known[account] = struct{}{}
		}
		r.logger.Sugar().Infow("Scanned transfer participants",
			"fromBlock", fromBlock,
			"toBlock", tip,
			"found", len(found),
			"known", len(known),
		)
	} else if cached != nil {
		latest = cached.Latest
	}

	accounts := allocation.SortAddresses(known)

	keys := util.Map(accounts, func(account common.Address, _ uint64) string {
		return distribution.AddressKey(account)
	})
	if err := r.store.SaveAddressSet(&types.AddressSet{Addresses: keys, Latest: latest}); err != nil {
		return nil, fmt.Errorf("failed to save address set: %w", err)
	}
	return accounts, nil
}

// unpublish withdraws artifacts of a failed run. It keeps going past errors
// and runs even when ctx is already cancelled.
func (r *Runner) unpublish(ctx context.Context, sugar *zap.SugaredLogger, names ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, name := range names {
		if err := r.publisher.Remove(ctx, name); err != nil {
			sugar.Errorw("Failed to withdraw artifact of failed run", "name", name, "error", err)
		}
	}
}
