package main

import (
	"fmt"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/config"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// withStore opens the persistence backend named by the store flags, runs fn and closes it
func withStore(c *cli.Context, fn func(store persistence.IDistributorPersistence) error) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := config.NewDefaultDistributorConfig()
	cfg.ChainID = config.ChainId(c.Uint64("chain-id"))
	chainName, ok := config.ChainIdToName[cfg.ChainID]
	if !ok {
		return fmt.Errorf("unsupported chain ID %d. Supported: %s", cfg.ChainID, config.GetSupportedChainIDsString())
	}
	cfg.ChainName = chainName
	cfg.Persistence = persistenceConfigFromFlags(c)
	if errs := cfg.Persistence.Validate(field.NewPath("persistence")); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errs.ToAggregate())
	}

	store, err := newPersistence(cfg, l)
	if err != nil {
		return err
	}
	defer closeStore(store, l)

	return fn(store)
}

func closeStore(store persistence.IDistributorPersistence, l *zap.Logger) {
	if err := store.Close(); err != nil {
		l.Sugar().Warnw("Failed to close persistence", "error", err)
	}
}

// loadDistribution reads the distribution named by --distribution or --block
func loadDistribution(c *cli.Context) (*types.Distribution, error) {
	fromFile, fromStore := c.IsSet("distribution"), c.IsSet("block")
	switch {
	case fromFile && fromStore:
		return nil, fmt.Errorf("--distribution and --block are mutually exclusive")
	case fromFile:
		return readDistribution(c.String("distribution"))
	case !fromStore:
		return nil, fmt.Errorf("either --distribution or --block is required")
	}

	block := c.Uint64("block")
	var dist *types.Distribution
	err := withStore(c, func(store persistence.IDistributorPersistence) error {
		stored, err := store.LoadDistribution(block)
		if err != nil {
			return fmt.Errorf("failed to load distribution for block %d: %w", block, err)
		}
		if stored == nil {
			return fmt.Errorf("no distribution recorded for block %d", block)
		}
		dist = stored
		return nil
	})
	return dist, err
}

// listDistributionsCommand handles the distributions subcommand
func listDistributionsCommand(c *cli.Context) error {
	return withStore(c, func(store persistence.IDistributorPersistence) error {
		blocks, err := store.ListDistributionBlocks()
		if err != nil {
			return fmt.Errorf("failed to list distributions: %w", err)
		}
		if len(blocks) == 0 {
			_, err := fmt.Fprintln(c.App.Writer, "No distributions recorded")
			return err
		}

		state, err := store.LoadDistributorState()
		if err != nil {
			return fmt.Errorf("failed to load distributor state: %w", err)
		}

		for _, block := range blocks {
			dist, err := store.LoadDistribution(block)
			if err != nil {
				return fmt.Errorf("failed to load distribution for block %d: %w", block, err)
			}
			if dist == nil {
				continue
			}
			marker := ""
			if state != nil && state.LastSnapshotBlock == block {
				marker = " (latest)"
			}
			_, _ = fmt.Fprintf(c.App.Writer, "%d\t%s\t%d claims\t%s%s\n",
				block, dist.MerkleRoot, len(dist.Claims), dist.TokenTotal, marker)
		}
		return nil
	})
}

// balancesCommand handles the balances subcommand
func balancesCommand(c *cli.Context) error {
	block := c.Uint64("block")
	return withStore(c, func(store persistence.IDistributorPersistence) error {
		report, err := store.LoadBalanceReport(block)
		if err != nil {
			return fmt.Errorf("failed to load balance report for block %d: %w", block, err)
		}
		if report == nil {
			return fmt.Errorf("no balance report recorded for block %d", block)
		}
		out, err := distribution.MarshalBalanceReport(report)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.App.Writer, string(out))
		return err
	})
}
