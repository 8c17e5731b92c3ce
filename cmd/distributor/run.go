package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/blockLocator"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/config"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/contractCaller/caller"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/badger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/redis"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/publisher"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/publisher/s3Publisher"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/runner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func runCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseDistributorConfig(c)
	applyRunFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	l.Sugar().Infow("Using chain", "name", cfg.ChainName, "chain_id", cfg.ChainID)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	contractCaller, err := newContractCaller(cfg, l)
	if err != nil {
		return err
	}

	store, err := newPersistence(cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	}()
	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("persistence health check failed: %w", err)
	}

	pub, err := newPublisher(ctx, cfg, l)
	if err != nil {
		return err
	}

	total, err := cfg.GetTotalDistribution()
	if err != nil {
		return err
	}
	r, err := runner.NewRunner(contractCaller, store, pub, &runner.RunnerConfig{
		StartBlock:        cfg.StartBlock,
		TotalDistribution: total,
		SnapshotTime:      cfg.SnapshotTime,
		SnapshotPeriod:    cfg.SnapshotPeriod,
		MinBlockTime:      cfg.MinBlockTime,
		MaxBlockTime:      cfg.MaxBlockTime,
	}, l)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	result, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("distribution run failed: %w", err)
	}

	_, _ = fmt.Fprintf(c.App.Writer, "Merkle root:   %s\n", result.Distribution.MerkleRoot)
	_, _ = fmt.Fprintf(c.App.Writer, "Snapshot:      block %d (%s)\n", result.SnapshotBlock, result.SnapshotTime.Format(time.RFC3339))
	_, _ = fmt.Fprintf(c.App.Writer, "Recipients:    %d\n", result.Recipients)
	_, _ = fmt.Fprintf(c.App.Writer, "Distribution:  %s\n", result.DistributionLocation)
	_, _ = fmt.Fprintf(c.App.Writer, "Balances:      %s\n", result.BalanceLocation)
	return nil
}

func locateBlockCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	timestamp := c.Int64("timestamp")
	if timestamp < 0 {
		return fmt.Errorf("timestamp must not be negative")
	}

	cfg := parseDistributorConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	contractCaller, err := newContractCaller(cfg, l)
	if err != nil {
		return err
	}
	locator := blockLocator.NewLocator(contractCaller, &blockLocator.LocatorConfig{
		MinBlockTime: cfg.MinBlockTime,
		MaxBlockTime: cfg.MaxBlockTime,
	}, l)

	block, err := locator.FindBlock(c.Context, uint64(timestamp))
	if err != nil {
		return fmt.Errorf("failed to locate block for timestamp %d: %w", timestamp, err)
	}
	_, _ = fmt.Fprintln(c.App.Writer, block)
	return nil
}

// parseDistributorConfig overlays the chain flags onto the default configuration
func parseDistributorConfig(c *cli.Context) *config.DistributorConfig {
	cfg := config.NewDefaultDistributorConfig()
	cfg.ChainID = config.ChainId(c.Uint64("chain-id"))
	cfg.RpcUrl = c.String("rpc-url")
	cfg.TokenAddress = c.String("token-address")
	cfg.StakingAddress = c.String("staking-address")
	cfg.MulticallAddress = c.String("multicall-address")
	cfg.MulticallBatchSize = c.Uint64("multicall-batch-size")
	cfg.LogWindowSize = c.Uint64("log-window-size")
	cfg.RequestsPerSecond = c.Float64("requests-per-second")
	cfg.Debug = c.Bool("verbose")
	return cfg
}

func applyRunFlags(c *cli.Context, cfg *config.DistributorConfig) {
	cfg.StartBlock = c.Uint64("start-block")
	cfg.TotalDistribution = c.String("total")
	cfg.SnapshotTime = c.Int64("snapshot-time")
	cfg.Persistence = persistenceConfigFromFlags(c)
	cfg.Publisher = config.PublisherConfig{
		Type:      config.PublisherType(c.String("publisher-type")),
		OutputDir: c.String("output-dir"),
		S3Bucket:  c.String("s3-bucket"),
		S3Prefix:  c.String("s3-prefix"),
		S3Region:  c.String("s3-region"),
	}
}

func persistenceConfigFromFlags(c *cli.Context) config.PersistenceConfig {
	return config.PersistenceConfig{
		Type:          config.PersistenceType(c.String("persistence-type")),
		DataPath:      c.String("data-path"),
		RedisAddress:  c.String("redis-address"),
		RedisPassword: c.String("redis-password"),
		RedisDB:       c.Int("redis-db"),
	}
}

func newContractCaller(cfg *config.DistributorConfig, l *zap.Logger) (*caller.ContractCaller, error) {
	ethClient := ethereum.NewEthereumClient(&ethereum.EthereumClientConfig{
		BaseUrl:   cfg.RpcUrl,
		BlockType: ethereum.BlockType_Latest,
	}, l)

	l1Client, err := ethClient.GetEthereumContractCaller()
	if err != nil {
		return nil, fmt.Errorf("failed to get Ethereum contract caller: %w", err)
	}

	contractCaller, err := caller.NewContractCaller(l1Client, &caller.ContractCallerConfig{
		TokenAddress:       common.HexToAddress(cfg.TokenAddress),
		StakingAddress:     common.HexToAddress(cfg.StakingAddress),
		MulticallAddress:   common.HexToAddress(cfg.MulticallAddress),
		MulticallBatchSize: cfg.MulticallBatchSize,
		LogWindowSize:      cfg.LogWindowSize,
		RequestsPerSecond:  cfg.RequestsPerSecond,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create contract caller: %w", err)
	}
	return contractCaller, nil
}

func newPersistence(cfg *config.DistributorConfig, l *zap.Logger) (persistence.IDistributorPersistence, error) {
	switch cfg.Persistence.Type {
	case config.PersistenceType_Memory:
		l.Sugar().Warnw("Using in-memory persistence, participant cache will not survive restarts")
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceType_Badger:
		store, err := badger.NewBadgerPersistence(cfg.Persistence.DataPath, l)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger persistence: %w", err)
		}
		return store, nil
	case config.PersistenceType_Redis:
		store, err := redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Persistence.RedisAddress,
			Password:  cfg.Persistence.RedisPassword,
			DB:        cfg.Persistence.RedisDB,
			KeyPrefix: fmt.Sprintf("%s:", cfg.ChainName),
		}, l)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis persistence: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.Persistence.Type)
	}
}

func newPublisher(ctx context.Context, cfg *config.DistributorConfig, l *zap.Logger) (publisher.IPublisher, error) {
	switch cfg.Publisher.Type {
	case config.PublisherType_Local:
		return publisher.NewLocalPublisher(cfg.Publisher.OutputDir, l)
	case config.PublisherType_S3:
		return s3Publisher.NewS3PublisherFromEnvironment(ctx, &s3Publisher.S3PublisherConfig{
			Bucket: cfg.Publisher.S3Bucket,
			Prefix: cfg.Publisher.S3Prefix,
			Region: cfg.Publisher.S3Region,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported publisher type %q", cfg.Publisher.Type)
	}
}
