package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "distributor",
		Usage: "Merkle airdrop distributor",
		Description: `Computes a verifiable Merkle distribution of a fixed token amount across
token holders and stakers, proportional to their balances at a snapshot block.

Every claim carries the proof a claimant submits on-chain against the published root.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvDistributorVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Snapshot balances on-chain, build the distribution and publish it",
				Flags:  append(chainFlags(), runFlags()...),
				Action: runCommand,
			},
			{
				Name:  "locate-block",
				Usage: "Print the first block produced at or after a unix timestamp",
				Flags: append(chainFlags(), &cli.Int64Flag{
					Name:     "timestamp",
					Aliases:  []string{"t"},
					Usage:    "Unix timestamp in seconds",
					Required: true,
				}),
				Action: locateBlockCommand,
			},
			{
				Name:  "build",
				Usage: "Build a distribution offline from a JSON balance file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "balances",
						Usage:    `JSON file of {"0xaddress": balance}`,
						Required: true,
					},
					&cli.StringFlag{
						Name:    "total",
						Usage:   "Token base units to distribute",
						Value:   config.DefaultTotalDistribution().String(),
						EnvVars: []string{config.EnvDistributorTotal},
					},
					&cli.Uint64Flag{
						Name:     "block",
						Usage:    "Snapshot block height recorded in the artifact",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the distribution to this file instead of stdout",
					},
				},
				Action: buildCommand,
			},
			{
				Name:  "proof",
				Usage: "Print the claim and proof for an address",
				Flags: append(distributionSourceFlags(), &cli.StringFlag{
					Name:     "address",
					Usage:    "Claimant address",
					Required: true,
				}),
				Action: proofCommand,
			},
			{
				Name:   "verify",
				Usage:  "Check every claim of a distribution against its merkle root",
				Flags:  distributionSourceFlags(),
				Action: verifyCommand,
			},
			{
				Name:   "distributions",
				Usage:  "List the distributions recorded by previous runs",
				Flags:  storeFlags(),
				Action: listDistributionsCommand,
			},
			{
				Name:  "balances",
				Usage: "Print the balance report recorded for a snapshot block",
				Flags: append(storeFlags(), &cli.Uint64Flag{
					Name:     "block",
					Usage:    "Snapshot block height",
					Required: true,
				}),
				Action: balancesCommand,
			},
		},
	}
}

func chainFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"chain"},
			Usage:   fmt.Sprintf("Ethereum chain ID: %s", config.GetSupportedChainIDsString()),
			Value:   uint64(config.ChainId_EthereumMainnet),
			EnvVars: []string{config.EnvDistributorChainID},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"rpc"},
			Usage:   "Ethereum RPC endpoint URL",
			Value:   "http://localhost:8545",
			EnvVars: []string{config.EnvDistributorRPCURL},
		},
		&cli.StringFlag{
			Name:    "token-address",
			Usage:   "ERC20 token contract (defaults per chain)",
			EnvVars: []string{config.EnvDistributorTokenAddress},
		},
		&cli.StringFlag{
			Name:    "staking-address",
			Usage:   "Staking contract (defaults per chain)",
			EnvVars: []string{config.EnvDistributorStakingAddress},
		},
		&cli.StringFlag{
			Name:    "multicall-address",
			Usage:   "Multicall contract (defaults per chain)",
			EnvVars: []string{config.EnvDistributorMulticallAddress},
		},
		&cli.Uint64Flag{
			Name:    "multicall-batch-size",
			Usage:   "Balance reads per multicall",
			Value:   config.DefaultMulticallBatchSize,
			EnvVars: []string{config.EnvDistributorMulticallBatchSize},
		},
		&cli.Uint64Flag{
			Name:    "log-window-size",
			Usage:   "Blocks per transfer log query",
			Value:   config.DefaultLogWindowSize,
			EnvVars: []string{config.EnvDistributorLogWindowSize},
		},
		&cli.Float64Flag{
			Name:    "requests-per-second",
			Usage:   "RPC request rate limit",
			Value:   config.DefaultRequestsPerSecond,
			EnvVars: []string{config.EnvDistributorRequestsPerSecond},
		},
	}
}

// persistenceFlags select and address the persistence backend
func persistenceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "persistence-type",
			Usage:   "Persistence backend: memory, badger or redis",
			Value:   string(config.PersistenceType_Badger),
			EnvVars: []string{config.EnvDistributorPersistenceType},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Badger data directory",
			Value:   "./data",
			EnvVars: []string{config.EnvDistributorDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis server address (host:port)",
			EnvVars: []string{config.EnvDistributorRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvDistributorRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvDistributorRedisDB},
		},
	}
}

// storeFlags locate what earlier runs persisted; the chain scopes redis keys
func storeFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"chain"},
			Usage:   fmt.Sprintf("Ethereum chain ID: %s", config.GetSupportedChainIDsString()),
			Value:   uint64(config.ChainId_EthereumMainnet),
			EnvVars: []string{config.EnvDistributorChainID},
		},
	}, persistenceFlags()...)
}

// distributionSourceFlags read a distribution from a file or from persistence by block
func distributionSourceFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:  "distribution",
			Usage: "Distribution JSON file",
		},
		&cli.Uint64Flag{
			Name:  "block",
			Usage: "Load the distribution stored for this snapshot block instead of a file",
		},
	}, storeFlags()...)
}

func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.Uint64Flag{
			Name:    "start-block",
			Usage:   "First block scanned for token participants (defaults per chain)",
			EnvVars: []string{config.EnvDistributorStartBlock},
		},
		&cli.StringFlag{
			Name:    "total",
			Usage:   "Token base units to distribute",
			Value:   config.DefaultTotalDistribution().String(),
			EnvVars: []string{config.EnvDistributorTotal},
		},
		&cli.Int64Flag{
			Name:    "snapshot-time",
			Usage:   "Unix timestamp of the snapshot (default: start of the current week)",
			EnvVars: []string{config.EnvDistributorSnapshotTime},
		},
		&cli.StringFlag{
			Name:    "publisher-type",
			Usage:   "Where artifacts are published: local or s3",
			Value:   string(config.PublisherType_Local),
			EnvVars: []string{config.EnvDistributorPublisherType},
		},
		&cli.StringFlag{
			Name:    "output-dir",
			Usage:   "Directory for local artifacts",
			Value:   ".",
			EnvVars: []string{config.EnvDistributorOutputDir},
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			Usage:   "S3 bucket for artifacts",
			EnvVars: []string{config.EnvDistributorS3Bucket},
		},
		&cli.StringFlag{
			Name:    "s3-prefix",
			Usage:   "Key prefix for artifacts in the bucket",
			EnvVars: []string{config.EnvDistributorS3Prefix},
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "AWS region override for the bucket",
			EnvVars: []string{config.EnvDistributorS3Region},
		},
	}
	return append(flags, persistenceFlags()...)
}
