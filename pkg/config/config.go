package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for distributor configuration
const (
	EnvDistributorChainID            = "DISTRIBUTOR_CHAIN_ID"
	EnvDistributorRPCURL             = "DISTRIBUTOR_RPC_URL"
	EnvDistributorTokenAddress       = "DISTRIBUTOR_TOKEN_ADDRESS"
	EnvDistributorStakingAddress     = "DISTRIBUTOR_STAKING_ADDRESS"
	EnvDistributorMulticallAddress   = "DISTRIBUTOR_MULTICALL_ADDRESS"
	EnvDistributorStartBlock         = "DISTRIBUTOR_START_BLOCK"
	EnvDistributorTotal              = "DISTRIBUTOR_TOTAL"
	EnvDistributorSnapshotTime       = "DISTRIBUTOR_SNAPSHOT_TIME"
	EnvDistributorMulticallBatchSize = "DISTRIBUTOR_MULTICALL_BATCH_SIZE"
	EnvDistributorLogWindowSize      = "DISTRIBUTOR_LOG_WINDOW_SIZE"
	EnvDistributorRequestsPerSecond  = "DISTRIBUTOR_REQUESTS_PER_SECOND"
	EnvDistributorPersistenceType    = "DISTRIBUTOR_PERSISTENCE_TYPE"
	EnvDistributorDataPath           = "DISTRIBUTOR_DATA_PATH"
	EnvDistributorRedisAddress       = "DISTRIBUTOR_REDIS_ADDRESS"
	EnvDistributorRedisPassword      = "DISTRIBUTOR_REDIS_PASSWORD"
	EnvDistributorRedisDB            = "DISTRIBUTOR_REDIS_DB"
	EnvDistributorPublisherType      = "DISTRIBUTOR_PUBLISHER_TYPE"
	EnvDistributorOutputDir          = "DISTRIBUTOR_OUTPUT_DIR"
	EnvDistributorS3Bucket           = "DISTRIBUTOR_S3_BUCKET"
	EnvDistributorS3Prefix           = "DISTRIBUTOR_S3_PREFIX"
	EnvDistributorS3Region           = "DISTRIBUTOR_S3_REGION"
	EnvDistributorVerbose            = "DISTRIBUTOR_VERBOSE"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// Block time bounds used to seed the snapshot block search
const (
	DefaultMinBlockTime = 11
	DefaultMaxBlockTime = 15
)

const (
	DefaultMulticallBatchSize = 1000
	DefaultLogWindowSize      = 10000
	DefaultRequestsPerSecond  = 10
	DefaultSnapshotPeriod     = 7 * 24 * time.Hour
)

// DefaultTotalDistribution is the weekly amount: 250,000,000 tokens (18 decimals)
// spread over 104 weeks.
func DefaultTotalDistribution() *big.Int {
	total := new(big.Int).Mul(big.NewInt(250_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return total.Quo(total, big.NewInt(104))
}

type PersistenceType string

const (
	PersistenceType_Memory PersistenceType = "memory"
	PersistenceType_Badger PersistenceType = "badger"
	PersistenceType_Redis  PersistenceType = "redis"
)

type PublisherType string

const (
	PublisherType_Local PublisherType = "local"
	PublisherType_S3    PublisherType = "s3"
)

type DistributionContractAddresses struct {
	Token     string
	Staking   string
	Multicall string
	// StartBlock is the token deployment block, where participant discovery begins
	StartBlock uint64
}

var (
	ethereumMainnetContracts = &DistributionContractAddresses{
		Token:      "0x6DEA81C8171D0bA574754EF6F8b412F2Ed88c54D",
		Staking:    "0x4f9Fbb3f1E99B56e0Fe2892e623Ed36A76Fc605d",
		Multicall:  "0x5e227AD1969Ea493B43F840cfF78d08a6fc17796",
		StartBlock: 12178618,
	}

	DistributionContracts = map[ChainId]*DistributionContractAddresses{
		ChainId_EthereumMainnet: ethereumMainnetContracts,
		ChainId_EthereumAnvil:   ethereumMainnetContracts, // fork of ethereum mainnet
	}
)

func GetDistributionContractsForChainId(chainId ChainId) (*DistributionContractAddresses, error) {
	contracts, ok := DistributionContracts[chainId]
	if !ok {
		return nil, fmt.Errorf("no distribution contracts known for chain ID: %d", chainId)
	}
	return contracts, nil
}

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumSepolia,
		ChainId_EthereumAnvil,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumAnvil)
}

type PersistenceConfig struct {
	Type PersistenceType `json:"type"`

	// DataPath is the badger directory
	DataPath string `json:"dataPath"`

	RedisAddress  string `json:"redisAddress"`
	RedisPassword string `json:"redisPassword"`
	RedisDB       int    `json:"redisDB"`
}

func (pc *PersistenceConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch pc.Type {
	case PersistenceType_Memory:
	case PersistenceType_Badger:
		if pc.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceType_Redis:
		if pc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redisAddress is required for redis persistence"))
		}
		if pc.RedisDB < 0 || pc.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDB"), pc.RedisDB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type,
			[]string{string(PersistenceType_Memory), string(PersistenceType_Badger), string(PersistenceType_Redis)}))
	}
	return allErrors
}

type PublisherConfig struct {
	Type PublisherType `json:"type"`

	OutputDir string `json:"outputDir"`

	S3Bucket string `json:"s3Bucket"`
	S3Prefix string `json:"s3Prefix"`
	S3Region string `json:"s3Region"`
}

func (pc *PublisherConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch pc.Type {
	case PublisherType_Local:
		if pc.OutputDir == "" {
			allErrors = append(allErrors, field.Required(path.Child("outputDir"), "outputDir is required for local publishing"))
		}
	case PublisherType_S3:
		if pc.S3Bucket == "" {
			allErrors = append(allErrors, field.Required(path.Child("s3Bucket"), "s3Bucket is required for s3 publishing"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type,
			[]string{string(PublisherType_Local), string(PublisherType_S3)}))
	}
	return allErrors
}

// DistributorConfig represents the complete configuration for a distribution run
type DistributorConfig struct {
	// Chain configuration
	ChainID   ChainId   `json:"chain_id"`
	ChainName ChainName `json:"chain_name"`
	RpcUrl    string    `json:"rpc_url"`

	// Contract addresses; empty values are filled from the chain defaults
	TokenAddress     string `json:"token_address"`
	StakingAddress   string `json:"staking_address"`
	MulticallAddress string `json:"multicall_address"`
	StartBlock       uint64 `json:"start_block"`

	// TotalDistribution is the decimal amount of token base units to split per run
	TotalDistribution string `json:"total_distribution"`

	// SnapshotTime is a unix timestamp; zero means the most recent weekly boundary
	SnapshotTime   int64         `json:"snapshot_time"`
	SnapshotPeriod time.Duration `json:"snapshot_period"`

	MinBlockTime uint64 `json:"min_block_time"`
	MaxBlockTime uint64 `json:"max_block_time"`

	MulticallBatchSize uint64  `json:"multicall_batch_size"`
	LogWindowSize      uint64  `json:"log_window_size"`
	RequestsPerSecond  float64 `json:"requests_per_second"`

	Persistence PersistenceConfig `json:"persistence"`
	Publisher   PublisherConfig   `json:"publisher"`

	Debug bool `json:"debug"`
}

// NewDefaultDistributorConfig returns a mainnet configuration with in-memory persistence
// and local publishing into the working directory.
func NewDefaultDistributorConfig() *DistributorConfig {
	return &DistributorConfig{
		ChainID:            ChainId_EthereumMainnet,
		RpcUrl:             "http://localhost:8545",
		TotalDistribution:  DefaultTotalDistribution().String(),
		SnapshotPeriod:     DefaultSnapshotPeriod,
		MinBlockTime:       DefaultMinBlockTime,
		MaxBlockTime:       DefaultMaxBlockTime,
		MulticallBatchSize: DefaultMulticallBatchSize,
		LogWindowSize:      DefaultLogWindowSize,
		RequestsPerSecond:  DefaultRequestsPerSecond,
		Persistence: PersistenceConfig{
			Type: PersistenceType_Memory,
		},
		Publisher: PublisherConfig{
			Type:      PublisherType_Local,
			OutputDir: ".",
		},
	}
}

// Validate checks the configuration and fills in the chain name and any contract
// addresses left empty from the chain defaults.
func (c *DistributorConfig) Validate() error {
	var allErrors field.ErrorList

	chainName, exists := ChainIdToName[c.ChainID]
	if !exists {
		allErrors = append(allErrors, field.Invalid(field.NewPath("chainId"), c.ChainID,
			fmt.Sprintf("unsupported chain ID. Supported: %s", GetSupportedChainIDsString())))
	} else {
		c.ChainName = chainName
	}

	if c.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("rpcUrl"), "rpcUrl is required"))
	}

	if defaults, err := GetDistributionContractsForChainId(c.ChainID); err == nil {
		if c.TokenAddress == "" {
			c.TokenAddress = defaults.Token
		}
		if c.StakingAddress == "" {
			c.StakingAddress = defaults.Staking
		}
		if c.MulticallAddress == "" {
			c.MulticallAddress = defaults.Multicall
		}
		if c.StartBlock == 0 {
			c.StartBlock = defaults.StartBlock
		}
	}
	allErrors = append(allErrors, validateAddress(field.NewPath("tokenAddress"), c.TokenAddress)...)
	allErrors = append(allErrors, validateAddress(field.NewPath("stakingAddress"), c.StakingAddress)...)
	allErrors = append(allErrors, validateAddress(field.NewPath("multicallAddress"), c.MulticallAddress)...)

	if _, err := c.GetTotalDistribution(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("totalDistribution"), c.TotalDistribution, err.Error()))
	}

	if c.SnapshotTime < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("snapshotTime"), c.SnapshotTime, "must not be negative"))
	}
	if c.SnapshotPeriod < time.Second {
		allErrors = append(allErrors, field.Invalid(field.NewPath("snapshotPeriod"), c.SnapshotPeriod.String(), "must be at least one second"))
	}

	if c.MinBlockTime == 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("minBlockTime"), c.MinBlockTime, "must be greater than zero"))
	}
	if c.MaxBlockTime < c.MinBlockTime {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxBlockTime"), c.MaxBlockTime, "must not be less than minBlockTime"))
	}
	if c.MulticallBatchSize == 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("multicallBatchSize"), c.MulticallBatchSize, "must be greater than zero"))
	}
	if c.LogWindowSize == 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("logWindowSize"), c.LogWindowSize, "must be greater than zero"))
	}
	if c.RequestsPerSecond <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("requestsPerSecond"), c.RequestsPerSecond, "must be greater than zero"))
	}

	allErrors = append(allErrors, c.Persistence.Validate(field.NewPath("persistence"))...)
	allErrors = append(allErrors, c.Publisher.Validate(field.NewPath("publisher"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// GetTotalDistribution parses TotalDistribution as a non-negative decimal integer
func (c *DistributorConfig) GetTotalDistribution() (*big.Int, error) {
	raw := strings.TrimSpace(c.TotalDistribution)
	if raw == "" {
		return nil, fmt.Errorf("total distribution cannot be empty")
	}
	total, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("total distribution %q is not a decimal integer", c.TotalDistribution)
	}
	if total.Sign() < 0 {
		return nil, fmt.Errorf("total distribution cannot be negative")
	}
	return total, nil
}

func validateAddress(path *field.Path, address string) field.ErrorList {
	if address == "" {
		return field.ErrorList{field.Required(path, "address is required for this chain")}
	}
	if !common.IsHexAddress(address) {
		return field.ErrorList{field.Invalid(path, address, "invalid address format")}
	}
	return nil
}
