package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyAddressSet         = "distributor:addresses"
	keyPrefixDistribution = "distributor:distribution:"
	keyPrefixBalances     = "distributor:balances:"
	keyDistributorState   = "distributor:state:main"
	keySchemaVersion      = "distributor:metadata:schema_version"
	currentSchemaVersion  = "v1"

	// Redis has no native prefix iteration, so distributions are indexed in a sorted set
	keyIndexDistributions = "distributor:distributions:index"

	operationTimeout = 10 * time.Second
)

// RedisPersistence stores distributor state in Redis for deployments that share it
// between hosts.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "mainnet:" gives "mainnet:distributor:state:main"
	KeyPrefix string
}

// NewRedisPersistence connects to Redis and validates the schema version.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) blockKey(prefix string, blockHeight uint64) string {
	return r.prefixKey(prefix + strconv.FormatUint(blockHeight, 10))
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

func (r *RedisPersistence) checkOpen() error {
	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}

// get returns nil data when the key does not exist
func (r *RedisPersistence) get(key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisPersistence) set(key string, data []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (r *RedisPersistence) SaveAddressSet(set *types.AddressSet) error {
	data, err := persistence.MarshalAddressSet(set)
	if err != nil {
		return err
	}
	return r.set(r.prefixKey(keyAddressSet), data)
}

func (r *RedisPersistence) LoadAddressSet() (*types.AddressSet, error) {
	data, err := r.get(r.prefixKey(keyAddressSet))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalAddressSet(data)
}

func (r *RedisPersistence) LoadDistribution(blockHeight uint64) (*types.Distribution, error) {
	data, err := r.get(r.blockKey(keyPrefixDistribution, blockHeight))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalDistribution(data)
}

func (r *RedisPersistence) ListDistributionBlocks() ([]uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	members, err := r.client.ZRange(ctx, r.prefixKey(keyIndexDistributions), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}

	blocks := make([]uint64, 0, len(members))
	for _, member := range members {
		block, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			r.logger.Sugar().Warnw("Skipping malformed distribution index entry", "member", member, "error", err)
			continue
		}
		blocks = append(blocks, block)
	}
	// float scores lose precision above 2^53; sort on the parsed values
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i] < blocks[j]
	})
	return blocks, nil
}

func (r *RedisPersistence) LoadBalanceReport(blockHeight uint64) (types.BalanceReport, error) {
	data, err := r.get(r.blockKey(keyPrefixBalances, blockHeight))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalBalanceReport(data)
}

// SaveDistributionRun writes the distribution, its index entry, the report and
// the state in one MULTI/EXEC transaction
func (r *RedisPersistence) SaveDistributionRun(dist *types.Distribution, report types.BalanceReport, state *persistence.DistributorState) error {
	distData, err := persistence.MarshalDistribution(dist)
	if err != nil {
		return err
	}
	reportData, err := persistence.MarshalBalanceReport(report)
	if err != nil {
		return err
	}
	stateData, err := persistence.MarshalDistributorState(state)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.blockKey(keyPrefixDistribution, dist.BlockHeight), distData, 0)
	pipe.ZAdd(ctx, r.prefixKey(keyIndexDistributions), redis.Z{
		Score:  float64(dist.BlockHeight),
		Member: strconv.FormatUint(dist.BlockHeight, 10),
	})
	pipe.Set(ctx, r.blockKey(keyPrefixBalances, dist.BlockHeight), reportData, 0)
	pipe.Set(ctx, r.prefixKey(keyDistributorState), stateData, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save distribution run for block %d: %w", dist.BlockHeight, err)
	}
	return nil
}

func (r *RedisPersistence) LoadDistributorState() (*persistence.DistributorState, error) {
	data, err := r.get(r.prefixKey(keyDistributorState))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalDistributorState(data)
}

// Close shuts down the persistence layer. Idempotent.
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck pings Redis and checks the schema version key
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
