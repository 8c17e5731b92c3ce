package redis

import (
	"os"
	"testing"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/persistenceTest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ persistence.IDistributorPersistence = (*RedisPersistence)(nil)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// newTestRedis connects with a unique key prefix so every test starts empty.
// The test is skipped when no Redis server is reachable.
func newTestRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // dedicated test database
		KeyPrefix: "test:" + uuid.NewString() + ":",
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
	}
	return rp
}

func TestRedisPersistence(t *testing.T) {
	persistenceTest.RunPersistenceSuite(t, func(t *testing.T) persistence.IDistributorPersistence {
		return newTestRedis(t)
	})
}

func TestRedisPersistence_KeyPrefixIsolation(t *testing.T) {
	a := newTestRedis(t)
	defer func() { _ = a.Close() }()
	b := newTestRedis(t)
	defer func() { _ = b.Close() }()

	require.NoError(t, a.SaveDistributionRun(persistenceTest.SampleRun(5)))

	blocks, err := b.ListDistributionBlocks()
	require.NoError(t, err)
	assert.Empty(t, blocks)

	dist, err := b.LoadDistribution(5)
	require.NoError(t, err)
	assert.Nil(t, dist)
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address cannot be empty")
}
