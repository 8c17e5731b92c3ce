package badger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/persistenceTest"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ persistence.IDistributorPersistence = (*BadgerPersistence)(nil)

func TestBadgerPersistence(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	persistenceTest.RunPersistenceSuite(t, func(t *testing.T) persistence.IDistributorPersistence {
		bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
		require.NoError(t, err)
		return bp
	})
}

func TestBadgerPersistence_SurvivesRestart(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp1, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	require.NoError(t, bp1.SaveAddressSet(&types.AddressSet{
		Addresses: []string{"0x000000000000000000000000000000000000000a"},
		Latest:    99,
	}))
	require.NoError(t, bp1.SaveDistributionRun(persistenceTest.SampleRun(12345)))
	require.NoError(t, bp1.Close())

	bp2, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp2.Close() }()

	set, err := bp2.LoadAddressSet()
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, uint64(99), set.Latest)

	dist, err := bp2.LoadDistribution(12345)
	require.NoError(t, err)
	assert.Equal(t, persistenceTest.SampleDistribution(12345), dist)

	state, err := bp2.LoadDistributorState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, uint64(12345), state.LastSnapshotBlock)
}

func TestBadgerPersistence_ListOrderAcrossDigits(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	for _, block := range []uint64{1000, 9, 100, 12178618} {
		require.NoError(t, bp.SaveDistributionRun(persistenceTest.SampleRun(block)))
	}
	blocks, err := bp.ListDistributionBlocks()
	require.NoError(t, err)
	assert.Equal(t, []uint64{9, 100, 1000, 12178618}, blocks)
}

func TestBadgerPersistence_SchemaMismatch(t *testing.T) {
	tmpDir := t.TempDir()

	opts := badgerdb.DefaultOptions(tmpDir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	}))
	require.NoError(t, db.Close())

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	_, err = NewBadgerPersistence(tmpDir, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestBadgerPersistence_RelativePath(t *testing.T) {
	tmpDir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, filepath.Join(tmpDir, "db"))
	require.NoError(t, err)

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	bp, err := NewBadgerPersistence(rel, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()
	require.NoError(t, bp.HealthCheck())
}
