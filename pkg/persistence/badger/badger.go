package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyAddressSet         = "addresses:main"
	keyPrefixDistribution = "distribution:"
	keyPrefixBalances     = "balances:"
	keyDistributorState   = "state:main"
	keySchemaVersion      = "metadata:schema_version"
	currentSchemaVersion  = "v1"
)

// BadgerPersistence is the on-disk persistence implementation using Badger.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence opens (or creates) a Badger database at dataPath with
// SyncWrites enabled and starts a background value log GC.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// blockKey zero-pads the block so keys iterate in block order
func blockKey(prefix string, blockHeight uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, blockHeight))
}

func (b *BadgerPersistence) put(key []byte, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, data)
	})
}

// get returns nil data when the key does not exist
func (b *BadgerPersistence) get(key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", string(key), err)
	}
	return data, nil
}

func (b *BadgerPersistence) SaveAddressSet(set *types.AddressSet) error {
	data, err := persistence.MarshalAddressSet(set)
	if err != nil {
		return err
	}
	return b.put([]byte(keyAddressSet), data)
}

func (b *BadgerPersistence) LoadAddressSet() (*types.AddressSet, error) {
	data, err := b.get([]byte(keyAddressSet))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalAddressSet(data)
}

func (b *BadgerPersistence) LoadDistribution(blockHeight uint64) (*types.Distribution, error) {
	data, err := b.get(blockKey(keyPrefixDistribution, blockHeight))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalDistribution(data)
}

// ListDistributionBlocks walks the distribution keys; the padded keys are already in block order
func (b *BadgerPersistence) ListDistributionBlocks() ([]uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	blocks := make([]uint64, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixDistribution)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			block, err := strconv.ParseUint(strings.TrimPrefix(key, keyPrefixDistribution), 10, 64)
			if err != nil {
				b.logger.Sugar().Warnw("Skipping malformed distribution key", "key", key, "error", err)
				continue
			}
			blocks = append(blocks, block)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	return blocks, nil
}

func (b *BadgerPersistence) LoadBalanceReport(blockHeight uint64) (types.BalanceReport, error) {
	data, err := b.get(blockKey(keyPrefixBalances, blockHeight))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalBalanceReport(data)
}

// SaveDistributionRun writes the distribution, report and state in one transaction
func (b *BadgerPersistence) SaveDistributionRun(dist *types.Distribution, report types.BalanceReport, state *persistence.DistributorState) error {
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

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(blockKey(keyPrefixDistribution, dist.BlockHeight), distData); err != nil {
			return err
		}
		if err := txn.Set(blockKey(keyPrefixBalances, dist.BlockHeight), reportData); err != nil {
			return err
		}
		return txn.Set([]byte(keyDistributorState), stateData)
	})
	if err != nil {
		return fmt.Errorf("failed to save distribution run for block %d: %w", dist.BlockHeight, err)
	}
	return nil
}

func (b *BadgerPersistence) LoadDistributorState() (*persistence.DistributorState, error) {
	data, err := b.get([]byte(keyDistributorState))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalDistributorState(data)
}

// Close stops the GC goroutine and closes the database. Idempotent.
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
