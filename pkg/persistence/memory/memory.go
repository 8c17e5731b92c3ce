package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IDistributorPersistence.
// This implementation is intended for TESTING and one-off runs.
//
// All data is stored in memory and will be lost when the process exits.
// Values are stored serialized so callers can never mutate stored state.
type MemoryPersistence struct {
	mu sync.RWMutex

	addressSet []byte

	// snapshot block -> serialized distribution
	distributions map[uint64][]byte

	// snapshot block -> serialized balance report
	balanceReports map[uint64][]byte

	state []byte

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		distributions:  make(map[uint64][]byte),
		balanceReports: make(map[uint64][]byte),
	}
}

func (m *MemoryPersistence) SaveAddressSet(set *types.AddressSet) error {
	data, err := persistence.MarshalAddressSet(set)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	m.addressSet = data
	return nil
}

func (m *MemoryPersistence) LoadAddressSet() (*types.AddressSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}
	if m.addressSet == nil {
		return nil, nil // Not found is not an error
	}
	return persistence.UnmarshalAddressSet(m.addressSet)
}

func (m *MemoryPersistence) LoadDistribution(blockHeight uint64) (*types.Distribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}
	data, exists := m.distributions[blockHeight]
	if !exists {
		return nil, nil
	}
	return persistence.UnmarshalDistribution(data)
}

func (m *MemoryPersistence) ListDistributionBlocks() ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	blocks := make([]uint64, 0, len(m.distributions))
	for block := range m.distributions {
		blocks = append(blocks, block)
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i] < blocks[j]
	})
	return blocks, nil
}

func (m *MemoryPersistence) LoadBalanceReport(blockHeight uint64) (types.BalanceReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}
	data, exists := m.balanceReports[blockHeight]
	if !exists {
		return nil, nil
	}
	return persistence.UnmarshalBalanceReport(data)
}

func (m *MemoryPersistence) SaveDistributionRun(dist *types.Distribution, report types.BalanceReport, state *persistence.DistributorState) error {
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

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	m.distributions[dist.BlockHeight] = distData
	m.balanceReports[dist.BlockHeight] = reportData
	m.state = stateData
	return nil
}

func (m *MemoryPersistence) LoadDistributorState() (*persistence.DistributorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}
	if m.state == nil {
		return nil, nil
	}
	return persistence.UnmarshalDistributorState(m.state)
}

// Close marks the persistence layer as closed. Idempotent.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}
