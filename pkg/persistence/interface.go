package persistence

import "github.com/Layr-Labs/merkle-distributor-go/pkg/types"

// IDistributorPersistence stores what a distributor needs across runs.
// All implementations must be thread-safe.
//
// The interface supports:
// - The cache of discovered token participants and the last scanned block
// - Distribution artifacts and balance reports keyed by snapshot block
// - Distributor operational state (last run)
// - Lifecycle management (close, health check)
type IDistributorPersistence interface {
	// Address Discovery

	// SaveAddressSet overwrites the participant cache.
	SaveAddressSet(set *types.AddressSet) error

	// LoadAddressSet returns the participant cache.
	// Returns nil if nothing has been cached yet (first run), error only on storage failure.
	LoadAddressSet() (*types.AddressSet, error)

	// Distributions

	// LoadDistribution retrieves the distribution for a snapshot block.
	// Returns nil if none exists, error only on storage failure.
	LoadDistribution(blockHeight uint64) (*types.Distribution, error)

	// ListDistributionBlocks returns the snapshot blocks of all stored distributions, ascending.
	ListDistributionBlocks() ([]uint64, error)

	// LoadBalanceReport returns nil if no report exists for the block.
	LoadBalanceReport(blockHeight uint64) (types.BalanceReport, error)

	// SaveDistributionRun stores the distribution, its balance report and the
	// distributor state of a completed run atomically: either all three are
	// written or none are. A distribution already stored for the same block is
	// overwritten.
	SaveDistributionRun(dist *types.Distribution, report types.BalanceReport, state *DistributorState) error

	// Distributor State

	// LoadDistributorState returns nil state if none exists (first run).
	LoadDistributorState() (*DistributorState, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
