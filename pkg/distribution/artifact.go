package distribution

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

const (
	// DefaultSnapshotPeriod aligns snapshots to weekly boundaries of unix time
	DefaultSnapshotPeriod = 7 * 24 * time.Hour

	artifactDateLayout = "2006-01-02"
)

// SnapshotTime floors now to a multiple of period since the unix epoch
func SnapshotTime(now time.Time, period time.Duration) time.Time {
	if period <= 0 {
		period = DefaultSnapshotPeriod
	}
	seconds := int64(period / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	unix := now.Unix()
	floored := unix - unix%seconds
	if unix < 0 && unix%seconds != 0 {
		floored -= seconds
	}
	return time.Unix(floored, 0).UTC()
}

// DistributionFileName is the artifact name for the claims of a snapshot
func DistributionFileName(snapshot time.Time) string {
	return fmt.Sprintf("distribution-%s.json", snapshot.UTC().Format(artifactDateLayout))
}

// BalanceFileName is the artifact name for the balance breakdown of a snapshot
func BalanceFileName(snapshot time.Time) string {
	return fmt.Sprintf("balance-%s.json", snapshot.UTC().Format(artifactDateLayout))
}

// MarshalDistribution renders the artifact. Claims are keyed by address so the
// output is stable for a given distribution.
func MarshalDistribution(dist *types.Distribution) ([]byte, error) {
	data, err := json.MarshalIndent(dist, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal distribution: %w", err)
	}
	return data, nil
}

func UnmarshalDistribution(data []byte) (*types.Distribution, error) {
	var dist types.Distribution
	if err := json.Unmarshal(data, &dist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal distribution: %w", err)
	}
	return &dist, nil
}

func MarshalBalanceReport(report types.BalanceReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal balance report: %w", err)
	}
	return data, nil
}
