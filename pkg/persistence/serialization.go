package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// MarshalAddressSet serializes an AddressSet to JSON bytes.
func MarshalAddressSet(set *types.AddressSet) ([]byte, error) {
	if set == nil {
		return nil, fmt.Errorf("cannot marshal nil AddressSet")
	}

	data, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal AddressSet to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalAddressSet deserializes an AddressSet from JSON bytes.
func UnmarshalAddressSet(data []byte) (*types.AddressSet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var set types.AddressSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to AddressSet: %w", err)
	}

	return &set, nil
}

// MarshalDistribution serializes a Distribution to JSON bytes.
func MarshalDistribution(dist *types.Distribution) ([]byte, error) {
	if dist == nil {
		return nil, fmt.Errorf("cannot marshal nil Distribution")
	}

	data, err := json.Marshal(dist)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Distribution to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalDistribution deserializes a Distribution from JSON bytes.
func UnmarshalDistribution(data []byte) (*types.Distribution, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var dist types.Distribution
	if err := json.Unmarshal(data, &dist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Distribution: %w", err)
	}

	return &dist, nil
}

// MarshalBalanceReport serializes a BalanceReport to JSON bytes.
func MarshalBalanceReport(report types.BalanceReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("cannot marshal nil BalanceReport")
	}

	return json.Marshal(report)
}

// UnmarshalBalanceReport deserializes a BalanceReport from JSON bytes.
func UnmarshalBalanceReport(data []byte) (types.BalanceReport, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var report types.BalanceReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to BalanceReport: %w", err)
	}

	return report, nil
}

// MarshalDistributorState serializes DistributorState to JSON bytes.
func MarshalDistributorState(ds *DistributorState) ([]byte, error) {
	if ds == nil {
		return nil, fmt.Errorf("cannot marshal nil DistributorState")
	}

	return json.Marshal(ds)
}

// UnmarshalDistributorState deserializes DistributorState from JSON bytes.
func UnmarshalDistributorState(data []byte) (*DistributorState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var ds DistributorState
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to DistributorState: %w", err)
	}

	return &ds, nil
}
