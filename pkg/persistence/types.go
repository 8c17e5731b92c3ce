package persistence

// DistributorState records the last successful distribution run.
type DistributorState struct {
	// LastRunId identifies the run in logs
	LastRunId string `json:"lastRunId"`

	// LastSnapshotBlock is the block height of the last published distribution
	LastSnapshotBlock uint64 `json:"lastSnapshotBlock"`

	// LastSnapshotTime is the unix timestamp the snapshot block was located for
	LastSnapshotTime int64 `json:"lastSnapshotTime"`

	// LastMerkleRoot is the root of the last published distribution
	LastMerkleRoot string `json:"lastMerkleRoot"`

	// LastRunAt is the unix timestamp when the last run completed
	LastRunAt int64 `json:"lastRunAt"`
}
