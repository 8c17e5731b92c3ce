package blockLocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"go.uber.org/zap"
)

// IChainSource is what the Locator needs from a chain: the tip plus point lookups
type IChainSource interface {
	ITimestampSource
	ITipSource
}

type LocatorConfig struct {
	MinBlockTime uint64
	MaxBlockTime uint64
}

// Locator resolves wall-clock timestamps to block numbers against a live chain.
type Locator struct {
	source IChainSource
	config *LocatorConfig
	logger *zap.Logger
}

func NewLocator(source IChainSource, cfg *LocatorConfig, logger *zap.Logger) *Locator {
	if cfg == nil {
		cfg = &LocatorConfig{}
	}
	if cfg.MinBlockTime == 0 {
		cfg.MinBlockTime = DefaultMinBlockTime
	}
	if cfg.MaxBlockTime == 0 {
		cfg.MaxBlockTime = DefaultMaxBlockTime
	}
	return &Locator{
		source: source,
		config: cfg,
		logger: logger,
	}
}

// FindBlock returns the first block whose timestamp is >= target.
// The search starts in a bracket seeded from the tip; if the answer is not
// inside it the full chain is searched once before giving up.
func (l *Locator) FindBlock(ctx context.Context, target uint64) (uint64, error) {
	tip, tipTimestamp, err := l.source.LatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	if target > tipTimestamp {
		return 0, fmt.Errorf("%w: timestamp %d is after tip %d (timestamp %d)", types.ErrNotFound, target, tip, tipTimestamp)
	}

	bracket := SeedBracket(tip, tipTimestamp, target, l.config.MinBlockTime, l.config.MaxBlockTime)
	l.logger.Sugar().Debugw("Searching for block",
		"target", target,
		"tip", tip,
		"low", bracket.Low,
		"high", bracket.High,
	)

	block, err := Locate(ctx, l.source, target, bracket)
	if err == nil {
		return block, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return 0, err
	}

	l.logger.Sugar().Warnw("Seeded bracket missed target, searching full chain",
		"target", target,
		"low", bracket.Low,
		"high", bracket.High,
	)
	return Locate(ctx, l.source, target, FullBracket(tip))
}
