package blockLocator

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// Default bounds on seconds-per-block, used only to seed the search bracket
const (
	DefaultMinBlockTime uint64 = 11
	DefaultMaxBlockTime uint64 = 15
)

// ITimestampSource resolves the timestamp of a block by index.
// Timestamps must be monotonically non-decreasing in the block index.
type ITimestampSource interface {
	BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error)
}

// ITipSource reports the current chain tip and its timestamp
type ITipSource interface {
	LatestBlock(ctx context.Context) (number uint64, timestamp uint64, err error)
}

// Bracket is an inclusive range of block indices to search.
// High may be below Low, in which case the bracket is empty.
type Bracket struct {
	Low  int64
	High int64
}

// FullBracket covers every block from genesis to tip
func FullBracket(tip uint64) Bracket {
	return Bracket{Low: 0, High: int64(tip)}
}

// SeedBracket estimates a search bracket for target from the tip using a
// conservative range of block times. The slow bound gives the upper index and
// the fast bound the lower one. The result is clamped to [0, tip].
func SeedBracket(tip, tipTimestamp, target, minBlockTime, maxBlockTime uint64) Bracket {
	if minBlockTime == 0 {
		minBlockTime = DefaultMinBlockTime
	}
	if maxBlockTime == 0 {
		maxBlockTime = DefaultMaxBlockTime
	}
	if target >= tipTimestamp {
		return Bracket{Low: int64(tip), High: int64(tip)}
	}

	elapsed := tipTimestamp - target
	high := int64(tip) - int64(elapsed/maxBlockTime)
	low := int64(tip) - int64(elapsed/minBlockTime)

	if low < 0 {
		low = 0
	}
	if high < 0 {
		high = 0
	}
	return Bracket{Low: low, High: high}
}

// Locate returns the smallest block b within bracket such that
// timestamp(b) >= target and timestamp(b-1) < target.
//
// A target earlier than the genesis timestamp is outside the chain and fails
// with types.ErrNotFound, as does any bracket that does not contain the answer.
func Locate(ctx context.Context, src ITimestampSource, target uint64, bracket Bracket) (uint64, error) {
	low, high := bracket.Low, bracket.High
	if low < 0 {
		low = 0
	}

	for low <= high {
		middle := low + (high-low)/2

		ts, err := src.BlockTimestamp(ctx, uint64(middle))
		if err != nil {
			return 0, fmt.Errorf("failed to get timestamp for block %d: %w", middle, err)
		}

		if ts < target {
			low = middle + 1
			continue
		}

		if middle == 0 {
			// nothing precedes genesis, so it only matches an exact timestamp
			if ts == target {
				return 0, nil
			}
			high = middle - 1
			continue
		}

		prev, err := src.BlockTimestamp(ctx, uint64(middle-1))
		if err != nil {
			return 0, fmt.Errorf("failed to get timestamp for block %d: %w", middle-1, err)
		}
		if prev < target {
			return uint64(middle), nil
		}
		high = middle - 1
	}

	return 0, fmt.Errorf("%w: timestamp %d in bracket [%d, %d]", types.ErrNotFound, target, bracket.Low, bracket.High)
}

// SliceTimestampSource serves timestamps from memory; index i is block i.
type SliceTimestampSource []uint64

func (s SliceTimestampSource) BlockTimestamp(_ context.Context, blockNumber uint64) (uint64, error) {
	if blockNumber >= uint64(len(s)) {
		return 0, fmt.Errorf("block %d beyond tip %d", blockNumber, len(s)-1)
	}
	return s[blockNumber], nil
}

func (s SliceTimestampSource) LatestBlock(_ context.Context) (uint64, uint64, error) {
	if len(s) == 0 {
		return 0, 0, fmt.Errorf("no blocks: %w", types.ErrEmptyInput)
	}
	return uint64(len(s) - 1), s[len(s)-1], nil
}
