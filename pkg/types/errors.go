package types

import "errors"

var (
	// ErrNotFound is returned when no block satisfies the timestamp condition
	// within the searched bracket.
	ErrNotFound = errors.New("block not found for timestamp")

	// ErrEmptyInput is returned when there is nothing to allocate or hash.
	ErrEmptyInput = errors.New("empty input")

	// ErrLeafNotFound is returned when a proof is requested for a leaf that is not in the tree.
	ErrLeafNotFound = errors.New("leaf not found in merkle tree")

	// ErrInvariantViolation marks a failed post-condition. It is never recoverable and
	// must abort the distribution run.
	ErrInvariantViolation = errors.New("invariant violation")
)
