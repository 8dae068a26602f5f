// Package pipeline sequences normalization, dedup filtering, rule
// evaluation, rate limiting and formatting into dispatch intents for the
// delivery shell.
package pipeline

import (
	"context"

	"quakewatch/internal/dedup"
)

// DedupStore is the durable record of emitted (event, channel) pairs.
// Implementations must make Insert an atomic check-and-set so that two
// overlapping invocations never both claim the same pair.
type DedupStore interface {
	// Lookup returns the subset of keys that already have records.
	Lookup(ctx context.Context, keys []dedup.Key) ([]dedup.Key, error)

	// Insert records a key. Returns false with a nil error when the key
	// already existed; inserting an existing key is a no-op, not an error.
	Insert(ctx context.Context, rec dedup.Record) (bool, error)
}
