// Package genstore keeps per-key invalidation generations for records that
// live outside the query table (see querycache's offload tier). A record
// written under generation g is valid only while the key's generation is
// still g.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes generations not bumped within retention.
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
