// Package provider defines the in-process byte store behind querycache's
// offload tier.
//
// Implementations must be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set. The "q:<ns>:" keyspace is owned by
// querycache; foreign values there are treated as corrupt records and deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. cost may be ignored.
	// ok=false means the store refused the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key; deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
