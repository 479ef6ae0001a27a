package querycache

import "time"

const (
	defaultSweepInterval = time.Minute
	defaultNamespace     = "default"
	defaultOffloadTTL    = 10 * time.Minute
)

// NeverStale keeps a successful entry fresh until it is invalidated or overwritten.
const NeverStale = time.Duration(1<<63 - 1)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
