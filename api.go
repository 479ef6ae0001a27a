package querycache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/querycache/codec"
	gen "github.com/unkn0wn-root/querycache/genstore"
	pr "github.com/unkn0wn-root/querycache/provider"
)

// Producer computes the result for arg. ctx is the operation's cancellation
// scope: it is cancelled when the operation is superseded, orphaned (with
// CancelOrphans) or the cache is closed.
type Producer[A comparable, R any] func(ctx context.Context, arg A) (R, error)

// Status of a cache entry, mirrored by every Query bound to it.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorDataPolicy decides what happens to previously fetched data when a
// later operation fails.
type ErrorDataPolicy int

const (
	KeepDataOnError ErrorDataPolicy = iota
	ClearDataOnError
)

// OrphanPolicy decides what happens to an in-flight operation once nobody is
// interested in it anymore: no subscribed Query and no waiting Prefetch.
type OrphanPolicy int

const (
	// KeepOrphans lets the operation finish; its result is cached.
	KeepOrphans OrphanPolicy = iota
	// CancelOrphans cancels the operation and restores the entry's previous status.
	CancelOrphans
)

// Options tune a QueryCache. Only the producer passed to New is required.
type Options[A comparable, R any] struct {
	Namespace string        // "" => "default"; isolates offloaded records
	StaleTime time.Duration // 0 => every access refetches; NeverStale => until invalidated

	Retry     *RetryPolicy    // nil => single attempt
	ErrorData ErrorDataPolicy // default KeepDataOnError
	Orphans   OrphanPolicy    // default KeepOrphans

	EvictAfter    time.Duration // > 0 enables background eviction of idle, unobserved entries
	SweepInterval time.Duration // 0 => 1m

	KeyFunc func(A) string // display/storage form of an argument; nil => fmt.Sprint. Must be injective when Offload is set.
	Offload *OffloadOptions[R]

	Logger Logger           // nil => NopLogger. Called under the cache lock: must be cheap and non-blocking.
	Hooks  Hooks            // nil => NopHooks
	Now    func() time.Time // nil => time.Now
}

// OffloadOptions configure the in-process tier that keeps evicted results.
type OffloadOptions[R any] struct {
	Provider pr.Provider
	Codec    c.Codec[R]
	TTL      time.Duration // 0 => 10m
	GenStore gen.GenStore  // nil => in-process LocalGenStore; a custom store must keep keys longer than TTL
}

// SuccessEvent is delivered to OnSucceeded listeners.
type SuccessEvent[A comparable, R any] struct {
	Arg    A
	Result R
}

// FailureEvent is delivered to OnFailed listeners.
type FailureEvent[A comparable] struct {
	Arg A
	Err error
}

// QueryOption customizes a single Query or prefetch call.
type QueryOption func(*queryConfig)

type queryConfig struct {
	staleTime    time.Duration
	hasStaleTime bool
}

// WithStaleTime overrides Options.StaleTime for one Query or prefetch.
func WithStaleTime(d time.Duration) QueryOption {
	return func(qc *queryConfig) {
		qc.staleTime = d
		qc.hasStaleTime = true
	}
}

// EntryInfo is a point-in-time view of one cache entry.
type EntryInfo struct {
	Status      Status
	Gen         uint64
	Subscribers int
	Fetching    bool
	HasData     bool
	Stale       bool
	UpdatedAt   time.Time
}
