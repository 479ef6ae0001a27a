package querycache

import "time"

// Hooks receives high-signal cache events. key is the display form of the
// argument produced by Options.KeyFunc.
// Implementations MUST be cheap and non-blocking: most hooks run while the
// cache lock is held.
type Hooks interface {
	// A fresh Success entry was served without calling the producer.
	CacheHit(key string)
	// A caller attached to an operation that was already in flight.
	FetchJoined(key string, gen uint64)
	// A new producer operation was started.
	FetchStarted(key string, gen uint64)
	// The current operation settled and its result was applied.
	FetchSucceeded(key string, gen uint64, elapsed time.Duration)
	FetchFailed(key string, gen uint64, err error)
	// An operation completed after it was superseded; its result was dropped.
	CompletionDiscarded(key string, gen, current uint64)
	// An operation was cancelled before completing.
	// reason ∈ {"superseded", "manual_write", "orphaned", "closed"}
	OperationCanceled(key string, gen uint64, reason string)
	// An idle entry with no subscribers was removed from the table.
	EntryEvicted(key string, offloaded bool)
	// An evicted entry was restored from the offload tier.
	EntryRehydrated(key string)
	// An offloaded record was deleted on read.
	// reason ∈ {"corrupt", "key_mismatch", "gen_mismatch", "value_decode"}
	OffloadRejected(storageKey, reason string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string)                              {}
func (NopHooks) FetchJoined(string, uint64)                   {}
func (NopHooks) FetchStarted(string, uint64)                  {}
func (NopHooks) FetchSucceeded(string, uint64, time.Duration) {}
func (NopHooks) FetchFailed(string, uint64, error)            {}
func (NopHooks) CompletionDiscarded(string, uint64, uint64)   {}
func (NopHooks) OperationCanceled(string, uint64, string)     {}
func (NopHooks) EntryEvicted(string, bool)                    {}
func (NopHooks) EntryRehydrated(string)                       {}
func (NopHooks) OffloadRejected(string, string)               {}
