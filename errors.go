package querycache

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled matches every *CancellationError via errors.Is.
	ErrCanceled = errors.New("querycache: operation canceled")
	// ErrDetached is returned by futures of a Query that was already detached.
	ErrDetached = errors.New("querycache: query detached")
	// ErrPending is returned by Future.Result before the future settles.
	ErrPending = errors.New("querycache: result pending")
	// ErrClosed is returned once the cache has been closed.
	ErrClosed = errors.New("querycache: cache closed")
)

// Cancellation reasons reported in CancellationError.Reason and to Hooks.
const (
	ReasonSuperseded  = "superseded"
	ReasonManualWrite = "manual_write"
	ReasonOrphaned    = "orphaned"
	ReasonClosed      = "closed"
)

// ProducerError is returned to every awaiter of an operation whose producer failed.
type ProducerError struct {
	Key string
	Gen uint64
	Err error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("querycache: producer failed for %q (gen %d): %v", e.Key, e.Gen, e.Err)
}

func (e *ProducerError) Unwrap() error { return e.Err }

// CancellationError is returned to awaiters of an operation that was superseded
// or cancelled before it completed.
type CancellationError struct {
	Key    string
	Gen    uint64
	Reason string
	Cause  error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("querycache: operation for %q (gen %d) canceled: %s", e.Key, e.Gen, e.Reason)
}

func (e *CancellationError) Is(target error) bool { return target == ErrCanceled }

func (e *CancellationError) Unwrap() error { return e.Cause }

// IsCanceled reports whether err is a cancellation failure.
func IsCanceled(err error) bool { return errors.Is(err, ErrCanceled) }
