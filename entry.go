package querycache

import (
	"context"
	"time"
)

// operation is one producer invocation for one entry generation.
type operation[R any] struct {
	gen     uint64
	ctx     context.Context
	cancel  context.CancelCauseFunc
	fut     *Future[R]
	started time.Time

	// status to restore if the operation is dropped without a successor
	prevStatus Status
	// Prefetch callers still waiting on this operation
	prefetchers int
	settled     bool
}

func (op *operation[R]) settleLocked(v R, err error, b *batch) {
	if op.settled {
		return
	}
	op.settled = true
	fut := op.fut
	b.settle(func() { fut.settle(v, err) })
}

// entry is the shared state for one argument. Every field is guarded by the
// owning QueryCache's mutex.
type entry[A comparable, R any] struct {
	key  A
	skey string

	status    Status
	data      R
	hasData   bool
	err       error
	updatedAt time.Time

	// gen increases every time an operation is started or data is written
	// out of band. Data produced at dataGen < staleBelow was invalidated.
	gen        uint64
	dataGen    uint64
	staleBelow uint64

	op   *operation[R]
	subs []*Query[A, R]

	touched time.Time
}

func (e *entry[A, R]) isStale(now time.Time, staleTime time.Duration) bool {
	if e.status != StatusSuccess || e.dataGen < e.staleBelow || staleTime <= 0 {
		return true
	}
	if staleTime == NeverStale {
		return false
	}
	return now.Sub(e.updatedAt) > staleTime
}

// invalidate marks the current data, and whatever the in-flight operation
// produces, as stale. It neither cancels nor notifies.
func (e *entry[A, R]) invalidate() {
	e.staleBelow = e.gen + 1
}

func (e *entry[A, R]) invalidated() bool { return e.dataGen < e.staleBelow }

func (e *entry[A, R]) subscribe(q *Query[A, R]) {
	e.subs = append(e.subs, q)
}

func (e *entry[A, R]) unsubscribe(q *Query[A, R]) bool {
	for i, s := range e.subs {
		if s == q {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (e *entry[A, R]) idle() bool { return len(e.subs) == 0 && e.op == nil }

func (e *entry[A, R]) info(now time.Time, staleTime time.Duration) EntryInfo {
	return EntryInfo{
		Status:      e.status,
		Gen:         e.gen,
		Subscribers: len(e.subs),
		Fetching:    e.op != nil,
		HasData:     e.hasData,
		Stale:       e.isStale(now, staleTime),
		UpdatedAt:   e.updatedAt,
	}
}
