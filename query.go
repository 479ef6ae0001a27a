package querycache

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type eventKind int

const (
	evState eventKind = iota
	evSuccess
	evFailure
)

type listener[F any] struct {
	id uint64
	fn F
}

// Query is a consumer handle bound to at most one entry at a time. It mirrors
// the entry's state and re-emits its transitions to registered listeners.
//
// The Query never holds the entry itself: it looks the entry up by its current
// argument, and stays subscribed to it, so the entry cannot be evicted while
// bound.
type Query[A comparable, R any] struct {
	id        string
	c         *QueryCache[A, R]
	staleTime time.Duration

	detached atomic.Bool

	// guarded by c.mu
	arg      A
	hasArg   bool
	bound    bool
	status   Status
	data     R
	hasData  bool
	err      error
	fetching bool

	nextID       uint64
	stateChanged []listener[func()]
	succeeded    []listener[func(SuccessEvent[A, R])]
	failed       []listener[func(FailureEvent[A])]
}

func newQuery[A comparable, R any](c *QueryCache[A, R], staleTime time.Duration) *Query[A, R] {
	return &Query[A, R]{
		id:        uuid.NewString(),
		c:         c,
		staleTime: staleTime,
	}
}

// ID identifies the query in logs.
func (q *Query[A, R]) ID() string { return q.id }

// SetArg binds the query to arg and fetches if needed, without waiting.
func (q *Query[A, R]) SetArg(arg A) {
	q.setArg(arg, true, false)
}

// SetArgAsync binds the query to arg and returns the eventual outcome. When
// arg is unchanged and the entry is fresh the returned future is already
// settled with the cached data.
func (q *Query[A, R]) SetArgAsync(arg A) *Future[R] {
	return q.setArg(arg, true, false)
}

// Refetch forces a new producer call for the current argument without waiting.
func (q *Query[A, R]) Refetch() {
	q.RefetchAsync()
}

// RefetchAsync forces a new producer call for the current argument (the zero
// value of A if none was set). The previous in-flight operation is superseded:
// its awaiters receive a CancellationError.
func (q *Query[A, R]) RefetchAsync() *Future[R] {
	var zero A
	return q.setArg(zero, false, true)
}

func (q *Query[A, R]) setArg(arg A, explicit, force bool) *Future[R] {
	c := q.c
	var b batch
	c.mu.Lock()
	if q.detached.Load() {
		c.mu.Unlock()
		var zero R
		return resolvedFuture(zero, ErrDetached)
	}
	if c.closed {
		c.mu.Unlock()
		var zero R
		return resolvedFuture(zero, ErrClosed)
	}
	if !explicit && q.hasArg {
		arg = q.arg
	}

	if q.bound && q.arg == arg && !force {
		e := c.entries[arg]
		if e.op == nil && !e.isStale(c.now(), q.staleTime) {
			c.mu.Unlock()
			return resolvedFuture(e.data, nil)
		}
	}

	argChanged := !q.bound || q.arg != arg
	if q.bound && q.arg != arg {
		q.unbindLocked(&b)
	}
	if !q.bound {
		e := c.getOrCreateLocked(arg)
		e.subscribe(q)
		q.arg, q.hasArg, q.bound = arg, true, true
		c.log.Debug("query bound", Fields{"query": q.id, "key": e.skey, "subscribers": len(e.subs)})
	}

	e, fut, _, started := c.fetchLocked(arg, q.staleTime, force, &b)
	if !started && (q.syncLocked(e) || argChanged) {
		q.postLocked(evState, e, &b)
	}
	c.mu.Unlock()
	c.flush(&b)
	return fut
}

// Detach unsubscribes the query and drops every listener. Afterwards the
// accessors keep returning the last observed state, mutating calls are no-ops
// returning ErrDetached, and no events fire. Detach is idempotent.
func (q *Query[A, R]) Detach() {
	c := q.c
	var b batch
	c.mu.Lock()
	if q.detached.Swap(true) {
		c.mu.Unlock()
		return
	}
	if q.bound {
		q.unbindLocked(&b)
	}
	q.stateChanged, q.succeeded, q.failed = nil, nil, nil
	c.log.Debug("query detached", Fields{"query": q.id})
	c.mu.Unlock()
	c.flush(&b)
}

func (q *Query[A, R]) unbindLocked(b *batch) {
	c := q.c
	if e, ok := c.entries[q.arg]; ok {
		e.unsubscribe(q)
		e.touched = c.now()
		c.maybeOrphanLocked(e, b)
	}
	q.bound = false
}

// syncLocked copies the entry's state into the query and reports whether any
// observable field changed. Data from a previous argument stays displayed
// while the new one loads.
func (q *Query[A, R]) syncLocked(e *entry[A, R]) bool {
	prevStatus, prevFetching, prevHasData, prevErr := q.status, q.fetching, q.hasData, q.err

	q.status = e.status
	q.fetching = e.op != nil
	switch e.status {
	case StatusSuccess:
		q.data, q.hasData, q.err = e.data, true, nil
	case StatusError:
		q.data, q.hasData, q.err = e.data, e.hasData, e.err
	default:
		q.err = nil
		if e.hasData {
			q.data, q.hasData = e.data, true
		}
	}

	return prevStatus != q.status || prevFetching != q.fetching ||
		prevHasData != q.hasData || prevErr != q.err
}

func (q *Query[A, R]) postLocked(kind eventKind, e *entry[A, R], b *batch) {
	if q.detached.Load() {
		return
	}
	changed := make([]func(), 0, len(q.stateChanged))
	for _, l := range q.stateChanged {
		changed = append(changed, l.fn)
	}

	var deliver func()
	switch kind {
	case evSuccess:
		ev := SuccessEvent[A, R]{Arg: e.key, Result: e.data}
		fns := make([]func(SuccessEvent[A, R]), 0, len(q.succeeded))
		for _, l := range q.succeeded {
			fns = append(fns, l.fn)
		}
		deliver = func() {
			for _, fn := range fns {
				if q.detached.Load() {
					return
				}
				fn(ev)
			}
		}
	case evFailure:
		ev := FailureEvent[A]{Arg: e.key, Err: e.err}
		fns := make([]func(FailureEvent[A]), 0, len(q.failed))
		for _, l := range q.failed {
			fns = append(fns, l.fn)
		}
		deliver = func() {
			for _, fn := range fns {
				if q.detached.Load() {
					return
				}
				fn(ev)
			}
		}
	}

	b.call(func() {
		for _, fn := range changed {
			if q.detached.Load() {
				return
			}
			fn()
		}
		if deliver != nil {
			deliver()
		}
	})
}

// OnStateChanged registers fn to run after any observable field changes.
// The returned func unregisters it.
func (q *Query[A, R]) OnStateChanged(fn func()) func() {
	return addListener(q, &q.stateChanged, fn)
}

// OnSucceeded registers fn to run once per successful operation while attached.
func (q *Query[A, R]) OnSucceeded(fn func(SuccessEvent[A, R])) func() {
	return addListener(q, &q.succeeded, fn)
}

// OnFailed registers fn to run once per failed operation while attached.
func (q *Query[A, R]) OnFailed(fn func(FailureEvent[A])) func() {
	return addListener(q, &q.failed, fn)
}

func addListener[A comparable, R any, F any](q *Query[A, R], list *[]listener[F], fn F) func() {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	if q.detached.Load() {
		return func() {}
	}
	q.nextID++
	id := q.nextID
	*list = append(*list, listener[F]{id: id, fn: fn})
	return func() {
		q.c.mu.Lock()
		defer q.c.mu.Unlock()
		for i, l := range *list {
			if l.id == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

// Arg returns the current argument and whether one was ever set.
func (q *Query[A, R]) Arg() (A, bool) {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	return q.arg, q.hasArg
}

// Status returns the mirrored status of the bound entry.
func (q *Query[A, R]) Status() Status {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	return q.status
}

// Data returns the displayed data, or the zero value when there is none.
func (q *Query[A, R]) Data() R {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	return q.data
}

// HasData reports whether there is data to display, possibly from a previous argument.
func (q *Query[A, R]) HasData() bool {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	return q.hasData
}

// Error returns the producer's error while the status is Error, otherwise nil.
func (q *Query[A, R]) Error() error {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	if q.status != StatusError {
		return nil
	}
	return q.err
}

// IsLoading is true while loading with nothing to display yet.
func (q *Query[A, R]) IsLoading() bool {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	return q.status == StatusLoading && !q.hasData
}

// IsFetching is true while an operation for the bound entry is outstanding.
func (q *Query[A, R]) IsFetching() bool {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	return q.fetching
}

// IsSuccess is shorthand for Status() == StatusSuccess.
func (q *Query[A, R]) IsSuccess() bool { return q.Status() == StatusSuccess }

// IsError is shorthand for Status() == StatusError.
func (q *Query[A, R]) IsError() bool { return q.Status() == StatusError }
