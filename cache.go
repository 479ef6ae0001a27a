package querycache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QueryCache maps arguments to shared entries for one producer. It dedups
// concurrent fetches, serves fresh results, discards superseded completions and
// multicasts transitions to every bound Query.
//
// A single mutex guards the table, every entry and every Query's mirrored
// state. The producer always runs in its own goroutine, outside the lock.
type QueryCache[A comparable, R any] struct {
	producer Producer[A, R]

	ns            string
	staleTime     time.Duration
	retry         *RetryPolicy
	errorData     ErrorDataPolicy
	orphans       OrphanPolicy
	evictAfter    time.Duration
	sweepInterval time.Duration
	keyFunc       func(A) string
	now           func() time.Time
	log           Logger
	hooks         Hooks
	off           *offloader[R]

	// parent of every operation scope; cancelled by Close
	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	entries map[A]*entry[A, R]
	closed  bool

	// background eviction
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

// New builds a QueryCache around producer.
func New[A comparable, R any](producer Producer[A, R], opts Options[A, R]) (*QueryCache[A, R], error) {
	if producer == nil {
		return nil, fmt.Errorf("querycache: producer is required")
	}
	if opts.StaleTime < 0 {
		return nil, fmt.Errorf("querycache: negative stale time %v", opts.StaleTime)
	}
	if opts.EvictAfter < 0 {
		return nil, fmt.Errorf("querycache: negative evict-after %v", opts.EvictAfter)
	}

	c := &QueryCache[A, R]{
		producer:   producer,
		staleTime:  opts.StaleTime,
		errorData:  opts.ErrorData,
		orphans:    opts.Orphans,
		evictAfter: opts.EvictAfter,
		entries:    make(map[A]*entry[A, R]),
	}

	// defaults
	c.ns = coalesce(opts.Namespace, defaultNamespace)
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.sweepInterval = coalesce(opts.SweepInterval, defaultSweepInterval)

	if opts.KeyFunc != nil {
		c.keyFunc = opts.KeyFunc
	} else {
		c.keyFunc = func(a A) string { return fmt.Sprint(a) }
	}
	if opts.Now != nil {
		c.now = opts.Now
	} else {
		c.now = time.Now
	}

	if opts.Retry != nil {
		if err := opts.Retry.validate(); err != nil {
			return nil, err
		}
		rp := *opts.Retry
		c.retry = &rp
	}

	if opts.Offload != nil {
		off, err := newOffloader(c.ns, *opts.Offload, c.log, c.hooks)
		if err != nil {
			return nil, err
		}
		c.off = off
	}

	c.base, c.stop = context.WithCancel(context.Background())

	if c.evictAfter > 0 {
		c.ticker = time.NewTicker(c.sweepInterval)
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go c.sweepLoop()
	}
	return c, nil
}

// Use returns a new unbound Query over this cache.
func (c *QueryCache[A, R]) Use(opts ...QueryOption) *Query[A, R] {
	return newQuery(c, c.resolveStaleTime(opts))
}

// Fetch returns the result for key: a fresh cached value, the outcome of the
// in-flight operation, or the outcome of a newly started one. Giving up via
// ctx does not cancel the operation unless the cache uses CancelOrphans and
// nobody else is interested.
func (c *QueryCache[A, R]) Fetch(ctx context.Context, key A, opts ...QueryOption) (R, error) {
	fut, e, op := c.request(key, opts)
	v, err := fut.Await(ctx)
	if op != nil && err != nil && err == ctx.Err() {
		c.release(e, op)
	}
	return v, err
}

// Prefetch warms the entry for key and reports the failure, if any. Queries
// already bound to key observe the transitions as they happen.
func (c *QueryCache[A, R]) Prefetch(ctx context.Context, key A, opts ...QueryOption) error {
	_, err := c.Fetch(ctx, key, opts...)
	return err
}

// PrefetchAsync is Prefetch without waiting. The returned future settles with
// the operation's outcome.
func (c *QueryCache[A, R]) PrefetchAsync(key A, opts ...QueryOption) *Future[R] {
	fut, _, _ := c.request(key, opts)
	return fut
}

func (c *QueryCache[A, R]) request(key A, opts []QueryOption) (*Future[R], *entry[A, R], *operation[R]) {
	staleTime := c.resolveStaleTime(opts)
	var b batch
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		var zero R
		return resolvedFuture(zero, ErrClosed), nil, nil
	}
	e, fut, op, _ := c.fetchLocked(key, staleTime, false, &b)
	if op != nil {
		op.prefetchers++
	}
	c.mu.Unlock()
	c.flush(&b)
	return fut, e, op
}

// Invalidate marks key stale. The next access refetches; an in-flight
// operation keeps running and nothing is notified.
func (c *QueryCache[A, R]) Invalidate(key A) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.invalidate()
		c.log.Debug("invalidated entry", Fields{"key": e.skey, "gen": e.gen})
		return
	}
	if c.off != nil {
		c.off.invalidate(context.Background(), c.keyFunc(key))
	}
}

// InvalidateAll marks every entry stale, including offloaded ones.
func (c *QueryCache[A, R]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.invalidate()
	}
	if c.off != nil {
		c.off.invalidateAll(context.Background())
	}
	c.log.Debug("invalidated all entries", Fields{"count": len(c.entries)})
}

// UpdateQueryData writes value as a fresh Success for key without calling the
// producer. An in-flight operation for key is superseded and its awaiters
// receive a CancellationError.
func (c *QueryCache[A, R]) UpdateQueryData(key A, value R) {
	var b batch
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e := c.getOrCreateLocked(key)
	if e.op != nil {
		c.cancelOpLocked(e, e.op, ReasonManualWrite, &b)
	}
	now := c.now()
	e.gen++
	e.status = StatusSuccess
	e.data, e.hasData, e.err = value, true, nil
	e.updatedAt = now
	e.dataGen = e.gen
	e.touched = now
	c.log.Debug("manual write", Fields{"key": e.skey, "gen": e.gen})
	c.notifyLocked(e, evState, &b)
	c.mu.Unlock()
	c.flush(&b)
}

// Len reports the number of live entries.
func (c *QueryCache[A, R]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Info returns a snapshot of key's entry, judged against the cache's default
// stale time.
func (c *QueryCache[A, R]) Info(key A) (EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return EntryInfo{}, false
	}
	return e.info(c.now(), c.staleTime), true
}

// EvictIdle removes entries that have no subscribers, nothing in flight and
// were last touched at least EvictAfter ago. Fresh successful entries are
// handed to the offload tier when one is configured.
func (c *QueryCache[A, R]) EvictIdle() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	removed := 0
	for k, e := range c.entries {
		if !e.idle() || now.Sub(e.touched) < c.evictAfter {
			continue
		}
		offloaded := false
		if c.off != nil && e.status == StatusSuccess && !e.invalidated() {
			offloaded = c.off.store(context.Background(), e.skey, e.data, e.updatedAt)
		}
		delete(c.entries, k)
		removed++
		c.hooks.EntryEvicted(e.skey, offloaded)
	}
	if removed > 0 {
		c.log.Debug("evicted idle entries", Fields{"removed": removed})
	}
	return removed
}

// Close stops the sweeper, cancels every in-flight operation and releases the
// offload tier. Later calls are no-ops.
func (c *QueryCache[A, R]) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.ticker.Stop()
			c.closeWg.Wait()
		}

		var b batch
		c.mu.Lock()
		c.closed = true
		for _, e := range c.entries {
			if e.op != nil {
				c.dropOpLocked(e, ReasonClosed, &b)
			}
		}
		c.mu.Unlock()
		c.flush(&b)
		c.stop()

		if c.off != nil {
			err = c.off.close(ctx)
		}
	})
	return err
}

func (c *QueryCache[A, R]) getOrCreateLocked(key A) *entry[A, R] {
	if e, ok := c.entries[key]; ok {
		return e
	}
	now := c.now()
	e := &entry[A, R]{key: key, skey: c.keyFunc(key), touched: now}
	if c.off != nil {
		if v, at, ok := c.off.load(context.Background(), e.skey); ok {
			e.status = StatusSuccess
			e.data, e.hasData = v, true
			e.updatedAt = at
			c.hooks.EntryRehydrated(e.skey)
			c.log.Debug("rehydrated entry", Fields{"key": e.skey})
		}
	}
	c.entries[key] = e
	return e
}

// fetchLocked decides between a cache hit, joining the in-flight operation and
// starting a new one. force skips both shortcuts.
func (c *QueryCache[A, R]) fetchLocked(key A, staleTime time.Duration, force bool, b *batch) (*entry[A, R], *Future[R], *operation[R], bool) {
	e := c.getOrCreateLocked(key)
	if !force {
		if e.op != nil {
			c.hooks.FetchJoined(e.skey, e.op.gen)
			c.log.Debug("joined in-flight fetch", Fields{"key": e.skey, "gen": e.op.gen})
			return e, e.op.fut, e.op, false
		}
		if !e.isStale(c.now(), staleTime) {
			c.hooks.CacheHit(e.skey)
			c.log.Debug("cache hit", Fields{"key": e.skey, "gen": e.dataGen})
			return e, resolvedFuture(e.data, nil), nil, false
		}
	}
	op := c.startLocked(e, b)
	return e, op.fut, op, true
}

func (c *QueryCache[A, R]) startLocked(e *entry[A, R], b *batch) *operation[R] {
	prev := e.status
	if old := e.op; old != nil {
		prev = old.prevStatus
		c.cancelOpLocked(e, old, ReasonSuperseded, b)
	}
	e.gen++
	ctx, cancel := context.WithCancelCause(c.base)
	op := &operation[R]{
		gen:        e.gen,
		ctx:        ctx,
		cancel:     cancel,
		fut:        newFuture[R](),
		started:    c.now(),
		prevStatus: prev,
	}
	e.op = op
	e.status = StatusLoading
	e.touched = op.started
	c.hooks.FetchStarted(e.skey, op.gen)
	c.log.Debug("fetch started", Fields{"key": e.skey, "gen": op.gen})
	c.notifyLocked(e, evState, b)

	go c.run(e, op)
	return op
}

func (c *QueryCache[A, R]) run(e *entry[A, R], op *operation[R]) {
	v, err := c.call(op.ctx, e.key)
	c.complete(e, op, v, err)
}

func (c *QueryCache[A, R]) call(ctx context.Context, arg A) (R, error) {
	if c.retry == nil {
		return c.invoke(ctx, arg)
	}
	return retryCall(ctx, c.retry, func() (R, error) {
		return c.invoke(ctx, arg)
	}, func(err error, next time.Duration) {
		c.log.Debug("producer failed; retrying", Fields{"err": err, "backoff": next})
	})
}

func (c *QueryCache[A, R]) invoke(ctx context.Context, arg A) (v R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("querycache: producer panicked: %v", r)
		}
	}()
	return c.producer(ctx, arg)
}

// complete applies op's outcome only if op is still the entry's current
// operation. Anything else was superseded or cancelled and is dropped.
func (c *QueryCache[A, R]) complete(e *entry[A, R], op *operation[R], v R, err error) {
	var b batch
	c.mu.Lock()
	if e.op != op {
		c.hooks.CompletionDiscarded(e.skey, op.gen, e.gen)
		c.log.Debug("completion discarded", Fields{"key": e.skey, "gen": op.gen, "current": e.gen})
		c.mu.Unlock()
		return
	}

	now := c.now()
	e.op = nil
	op.cancel(nil)
	e.touched = now

	if err == nil {
		e.status = StatusSuccess
		e.data, e.hasData, e.err = v, true, nil
		e.updatedAt = now
		e.dataGen = op.gen
		c.hooks.FetchSucceeded(e.skey, op.gen, now.Sub(op.started))
		op.settleLocked(v, nil, &b)
		c.notifyLocked(e, evSuccess, &b)
	} else {
		e.status = StatusError
		e.err = err
		if c.errorData == ClearDataOnError {
			var zero R
			e.data, e.hasData = zero, false
		}
		c.hooks.FetchFailed(e.skey, op.gen, err)
		c.log.Debug("fetch failed", Fields{"key": e.skey, "gen": op.gen, "err": err})
		var zero R
		op.settleLocked(zero, &ProducerError{Key: e.skey, Gen: op.gen, Err: err}, &b)
		c.notifyLocked(e, evFailure, &b)
	}
	c.mu.Unlock()
	c.flush(&b)
}

// cancelOpLocked detaches op from e and rejects its awaiters. The caller
// decides the entry's next status.
func (c *QueryCache[A, R]) cancelOpLocked(e *entry[A, R], op *operation[R], reason string, b *batch) {
	cerr := &CancellationError{Key: e.skey, Gen: op.gen, Reason: reason, Cause: context.Canceled}
	op.cancel(cerr)
	e.op = nil
	var zero R
	op.settleLocked(zero, cerr, b)
	c.hooks.OperationCanceled(e.skey, op.gen, reason)
	c.log.Debug("operation canceled", Fields{"key": e.skey, "gen": op.gen, "reason": reason})
}

// dropOpLocked cancels the in-flight operation without a successor and puts
// the entry back to where it was before the operation started.
func (c *QueryCache[A, R]) dropOpLocked(e *entry[A, R], reason string, b *batch) {
	op := e.op
	c.cancelOpLocked(e, op, reason, b)
	e.status = op.prevStatus
	e.touched = c.now()
	c.notifyLocked(e, evState, b)
}

func (c *QueryCache[A, R]) maybeOrphanLocked(e *entry[A, R], b *batch) {
	if c.orphans != CancelOrphans || e.op == nil || len(e.subs) > 0 || e.op.prefetchers > 0 {
		return
	}
	c.dropOpLocked(e, ReasonOrphaned, b)
}

func (c *QueryCache[A, R]) release(e *entry[A, R], op *operation[R]) {
	var b batch
	c.mu.Lock()
	if e.op == op {
		op.prefetchers--
		c.maybeOrphanLocked(e, &b)
	}
	c.mu.Unlock()
	c.flush(&b)
}

func (c *QueryCache[A, R]) notifyLocked(e *entry[A, R], kind eventKind, b *batch) {
	for _, q := range e.subs {
		q.syncLocked(e)
		q.postLocked(kind, e, b)
	}
}

// flush delivers b's callbacks on the calling goroutine and then settles its
// futures. Must be called without holding c.mu.
func (c *QueryCache[A, R]) flush(b *batch) { b.run(c.log) }

func (c *QueryCache[A, R]) resolveStaleTime(opts []QueryOption) time.Duration {
	var qc queryConfig
	for _, opt := range opts {
		opt(&qc)
	}
	if qc.hasStaleTime {
		return qc.staleTime
	}
	return c.staleTime
}

func (c *QueryCache[A, R]) sweepLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.EvictIdle()
		case <-c.stopCh:
			return
		}
	}
}
