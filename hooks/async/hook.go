// Package asynchook moves querycache hook delivery off the cache lock.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{HitEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	users, _ := querycache.New(fetchUser, querycache.Options[int, User]{Hooks: hooks})
//
// Events are dropped, and counted, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/querycache"
)

type Hooks struct {
	inner   querycache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(inner querycache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers what is queued and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheHit(k string)               { h.try(func() { h.inner.CacheHit(k) }) }
func (h *Hooks) FetchJoined(k string, g uint64)  { h.try(func() { h.inner.FetchJoined(k, g) }) }
func (h *Hooks) FetchStarted(k string, g uint64) { h.try(func() { h.inner.FetchStarted(k, g) }) }
func (h *Hooks) FetchSucceeded(k string, g uint64, d time.Duration) {
	h.try(func() { h.inner.FetchSucceeded(k, g, d) })
}
func (h *Hooks) FetchFailed(k string, g uint64, err error) {
	h.try(func() { h.inner.FetchFailed(k, g, err) })
}
func (h *Hooks) CompletionDiscarded(k string, g, cur uint64) {
	h.try(func() { h.inner.CompletionDiscarded(k, g, cur) })
}
func (h *Hooks) OperationCanceled(k string, g uint64, r string) {
	h.try(func() { h.inner.OperationCanceled(k, g, r) })
}
func (h *Hooks) EntryEvicted(k string, off bool) { h.try(func() { h.inner.EntryEvicted(k, off) }) }
func (h *Hooks) EntryRehydrated(k string)        { h.try(func() { h.inner.EntryRehydrated(k) }) }
func (h *Hooks) OffloadRejected(k, r string)     { h.try(func() { h.inner.OffloadRejected(k, r) }) }
