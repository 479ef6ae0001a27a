package querycache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/querycache/provider"
)

const waitFor = 2 * time.Second

// gate is a producer whose calls are resolved by the test.
type gate struct {
	ignoreCtx bool

	mu    sync.Mutex
	calls []*call
	ch    chan *call
}

type call struct {
	arg int
	ctx context.Context
	out chan outcome
}

type outcome struct {
	v   string
	err error
}

func newGate() *gate { return &gate{ch: make(chan *call, 128)} }

func (g *gate) produce(ctx context.Context, arg int) (string, error) {
	c := &call{arg: arg, ctx: ctx, out: make(chan outcome, 1)}
	g.mu.Lock()
	g.calls = append(g.calls, c)
	g.mu.Unlock()
	g.ch <- c
	if g.ignoreCtx {
		o := <-c.out
		return o.v, o.err
	}
	select {
	case o := <-c.out:
		return o.v, o.err
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

func (g *gate) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-g.ch:
		return c
	case <-time.After(waitFor):
		t.Fatal("producer was not called")
		return nil
	}
}

func (g *gate) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (c *call) ok(v string)    { c.out <- outcome{v: v} }
func (c *call) fail(err error) { c.out <- outcome{err: err} }
func (c *call) canceled() bool { return c.ctx.Err() != nil }
func (c *call) cause() error   { return context.Cause(c.ctx) }
func (c *call) waitCanceled() bool {
	select {
	case <-c.ctx.Done():
		return true
	case <-time.After(waitFor):
		return false
	}
}

// counter is a producer that answers immediately with fn(arg).
type counter struct {
	n  atomic.Int32
	fn func(arg int) (string, error)
}

func (p *counter) produce(_ context.Context, arg int) (string, error) {
	p.n.Add(1)
	return p.fn(arg)
}

func (p *counter) calls() int { return int(p.n.Load()) }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recHooks struct {
	NopHooks
	mu     sync.Mutex
	counts map[string]int
	extra  []string
}

func newRecHooks() *recHooks { return &recHooks{counts: make(map[string]int)} }

func (h *recHooks) inc(name string, extra ...string) {
	h.mu.Lock()
	h.counts[name]++
	h.extra = append(h.extra, extra...)
	h.mu.Unlock()
}

func (h *recHooks) get(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[name]
}

func (h *recHooks) details() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.extra...)
}

func (h *recHooks) CacheHit(string)                              { h.inc("hit") }
func (h *recHooks) FetchJoined(string, uint64)                   { h.inc("joined") }
func (h *recHooks) FetchStarted(string, uint64)                  { h.inc("started") }
func (h *recHooks) FetchSucceeded(string, uint64, time.Duration) { h.inc("succeeded") }
func (h *recHooks) FetchFailed(string, uint64, error)            { h.inc("failed") }
func (h *recHooks) CompletionDiscarded(string, uint64, uint64)   { h.inc("discarded") }
func (h *recHooks) OperationCanceled(_ string, _ uint64, reason string) {
	h.inc("canceled", "cancel:"+reason)
}
func (h *recHooks) EntryEvicted(_ string, offloaded bool) {
	if offloaded {
		h.inc("evicted", "offloaded")
		return
	}
	h.inc("evicted")
}
func (h *recHooks) EntryRehydrated(string) { h.inc("rehydrated") }
func (h *recHooks) OffloadRejected(_ string, reason string) {
	h.inc("rejected", "reject:"+reason)
}

type recLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recLogger) add(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+": "+msg)
	l.mu.Unlock()
}

func (l *recLogger) Debug(msg string, _ Fields) { l.add("debug", msg) }
func (l *recLogger) Info(msg string, _ Fields)  { l.add("info", msg) }
func (l *recLogger) Warn(msg string, _ Fields)  { l.add("warn", msg) }
func (l *recLogger) Error(msg string, _ Fields) { l.add("error", msg) }

func (l *recLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.lines {
		if s == line {
			return true
		}
	}
	return false
}

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = memEntry{v: value, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.m))
	for k := range p.m {
		out = append(out, k)
	}
	return out
}

func (p *memProvider) put(key string, v []byte) {
	p.mu.Lock()
	p.m[key] = memEntry{v: v}
	p.mu.Unlock()
}

func await[R any](t *testing.T, f *Future[R]) (R, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	v, err := f.Await(ctx)
	if err != nil && ctx.Err() != nil {
		t.Fatal("future did not settle")
	}
	return v, err
}

func newCache(t *testing.T, p Producer[int, string], opts Options[int, string]) *QueryCache[int, string] {
	t.Helper()
	c, err := New(p, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}
