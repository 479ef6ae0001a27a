package querycache

import "context"

// Endpoint binds one producer to its own QueryCache and hands out Queries over
// it. It holds no state of its own besides the default per-query options,
// which every call merges in front of the options it is given.
type Endpoint[A comparable, R any] struct {
	cache    *QueryCache[A, R]
	defaults []QueryOption
}

// NewEndpoint builds the QueryCache for producer. defaults apply to every Use
// and Prefetch call and can be overridden per call.
func NewEndpoint[A comparable, R any](producer Producer[A, R], opts Options[A, R], defaults ...QueryOption) (*Endpoint[A, R], error) {
	c, err := New(producer, opts)
	if err != nil {
		return nil, err
	}
	return &Endpoint[A, R]{cache: c, defaults: defaults}, nil
}

func (ep *Endpoint[A, R]) merge(opts []QueryOption) []QueryOption {
	if len(ep.defaults) == 0 {
		return opts
	}
	out := make([]QueryOption, 0, len(ep.defaults)+len(opts))
	out = append(out, ep.defaults...)
	return append(out, opts...)
}

// Use returns a new unbound Query. Call Detach when done with it.
func (ep *Endpoint[A, R]) Use(opts ...QueryOption) *Query[A, R] {
	return ep.cache.Use(ep.merge(opts)...)
}

// Prefetch warms arg with the endpoint defaults and waits for the result.
func (ep *Endpoint[A, R]) Prefetch(ctx context.Context, arg A, opts ...QueryOption) error {
	return ep.cache.Prefetch(ctx, arg, ep.merge(opts)...)
}

// PrefetchAsync is Prefetch without waiting.
func (ep *Endpoint[A, R]) PrefetchAsync(arg A, opts ...QueryOption) *Future[R] {
	return ep.cache.PrefetchAsync(arg, ep.merge(opts)...)
}

// Invalidate marks arg's data stale.
func (ep *Endpoint[A, R]) Invalidate(arg A) { ep.cache.Invalidate(arg) }

// InvalidateAll marks every entry stale.
func (ep *Endpoint[A, R]) InvalidateAll() { ep.cache.InvalidateAll() }

// UpdateQueryData writes value for arg as if a fetch had produced it.
func (ep *Endpoint[A, R]) UpdateQueryData(arg A, value R) { ep.cache.UpdateQueryData(arg, value) }

// Cache exposes the underlying QueryCache.
func (ep *Endpoint[A, R]) Cache() *QueryCache[A, R] { return ep.cache }

// Close shuts down the underlying cache.
func (ep *Endpoint[A, R]) Close(ctx context.Context) error { return ep.cache.Close(ctx) }
