package querycache

import "context"

// Future is the eventual outcome of a fetch. Every caller attached to the same
// operation shares one Future.
type Future[R any] struct {
	done chan struct{}
	val  R
	err  error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func resolvedFuture[R any](v R, err error) *Future[R] {
	f := &Future[R]{done: make(chan struct{}), val: v, err: err}
	close(f.done)
	return f
}

// settle must be called at most once.
func (f *Future[R]) settle(v R, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the future has settled.
func (f *Future[R]) Done() <-chan struct{} { return f.done }

// Await blocks until the future settles or ctx is done. Giving up on a
// future never cancels the underlying operation.
func (f *Future[R]) Await(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future[R]) Result() (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
		var zero R
		return zero, ErrPending
	}
}
