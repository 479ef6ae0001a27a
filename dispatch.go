package querycache

// batch collects work that must run after the cache lock is released:
// observer callbacks first, in the order the transitions were recorded, then
// future settles. Every locked call owns its batch, so a callback that
// re-enters the cache flushes a fresh batch of its own and a slow listener
// only ever holds up the goroutine that triggered it.
type batch struct {
	calls   []func()
	settles []func()
}

func (b *batch) call(fn func())   { b.calls = append(b.calls, fn) }
func (b *batch) settle(fn func()) { b.settles = append(b.settles, fn) }

// run delivers the callbacks and then the settles. Must be called without
// holding the cache lock.
func (b *batch) run(log Logger) {
	for _, fn := range b.calls {
		invoke(fn, log)
	}
	for _, fn := range b.settles {
		fn()
	}
}

func invoke(fn func(), log Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("observer callback panicked", Fields{"panic": r})
		}
	}()
	fn()
}
