// Package querycache implements an in-memory cache of asynchronous query
// results keyed by argument. Concurrent requests for the same argument share
// one producer call, fresh results are served without calling the producer,
// and completions of superseded operations are discarded via per-entry
// generations.
//
// Components:
//   - QueryCache[A, R]: argument -> entry table around one Producer.
//   - Query[A, R]: a consumer handle bound to one argument at a time. It
//     mirrors the entry's status and fires StateChanged/Succeeded/Failed.
//   - Endpoint[A, R]: a thin facade that owns a QueryCache and hands out Queries.
//   - Offload tier (optional): evicted results are parked in a byte Provider
//     (BigCache, Ristretto) through a Codec and validated by generation on the
//     way back.
//
// Keys in the offload Provider:
//
//	q:<ns>:<epoch>:<xxhash(key)>  - offloaded records
//	q:<ns>:<xxhash(key)>          - per-key generation (GenStore)
//	q:<ns>:epoch                  - namespace epoch, bumped by InvalidateAll
//
// Typical use:
//
//	ep, _ := querycache.NewEndpoint(fetchUser, querycache.Options[int, User]{StaleTime: time.Minute})
//	q := ep.Use()
//	defer q.Detach()
//	q.OnStateChanged(render)
//	q.SetArg(42)
//
// Callbacks run outside the cache lock, on the goroutine whose call caused the
// transition, in the order the transitions happened and before any future of
// that transition settles. They may call back into the cache.
package querycache
