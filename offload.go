package querycache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	c "github.com/unkn0wn-root/querycache/codec"
	gen "github.com/unkn0wn-root/querycache/genstore"
	"github.com/unkn0wn-root/querycache/internal/wire"
	pr "github.com/unkn0wn-root/querycache/provider"
)

const (
	defaultGenSweep     = time.Hour
	defaultGenRetention = 30 * 24 * time.Hour
)

// offloader parks evicted results in a Provider and takes them back on the
// next access. A record is valid only while both the namespace epoch and the
// key's generation still match what they were at write time.
type offloader[R any] struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[R]
	ttl      time.Duration
	gens     gen.GenStore
	ownGens  bool
	keepGens time.Duration // retention of the owned store; 0 when GenStore is supplied
	log      Logger
	hooks    Hooks
}

func newOffloader[R any](ns string, o OffloadOptions[R], log Logger, hooks Hooks) (*offloader[R], error) {
	if o.Provider == nil {
		return nil, errors.New("querycache: offload provider is required")
	}
	if o.Codec == nil {
		return nil, errors.New("querycache: offload codec is required")
	}
	if o.TTL < 0 {
		return nil, errors.New("querycache: negative offload ttl")
	}
	off := &offloader[R]{
		ns:       ns,
		provider: o.Provider,
		codec:    o.Codec,
		ttl:      coalesce(o.TTL, defaultOffloadTTL),
		gens:     o.GenStore,
		log:      log,
		hooks:    hooks,
	}
	if off.gens == nil {
		off.keepGens = genRetention(off.ttl)
		off.gens = gen.NewLocalGenStore(defaultGenSweep, off.keepGens)
		off.ownGens = true
	}
	return off, nil
}

// genRetention outlives every record by a wide margin. A pruned generation
// reads as 0 again, which would revive records written before the last bump.
func genRetention(ttl time.Duration) time.Duration {
	if r := 2 * ttl; r > defaultGenRetention {
		return r
	}
	return defaultGenRetention
}

func (o *offloader[R]) hash(skey string) string {
	return strconv.FormatUint(xxhash.Sum64String(skey), 16)
}

func (o *offloader[R]) epochKey() string { return "q:" + o.ns + ":epoch" }

func (o *offloader[R]) genKey(skey string) string { return "q:" + o.ns + ":" + o.hash(skey) }

func (o *offloader[R]) recordKey(epoch uint64, skey string) string {
	return "q:" + o.ns + ":" + strconv.FormatUint(epoch, 10) + ":" + o.hash(skey)
}

func (o *offloader[R]) epoch(ctx context.Context) (uint64, bool) {
	ep, err := o.gens.Snapshot(ctx, o.epochKey())
	if err != nil {
		o.log.Warn("epoch snapshot failed", Fields{"ns": o.ns, "err": err})
		return 0, false
	}
	return ep, true
}

// store writes data under the key's current generation. It reports whether the
// provider accepted the record.
func (o *offloader[R]) store(ctx context.Context, skey string, data R, updatedAt time.Time) bool {
	ep, ok := o.epoch(ctx)
	if !ok {
		return false
	}
	g, err := o.gens.Snapshot(ctx, o.genKey(skey))
	if err != nil {
		o.log.Warn("gen snapshot failed", Fields{"key": skey, "err": err})
		return false
	}
	payload, err := o.codec.Encode(data)
	if err != nil {
		o.log.Warn("offload encode failed", Fields{"key": skey, "err": err})
		return false
	}
	rec, err := wire.Encode(wire.Record{Gen: g, UpdatedAt: updatedAt, Key: skey, Payload: payload})
	if err != nil {
		o.log.Warn("offload frame failed", Fields{"key": skey, "err": err})
		return false
	}
	k := o.recordKey(ep, skey)
	accepted, err := o.provider.Set(ctx, k, rec, int64(len(rec)), o.ttl)
	if err != nil {
		o.log.Warn("offload write failed", Fields{"key": skey, "err": err})
		return false
	}
	if !accepted {
		o.log.Debug("offload write rejected by provider (pressure)", Fields{"key": skey})
	}
	return accepted
}

// load takes the record for skey out of the provider. Anything that no longer
// validates is deleted.
func (o *offloader[R]) load(ctx context.Context, skey string) (R, time.Time, bool) {
	var zero R
	ep, ok := o.epoch(ctx)
	if !ok {
		return zero, time.Time{}, false
	}
	k := o.recordKey(ep, skey)
	raw, ok, err := o.provider.Get(ctx, k)
	if err != nil {
		o.log.Warn("offload read failed", Fields{"key": skey, "err": err})
		return zero, time.Time{}, false
	}
	if !ok {
		return zero, time.Time{}, false
	}

	rec, err := wire.Decode(raw)
	if err != nil {
		o.reject(ctx, k, "corrupt")
		return zero, time.Time{}, false
	}
	if rec.Key != skey {
		o.reject(ctx, k, "key_mismatch")
		return zero, time.Time{}, false
	}
	cur, err := o.gens.Snapshot(ctx, o.genKey(skey))
	if err != nil {
		o.log.Warn("gen snapshot failed", Fields{"key": skey, "err": err})
		return zero, time.Time{}, false
	}
	if rec.Gen != cur {
		o.reject(ctx, k, "gen_mismatch")
		return zero, time.Time{}, false
	}
	v, err := o.codec.Decode(rec.Payload)
	if err != nil {
		o.reject(ctx, k, "value_decode")
		return zero, time.Time{}, false
	}
	if err := o.provider.Del(ctx, k); err != nil {
		o.log.Warn("offload delete failed", Fields{"key": skey, "err": err})
	}
	return v, rec.UpdatedAt, true
}

func (o *offloader[R]) reject(ctx context.Context, storageKey, reason string) {
	_ = o.provider.Del(ctx, storageKey) // self-heal
	o.hooks.OffloadRejected(storageKey, reason)
	o.log.Debug("offload record rejected", Fields{"storageKey": storageKey, "reason": reason})
}

// invalidate retires any record held for skey.
func (o *offloader[R]) invalidate(ctx context.Context, skey string) {
	g, err := o.gens.Bump(ctx, o.genKey(skey))
	if err != nil {
		o.log.Warn("gen bump failed", Fields{"key": skey, "err": err})
		return
	}
	if ep, ok := o.epoch(ctx); ok {
		_ = o.provider.Del(ctx, o.recordKey(ep, skey))
	}
	o.log.Debug("invalidated offloaded key", Fields{"key": skey, "gen": g})
}

// invalidateAll moves the namespace to a new epoch. Records under older
// epochs become unreachable and age out via the provider TTL.
func (o *offloader[R]) invalidateAll(ctx context.Context) {
	ep, err := o.gens.Bump(ctx, o.epochKey())
	if err != nil {
		o.log.Warn("epoch bump failed", Fields{"ns": o.ns, "err": err})
		return
	}
	o.log.Debug("offload epoch bumped", Fields{"ns": o.ns, "epoch": ep})
}

func (o *offloader[R]) close(ctx context.Context) error {
	var errs []error
	if o.ownGens {
		errs = append(errs, o.gens.Close(ctx))
	}
	errs = append(errs, o.provider.Close(ctx))
	return errors.Join(errs...)
}
