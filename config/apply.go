package config

import (
	"time"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/bigcache"
	"github.com/unkn0wn-root/querycache/provider/ristretto"
)

const (
	neverStale       = querycache.NeverStale
	defaultOffloadTT = 10 * time.Minute
)

// Apply copies every setting present in cfg onto o. Fields cfg leaves unset
// keep whatever o already holds. When cfg enables offloading and o carries no
// codec, the named one is built; an existing o.Offload.Codec (e.g. a protobuf
// codec) is kept and only wrapped by the decode limit.
func Apply[A comparable, R any](cfg *Config, o *querycache.Options[A, R]) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Namespace != "" {
		o.Namespace = cfg.Namespace
	}
	if cfg.StaleTime != 0 {
		o.StaleTime = cfg.StaleTime.Std()
	}
	switch cfg.ErrorData {
	case "keep":
		o.ErrorData = querycache.KeepDataOnError
	case "clear":
		o.ErrorData = querycache.ClearDataOnError
	}
	switch cfg.Orphans {
	case "keep":
		o.Orphans = querycache.KeepOrphans
	case "cancel":
		o.Orphans = querycache.CancelOrphans
	}
	if r := cfg.Retry; r != nil {
		rp := querycache.RetryPolicy{}
		if o.Retry != nil {
			rp = *o.Retry
		}
		if r.MaxAttempts != 0 {
			rp.MaxAttempts = r.MaxAttempts
		}
		if r.InitialInterval != 0 {
			rp.InitialInterval = r.InitialInterval.Std()
		}
		if r.MaxInterval != 0 {
			rp.MaxInterval = r.MaxInterval.Std()
		}
		if r.Multiplier != 0 {
			rp.Multiplier = r.Multiplier
		}
		o.Retry = &rp
	}
	if cfg.Eviction.After != 0 {
		o.EvictAfter = cfg.Eviction.After.Std()
	}
	if cfg.Eviction.SweepInterval != 0 {
		o.SweepInterval = cfg.Eviction.SweepInterval.Std()
	}
	if cfg.Offload != nil {
		return applyOffload(cfg.Offload, o)
	}
	return nil
}

func applyOffload[A comparable, R any](c *Offload, o *querycache.Options[A, R]) error {
	off := querycache.OffloadOptions[R]{}
	if o.Offload != nil {
		off = *o.Offload
	}
	if c.TTL != 0 {
		off.TTL = c.TTL.Std()
	}

	if off.Codec == nil {
		cd, err := namedCodec[R](c.Codec)
		if err != nil {
			return err
		}
		off.Codec = cd
	}
	if c.MaxDecode > 0 {
		off.Codec = codec.Limit[R]{Inner: off.Codec, MaxDecode: c.MaxDecode}
	}

	p, err := newProvider(c, off.TTL)
	if err != nil {
		return err
	}
	off.Provider = p
	o.Offload = &off
	return nil
}

func namedCodec[R any](name string) (codec.Codec[R], error) {
	switch name {
	case "", "json":
		return codec.JSON[R]{}, nil
	case "msgpack":
		return codec.Msgpack[R]{}, nil
	case "cbor":
		return codec.NewCBOR[R](false)
	case "cbor-deterministic":
		return codec.NewCBOR[R](true)
	}
	return nil, ErrUnknownValue
}

func newProvider(c *Offload, ttl time.Duration) (provider.Provider, error) {
	if ttl <= 0 {
		ttl = defaultOffloadTT
	}
	switch c.Provider {
	case "bigcache":
		return bigcache.New(bigcache.Config{
			LifeWindow:         ttl,
			Shards:             c.BigCache.Shards,
			MaxEntrySize:       c.BigCache.MaxEntrySize,
			HardMaxCacheSizeMB: c.BigCache.HardMaxCacheSizeMB,
		})
	case "ristretto":
		r := c.Ristretto
		if r.NumCounters == 0 {
			r.NumCounters = 1e5
		}
		if r.MaxCost == 0 {
			r.MaxCost = 64 << 20
		}
		return ristretto.New(ristretto.Config{
			NumCounters: r.NumCounters,
			MaxCost:     r.MaxCost,
			BufferItems: r.BufferItems,
		})
	}
	return nil, ErrUnknownValue
}
