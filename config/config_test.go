package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/provider/bigcache"
	"github.com/unkn0wn-root/querycache/provider/ristretto"
)

const full = `
namespace: users
stale_time: 1d12h
error_data: clear
orphans: cancel
retry:
  max_attempts: 4
  initial_interval: 50ms
  max_interval: 2s
  multiplier: 1.5
eviction:
  after: 10m
  sweep_interval: 30s
offload:
  provider: ristretto
  codec: msgpack
  ttl: 1w
  max_decode: 1024
  ristretto:
    num_counters: 1000
    max_cost: 1048576
`

type user struct {
	ID   int
	Name string
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(full))
	require.NoError(t, err)
	assert.Equal(t, "users", cfg.Namespace)
	assert.Equal(t, 36*time.Hour, cfg.StaleTime.Std())
	assert.Equal(t, uint(4), cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialInterval.Std())
	assert.Equal(t, 10*time.Minute, cfg.Eviction.After.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.Offload.TTL.Std())
	assert.Equal(t, int64(1000), cfg.Offload.Ristretto.NumCounters)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "namespace: a\nbogus: 1\n",
		"bad duration":     "stale_time: soon\n",
		"bad policy":       "orphans: maybe\n",
		"bad provider":     "offload:\n  provider: redis\n",
		"bad codec":        "offload:\n  provider: bigcache\n  codec: xml\n",
		"small multiplier": "retry:\n  multiplier: 0.5\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("orphans: maybe\n"))
	assert.True(t, errors.Is(err, ErrUnknownValue))
}

func TestNeverDuration(t *testing.T) {
	cfg, err := Parse([]byte("stale_time: never\n"))
	require.NoError(t, err)
	assert.Equal(t, querycache.NeverStale, cfg.StaleTime.Std())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "stale_time: never")
}

func TestApply(t *testing.T) {
	cfg, err := Parse([]byte(full))
	require.NoError(t, err)

	opts := querycache.Options[int, user]{StaleTime: time.Second}
	require.NoError(t, Apply(cfg, &opts))

	assert.Equal(t, "users", opts.Namespace)
	assert.Equal(t, 36*time.Hour, opts.StaleTime)
	assert.Equal(t, querycache.ClearDataOnError, opts.ErrorData)
	assert.Equal(t, querycache.CancelOrphans, opts.Orphans)
	require.NotNil(t, opts.Retry)
	assert.Equal(t, 1.5, opts.Retry.Multiplier)
	assert.Equal(t, 30*time.Second, opts.SweepInterval)

	require.NotNil(t, opts.Offload)
	assert.IsType(t, &ristretto.Provider{}, opts.Offload.Provider)
	lim, ok := opts.Offload.Codec.(codec.Limit[user])
	require.True(t, ok)
	assert.IsType(t, codec.Msgpack[user]{}, lim.Inner)
	assert.Equal(t, 1024, lim.MaxDecode)

	// the configured options drive a working cache
	c, err := querycache.New(func(_ context.Context, id int) (user, error) {
		return user{ID: id, Name: "u"}, nil
	}, opts)
	require.NoError(t, err)
	v, err := c.Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, v.ID)
	require.NoError(t, c.Close(context.Background()))
}

func TestApplyKeepsExistingCodec(t *testing.T) {
	cfg, err := Parse([]byte("offload:\n  provider: bigcache\n  ttl: 5m\n"))
	require.NoError(t, err)

	opts := querycache.Options[string, string]{
		Offload: &querycache.OffloadOptions[string]{Codec: codec.String{}},
	}
	require.NoError(t, Apply(cfg, &opts))
	assert.IsType(t, codec.String{}, opts.Offload.Codec)
	assert.IsType(t, &bigcache.Provider{}, opts.Offload.Provider)
	assert.Equal(t, 5*time.Minute, opts.Offload.TTL)
	require.NoError(t, opts.Offload.Provider.Close(context.Background()))
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(p, []byte("namespace: x\nstale_time: 2m\n"), 0o600))
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Namespace)
	assert.Equal(t, 2*time.Minute, cfg.StaleTime.Std())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
