// Package config loads querycache settings from YAML.
//
//	namespace: users
//	stale_time: 30s           # "never" keeps results until invalidated
//	error_data: keep          # keep | clear
//	orphans: cancel           # keep | cancel
//	retry:
//	  max_attempts: 4
//	  initial_interval: 50ms
//	  max_interval: 2s
//	eviction:
//	  after: 10m
//	  sweep_interval: 1m
//	offload:
//	  provider: ristretto     # bigcache | ristretto
//	  codec: msgpack          # json | msgpack | cbor | cbor-deterministic
//	  ttl: 1h
//	  max_decode: 1048576
//	  ristretto:
//	    num_counters: 100000
//	    max_cost: 67108864
//
// Durations accept days and weeks ("1d12h", "2w") besides time.ParseDuration syntax.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

var ErrUnknownValue = errors.New("config: unknown value")

// Duration is a time.Duration that unmarshals from human strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "never") {
		*d = Duration(neverStale)
		return nil
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: line %d: invalid duration %q: %w", value.Line, s, err)
	}
	if v < 0 {
		return fmt.Errorf("config: line %d: negative duration %q", value.Line, s)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	if time.Duration(d) == neverStale {
		return "never", nil
	}
	return str2duration.String(time.Duration(d)), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Namespace string   `yaml:"namespace,omitempty"`
	StaleTime Duration `yaml:"stale_time,omitempty"`
	ErrorData string   `yaml:"error_data,omitempty"`
	Orphans   string   `yaml:"orphans,omitempty"`
	Retry     *Retry   `yaml:"retry,omitempty"`
	Eviction  Eviction `yaml:"eviction,omitempty"`
	Offload   *Offload `yaml:"offload,omitempty"`
}

type Retry struct {
	MaxAttempts     uint     `yaml:"max_attempts,omitempty"`
	InitialInterval Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     Duration `yaml:"max_interval,omitempty"`
	Multiplier      float64  `yaml:"multiplier,omitempty"`
}

type Eviction struct {
	After         Duration `yaml:"after,omitempty"`
	SweepInterval Duration `yaml:"sweep_interval,omitempty"`
}

type Offload struct {
	Provider  string    `yaml:"provider"`
	Codec     string    `yaml:"codec,omitempty"`
	TTL       Duration  `yaml:"ttl,omitempty"`
	MaxDecode int       `yaml:"max_decode,omitempty"`
	BigCache  BigCache  `yaml:"bigcache,omitempty"`
	Ristretto Ristretto `yaml:"ristretto,omitempty"`
}

type BigCache struct {
	Shards             int `yaml:"shards,omitempty"`
	MaxEntrySize       int `yaml:"max_entry_size,omitempty"`
	HardMaxCacheSizeMB int `yaml:"hard_max_cache_size_mb,omitempty"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters,omitempty"`
	MaxCost     int64 `yaml:"max_cost,omitempty"`
	BufferItems int64 `yaml:"buffer_items,omitempty"`
}

// Parse decodes a YAML document. Unknown fields are rejected.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

func (c *Config) Validate() error {
	switch c.ErrorData {
	case "", "keep", "clear":
	default:
		return fmt.Errorf("%w: error_data %q", ErrUnknownValue, c.ErrorData)
	}
	switch c.Orphans {
	case "", "keep", "cancel":
	default:
		return fmt.Errorf("%w: orphans %q", ErrUnknownValue, c.Orphans)
	}
	if c.Retry != nil && c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		return fmt.Errorf("config: retry multiplier %v must be >= 1", c.Retry.Multiplier)
	}
	if o := c.Offload; o != nil {
		switch o.Provider {
		case "bigcache", "ristretto":
		default:
			return fmt.Errorf("%w: offload provider %q", ErrUnknownValue, o.Provider)
		}
		switch o.Codec {
		case "", "json", "msgpack", "cbor", "cbor-deterministic":
		default:
			return fmt.Errorf("%w: offload codec %q", ErrUnknownValue, o.Codec)
		}
	}
	return nil
}
