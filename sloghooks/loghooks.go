// Package sloghooks logs querycache hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/querycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery     uint64
	DiscardEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix; use
	// func(k string) string { return k } to log keys verbatim.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr     atomic.Uint64
	discardCtr atomic.Uint64
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CacheHit(key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("querycache.hit", "key", h.redact(key))
}

func (h *Hooks) FetchJoined(key string, gen uint64) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.fetch_joined", "key", h.redact(key), "gen", gen)
}

func (h *Hooks) FetchStarted(key string, gen uint64) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.fetch_started", "key", h.redact(key), "gen", gen)
}

func (h *Hooks) FetchSucceeded(key string, gen uint64, elapsed time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.fetch_succeeded",
		"key", h.redact(key),
		"gen", gen,
		"elapsed", elapsed)
}

func (h *Hooks) FetchFailed(key string, gen uint64, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.fetch_failed",
		"key", h.redact(key),
		"gen", gen,
		"err", err)
}

func (h *Hooks) CompletionDiscarded(key string, gen, current uint64) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("querycache.completion_discarded",
		"key", h.redact(key),
		"gen", gen,
		"current", current)
}

func (h *Hooks) OperationCanceled(key string, gen uint64, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.operation_canceled",
		"key", h.redact(key),
		"gen", gen,
		"reason", reason)
}

func (h *Hooks) EntryEvicted(key string, offloaded bool) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.entry_evicted", "key", h.redact(key), "offloaded", offloaded)
}

func (h *Hooks) EntryRehydrated(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.entry_rehydrated", "key", h.redact(key))
}

func (h *Hooks) OffloadRejected(storageKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.offload_rejected",
		"key", h.redact(storageKey),
		"reason", reason)
}
