// Package otelhooks records querycache hook events as OpenTelemetry metrics.
//
//	hooks, err := otelhooks.New(otel.GetMeterProvider().Meter("querycache"), "users")
//
// Keys never become attributes; only the namespace and low-cardinality
// reasons do.
package otelhooks

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/querycache"
)

type Hooks struct {
	ns attribute.KeyValue

	hits      metric.Int64Counter
	joined    metric.Int64Counter
	started   metric.Int64Counter
	succeeded metric.Int64Counter
	failed    metric.Int64Counter
	discarded metric.Int64Counter
	canceled  metric.Int64Counter
	evicted   metric.Int64Counter
	rehydrate metric.Int64Counter
	rejected  metric.Int64Counter
	latency   metric.Float64Histogram
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(m metric.Meter, namespace string) (*Hooks, error) {
	h := &Hooks{ns: attribute.String("querycache.namespace", namespace)}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&h.hits, "querycache.hits", "Fresh results served without calling the producer"},
		{&h.joined, "querycache.fetch.joined", "Requests that joined an in-flight operation"},
		{&h.started, "querycache.fetch.started", "Producer operations started"},
		{&h.succeeded, "querycache.fetch.succeeded", "Operations whose result was applied"},
		{&h.failed, "querycache.fetch.failed", "Operations that failed"},
		{&h.discarded, "querycache.fetch.discarded", "Completions dropped because a newer operation superseded them"},
		{&h.canceled, "querycache.fetch.canceled", "Operations cancelled before completing"},
		{&h.evicted, "querycache.entries.evicted", "Idle entries removed from the table"},
		{&h.rehydrate, "querycache.entries.rehydrated", "Entries restored from the offload tier"},
		{&h.rejected, "querycache.offload.rejected", "Offloaded records deleted on read"},
	}
	for _, c := range counters {
		ctr, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("otelhooks: %s: %w", c.name, err)
		}
		*c.dst = ctr
	}
	lat, err := m.Float64Histogram("querycache.fetch.duration",
		metric.WithDescription("Producer latency of applied operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("otelhooks: querycache.fetch.duration: %w", err)
	}
	h.latency = lat
	return h, nil
}

func (h *Hooks) add(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(context.Background(), 1, metric.WithAttributes(append(attrs, h.ns)...))
}

func (h *Hooks) CacheHit(string)             { h.add(h.hits) }
func (h *Hooks) FetchJoined(string, uint64)  { h.add(h.joined) }
func (h *Hooks) FetchStarted(string, uint64) { h.add(h.started) }

func (h *Hooks) FetchSucceeded(_ string, _ uint64, elapsed time.Duration) {
	h.add(h.succeeded)
	h.latency.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(h.ns))
}

func (h *Hooks) FetchFailed(string, uint64, error)          { h.add(h.failed) }
func (h *Hooks) CompletionDiscarded(string, uint64, uint64) { h.add(h.discarded) }

func (h *Hooks) OperationCanceled(_ string, _ uint64, reason string) {
	h.add(h.canceled, attribute.String("reason", reason))
}

func (h *Hooks) EntryEvicted(_ string, offloaded bool) {
	h.add(h.evicted, attribute.Bool("offloaded", offloaded))
}

func (h *Hooks) EntryRehydrated(string) { h.add(h.rehydrate) }

func (h *Hooks) OffloadRejected(_ string, reason string) {
	h.add(h.rejected, attribute.String("reason", reason))
}
