// Package metrics exposes Prometheus collectors for the provider pipeline.
// All methods are nil-safe so components can run without metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "music_enricher"

// Metrics holds the collectors shared by queues, caches, provider clients and
// the reconciler.
type Metrics struct {
	QueueDispatches *prometheus.CounterVec
	QueueDropped    *prometheus.CounterVec
	QueueCooldowns  *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	CacheEvictions  *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	ProviderErrors  *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	Events          *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "dispatches_total",
			Help: "Tasks dispatched by a provider queue.",
		}, []string{"provider"}),
		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "dropped_total",
			Help: "Tasks rejected because the queue was saturated.",
		}, []string{"provider"}),
		QueueCooldowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "cooldowns_total",
			Help: "Cooldowns requested after provider throttling.",
		}, []string{"provider"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "pending",
			Help: "Tasks waiting in a provider queue.",
		}, []string{"provider"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Response cache hits.",
		}, []string{"provider"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Response cache misses.",
		}, []string{"provider"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Response cache evictions by reason.",
		}, []string{"provider", "reason"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "provider", Name: "retries_total",
			Help: "Retried provider calls.",
		}, []string{"provider"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "provider", Name: "errors_total",
			Help: "Provider call failures by class.",
		}, []string{"provider", "class"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconciler", Name: "outcomes_total",
			Help: "Identification outcomes per provider.",
		}, []string{"provider", "outcome"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "events_total",
			Help: "Invalidation events sent.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.QueueDispatches, m.QueueDropped, m.QueueCooldowns, m.QueueDepth,
			m.CacheHits, m.CacheMisses, m.CacheEvictions,
			m.Retries, m.ProviderErrors, m.Outcomes, m.Events,
		)
	}
	return m
}

func (m *Metrics) Dispatched(provider string) {
	if m == nil {
		return
	}
	m.QueueDispatches.WithLabelValues(provider).Inc()
}

func (m *Metrics) Dropped(provider string) {
	if m == nil {
		return
	}
	m.QueueDropped.WithLabelValues(provider).Inc()
}

func (m *Metrics) Cooldown(provider string) {
	if m == nil {
		return
	}
	m.QueueCooldowns.WithLabelValues(provider).Inc()
}

func (m *Metrics) SetQueueDepth(provider string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(provider).Set(float64(n))
}

func (m *Metrics) CacheHit(provider string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(provider).Inc()
}

func (m *Metrics) CacheMiss(provider string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(provider).Inc()
}

func (m *Metrics) CacheEvicted(provider, reason string) {
	if m == nil {
		return
	}
	m.CacheEvictions.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) Retried(provider string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(provider).Inc()
}

func (m *Metrics) ProviderError(provider, class string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, class).Inc()
}

func (m *Metrics) Outcome(provider, outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) EventSent(eventType string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(eventType).Inc()
}
