package live

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts reconciler activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	applied   *prometheus.CounterVec
	ignored   *prometheus.CounterVec
	malformed *prometheus.CounterVec
	loads     *prometheus.CounterVec
	replayed  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryoview",
			Subsystem: "reconciler",
			Name:      "events_applied_total",
			Help:      "Events that changed collection state.",
		}, []string{"collection", "kind"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryoview",
			Subsystem: "reconciler",
			Name:      "events_ignored_total",
			Help:      "Events absorbed as duplicates, out-of-order deliveries or failures.",
		}, []string{"collection", "kind", "reason"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryoview",
			Subsystem: "notify",
			Name:      "malformed_events_total",
			Help:      "Notifications dropped because they failed validation or parsing.",
		}, []string{"category"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryoview",
			Subsystem: "reconciler",
			Name:      "snapshot_loads_total",
			Help:      "Snapshot loads by outcome.",
		}, []string{"collection", "outcome"}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryoview",
			Subsystem: "reconciler",
			Name:      "events_replayed_total",
			Help:      "Buffered events replayed after a snapshot.",
		}, []string{"collection"}),
	}
	if reg != nil {
		reg.MustRegister(m.applied, m.ignored, m.malformed, m.loads, m.replayed)
	}
	return m
}

func (m *Metrics) eventApplied(collection string, kind Kind) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(collection, kind.String()).Inc()
}

func (m *Metrics) eventIgnored(collection string, kind Kind, reason string) {
	if m == nil {
		return
	}
	m.ignored.WithLabelValues(collection, kind.String(), reason).Inc()
}

// Malformed counts a dropped notification for category.
func (m *Metrics) Malformed(category string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(category).Inc()
}

func (m *Metrics) load(collection, outcome string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(collection, outcome).Inc()
}

func (m *Metrics) replay(collection string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.replayed.WithLabelValues(collection).Add(float64(n))
}
