// Package metrics bundles the gateway's Prometheus instruments.
//
// A nil *Collector is valid and records nothing, so every call site can
// instrument unconditionally while metrics stay optional at deployment
// level.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the instrument set for admission, dispatch and session
// lifecycle events.
type Collector struct {
	admissions     *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	candidates     prometheus.Histogram
	activeSessions *prometheus.GaugeVec
	sessionSeconds prometheus.Histogram
	throttled      prometheus.Counter
}

// NewCollector registers the instrument set with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	return &Collector{
		admissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "conngate_admissions_total",
				Help: "Session slots granted, by scope kind",
			},
			[]string{"kind"}, // "group", "connection"
		),
		rejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "conngate_rejections_total",
				Help: "Connection requests refused, by rejection reason",
			},
			[]string{"reason"},
		),
		candidates: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conngate_dispatch_candidates_tried",
				Help:    "Candidates attempted per balancing dispatch before success or exhaustion",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		activeSessions: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conngate_active_sessions",
				Help: "Currently active sessions per scope identifier",
			},
			[]string{"scope"},
		),
		sessionSeconds: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "conngate_session_duration_seconds",
				Help: "Distribution of established session lifetimes",
				Buckets: []float64{
					1,     // immediate failures
					10,    // short probes
					60,    // 1m
					300,   // 5m
					1800,  // 30m
					3600,  // 1h
					14400, // 4h
					86400, // 1d
				},
			},
		),
		throttled: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "conngate_connect_throttled_total",
				Help: "Connection attempts refused by the per-user throttle before admission",
			},
		),
	}
}

// RecordAdmission counts one granted slot for the scope kind.
func (m *Collector) RecordAdmission(kind string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(kind).Inc()
}

// RecordRejection counts one refusal by reason label.
func (m *Collector) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// ObserveCandidatesTried records how many children a balancing dispatch
// attempted.
func (m *Collector) ObserveCandidatesTried(n int) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(n))
}

// SetActiveSessions publishes the current active count for a scope.
func (m *Collector) SetActiveSessions(scopeID string, n int) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(scopeID).Set(float64(n))
}

// ObserveSessionDuration records the lifetime of a closed session.
func (m *Collector) ObserveSessionDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sessionSeconds.Observe(d.Seconds())
}

// RecordThrottled counts one attempt refused by the connect throttle.
func (m *Collector) RecordThrottled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}
