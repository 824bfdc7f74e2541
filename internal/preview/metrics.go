package preview

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks preview orchestration counters for observability
type Metrics struct {
	sessionsStarted prometheus.Counter
	sessionsRunning prometheus.Gauge
	startFailures   *prometheus.CounterVec
	patchAttempts   prometheus.Counter
	patchSuccesses  prometheus.Counter
	portsReaped     prometheus.Counter
	stopsRequested  prometheus.Counter
	startDurations  prometheus.Histogram
	allocatedPorts  prometheus.Gauge
	prematureExits  prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		sessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "sessions_started_total",
			Help:      "Number of preview start attempts",
		}),
		sessionsRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "sessions_running",
			Help:      "Number of preview sessions currently running",
		}),
		startFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "start_failures_total",
			Help:      "Preview start failures by kind",
		}, []string{"kind"}),
		patchAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "patch_attempts_total",
			Help:      "Number of auto-patch retry attempts",
		}),
		patchSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "patch_successes_total",
			Help:      "Number of auto-patch retries that produced a running preview",
		}),
		portsReaped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "orphan_ports_reaped_total",
			Help:      "Number of orphaned port reservations reclaimed",
		}),
		stopsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "stops_requested_total",
			Help:      "Number of stop requests",
		}),
		startDurations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "start_duration_seconds",
			Help:      "Wall time of start calls including grace waits",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21},
		}),
		allocatedPorts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "allocated_ports",
			Help:      "Number of ports currently reserved by sessions",
		}),
		prematureExits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "premature_exits_total",
			Help:      "Number of processes that exited within the grace window",
		}),
	}
}

// All recorder methods tolerate a nil receiver so the registry can run
// without metrics in tests.

func (m *Metrics) recordStart() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) recordRunning(delta float64) {
	if m == nil {
		return
	}
	m.sessionsRunning.Add(delta)
}

func (m *Metrics) recordFailure(kind string) {
	if m == nil {
		return
	}
	m.startFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordPatchAttempt() {
	if m == nil {
		return
	}
	m.patchAttempts.Inc()
}

func (m *Metrics) recordPatchSuccess() {
	if m == nil {
		return
	}
	m.patchSuccesses.Inc()
}

func (m *Metrics) recordPortsReaped(n int) {
	if m == nil {
		return
	}
	m.portsReaped.Add(float64(n))
}

func (m *Metrics) recordStop() {
	if m == nil {
		return
	}
	m.stopsRequested.Inc()
}

func (m *Metrics) recordStartDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.startDurations.Observe(d.Seconds())
}

func (m *Metrics) recordAllocatedPorts(n int) {
	if m == nil {
		return
	}
	m.allocatedPorts.Set(float64(n))
}

func (m *Metrics) recordPrematureExit() {
	if m == nil {
		return
	}
	m.prematureExits.Inc()
}
