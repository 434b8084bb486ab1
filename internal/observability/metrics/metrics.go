package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling core.
type SchedulingMetrics struct {
	creationsTotal    *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	conflictsDetected prometheus.Counter
	remindersTotal    *prometheus.CounterVec
	slotComputeTime   prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		creationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "creations_total",
			Help:      "Appointment creation attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Status transitions by action and outcome",
		}, []string{"action", "outcome"}),
		conflictsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "conflicts_detected_total",
			Help:      "Individual conflicts found by the detector",
		}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "reminders_total",
			Help:      "Reminder dispatch results",
		}, []string{"outcome"}),
		slotComputeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slot_compute_seconds",
			Help:      "Latency of availability computations",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.creationsTotal, m.transitionsTotal, m.conflictsDetected, m.remindersTotal, m.slotComputeTime)
	return m
}

func (m *SchedulingMetrics) ObserveCreation(outcome string) {
	if m == nil {
		return
	}
	m.creationsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflictsDetected.Add(float64(n))
}

func (m *SchedulingMetrics) ObserveReminder(outcome string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveSlotCompute(seconds float64) {
	if m == nil {
		return
	}
	m.slotComputeTime.Observe(seconds)
}
