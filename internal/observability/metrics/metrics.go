package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the disclosure engine.
type EngineMetrics struct {
	queriesTotal          *prometheus.CounterVec
	classificationLatency *prometheus.HistogramVec
	blocksRevealed        *prometheus.CounterVec
	generationFallbacks   prometheus.Counter
	biasWarnings          *prometheus.CounterVec
	sessionsStarted       prometheus.Counter
	sessionsEnded         prometheus.Counter
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinsim",
			Subsystem: "engine",
			Name:      "queries_total",
			Help:      "Total trainee queries processed",
		}, []string{"context", "outcome"}),
		classificationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinsim",
			Subsystem: "engine",
			Name:      "classification_latency_seconds",
			Help:      "Latency of intent classification",
			Buckets:   prometheus.DefBuckets,
		}, []string{"context"}),
		blocksRevealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinsim",
			Subsystem: "engine",
			Name:      "blocks_revealed_total",
			Help:      "Total information blocks revealed",
		}, []string{"trigger_type"}),
		generationFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinsim",
			Subsystem: "engine",
			Name:      "generation_fallbacks_total",
			Help:      "Persona generations that degraded to deterministic text",
		}),
		biasWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinsim",
			Subsystem: "engine",
			Name:      "bias_warnings_total",
			Help:      "Bias warnings surfaced to trainees",
		}, []string{"type"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinsim",
			Subsystem: "engine",
			Name:      "sessions_started_total",
			Help:      "Interview sessions started",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinsim",
			Subsystem: "engine",
			Name:      "sessions_ended_total",
			Help:      "Interview sessions ended",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.queriesTotal,
		m.classificationLatency,
		m.blocksRevealed,
		m.generationFallbacks,
		m.biasWarnings,
		m.sessionsStarted,
		m.sessionsEnded,
	)
	return m
}

func (m *EngineMetrics) ObserveQuery(context, outcome string) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(context, outcome).Inc()
}

func (m *EngineMetrics) ObserveClassificationLatency(context string, seconds float64) {
	if m == nil {
		return
	}
	m.classificationLatency.WithLabelValues(context).Observe(seconds)
}

func (m *EngineMetrics) ObserveReveal(triggerType string) {
	if m == nil {
		return
	}
	m.blocksRevealed.WithLabelValues(triggerType).Inc()
}

func (m *EngineMetrics) ObserveGenerationFallback() {
	if m == nil {
		return
	}
	m.generationFallbacks.Inc()
}

func (m *EngineMetrics) ObserveBiasWarning(biasType string) {
	if m == nil {
		return
	}
	m.biasWarnings.WithLabelValues(biasType).Inc()
}

func (m *EngineMetrics) ObserveSessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *EngineMetrics) ObserveSessionEnded() {
	if m == nil {
		return
	}
	m.sessionsEnded.Inc()
}
