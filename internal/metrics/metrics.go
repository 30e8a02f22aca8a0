// Package metrics exposes Midnight's operational counters and gauges to
// Prometheus: one *prometheus.Registry, one struct field per instrument,
// grouped init helpers, scoped to the handful of series record_metric
// and the orchestrator's status surface actually need.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus instrument Midnight records against.
type Metrics struct {
	registry *prometheus.Registry

	tasksCompleted   prometheus.Counter
	tasksFailed      prometheus.Counter
	tasksLocked      prometheus.Counter
	sentinelVerdicts *prometheus.CounterVec // label: result=pass|fail|veto
	sentinelScore    prometheus.Histogram
	agentLoopRetries prometheus.Histogram
	snapshotsTaken   prometheus.Counter
	cooldownsActive  prometheus.Gauge
	confidenceScore  prometheus.Gauge
	projectsActive   prometheus.Gauge
	custom           *prometheus.GaugeVec // free-form record_metric(name, value, ...) sink
}

// New builds a Metrics instance registered against a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.tasksCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "midnight", Name: "tasks_completed_total", Help: "Tasks that reached a passing Sentinel verdict.",
	})
	m.tasksFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "midnight", Name: "tasks_failed_total", Help: "Tasks that failed with a non-recoverable actor error.",
	})
	m.tasksLocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "midnight", Name: "tasks_locked_total", Help: "Tasks locked after exhausting max_retries.",
	})
	m.sentinelVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "midnight", Name: "sentinel_verdicts_total", Help: "Sentinel verdicts by result.",
	}, []string{"result"})
	m.sentinelScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "midnight", Name: "sentinel_quality_score", Help: "Distribution of Sentinel quality scores.",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 95, 100},
	})
	m.agentLoopRetries = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "midnight", Name: "agent_loop_attempts", Help: "Actor/Sentinel attempts consumed per task.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
	m.snapshotsTaken = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "midnight", Name: "snapshots_taken_total", Help: "State snapshots persisted.",
	})
	m.cooldownsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "midnight", Name: "cooldowns_active", Help: "Providers currently in cooldown.",
	})
	m.confidenceScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "midnight", Name: "confidence_score", Help: "Current weighted confidence score (0-100).",
	})
	m.projectsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "midnight", Name: "projects_active", Help: "1 while a project is being driven, else 0.",
	})
	m.custom = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "midnight", Name: "custom_metric", Help: "Free-form metrics recorded via record_metric.",
	}, []string{"name", "project_id"})

	m.registry.MustRegister(
		m.tasksCompleted, m.tasksFailed, m.tasksLocked, m.sentinelVerdicts,
		m.sentinelScore, m.agentLoopRetries, m.snapshotsTaken, m.cooldownsActive,
		m.confidenceScore, m.projectsActive, m.custom,
	)
	return m
}

// Registry exposes the underlying registry for an HTTP handler to serve.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) TaskCompleted()             { m.tasksCompleted.Inc() }
func (m *Metrics) TaskFailed()                { m.tasksFailed.Inc() }
func (m *Metrics) TaskLocked()                { m.tasksLocked.Inc() }
func (m *Metrics) SentinelVerdict(result string) { m.sentinelVerdicts.WithLabelValues(result).Inc() }
func (m *Metrics) SentinelScore(score float64)   { m.sentinelScore.Observe(score) }
func (m *Metrics) AgentLoopAttempts(n int)       { m.agentLoopRetries.Observe(float64(n)) }
func (m *Metrics) SnapshotTaken()                { m.snapshotsTaken.Inc() }
func (m *Metrics) SetCooldownsActive(n int)      { m.cooldownsActive.Set(float64(n)) }
func (m *Metrics) SetConfidenceScore(score int)  { m.confidenceScore.Set(float64(score)) }
func (m *Metrics) SetProjectActive(active bool) {
	if active {
		m.projectsActive.Set(1)
		return
	}
	m.projectsActive.Set(0)
}

// RecordMetric is the free-form sink the state engine's record_metric
// call feeds into, in addition to its durable row.
func (m *Metrics) RecordMetric(name string, value float64, projectID string) {
	m.custom.WithLabelValues(name, projectID).Set(value)
}
