// Package metrics exposes Prometheus collectors for the pipeline plus a
// small health snapshot for the status endpoints.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "worldnews"

type Metrics struct {
	StoriesFetched  prometheus.Counter
	DuplicatesFound prometheus.Counter
	SourceFailures  *prometheus.CounterVec
	Stages          *prometheus.CounterVec
	PublishAttempts *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	LastRunTime     prometheus.Gauge

	mu            sync.RWMutex
	lastRun       time.Time
	lastErrorTime time.Time
	lastError     string
	healthy       bool
	cycles        int64
	published     int64
	failed        int64
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StoriesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stories_fetched_total",
			Help:      "Normalized stories returned by news sources",
		}),
		DuplicatesFound: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_filtered_total",
			Help:      "Stories dropped as duplicates",
		}),
		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Failed source fetches",
		}, []string{"source"}),
		Stages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synth_stage_total",
			Help:      "Content synthesis stage outcomes",
		}, []string{"stage", "outcome"}),
		PublishAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_attempts_total",
			Help:      "Publish attempts by outcome",
		}, []string{"outcome"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full news cycle",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		}),
		LastRunTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed cycle",
		}),
		healthy: true,
	}
}

func (m *Metrics) RecordStage(stage, outcome string) {
	m.Stages.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) RecordPublish(success bool) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	m.PublishAttempts.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.published++
	} else {
		m.failed++
	}
}

// RecordCycle marks a finished cycle. A nil err clears the unhealthy flag;
// otherwise err becomes the last error and the flag is set.
func (m *Metrics) RecordCycle(finished time.Time, took time.Duration, err error) {
	m.CycleDuration.Observe(took.Seconds())
	m.LastRunTime.Set(float64(finished.Unix()))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
	m.lastRun = finished
	if err != nil {
		m.lastError = err.Error()
		m.lastErrorTime = time.Now()
		m.healthy = false
		return
	}
	m.healthy = true
}

func (m *Metrics) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

func (m *Metrics) GetStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]any{
		"cycles":          m.cycles,
		"posts_published": m.published,
		"posts_failed":    m.failed,
		"last_error":      m.lastError,
		"is_healthy":      m.healthy,
	}
	if !m.lastRun.IsZero() {
		stats["last_run_time"] = m.lastRun.Format(time.RFC3339)
	}
	if !m.lastErrorTime.IsZero() {
		stats["last_error_time"] = m.lastErrorTime.Format(time.RFC3339)
	}
	return stats
}
