package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Stage outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeFallback = "fallback"
)

// Metrics holds Prometheus collectors for the query pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	StageDuration  *prometheus.HistogramVec
	StageFailures  *prometheus.CounterVec
	Candidates     *prometheus.HistogramVec
	Confidence     *prometheus.HistogramVec
	Questions      *prometheus.CounterVec
	NameCacheSize  prometheus.Gauge
	GenerationCost prometheus.Counter
}

// NewMetrics creates and registers the pipeline collectors on the default registry.
// Registration happens once per process; later calls return the same collectors.
//
// Metrics:
//   - aurora_stage_duration_seconds{stage,outcome}
//   - aurora_stage_failures_total{stage,outcome}
//   - aurora_stage_candidates{stage}
//   - aurora_answer_confidence{category}
//   - aurora_questions_total{category}
//   - aurora_name_cache_entities
//   - aurora_generation_cost_usd_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "aurora_stage_duration_seconds",
					Help:    "Duration of each query pipeline stage in seconds",
					Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"stage", "outcome"},
			),
			StageFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aurora_stage_failures_total",
					Help: "Pipeline stages that failed, timed out or fell back",
				},
				[]string{"stage", "outcome"},
			),
			Candidates: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "aurora_stage_candidates",
					Help:    "Number of candidate passages leaving a stage",
					Buckets: []float64{0, 1, 5, 10, 30, 50, 100, 250, 500, 1000},
				},
				[]string{"stage"},
			),
			Confidence: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "aurora_answer_confidence",
					Help:    "Confidence of produced answers",
					Buckets: prometheus.LinearBuckets(0, 0.1, 11),
				},
				[]string{"category"},
			),
			Questions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aurora_questions_total",
					Help: "Questions answered, by classified category",
				},
				[]string{"category"},
			),
			NameCacheSize: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "aurora_name_cache_entities",
				Help: "Entities held in the name resolver cache",
			}),
			GenerationCost: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aurora_generation_cost_usd_total",
				Help: "Estimated generative model spend in USD",
			}),
		}
	})
	return globalMetrics
}

// ObserveStage records a stage duration and counts anything other than success as a failure.
func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
	if outcome != OutcomeOK {
		m.StageFailures.WithLabelValues(stage, outcome).Inc()
	}
}

// ObserveCandidates records how many candidates a stage produced.
func (m *Metrics) ObserveCandidates(stage string, n int) {
	if m == nil {
		return
	}
	m.Candidates.WithLabelValues(stage).Observe(float64(n))
}

// ObserveAnswer records the category, confidence and cost of a completed answer.
func (m *Metrics) ObserveAnswer(category string, confidence, costUSD float64) {
	if m == nil {
		return
	}
	m.Questions.WithLabelValues(category).Inc()
	m.Confidence.WithLabelValues(category).Observe(confidence)
	if costUSD > 0 {
		m.GenerationCost.Add(costUSD)
	}
}

// SetNameCacheSize publishes the resolver cache size.
func (m *Metrics) SetNameCacheSize(n int) {
	if m == nil {
		return
	}
	m.NameCacheSize.Set(float64(n))
}
