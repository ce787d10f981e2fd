package meter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ineyio/batchgate"
)

const namespace = "batchgate"

// PromMeter exports engine events as Prometheus metrics.
type PromMeter struct {
	registry *prometheus.Registry

	admissions   *prometheus.CounterVec
	flushes      *prometheus.CounterVec
	batchSize    prometheus.Histogram
	results      *prometheus.CounterVec
	tokens       prometheus.Counter
	duration     *prometheus.HistogramVec
	quotaUsed    prometheus.Gauge
	quotaLimit   prometheus.Gauge
	quotaPercent prometheus.Gauge
	cacheEntries prometheus.Gauge
	sweepRemoved prometheus.Counter
}

var _ batchgate.Meter = (*PromMeter)(nil)

// NewPromMeter creates a PromMeter registered on the given registry.
// If registry is nil, a fresh one is created; retrieve it with Registry.
func NewPromMeter(registry *prometheus.Registry) *PromMeter {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &PromMeter{
		registry: registry,
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Submissions by admission outcome.",
			},
			[]string{"outcome"},
		),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushes_total",
				Help:      "Batch flushes by trigger.",
			},
			[]string{"trigger"},
		),
		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Number of requests per flushed batch.",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Settled executions by mode and status.",
			},
			[]string{"mode", "status"},
		),
		tokens: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_consumed_total",
				Help:      "Tokens charged against the daily quota.",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_seconds",
				Help:      "Backend processing time by mode.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		quotaUsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_used_tokens",
				Help:      "Tokens consumed in the current day.",
			},
		),
		quotaLimit: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_limit_tokens",
				Help:      "Configured daily token limit.",
			},
		),
		quotaPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_used_percent",
				Help:      "Share of the daily quota consumed, 0-100.",
			},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Cache entries remaining after the last sweep.",
			},
		),
		sweepRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_sweep_removed_total",
				Help:      "Expired cache entries removed by sweeps.",
			},
		),
	}

	registry.MustRegister(
		m.admissions,
		m.flushes,
		m.batchSize,
		m.results,
		m.tokens,
		m.duration,
		m.quotaUsed,
		m.quotaLimit,
		m.quotaPercent,
		m.cacheEntries,
		m.sweepRemoved,
	)

	return m
}

// Registry returns the registry the meter's collectors live on.
func (m *PromMeter) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PromMeter) OnAdmit(e batchgate.AdmitEvent) {
	m.admissions.WithLabelValues(string(e.Outcome)).Inc()
}

func (m *PromMeter) OnFlush(e batchgate.FlushEvent) {
	m.flushes.WithLabelValues(e.Trigger.String()).Inc()
	m.batchSize.Observe(float64(e.Size))
}

func (m *PromMeter) OnResult(e batchgate.ResultEvent) {
	status := "success"
	if !e.Success {
		status = "error"
	}
	m.results.WithLabelValues(e.Mode.String(), status).Inc()
	m.duration.WithLabelValues(e.Mode.String()).Observe(e.Duration.Seconds())
	if e.Success {
		m.tokens.Add(float64(e.Tokens))
	}
}

func (m *PromMeter) OnQuota(e batchgate.QuotaEvent) {
	m.quotaUsed.Set(float64(e.Stats.Used))
	m.quotaLimit.Set(float64(e.Stats.Limit))
	m.quotaPercent.Set(e.Stats.Percentage)
}

func (m *PromMeter) OnSweep(e batchgate.SweepEvent) {
	m.sweepRemoved.Add(float64(e.Removed))
	m.cacheEntries.Set(float64(e.Remaining))
}
