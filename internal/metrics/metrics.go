// Package metrics exposes Prometheus metrics and a /healthz endpoint for
// the indicator pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the service updates.
type Metrics struct {
	// Pipeline
	AssetsProcessed *prometheus.CounterVec // labels: status=success|partial|failed
	ComputeDur      prometheus.Histogram   // per-asset compute + detect
	RunDur          prometheus.Histogram   // whole batch
	PointsTotal     prometheus.Counter
	SnapshotsTotal  prometheus.Counter
	PatternEvents   *prometheus.CounterVec // labels: kind
	SinkErrors      *prometheus.CounterVec // labels: sink
	LastRun         prometheus.Gauge       // unix seconds of the last finished batch
	CheckpointHits  *prometheus.CounterVec // labels: result=restored|cold|invalidated

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBufferedWrites      prometheus.Counter

	// Delivery
	AlertsSent *prometheus.CounterVec // labels: backend, result=ok|error
	WSClients  prometheus.Gauge

	// Calendar
	MarketState prometheus.Gauge // 1 when today is a trading day
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AssetsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depo_assets_processed_total",
			Help: "Assets processed by the pipeline, by outcome",
		}, []string{"status"}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depo_asset_compute_duration_seconds",
			Help:    "Per-asset indicator computation and pattern detection latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		RunDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depo_batch_duration_seconds",
			Help:    "Wall time of a full refresh batch",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		PointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depo_price_points_total",
			Help: "Price points fed into the engine",
		}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depo_snapshots_total",
			Help: "Indicator snapshots produced",
		}),
		PatternEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depo_pattern_events_total",
			Help: "Pattern events detected, by kind",
		}, []string{"kind"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depo_sink_errors_total",
			Help: "Failed writes, by sink",
		}, []string{"sink"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depo_last_run_timestamp_seconds",
			Help: "Unix time the last batch finished",
		}),
		CheckpointHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depo_checkpoint_loads_total",
			Help: "Checkpoint lookups in incremental mode, by result",
		}, []string{"result"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depo_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depo_redis_buffered_writes_total",
			Help: "Batches buffered while the Redis circuit breaker was open",
		}),

		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depo_alerts_sent_total",
			Help: "Alert delivery attempts, by backend and result",
		}, []string{"backend", "result"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depo_ws_clients",
			Help: "Connected pattern stream clients",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depo_market_trading_day",
			Help: "1 if the current day is a trading day, else 0",
		}),
	}

	reg.MustRegister(
		m.AssetsProcessed,
		m.ComputeDur,
		m.RunDur,
		m.PointsTotal,
		m.SnapshotsTotal,
		m.PatternEvents,
		m.SinkErrors,
		m.LastRun,
		m.CheckpointHits,
		m.RedisCircuitBreakerState,
		m.RedisBufferedWrites,
		m.AlertsSent,
		m.WSClients,
		m.MarketState,
	)
	return m
}

// AlertResult records one delivery attempt.
func (m *Metrics) AlertResult(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AlertsSent.WithLabelValues(backend, result).Inc()
}
