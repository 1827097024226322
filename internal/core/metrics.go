package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "policyingest_"

// Metrics records ingestion counters. A nil *Metrics is valid and records
// nothing, so tests can build a Service without a registry.
type Metrics struct {
	ingestions     *prometheus.CounterVec
	chunks         *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	rows           prometheus.Counter
	bytes          prometheus.Counter
	chunksInFlight prometheus.Gauge
	ingestDuration prometheus.Histogram
	chunkDuration  prometheus.Histogram
}

// NewMetrics registers the ingestion metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ingestions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "ingestions_total",
				Help: "Uploads ingested, by terminal result",
			},
			[]string{"result"},
		),
		chunks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "chunks_total",
				Help: "Chunks processed, by outcome stage (ok on success)",
			},
			[]string{"stage"},
		),
		storeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "store_errors_total",
				Help: "Store failures seen by chunk workers, by error class",
			},
			[]string{"class"},
		),
		rows: f.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "rows_total",
			Help: "Data rows read from uploads",
		}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "bytes_total",
			Help: "Bytes read from uploads",
		}),
		chunksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: metricsPrefix + "chunks_in_flight",
			Help: "Chunks currently holding a store session",
		}),
		ingestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    metricsPrefix + "ingest_duration_seconds",
			Help:    "Wall time of one ingestion from parse to decision",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		chunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    metricsPrefix + "chunk_duration_seconds",
			Help:    "Wall time of one chunk worker",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

func (m *Metrics) recordIngestion(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(result).Inc()
	m.ingestDuration.Observe(d.Seconds())
}

func (m *Metrics) recordInput(rows int, bytes int64) {
	if m == nil {
		return
	}
	m.rows.Add(float64(rows))
	m.bytes.Add(float64(bytes))
}

func (m *Metrics) recordChunk(o Outcome, d time.Duration) {
	if m == nil {
		return
	}
	stage := "ok"
	if o.Err != nil {
		stage = string(o.Err.Stage)
		if o.Err.Stage != StageUnitStart && o.Err.Err != nil {
			m.storeErrors.WithLabelValues(ClassifyStoreError(o.Err.Err)).Inc()
		}
	}
	m.chunks.WithLabelValues(stage).Inc()
	if d > 0 {
		m.chunkDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) chunkStarted() {
	if m == nil {
		return
	}
	m.chunksInFlight.Inc()
}

func (m *Metrics) chunkFinished() {
	if m == nil {
		return
	}
	m.chunksInFlight.Dec()
}
