// Package metrics exposes Prometheus metrics for reading ingestion.
//
// IngestMetrics implements core.IngestObserver, so wiring it into the
// service is enough to record every ingest:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	svc := core.NewService(pool, core.ServiceConfig{Observer: m})
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/meterload/internal/core"
)

const namespace = "meterload"

// IngestMetrics holds the ingest counters and histograms.
type IngestMetrics struct {
	// IngestsTotal counts finished ingests by status (committed, rejected,
	// failed) and error kind.
	IngestsTotal *prometheus.CounterVec

	// RowsTotal counts rows by outcome (read, accepted, dropped).
	RowsTotal *prometheus.CounterVec

	// ReadingsWritten counts rows inserted or updated in storage.
	ReadingsWritten prometheus.Counter

	BytesRead prometheus.Counter

	IngestDuration *prometheus.HistogramVec
	CommitDuration prometheus.Histogram

	InFlight prometheus.Gauge
}

// New creates and registers the metrics with reg.
func New(reg prometheus.Registerer) *IngestMetrics {
	f := promauto.With(reg)
	return &IngestMetrics{
		IngestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingests_total",
			Help:      "Finished ingests by status and error kind.",
		}, []string{"status", "kind"}),
		RowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Source rows by outcome.",
		}, []string{"outcome"}),
		ReadingsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_written_total",
			Help:      "Readings inserted or updated in storage.",
		}),
		BytesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Source bytes read.",
		}),
		IngestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of an ingest by status.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"status"}),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time spent in the bulk commit transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingests_in_flight",
			Help:      "Ingests currently running.",
		}),
	}
}

// IngestStarted implements core.IngestObserver.
func (m *IngestMetrics) IngestStarted() {
	m.InFlight.Inc()
}

// IngestFinished implements core.IngestObserver.
func (m *IngestMetrics) IngestFinished(res *core.IngestResult) {
	m.InFlight.Dec()

	status := string(res.Status)
	kind := "none"
	if res.ErrKind != 0 {
		kind = kindLabel(res.ErrKind)
	} else if res.Status != core.IngestCommitted {
		kind = "other"
	}
	m.IngestsTotal.WithLabelValues(status, kind).Inc()
	m.IngestDuration.WithLabelValues(status).Observe(res.Duration.Seconds())

	m.RowsTotal.WithLabelValues("read").Add(float64(res.Rows))
	m.RowsTotal.WithLabelValues("accepted").Add(float64(res.Accepted))
	m.RowsTotal.WithLabelValues("dropped").Add(float64(res.Dropped))
	if res.BytesRead > 0 {
		m.BytesRead.Add(float64(res.BytesRead))
	}

	if res.Status == core.IngestCommitted {
		m.ReadingsWritten.Add(float64(res.Written))
		m.CommitDuration.Observe(res.CommitTime.Seconds())
	}
}

func kindLabel(k core.Kind) string {
	switch k {
	case core.KindConfig:
		return "config"
	case core.KindRead:
		return "read"
	case core.KindFatalBatch:
		return "fatal_batch"
	case core.KindValidation:
		return "validation"
	case core.KindCommit:
		return "commit"
	default:
		return "other"
	}
}
