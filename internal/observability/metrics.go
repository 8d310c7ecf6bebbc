package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meteo_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion service.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration     prometheus.Histogram
	PipelineRunning prometheus.Gauge

	// Fetch stage metrics.
	FeedFetches       *prometheus.CounterVec   // labels: outcome={success,error,circuit_open}
	FeedFetchDuration prometheus.Histogram
	FeedBytes         prometheus.Counter

	// Parse and ingest metrics.
	TableErrors          *prometheus.CounterVec // labels: reason={parse,empty,no_kind,ambiguous_kind,columns}
	StationsInserted     prometheus.Counter
	MeasurementsInserted *prometheus.CounterVec // labels: kind
	RowErrors            *prometheus.CounterVec // labels: kind

	// Freshness of the stored data.
	KindStale *prometheus.GaugeVec // labels: kind; 1 when no recent measurement
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-parse-ingest run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an ingestion run is in progress.",
		}),
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Feed requests by outcome.",
		}, []string{"outcome"}),
		FeedFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_fetch_duration_seconds",
			Help:      "Duration of a single feed request.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FeedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_bytes_total",
			Help:      "Bytes downloaded from feeds.",
		}),
		TableErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_errors_total",
			Help:      "Feed tables skipped by reason.",
		}, []string{"reason"}),
		StationsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_inserted_total",
			Help:      "New stations stored.",
		}),
		MeasurementsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_inserted_total",
			Help:      "Measurements stored by kind. Duplicates of stored keys are not counted.",
		}, []string{"kind"}),
		RowErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_errors_total",
			Help:      "Measurement rows rejected by kind.",
		}, []string{"kind"}),
		KindStale: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "kind_stale",
			Help:      "1 when a measurement kind has no measurement newer than STALE_AFTER.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.RunDuration,
		m.PipelineRunning,
		m.FeedFetches,
		m.FeedFetchDuration,
		m.FeedBytes,
		m.TableErrors,
		m.StationsInserted,
		m.MeasurementsInserted,
		m.RowErrors,
		m.KindStale,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
