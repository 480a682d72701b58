package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	CyclesTotal    prometheus.Counter
	CycleFailures  prometheus.Counter
	CycleDuration  prometheus.Histogram
	AlertsFetched  prometheus.Counter
	AlertsUpserted prometheus.Counter
	StageFailures  *prometheus.CounterVec // labels: stage={storm_reports,scoring,geography}
	StageDuration  *prometheus.HistogramVec

	// Geography resolution.
	ZipsResolved    prometheus.Counter
	ZoneCacheLookup *prometheus.CounterVec // labels: result={hit,miss}
	ZoneFetches     prometheus.Counter

	// Storm-report engine.
	BulletinsFetched     prometheus.Counter
	BulletinFetchSkipped prometheus.Counter
	ObservationsParsed   prometheus.Counter
	MatchesInserted      prometheus.Counter
	RechecksRun          prometheus.Counter

	// Outbox.
	OutboxEnqueued   prometheus.Counter
	OutboxDuplicates prometheus.Counter

	PipelineRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleFailures,
		m.CycleDuration,
		m.AlertsFetched,
		m.AlertsUpserted,
		m.StageFailures,
		m.StageDuration,
		m.ZipsResolved,
		m.ZoneCacheLookup,
		m.ZoneFetches,
		m.BulletinsFetched,
		m.BulletinFetchSkipped,
		m.ObservationsParsed,
		m.MatchesInserted,
		m.RechecksRun,
		m.OutboxEnqueued,
		m.OutboxDuplicates,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	ns := "alert_triage"
	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cycles_total",
			Help: "Total ingestion cycles started.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cycle_failures_total",
			Help: "Total ingestion cycles that failed fatally (feed fetch or store outage).",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "cycle_duration_seconds",
			Help:    "Duration of a complete ingestion cycle.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		AlertsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "alerts_fetched_total",
			Help: "Total alert features fetched from the feed.",
		}),
		AlertsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "alerts_upserted_total",
			Help: "Total enriched alerts upserted into the store.",
		}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "stage_failures_total",
			Help: "Non-fatal pipeline stage failures by stage.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "stage_duration_seconds",
			Help:    "Pipeline stage duration by stage.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		ZipsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "zips_resolved_total",
			Help: "Total ZIP codes resolved across all alerts.",
		}),
		ZoneCacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "zone_cache_lookups_total",
			Help: "Zone-to-ZIP cache lookups by result.",
		}, []string{"result"}),
		ZoneFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "zone_geometry_fetches_total",
			Help: "Zone geometry fetches from the feed (cache misses).",
		}),
		BulletinsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "bulletins_fetched_total",
			Help: "Storm-report bulletins fetched.",
		}),
		BulletinFetchSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "bulletin_fetch_skipped_total",
			Help: "Storm-report bulletin fetches skipped after individual failure.",
		}),
		ObservationsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "observations_parsed_total",
			Help: "Storm-report observations parsed from bulletins.",
		}),
		MatchesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "matches_inserted_total",
			Help: "Alert-to-observation matches inserted.",
		}),
		RechecksRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "rechecks_run_total",
			Help: "Storm-report recheck passes executed.",
		}),
		OutboxEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "outbox_enqueued_total",
			Help: "Outbox entries newly enqueued.",
		}),
		OutboxDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "outbox_duplicates_total",
			Help: "Enqueue calls that hit an existing event key.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "pipeline_running",
			Help: "1 when the poll loop is active, 0 when shut down.",
		}),
	}
}
