package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for ingestion and query activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	EpisodesIngested   *prometheus.CounterVec
	EntitiesUpserted   *prometheus.CounterVec
	EdgesWritten       *prometheus.CounterVec
	ExtractionOutcomes *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	QueryDuration      *prometheus.HistogramVec
	QueryFailures      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EpisodesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "episodegraph_episodes_ingested_total",
				Help: "Episodes processed by AddEpisode",
			},
			[]string{"status"},
		),
		EntitiesUpserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "episodegraph_entities_upserted_total",
				Help: "Entity vertex upserts",
			},
			[]string{"action"},
		),
		EdgesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "episodegraph_edges_written_total",
				Help: "Edge writes by kind and status",
			},
			[]string{"kind", "status"},
		),
		ExtractionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "episodegraph_extraction_outcomes_total",
				Help: "LLM extraction results by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "episodegraph_ingest_duration_seconds",
				Help:    "AddEpisode duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "episodegraph_query_duration_seconds",
				Help:    "Read operation duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		QueryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "episodegraph_query_failures_total",
				Help: "Read queries that failed and degraded to empty results",
			},
			[]string{"operation"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.EpisodesIngested,
			m.EntitiesUpserted,
			m.EdgesWritten,
			m.ExtractionOutcomes,
			m.IngestDuration,
			m.QueryDuration,
			m.QueryFailures,
		)
	}
	return m
}

func (m *Metrics) EpisodeIngested(status string) {
	if m == nil {
		return
	}
	m.EpisodesIngested.WithLabelValues(status).Inc()
}

func (m *Metrics) EntityUpserted(created bool) {
	if m == nil {
		return
	}
	action := "updated"
	if created {
		action = "created"
	}
	m.EntitiesUpserted.WithLabelValues(action).Inc()
}

func (m *Metrics) EdgeWritten(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.EdgesWritten.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) Extraction(stage, outcome string) {
	if m == nil {
		return
	}
	m.ExtractionOutcomes.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveIngest(start time.Time) {
	if m == nil {
		return
	}
	m.IngestDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveQuery(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) QueryFailed(operation string) {
	if m == nil {
		return
	}
	m.QueryFailures.WithLabelValues(operation).Inc()
}
