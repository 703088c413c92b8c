package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EpisodeIngested("ok")
	m.EntityUpserted(true)
	m.EntityUpserted(false)
	m.EntityUpserted(false)
	m.EdgeWritten("mentions", nil)
	m.EdgeWritten("relationship", errors.New("boom"))
	m.Extraction("entities", "parse_error")
	m.ObserveIngest(time.Now())
	m.ObserveQuery("search_entities", time.Now())
	m.QueryFailed("graph_stats")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EpisodesIngested.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntitiesUpserted.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntitiesUpserted.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EdgesWritten.WithLabelValues("relationship", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionOutcomes.WithLabelValues("entities", "parse_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryFailures.WithLabelValues("graph_stats")))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EpisodeIngested("ok")
		m.EntityUpserted(true)
		m.EdgeWritten("mentions", nil)
		m.Extraction("entities", "ok")
		m.ObserveIngest(time.Now())
		m.ObserveQuery("x", time.Now())
		m.QueryFailed("x")
	})
}
