package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/episodegraph/internal/core/ident"
	"github.com/agenthands/episodegraph/internal/core/model"
	"github.com/agenthands/episodegraph/internal/driver"
	"github.com/agenthands/episodegraph/internal/driver/drivertest"
	"github.com/agenthands/episodegraph/internal/metrics"
)

type fixture struct {
	mem   *drivertest.MemoryDriver
	store *driver.Store
	svc   *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mem := drivertest.NewMemoryDriver()
	store := driver.NewStore(mem, "search_test")
	return &fixture{mem: mem, store: store, svc: NewService(store, opts...)}
}

func (f *fixture) entity(t *testing.T, name string, typ model.EntityType, desc string) string {
	t.Helper()
	id, _, err := f.store.UpsertEntityVertex(context.Background(), model.Entity{Name: name, Type: typ, Description: desc}, "e1")
	require.NoError(t, err)
	return id
}

func (f *fixture) edge(t *testing.T, from, to string, label string, props map[string]any) {
	t.Helper()
	require.NoError(t, f.store.AddEdge(context.Background(), from, to, label, props))
}

// seed builds Alice -works_for-> Acme Corp -located_in-> Berlin, plus an
// episode that mentions Alice.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	alice := f.entity(t, "Alice", model.EntityPerson, "software engineer")
	acme := f.entity(t, "Acme Corp", model.EntityOrganization, "anvil maker")
	berlin := f.entity(t, "Berlin", model.EntityLocation, "capital city")

	ep, _, err := f.store.UpsertEpisodeVertex(ctx, model.Episode{ID: "e1", Content: "Alice works for Acme Corp."})
	require.NoError(t, err)

	f.edge(t, ep, alice, driver.MentionsLabel, map[string]any{"confidence": model.MentionConfidence, "episode_id": "e1"})
	f.edge(t, alice, acme, "works_for", map[string]any{"description": "employed as engineer", "confidence": 0.9, "episode_id": "e1"})
	f.edge(t, acme, berlin, "located_in", map[string]any{"description": "headquarters", "confidence": 0.8, "episode_id": "e1"})
}

func TestSearchEntities_ExactMatch(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	res := f.svc.SearchEntities(context.Background(), "Alice", 10)
	require.Len(t, res, 1)
	assert.Equal(t, model.EntityResult{
		ID:          "entity_alice",
		Name:        "Alice",
		Type:        "person",
		Description: "software engineer",
	}, res[0])
}

func TestSearchEntities_SubstringFallback(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	res := f.svc.SearchEntities(ctx, "acme", 10)
	require.Len(t, res, 1)
	assert.Equal(t, "Acme Corp", res[0].Name)

	res = f.svc.SearchEntities(ctx, "CAPITAL", 10)
	require.Len(t, res, 1)
	assert.Equal(t, "Berlin", res[0].Name)

	res = f.svc.SearchEntities(ctx, "e", 2)
	assert.Len(t, res, 2)
}

func TestSearchEntities_NoMatch(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	res := f.svc.SearchEntities(context.Background(), "xyz_no_such_entity", 10)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestSearchEntities_DefaultLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 15; i++ {
		f.entity(t, fmt.Sprintf("Widget %d", i), model.EntityProduct, "")
	}

	assert.Len(t, f.svc.SearchEntities(context.Background(), "widget", 0), DefaultLimit)
}

func TestSearchEntities_WindowBoundsFallback(t *testing.T) {
	f := newFixture(t, WithWindow(3))
	for i := 0; i < 5; i++ {
		f.entity(t, fmt.Sprintf("Widget %d", i), model.EntityProduct, "")
	}

	assert.Len(t, f.svc.SearchEntities(context.Background(), "widget", 10), 3)
}

func TestSearchEntities_ListWrappedProperties(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.mem.WrapLists = true

	res := f.svc.SearchEntities(context.Background(), "engineer", 10)
	require.Len(t, res, 1)
	assert.Equal(t, "Alice", res[0].Name)
	assert.Equal(t, "person", res[0].Type)
}

func TestSearchEntities_ReadFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f := newFixture(t, WithMetrics(m))
	f.seed(t)
	f.mem.FailFunc = func(string, map[string]any) error { return errors.New("connection reset") }

	res := f.svc.SearchEntities(context.Background(), "Alice", 10)
	assert.Empty(t, res)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueryFailures.WithLabelValues("search_entities")))
}

func TestSearchRelationships(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	res := f.svc.SearchRelationships(context.Background(), "works", 10)
	require.Len(t, res, 1)
	assert.Equal(t, "Alice", res[0].Source)
	assert.Equal(t, "Acme Corp", res[0].Target)
	assert.Equal(t, "works_for", res[0].Relationship)
	assert.Equal(t, "employed as engineer", res[0].Properties["description"])
	assert.Equal(t, "e1", res[0].Properties["episode_id"])
}

func TestSearchRelationships_MatchesEndpointsAndDescription(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	res := f.svc.SearchRelationships(ctx, "berlin", 10)
	require.Len(t, res, 1)
	assert.Equal(t, "located_in", res[0].Relationship)

	res = f.svc.SearchRelationships(ctx, "HEADQUARTERS", 10)
	require.Len(t, res, 1)

	// The episode vertex has no name, so its id stands in.
	res = f.svc.SearchRelationships(ctx, "mentions", 10)
	require.Len(t, res, 1)
	assert.Equal(t, ident.EpisodeID("e1"), res[0].Source)
	assert.Equal(t, "Alice", res[0].Target)
}

func TestSearchRelationships_UnknownEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.mem.FailFunc = func(query string, _ map[string]any) error {
		if query == driver.VertexNameQuery {
			return errors.New("timeout")
		}
		return nil
	}

	res := f.svc.SearchRelationships(context.Background(), "works", 10)
	require.Len(t, res, 1)
	assert.Equal(t, "Unknown", res[0].Source)
	assert.Equal(t, "Unknown", res[0].Target)
}

func TestSearchRelationships_ConfidenceBounded(t *testing.T) {
	f := newFixture(t)
	a := f.entity(t, "Alice", model.EntityPerson, "")
	b := f.entity(t, "Bob", model.EntityPerson, "")
	f.edge(t, a, b, "related_to", map[string]any{"confidence": 3.5})

	res := f.svc.SearchRelationships(context.Background(), "related", 10)
	require.Len(t, res, 1)
	c, ok := res[0].Confidence()
	require.True(t, ok)
	assert.Equal(t, 1.0, c)
}

func TestSearchRelationships_Limit(t *testing.T) {
	f := newFixture(t)
	a := f.entity(t, "Alice", model.EntityPerson, "")
	b := f.entity(t, "Acme Corp", model.EntityOrganization, "")
	for i := 0; i < 5; i++ {
		f.edge(t, a, b, "works_for", nil)
	}

	assert.Len(t, f.svc.SearchRelationships(context.Background(), "works", 3), 3)
}

func TestSearchRelationships_ReadFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.mem.FailFunc = func(string, map[string]any) error { return errors.New("down") }

	res := f.svc.SearchRelationships(context.Background(), "works", 10)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestGetEntityNeighbors_OneHop(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	hood := f.svc.GetEntityNeighbors(context.Background(), "Alice", 1)
	assert.Equal(t, "Alice", hood.CenterEntity)
	assert.Equal(t, []string{"Acme Corp"}, hood.Entities)
	assert.Empty(t, hood.Paths)

	var labels []string
	for _, r := range hood.Relationships {
		labels = append(labels, r.Relationship)
	}
	assert.ElementsMatch(t, []string{"mentions", "works_for"}, labels)

	for _, r := range hood.Relationships {
		if r.Relationship == "works_for" {
			assert.Equal(t, "Alice", r.Source)
			assert.Equal(t, "Acme Corp", r.Target)
		}
	}
}

func TestGetEntityNeighbors_TwoHops(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	hood := f.svc.GetEntityNeighbors(context.Background(), "Alice", 2)
	assert.Equal(t, []string{"Acme Corp", "Berlin"}, hood.Entities)
	assert.Equal(t, [][]string{{"Alice", "Acme Corp", "Berlin"}}, hood.Paths)

	count := map[string]int{}
	for _, r := range hood.Relationships {
		count[r.Relationship]++
	}
	assert.Equal(t, map[string]int{"mentions": 1, "works_for": 1, "located_in": 1}, count)

	for _, r := range hood.Relationships {
		if r.Relationship == "located_in" {
			assert.Equal(t, "Acme Corp", r.Source)
			assert.Equal(t, "Berlin", r.Target)
		}
	}
}

func TestGetEntityNeighbors_IncomingEdgeDirection(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	hood := f.svc.GetEntityNeighbors(context.Background(), "Berlin", 1)
	assert.Equal(t, []string{"Acme Corp"}, hood.Entities)
	require.Len(t, hood.Relationships, 1)
	assert.Equal(t, "Acme Corp", hood.Relationships[0].Source)
	assert.Equal(t, "Berlin", hood.Relationships[0].Target)
}

func TestGetEntityNeighbors_NonPositiveHops(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	hood := f.svc.GetEntityNeighbors(context.Background(), "Alice", 0)
	assert.Equal(t, []string{"Acme Corp"}, hood.Entities)
}

func TestGetEntityNeighbors_Unknown(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	hood := f.svc.GetEntityNeighbors(context.Background(), "Nobody", 2)
	assert.Equal(t, model.EmptyNeighborhood("Nobody"), hood)

	hood = f.svc.GetEntityNeighbors(context.Background(), " ", 2)
	assert.Empty(t, hood.Entities)
}

func TestGetEntityNeighbors_NeighborLimit(t *testing.T) {
	f := newFixture(t, WithNeighborLimit(2))
	hub := f.entity(t, "Hub", model.EntityConcept, "")
	for i := 0; i < 5; i++ {
		spoke := f.entity(t, fmt.Sprintf("Spoke %d", i), model.EntityConcept, "")
		f.edge(t, hub, spoke, "related_to", nil)
	}

	hood := f.svc.GetEntityNeighbors(context.Background(), "Hub", 1)
	assert.Len(t, hood.Entities, 2)
	assert.Len(t, hood.Relationships, 2)
}

func TestGetGraphStats(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	stats := f.svc.GetGraphStats(context.Background())
	assert.Equal(t, model.GraphStats{Episodes: 1, Entities: 3, Relationships: 3}, stats)
}

func TestGetGraphStats_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.mem.FailFunc = func(query string, _ map[string]any) error {
		if query == driver.CountEdgesQuery {
			return errors.New("down")
		}
		return nil
	}

	stats := f.svc.GetGraphStats(context.Background())
	assert.Equal(t, int64(1), stats.Episodes)
	assert.Equal(t, int64(3), stats.Entities)
	assert.Equal(t, int64(0), stats.Relationships)
}

func TestGetGraphStats_EmptyGroup(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, model.GraphStats{}, f.svc.GetGraphStats(context.Background()))
}

func TestSearch_Combined(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	hits := f.svc.Search(context.Background(), "acme", 10)
	require.Len(t, hits, 3)
	assert.Equal(t, model.HitEntity, hits[0].Kind)
	assert.Equal(t, "Acme Corp", hits[0].Name)
	assert.Equal(t, "organization", hits[0].EntityType)

	assert.Equal(t, model.HitRelationship, hits[1].Kind)
	assert.Equal(t, "Alice → Acme Corp", hits[1].Name)
	assert.Equal(t, "works_for", hits[1].RelationshipType)
	assert.Equal(t, "relationship_search", hits[1].Source)
}

func TestSearch_SmallLimit(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	hits := f.svc.Search(context.Background(), "acme", 1)
	require.Len(t, hits, 1)
	assert.Equal(t, model.HitEntity, hits[0].Kind)
}
