package driver_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/episodegraph/internal/core/model"
	"github.com/agenthands/episodegraph/internal/driver"
	"github.com/agenthands/episodegraph/internal/driver/drivertest"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func newStore(t *testing.T, opts ...driver.StoreOption) (*driver.Store, *drivertest.MemoryDriver) {
	t.Helper()
	mem := drivertest.NewMemoryDriver()
	return driver.NewStore(mem, "test_group", opts...), mem
}

func TestUpsertEpisodeVertex_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store, mem := newStore(t, driver.WithClock(fixedClock(t0)))

	id, created, err := store.UpsertEpisodeVertex(ctx, model.Episode{
		ID:        "e1",
		Content:   "first",
		Source:    "crm",
		Timestamp: t0,
		Metadata:  map[string]any{"channel": "email"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "episode_e1", id)

	props, ok := mem.Vertex("test_group", id)
	require.True(t, ok)
	assert.Equal(t, "first", props["content"])
	assert.Equal(t, "test_group", props["partition_key"])
	assert.Equal(t, `{"channel":"email"}`, props["metadata"])
	assert.Equal(t, "2024-01-01T00:00:00Z", props["created_at"])

	t1 := t0.Add(time.Hour)
	id2, created, err := store.UpsertEpisodeVertex(ctx, model.Episode{ID: "e1", Content: "second", Timestamp: t1})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)

	props, _ = mem.Vertex("test_group", id)
	assert.Equal(t, "second", props["content"])
	assert.Equal(t, "2024-01-01T01:00:00Z", props["timestamp"])
	assert.Equal(t, "2024-01-01T00:00:00Z", props["created_at"])
	assert.Equal(t, 1, mem.VertexCount(driver.EpisodeLabel))
}

func TestUpsertEpisodeVertex_TruncatesContent(t *testing.T) {
	store, mem := newStore(t, driver.WithContentLimit(5))

	id, _, err := store.UpsertEpisodeVertex(context.Background(), model.Episode{ID: "e1", Content: "héllo world"})
	require.NoError(t, err)

	props, _ := mem.Vertex("test_group", id)
	assert.Equal(t, "héllo", props["content"])
}

func TestUpsertEpisodeVertex_DefaultTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	store, mem := newStore(t, driver.WithClock(fixedClock(now)))

	id, _, err := store.UpsertEpisodeVertex(context.Background(), model.Episode{ID: "e1", Content: "x"})
	require.NoError(t, err)

	props, _ := mem.Vertex("test_group", id)
	assert.Equal(t, "2025-06-01T08:00:00Z", props["timestamp"])
}

func TestUpsertEntityVertex(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)

	id, created, err := store.UpsertEntityVertex(ctx, model.Entity{
		Name:        "Acme Corp",
		Type:        model.EntityOrganization,
		Description: "maker of anvils",
		Embedding:   []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}, "e1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "entity_acme_corp", id)

	props, _ := mem.Vertex("test_group", id)
	assert.Equal(t, "organization", props["entity_type"])
	assert.Equal(t, "e1", props["first_episode"])
	assert.Equal(t, "[1,2,3,4,5,6,7,8,9,10]", props["embedding_sample"])

	_, created, err = store.UpsertEntityVertex(ctx, model.Entity{
		Name:        "Acme Corp",
		Type:        model.EntityProduct,
		Description: "now also a brand",
	}, "e2")
	require.NoError(t, err)
	assert.False(t, created)

	props, _ = mem.Vertex("test_group", id)
	assert.Equal(t, "now also a brand", props["description"])
	assert.Equal(t, "organization", props["entity_type"])
	assert.Equal(t, "e1", props["first_episode"])
	assert.Equal(t, "e2", props["last_episode"])
	assert.Equal(t, 1, mem.VertexCount(driver.EntityLabel))
}

func TestUpsertEntityVertex_EmbeddingFailureIsSoft(t *testing.T) {
	store, mem := newStore(t)
	mem.FailFunc = func(query string, _ map[string]any) error {
		if query == driver.SetEmbeddingSampleQuery {
			return errors.New("unsupported property")
		}
		return nil
	}

	id, created, err := store.UpsertEntityVertex(context.Background(), model.Entity{
		Name: "Alice", Type: model.EntityPerson, Embedding: []float32{0.1},
	}, "e1")
	require.NoError(t, err)
	assert.True(t, created)

	props, _ := mem.Vertex("test_group", id)
	assert.NotContains(t, props, "embedding_sample")
}

func TestAddEdge(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)

	a, _, err := store.UpsertEntityVertex(ctx, model.Entity{Name: "Alice", Type: model.EntityPerson}, "e1")
	require.NoError(t, err)
	b, _, err := store.UpsertEntityVertex(ctx, model.Entity{Name: "Acme Corp", Type: model.EntityOrganization}, "e1")
	require.NoError(t, err)

	require.NoError(t, store.AddEdge(ctx, a, b, "works_for", map[string]any{"confidence": 0.9, "group_name": "spoofed"}))
	require.NoError(t, store.AddEdge(ctx, a, b, "works_for", map[string]any{"confidence": 0.7}))

	edges := mem.EdgeProps("works_for")
	require.Len(t, edges, 2)
	assert.Equal(t, "test_group", edges[0]["group_name"])
	assert.Contains(t, edges[0], "created_at")

	count, err := store.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAddEdge_MissingEndpoint(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	a, _, err := store.UpsertEntityVertex(ctx, model.Entity{Name: "Alice", Type: model.EntityPerson}, "e1")
	require.NoError(t, err)

	err = store.AddEdge(ctx, a, "entity_ghost", "works_for", nil)
	assert.ErrorIs(t, err, driver.ErrVertexNotFound)
}

func TestAddEdge_InvalidLabel(t *testing.T) {
	store, mem := newStore(t)

	err := store.AddEdge(context.Background(), "a", "b", "works for", nil)
	assert.ErrorIs(t, err, driver.ErrInvalidLabel)
	assert.Empty(t, mem.Queries)
}

func TestExecute_InjectsGroup(t *testing.T) {
	var seen any
	mem := drivertest.NewMemoryDriver()
	mem.FailFunc = func(_ string, params map[string]any) error {
		seen = params["group_name"]
		return nil
	}
	store := driver.NewStore(mem, "scoped")

	_, err := store.Execute(context.Background(), driver.CountEdgesQuery, map[string]any{"group_name": "other"})
	require.NoError(t, err)
	assert.Equal(t, "scoped", seen)
}

func TestGroupIsolation(t *testing.T) {
	ctx := context.Background()
	mem := drivertest.NewMemoryDriver()
	red := driver.NewStore(mem, "red")
	blue := driver.NewStore(mem, "blue")

	_, _, err := red.UpsertEntityVertex(ctx, model.Entity{Name: "Alice", Type: model.EntityPerson}, "e1")
	require.NoError(t, err)
	_, created, err := blue.UpsertEntityVertex(ctx, model.Entity{Name: "Alice", Type: model.EntityPerson}, "e1")
	require.NoError(t, err)
	assert.True(t, created)

	n, err := red.CountVertices(ctx, driver.EntityLabel)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := blue.FindEntitiesByName(ctx, "Alice", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "blue", found[0]["group_name"])
}

func TestReadHelpers_UnwrapListProperties(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)
	mem.WrapLists = true

	a, _, err := store.UpsertEntityVertex(ctx, model.Entity{Name: "Alice", Type: model.EntityPerson, Description: "engineer"}, "e1")
	require.NoError(t, err)
	b, _, err := store.UpsertEntityVertex(ctx, model.Entity{Name: "Acme Corp", Type: model.EntityOrganization}, "e1")
	require.NoError(t, err)
	require.NoError(t, store.AddEdge(ctx, a, b, "works_for", map[string]any{"description": "employed"}))

	entities, err := store.ListEntities(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "Alice", entities[0]["name"])
	assert.Equal(t, "engineer", entities[0]["description"])

	edges, err := store.ListEdges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "works_for", edges[0].Label)
	assert.Equal(t, a, edges[0].SourceID)
	assert.Equal(t, b, edges[0].TargetID)
	assert.Equal(t, "employed", edges[0].Props["description"])

	name, err := store.VertexName(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", name)

	incident, err := store.IncidentEdges(ctx, b, 20)
	require.NoError(t, err)
	require.Len(t, incident, 1)
	assert.True(t, incident[0].NeighborIsEntity())
	assert.Equal(t, "Alice", incident[0].Neighbor["name"])
}

func TestVertexName_Missing(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.VertexName(context.Background(), "entity_nobody")
	assert.ErrorIs(t, err, driver.ErrVertexNotFound)
}

func TestCountVertices_Failure(t *testing.T) {
	store, mem := newStore(t)
	mem.FailFunc = func(query string, _ map[string]any) error {
		if strings.Contains(query, "count(n)") {
			return errors.New("boom")
		}
		return nil
	}
	_, err := store.CountVertices(context.Background(), driver.EpisodeLabel)
	assert.Error(t, err)
}
