// Package search answers entity, relationship and neighborhood queries over
// one group of the graph. Read failures degrade to empty results.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/episodegraph/internal/core/model"
	"github.com/agenthands/episodegraph/internal/driver"
	"github.com/agenthands/episodegraph/internal/logger"
	"github.com/agenthands/episodegraph/internal/metrics"
)

const (
	DefaultLimit         = 10
	DefaultWindow        = 100
	DefaultNeighborLimit = 20
	MaxHops              = 5

	unknownName = "Unknown"
)

type Service struct {
	store         *driver.Store
	window        int
	neighborLimit int
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

// WithWindow sets how many vertices or edges are scanned by the substring fallbacks.
func WithWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithNeighborLimit bounds the incident edges fetched per vertex.
func WithNeighborLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.neighborLimit = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logger.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store *driver.Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		window:        DefaultWindow,
		neighborLimit: DefaultNeighborLimit,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) failed(op string, err error, fields ...zap.Field) {
	s.metrics.QueryFailed(op)
	s.logger.Warn(op+" failed", append(fields, zap.Error(err))...)
}

// SearchEntities tries an exact name match, then a case-insensitive
// substring match over the name and description of a bounded window.
func (s *Service) SearchEntities(ctx context.Context, query string, limit int) []model.EntityResult {
	defer s.metrics.ObserveQuery("search_entities", time.Now())
	if limit <= 0 {
		limit = DefaultLimit
	}

	exact, err := s.store.FindEntitiesByName(ctx, query, limit)
	if err != nil {
		s.failed("search_entities", err, zap.String("query", query))
	}
	if len(exact) > 0 {
		return toEntityResults(exact)
	}

	all, err := s.store.ListEntities(ctx, s.window)
	if err != nil {
		s.failed("search_entities", err, zap.String("query", query))
		return []model.EntityResult{}
	}

	q := strings.ToLower(query)
	var matched []map[string]any
	for _, ent := range all {
		name := strings.ToLower(driver.AsString(ent["name"]))
		desc := strings.ToLower(driver.AsString(ent["description"]))
		if strings.Contains(name, q) || strings.Contains(desc, q) {
			matched = append(matched, ent)
			if len(matched) >= limit {
				break
			}
		}
	}
	return toEntityResults(matched)
}

func toEntityResults(vertices []map[string]any) []model.EntityResult {
	out := make([]model.EntityResult, 0, len(vertices))
	for _, v := range vertices {
		out = append(out, model.EntityResult{
			ID:          driver.AsString(v["id"]),
			Name:        driver.AsString(v["name"]),
			Type:        driver.AsString(v["entity_type"]),
			Description: driver.AsString(v["description"]),
		})
	}
	return out
}

// nameResolver memoizes endpoint name lookups for one call.
type nameResolver struct {
	ctx   context.Context
	s     *Service
	cache map[string]string
}

func (s *Service) resolver(ctx context.Context) *nameResolver {
	return &nameResolver{ctx: ctx, s: s, cache: map[string]string{}}
}

// name returns the vertex name, the vertex id for unnamed vertices such as
// episodes, or "Unknown" when the lookup fails.
func (r *nameResolver) name(id string) string {
	if n, ok := r.cache[id]; ok {
		return n
	}
	n, err := r.s.store.VertexName(r.ctx, id)
	switch {
	case err != nil:
		r.s.logger.Debug("vertex name lookup failed", zap.String("id", id), zap.Error(err))
		n = unknownName
	case n == "":
		n = id
	}
	r.cache[id] = n
	return n
}

// SearchRelationships scans a window of edges and keeps those whose label,
// description or endpoint names contain query, case-insensitively.
func (s *Service) SearchRelationships(ctx context.Context, query string, limit int) []model.RelationshipResult {
	defer s.metrics.ObserveQuery("search_relationships", time.Now())
	if limit <= 0 {
		limit = DefaultLimit
	}

	window := 2 * limit
	if window < s.window {
		window = s.window
	}

	edges, err := s.store.ListEdges(ctx, window)
	if err != nil {
		s.failed("search_relationships", err, zap.String("query", query))
		return []model.RelationshipResult{}
	}

	names := s.resolver(ctx)
	q := strings.ToLower(query)
	out := []model.RelationshipResult{}
	for _, e := range edges {
		source := names.name(e.SourceID)
		target := names.name(e.TargetID)
		desc := driver.AsString(e.Props["description"])

		if !strings.Contains(strings.ToLower(e.Label), q) &&
			!strings.Contains(strings.ToLower(desc), q) &&
			!strings.Contains(strings.ToLower(source), q) &&
			!strings.Contains(strings.ToLower(target), q) {
			continue
		}

		out = append(out, relationshipResult(source, target, e))
		if len(out) >= limit {
			break
		}
	}
	return out
}

func relationshipResult(source, target string, e driver.EdgeRecord) model.RelationshipResult {
	props := make(map[string]any, len(e.Props))
	for k, v := range e.Props {
		props[k] = v
	}
	if c, ok := driver.AsFloat(props["confidence"]); ok {
		props["confidence"] = model.ClampConfidence(c)
	}
	return model.RelationshipResult{
		Source:       source,
		Target:       target,
		Relationship: e.Label,
		Properties:   props,
	}
}

type frontierItem struct {
	id   string
	path []string
}

// GetEntityNeighbors resolves name with SearchEntities and walks incident
// edges breadth-first up to maxHops, expanding only through entities.
// maxHops <= 0 is treated as 1 and capped at MaxHops.
func (s *Service) GetEntityNeighbors(ctx context.Context, name string, maxHops int) model.Neighborhood {
	defer s.metrics.ObserveQuery("entity_neighbors", time.Now())
	if strings.TrimSpace(name) == "" {
		return model.EmptyNeighborhood(name)
	}

	found := s.SearchEntities(ctx, name, 1)
	if len(found) == 0 {
		s.logger.Debug("entity not found", zap.String("name", name))
		return model.EmptyNeighborhood(name)
	}

	switch {
	case maxHops <= 0:
		maxHops = 1
	case maxHops > MaxHops:
		maxHops = MaxHops
	}

	center := found[0]
	hood := model.EmptyNeighborhood(center.Name)
	visited := map[string]bool{center.ID: true}
	seenEdges := map[int64]bool{}
	seenNames := map[string]bool{center.Name: true}

	frontier := []frontierItem{{id: center.ID, path: []string{center.Name}}}
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []frontierItem
		for _, f := range frontier {
			edges, err := s.store.IncidentEdges(ctx, f.id, s.neighborLimit)
			if err != nil {
				s.failed("entity_neighbors", err, zap.String("id", f.id))
				continue
			}

			current := f.path[len(f.path)-1]
			for _, e := range edges {
				otherID := driver.AsString(e.Neighbor["id"])
				otherName := driver.AsString(e.Neighbor["name"])
				if otherName == "" {
					otherName = otherID
				}

				if !seenEdges[e.EdgeID] {
					seenEdges[e.EdgeID] = true
					source, target := current, otherName
					if e.SourceID != f.id {
						source, target = otherName, current
					}
					hood.Relationships = append(hood.Relationships, relationshipResult(source, target, e.EdgeRecord))
				}

				if visited[otherID] || !e.NeighborIsEntity() {
					continue
				}
				visited[otherID] = true

				if !seenNames[otherName] {
					seenNames[otherName] = true
					hood.Entities = append(hood.Entities, otherName)
				}

				path := append(append([]string(nil), f.path...), otherName)
				if hop >= 2 {
					hood.Paths = append(hood.Paths, path)
				}
				next = append(next, frontierItem{id: otherID, path: path})
			}
		}
		frontier = next
	}
	return hood
}

// GetGraphStats counts episodes, entities and edges in the group. Each
// count is 0 when its query fails.
func (s *Service) GetGraphStats(ctx context.Context) model.GraphStats {
	defer s.metrics.ObserveQuery("graph_stats", time.Now())

	var stats model.GraphStats
	var err error
	if stats.Episodes, err = s.store.CountVertices(ctx, driver.EpisodeLabel); err != nil {
		s.failed("graph_stats", err, zap.String("count", "episodes"))
	}
	if stats.Entities, err = s.store.CountVertices(ctx, driver.EntityLabel); err != nil {
		s.failed("graph_stats", err, zap.String("count", "entities"))
	}
	if stats.Relationships, err = s.store.CountEdges(ctx); err != nil {
		s.failed("graph_stats", err, zap.String("count", "relationships"))
	}
	return stats
}

// Search combines entity and relationship hits, half of limit each.
func (s *Service) Search(ctx context.Context, query string, limit int) []model.SearchHit {
	if limit <= 0 {
		limit = DefaultLimit
	}
	half := limit / 2
	if half == 0 {
		half = 1
	}

	hits := []model.SearchHit{}
	for _, e := range s.SearchEntities(ctx, query, half) {
		hits = append(hits, model.SearchHit{
			Kind:        model.HitEntity,
			Name:        e.Name,
			Description: e.Description,
			EntityType:  e.Type,
			Source:      "entity_search",
		})
	}
	for _, r := range s.SearchRelationships(ctx, query, half) {
		hits = append(hits, model.SearchHit{
			Kind:             model.HitRelationship,
			Name:             r.Source + " → " + r.Target,
			Description:      r.Relationship,
			RelationshipType: r.Relationship,
			Source:           "relationship_search",
		})
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
