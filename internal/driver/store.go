package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/episodegraph/internal/core/ident"
	"github.com/agenthands/episodegraph/internal/core/model"
)

var (
	ErrVertexNotFound = errors.New("vertex not found")
	ErrInvalidLabel   = errors.New("invalid edge label")
)

// DefaultContentLimit bounds the stored episode content, in runes.
const DefaultContentLimit = 2000

const embeddingSampleSize = 10

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validLabel(label string) bool {
	return labelPattern.MatchString(label)
}

// Store runs every statement inside one logical group. The group_name
// binding is always set by the Store and cannot be overridden by callers.
type Store struct {
	driver       GraphDriver
	group        string
	contentLimit int
	logger       *zap.Logger
	now          func() time.Time
}

type StoreOption func(*Store)

func WithContentLimit(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.contentLimit = n
		}
	}
}

func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(d GraphDriver, group string, opts ...StoreOption) *Store {
	s := &Store{
		driver:       d,
		group:        group,
		contentLimit: DefaultContentLimit,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Group() string { return s.group }

func (s *Store) Driver() GraphDriver { return s.driver }

// Execute runs a parameterized statement scoped to the store's group and
// returns normalized records.
func (s *Store) Execute(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	bound := make(map[string]any, len(params)+1)
	for k, v := range params {
		bound[k] = v
	}
	bound["group_name"] = s.group

	res, err := s.driver.ExecuteQuery(ctx, query, bound)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(res.Records))
	for _, r := range res.Records {
		if r == nil {
			continue
		}
		records = append(records, newRecord(r))
	}
	return records, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Store) exists(ctx context.Context, query, id string) (bool, error) {
	records, err := s.Execute(ctx, query, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// UpsertEpisodeVertex creates the episode vertex or overwrites its content,
// source, timestamp and metadata. It reports whether a vertex was created.
func (s *Store) UpsertEpisodeVertex(ctx context.Context, ep model.Episode) (string, bool, error) {
	id := ident.EpisodeID(ep.ID)
	now := s.timestamp()

	ts := now
	if !ep.Timestamp.IsZero() {
		ts = ep.Timestamp.UTC().Format(time.RFC3339)
	}

	props := map[string]any{
		"content":      truncate(ep.Content, s.contentLimit),
		"source":       ep.Source,
		"timestamp":    ts,
		"last_updated": now,
		"metadata":     EncodeBag(ep.Metadata),
	}

	found, err := s.exists(ctx, EpisodeExistsQuery, id)
	if err != nil {
		return "", false, fmt.Errorf("failed to check episode %s: %w", id, err)
	}

	if found {
		if _, err := s.Execute(ctx, UpdateEpisodeQuery, map[string]any{"id": id, "props": props}); err != nil {
			return "", false, fmt.Errorf("failed to update episode %s: %w", id, err)
		}
		return id, false, nil
	}

	props["id"] = id
	props["episode_id"] = ep.ID
	props["partition_key"] = s.group
	props["group_name"] = s.group
	props["created_at"] = now
	if _, err := s.Execute(ctx, CreateEpisodeQuery, map[string]any{"props": props}); err != nil {
		return "", false, fmt.Errorf("failed to create episode %s: %w", id, err)
	}
	return id, true, nil
}

// UpsertEntityVertex creates the entity vertex or refreshes its description
// and last_episode. The name, type, created_at and first_episode of an
// existing vertex are left untouched.
func (s *Store) UpsertEntityVertex(ctx context.Context, entity model.Entity, originEpisodeID string) (string, bool, error) {
	id := ident.EntityID(entity.Name)
	now := s.timestamp()

	found, err := s.exists(ctx, EntityExistsQuery, id)
	if err != nil {
		return "", false, fmt.Errorf("failed to check entity %s: %w", id, err)
	}

	created := !found
	if found {
		props := map[string]any{
			"description":  entity.Description,
			"last_updated": now,
			"last_episode": originEpisodeID,
		}
		if len(entity.Properties) > 0 {
			props["properties"] = EncodeBag(entity.Properties)
		}
		if _, err := s.Execute(ctx, UpdateEntityQuery, map[string]any{"id": id, "props": props}); err != nil {
			return "", false, fmt.Errorf("failed to update entity %s: %w", id, err)
		}
	} else {
		props := map[string]any{
			"id":            id,
			"partition_key": s.group,
			"name":          entity.Name,
			"entity_type":   string(entity.Type),
			"description":   entity.Description,
			"properties":    EncodeBag(entity.Properties),
			"created_at":    now,
			"last_updated":  now,
			"group_name":    s.group,
			"first_episode": originEpisodeID,
			"last_episode":  originEpisodeID,
		}
		if _, err := s.Execute(ctx, CreateEntityQuery, map[string]any{"props": props}); err != nil {
			return "", false, fmt.Errorf("failed to create entity %s: %w", id, err)
		}
	}

	if len(entity.Embedding) > 0 {
		s.storeEmbeddingSample(ctx, id, entity.Embedding)
	}
	return id, created, nil
}

func (s *Store) storeEmbeddingSample(ctx context.Context, id string, embedding []float32) {
	sample := embedding
	if len(sample) > embeddingSampleSize {
		sample = sample[:embeddingSampleSize]
	}
	data, err := json.Marshal(sample)
	if err != nil {
		s.logger.Warn("failed to encode embedding sample", zap.String("entity_id", id), zap.Error(err))
		return
	}
	params := map[string]any{"id": id, "embedding_sample": string(data)}
	if _, err := s.Execute(ctx, SetEmbeddingSampleQuery, params); err != nil {
		s.logger.Warn("failed to store embedding sample", zap.String("entity_id", id), zap.Error(err))
	}
}

// AddEdge creates a new directed edge. Edges are never merged, so repeated
// calls accumulate parallel edges.
func (s *Store) AddEdge(ctx context.Context, fromID, toID, label string, props map[string]any) error {
	if !validLabel(label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	edgeProps := make(map[string]any, len(props)+2)
	for k, v := range props {
		edgeProps[k] = v
	}
	edgeProps["created_at"] = s.timestamp()
	edgeProps["group_name"] = s.group

	params := map[string]any{
		"from_id": fromID,
		"to_id":   toID,
		"props":   edgeProps,
	}
	records, err := s.Execute(ctx, fmt.Sprintf(addEdgeQuery, label), params)
	if err != nil {
		return fmt.Errorf("failed to create %s edge %s -> %s: %w", label, fromID, toID, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrVertexNotFound, fromID, toID)
	}
	return nil
}

func (s *Store) CountVertices(ctx context.Context, label string) (int64, error) {
	return s.count(ctx, CountVerticesQuery, map[string]any{"label": label})
}

func (s *Store) CountEdges(ctx context.Context) (int64, error) {
	return s.count(ctx, CountEdgesQuery, nil)
}

func (s *Store) count(ctx context.Context, query string, params map[string]any) (int64, error) {
	records, err := s.Execute(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[0].Int("count"), nil
}

// FindEntitiesByName returns entity property maps with an exact name match.
func (s *Store) FindEntitiesByName(ctx context.Context, name string, limit int) ([]map[string]any, error) {
	records, err := s.Execute(ctx, FindEntitiesByNameQuery, map[string]any{"name": name, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	return vertexMaps(records, "n"), nil
}

// ListEntities returns up to limit entity property maps.
func (s *Store) ListEntities(ctx context.Context, limit int) ([]map[string]any, error) {
	records, err := s.Execute(ctx, ListEntitiesQuery, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	return vertexMaps(records, "n"), nil
}

// EdgeRecord is an edge with its endpoints resolved to vertex ids.
type EdgeRecord struct {
	EdgeID   int64
	Label    string
	SourceID string
	TargetID string
	Props    map[string]any
}

func (s *Store) ListEdges(ctx context.Context, limit int) ([]EdgeRecord, error) {
	records, err := s.Execute(ctx, ListEdgesQuery, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	edges := make([]EdgeRecord, 0, len(records))
	for _, r := range records {
		edges = append(edges, edgeFromRecord(r))
	}
	return edges, nil
}

// VertexName returns the name property of the vertex with the given id.
func (s *Store) VertexName(ctx context.Context, id string) (string, error) {
	records, err := s.Execute(ctx, VertexNameQuery, map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	return records[0].String("name"), nil
}

// IncidentEdge is one edge touching a vertex together with the vertex on
// its other end.
type IncidentEdge struct {
	EdgeRecord
	Neighbor       map[string]any
	NeighborLabels []string
}

func (e IncidentEdge) NeighborIsEntity() bool {
	for _, l := range e.NeighborLabels {
		if l == EntityLabel {
			return true
		}
	}
	return false
}

func (s *Store) IncidentEdges(ctx context.Context, id string, limit int) ([]IncidentEdge, error) {
	records, err := s.Execute(ctx, IncidentEdgesQuery, map[string]any{"id": id, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	edges := make([]IncidentEdge, 0, len(records))
	for _, r := range records {
		edges = append(edges, IncidentEdge{
			EdgeRecord:     edgeFromRecord(r),
			Neighbor:       r.Map("v"),
			NeighborLabels: r.Strings("labels"),
		})
	}
	return edges, nil
}

func edgeFromRecord(r Record) EdgeRecord {
	props := r.Map("e")
	if props == nil {
		props = map[string]any{}
	}
	label := r.String("label")
	if label == "" {
		label = AsString(props["label"])
	}
	delete(props, "label")
	return EdgeRecord{
		EdgeID:   r.Int("edge_id"),
		Label:    label,
		SourceID: r.String("source_id"),
		TargetID: r.String("target_id"),
		Props:    props,
	}
}

func vertexMaps(records []Record, key string) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if m := r.Map(key); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// EncodeBag stores an open property bag as a JSON string; empty bags become "".
func EncodeBag(bag map[string]any) string {
	if len(bag) == 0 {
		return ""
	}
	data, err := json.Marshal(bag)
	if err != nil {
		return ""
	}
	return string(data)
}
