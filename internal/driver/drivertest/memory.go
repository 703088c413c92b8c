// Package drivertest provides an in-memory GraphDriver that understands the
// statements issued by driver.Store.
package drivertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/episodegraph/internal/driver"
)

type vertex struct {
	id     int64
	labels []string
	props  map[string]any
}

func (v *vertex) key() string {
	return vertexKey(v.props["group_name"], v.props["id"])
}

func (v *vertex) hasLabel(label string) bool {
	for _, l := range v.labels {
		if l == label {
			return true
		}
	}
	return false
}

type edge struct {
	id    int64
	label string
	from  *vertex
	to    *vertex
	props map[string]any
}

func vertexKey(group, id any) string {
	return fmt.Sprintf("%v\x00%v", group, id)
}

// MemoryDriver is a GraphDriver backed by maps. It keeps insertion order so
// window queries are deterministic.
type MemoryDriver struct {
	mu       sync.Mutex
	vertices []*vertex
	byKey    map[string]*vertex
	edges    []*edge
	nextID   int64

	// WrapLists returns every node and relationship property wrapped in a
	// single-element list, the way multi-valued backends do.
	WrapLists bool
	// FailFunc, when set, is consulted before every statement; a non-nil
	// error is returned instead of executing it.
	FailFunc func(query string, params map[string]any) error
	CloseErr error

	Queries      []string
	IndicesBuilt bool
	Closed       bool
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{byKey: map[string]*vertex{}}
}

func (m *MemoryDriver) BuildIndices(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IndicesBuilt = true
	return nil
}

func (m *MemoryDriver) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseErr
}

func (m *MemoryDriver) ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, query)
	if m.FailFunc != nil {
		if err := m.FailFunc(query, params); err != nil {
			return neo4j.EagerResult{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return neo4j.EagerResult{}, err
	}

	group := params["group_name"]
	switch query {
	case driver.EpisodeExistsQuery:
		return m.exists(driver.EpisodeLabel, group, params["id"]), nil
	case driver.EntityExistsQuery:
		return m.exists(driver.EntityLabel, group, params["id"]), nil
	case driver.CreateEpisodeQuery:
		return m.create(driver.EpisodeLabel, params["props"])
	case driver.CreateEntityQuery:
		return m.create(driver.EntityLabel, params["props"])
	case driver.UpdateEpisodeQuery:
		return m.update(driver.EpisodeLabel, group, params["id"], params["props"])
	case driver.UpdateEntityQuery:
		return m.update(driver.EntityLabel, group, params["id"], params["props"])
	case driver.SetEmbeddingSampleQuery:
		return m.update(driver.EntityLabel, group, params["id"],
			map[string]any{"embedding_sample": params["embedding_sample"]})
	case driver.CountVerticesQuery:
		return m.countVertices(group, params["label"]), nil
	case driver.CountEdgesQuery:
		return m.countEdges(group), nil
	case driver.FindEntitiesByNameQuery:
		return m.entities(group, params["name"], limitOf(params)), nil
	case driver.ListEntitiesQuery:
		return m.entities(group, nil, limitOf(params)), nil
	case driver.ListEdgesQuery:
		return m.listEdges(group, limitOf(params)), nil
	case driver.VertexNameQuery:
		return m.vertexName(group, params["id"]), nil
	case driver.IncidentEdgesQuery:
		return m.incident(group, params["id"], limitOf(params)), nil
	}

	if strings.HasPrefix(strings.TrimSpace(query), "CREATE INDEX") {
		return neo4j.EagerResult{}, nil
	}
	if label, ok := edgeLabel(query); ok {
		return m.addEdge(label, group, params)
	}
	return neo4j.EagerResult{}, fmt.Errorf("drivertest: unsupported query: %s", strings.TrimSpace(query))
}

// edgeLabel extracts the backticked label of an edge creation statement.
func edgeLabel(query string) (string, bool) {
	const marker = "CREATE (a)-[e:`"
	i := strings.Index(query, marker)
	if i < 0 {
		return "", false
	}
	rest := query[i+len(marker):]
	j := strings.Index(rest, "`]")
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

func limitOf(params map[string]any) int {
	switch v := params["limit"].(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		return -1
	}
}

func result(keys []string, rows ...[]any) neo4j.EagerResult {
	res := neo4j.EagerResult{Keys: keys}
	for _, row := range rows {
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: row})
	}
	return res
}

func (m *MemoryDriver) lookup(label string, group, id any) *vertex {
	v, ok := m.byKey[vertexKey(group, id)]
	if !ok || (label != "" && !v.hasLabel(label)) {
		return nil
	}
	return v
}

func (m *MemoryDriver) exists(label string, group, id any) neo4j.EagerResult {
	if v := m.lookup(label, group, id); v != nil {
		return result([]string{"id"}, []any{v.props["id"]})
	}
	return result([]string{"id"})
}

func (m *MemoryDriver) create(label string, raw any) (neo4j.EagerResult, error) {
	props, ok := raw.(map[string]any)
	if !ok {
		return neo4j.EagerResult{}, fmt.Errorf("drivertest: props must be a map, got %T", raw)
	}
	m.nextID++
	v := &vertex{id: m.nextID, labels: []string{label}, props: copyProps(props)}
	m.vertices = append(m.vertices, v)
	m.byKey[v.key()] = v
	return result([]string{"id"}, []any{v.props["id"]}), nil
}

func (m *MemoryDriver) update(label string, group, id, raw any) (neo4j.EagerResult, error) {
	props, ok := raw.(map[string]any)
	if !ok {
		return neo4j.EagerResult{}, fmt.Errorf("drivertest: props must be a map, got %T", raw)
	}
	v := m.lookup(label, group, id)
	if v == nil {
		return result([]string{"id"}), nil
	}
	for k, val := range props {
		v.props[k] = val
	}
	return result([]string{"id"}, []any{v.props["id"]}), nil
}

func (m *MemoryDriver) addEdge(label string, group any, params map[string]any) (neo4j.EagerResult, error) {
	props, ok := params["props"].(map[string]any)
	if !ok {
		return neo4j.EagerResult{}, fmt.Errorf("drivertest: props must be a map, got %T", params["props"])
	}
	from := m.lookup("", group, params["from_id"])
	to := m.lookup("", group, params["to_id"])
	if from == nil || to == nil {
		return result([]string{"edge_id"}), nil
	}
	m.nextID++
	e := &edge{id: m.nextID, label: label, from: from, to: to, props: copyProps(props)}
	m.edges = append(m.edges, e)
	return result([]string{"edge_id"}, []any{e.id}), nil
}

func (m *MemoryDriver) countVertices(group, label any) neo4j.EagerResult {
	var n int64
	for _, v := range m.vertices {
		if v.props["group_name"] == group && v.hasLabel(fmt.Sprint(label)) {
			n++
		}
	}
	return result([]string{"count"}, []any{n})
}

func (m *MemoryDriver) countEdges(group any) neo4j.EagerResult {
	var n int64
	for _, e := range m.edges {
		if e.props["group_name"] == group {
			n++
		}
	}
	return result([]string{"count"}, []any{n})
}

func (m *MemoryDriver) entities(group, name any, limit int) neo4j.EagerResult {
	var rows [][]any
	for _, v := range m.vertices {
		if limit >= 0 && len(rows) >= limit {
			break
		}
		if v.props["group_name"] != group || !v.hasLabel(driver.EntityLabel) {
			continue
		}
		if name != nil && v.props["name"] != name {
			continue
		}
		rows = append(rows, []any{m.node(v)})
	}
	return result([]string{"n"}, rows...)
}

func (m *MemoryDriver) listEdges(group any, limit int) neo4j.EagerResult {
	keys := []string{"e", "label", "source_id", "target_id", "edge_id"}
	var rows [][]any
	for _, e := range m.edges {
		if limit >= 0 && len(rows) >= limit {
			break
		}
		if e.props["group_name"] != group {
			continue
		}
		rows = append(rows, []any{m.relationship(e), e.label, e.from.props["id"], e.to.props["id"], e.id})
	}
	return result(keys, rows...)
}

func (m *MemoryDriver) vertexName(group, id any) neo4j.EagerResult {
	v := m.lookup("", group, id)
	if v == nil {
		return result([]string{"name"})
	}
	return result([]string{"name"}, []any{m.wrap(v.props["name"])})
}

func (m *MemoryDriver) incident(group, id any, limit int) neo4j.EagerResult {
	keys := []string{"e", "label", "source_id", "target_id", "v", "labels", "edge_id"}
	c := m.lookup("", group, id)
	if c == nil {
		return result(keys)
	}
	var rows [][]any
	for _, e := range m.edges {
		if limit >= 0 && len(rows) >= limit {
			break
		}
		if e.props["group_name"] != group {
			continue
		}
		var other *vertex
		switch {
		case e.from == c:
			other = e.to
		case e.to == c:
			other = e.from
		default:
			continue
		}
		labels := make([]any, len(other.labels))
		for i, l := range other.labels {
			labels[i] = l
		}
		rows = append(rows, []any{
			m.relationship(e), e.label, e.from.props["id"], e.to.props["id"],
			m.node(other), labels, e.id,
		})
	}
	return result(keys, rows...)
}

func (m *MemoryDriver) node(v *vertex) neo4j.Node {
	return neo4j.Node{
		Id:        v.id,
		ElementId: fmt.Sprint(v.id),
		Labels:    append([]string(nil), v.labels...),
		Props:     m.wrapProps(v.props),
	}
}

func (m *MemoryDriver) relationship(e *edge) neo4j.Relationship {
	return neo4j.Relationship{
		Id:        e.id,
		ElementId: fmt.Sprint(e.id),
		StartId:   e.from.id,
		EndId:     e.to.id,
		Type:      e.label,
		Props:     m.wrapProps(e.props),
	}
}

func (m *MemoryDriver) wrap(v any) any {
	if !m.WrapLists || v == nil {
		return v
	}
	return []any{v}
}

func (m *MemoryDriver) wrapProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = m.wrap(v)
	}
	return out
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// Vertex returns a copy of the properties of the vertex with the given id.
func (m *MemoryDriver) Vertex(group, id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byKey[vertexKey(group, id)]
	if !ok {
		return nil, false
	}
	return copyProps(v.props), true
}

// VertexCount counts vertices with label across all groups.
func (m *MemoryDriver) VertexCount(label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.vertices {
		if v.hasLabel(label) {
			n++
		}
	}
	return n
}

// EdgeProps returns the property maps of every edge with label, in creation order.
func (m *MemoryDriver) EdgeProps(label string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []map[string]any
	for _, e := range m.edges {
		if e.label == label {
			out = append(out, copyProps(e.props))
		}
	}
	return out
}

// EdgeCount counts edges across all groups.
func (m *MemoryDriver) EdgeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edges)
}
