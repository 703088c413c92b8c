package driver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// PropertyValue is a property as the backend hands it back: either a single
// scalar or a list of scalars. Some backends wrap every scalar in a
// single-element list; Value hides that.
type PropertyValue struct {
	scalar any
	list   []any
	isList bool
}

func Scalar(v any) PropertyValue {
	return PropertyValue{scalar: v}
}

func List(vs ...any) PropertyValue {
	return PropertyValue{list: vs, isList: true}
}

// ValueOf classifies a raw backend value.
func ValueOf(v any) PropertyValue {
	switch t := v.(type) {
	case []any:
		return List(t...)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return List(out...)
	default:
		return Scalar(v)
	}
}

func (p PropertyValue) IsList() bool { return p.isList }

// Value returns the scalar, unwrapping single-element lists. An empty list
// yields nil.
func (p PropertyValue) Value() any {
	if !p.isList {
		return p.scalar
	}
	switch len(p.list) {
	case 0:
		return nil
	case 1:
		return p.list[0]
	default:
		return p.list
	}
}

type timer interface {
	Time() time.Time
}

// Normalize converts a backend value into plain Go values: single-element
// lists are unwrapped, temporal values become RFC3339 strings, integers
// become int64 and nodes/relationships become property maps. Relationships
// also carry their type under "label".
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case neo4j.Node:
		return normalizeProps(t.Props)
	case neo4j.Relationship:
		m := normalizeProps(t.Props)
		m["label"] = t.Type
		return m
	case map[string]any:
		return normalizeProps(t)
	case []any, []string:
		pv := ValueOf(v).Value()
		if list, ok := pv.([]any); ok {
			out := make([]any, len(list))
			for i, item := range list {
				out[i] = Normalize(item)
			}
			return out
		}
		return Normalize(pv)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case timer:
		return t.Time().UTC().Format(time.RFC3339)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func normalizeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = Normalize(v)
	}
	return out
}

// Record is one normalized result row keyed by column name.
type Record map[string]any

func newRecord(r *neo4j.Record) Record {
	rec := make(Record, len(r.Keys))
	for i, k := range r.Keys {
		if i < len(r.Values) {
			rec[k] = Normalize(r.Values[i])
		}
	}
	return rec
}

func (r Record) String(key string) string {
	return AsString(r[key])
}

func (r Record) Int(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (r Record) Map(key string) map[string]any {
	if m, ok := r[key].(map[string]any); ok {
		return m
	}
	return nil
}

func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, AsString(item))
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

// AsString renders a normalized property as a string; nil becomes "".
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// AsFloat reads a normalized numeric property.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
