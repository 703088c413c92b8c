// Package ident maps human-readable names to stable graph vertex ids.
package ident

import (
	"strings"
	"unicode"
)

const (
	EntityPrefix  = "entity_"
	EpisodePrefix = "episode_"
)

// EntityID returns the vertex id for an entity name.
func EntityID(name string) string {
	return withPrefix(EntityPrefix, name)
}

// EpisodeID returns the vertex id for a caller-supplied episode id.
func EpisodeID(id string) string {
	return withPrefix(EpisodePrefix, id)
}

// Callers pass raw names only; a derived id passed back in gets prefixed again.
func withPrefix(prefix, raw string) string {
	return prefix + normalize(raw)
}

// normalize lower-cases s, turns whitespace runs and characters that are
// unsafe in vertex ids into single underscores.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSep := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) || illegal(r) || r == '_' {
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func illegal(r rune) bool {
	switch r {
	case '/', '\\', '?', '#', '\'', '"', '`':
		return true
	}
	return unicode.IsControl(r)
}
