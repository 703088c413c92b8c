package model

import (
	"strings"
	"time"
)

type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityProduct      EntityType = "product"
	EntityConcept      EntityType = "concept"
	EntityEvent        EntityType = "event"
	EntityLocation     EntityType = "location"
)

var entityTypes = []EntityType{
	EntityPerson, EntityOrganization, EntityProduct,
	EntityConcept, EntityEvent, EntityLocation,
}

// ParseEntityType matches s case-insensitively against the known types.
func ParseEntityType(s string) (EntityType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range entityTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

func EntityTypes() []EntityType {
	return append([]EntityType(nil), entityTypes...)
}

// Episode is one unit of ingested source text.
type Episode struct {
	ID        string         `json:"episode_id"`
	Content   string         `json:"content"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Entity struct {
	Name        string         `json:"name"`
	Type        EntityType     `json:"type"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties,omitempty"`
	Embedding   []float32      `json:"embedding,omitempty"`
}
