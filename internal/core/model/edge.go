package model

import (
	"strings"
	"time"
)

type RelationType string

const (
	RelatedTo  RelationType = "related_to"
	WorksFor   RelationType = "works_for"
	LocatedIn  RelationType = "located_in"
	CreatedBy  RelationType = "created_by"
	BelongsTo  RelationType = "belongs_to"
	HappenedAt RelationType = "happened_at"
)

var relationTypes = []RelationType{
	RelatedTo, WorksFor, LocatedIn, CreatedBy, BelongsTo, HappenedAt,
}

func ParseRelationType(s string) (RelationType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range relationTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

func RelationTypes() []RelationType {
	return append([]RelationType(nil), relationTypes...)
}

// DefaultConfidence applies when the extractor omits a confidence.
const DefaultConfidence = 0.5

// MentionConfidence is the fixed confidence of episode->entity edges.
const MentionConfidence = 0.8

// Relationship is a directed assertion between two entities made by one episode.
type Relationship struct {
	Source      string         `json:"source"`
	Target      string         `json:"target"`
	Type        RelationType   `json:"type"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	ValidFrom   time.Time      `json:"valid_from"`
	ValidTo     *time.Time     `json:"valid_to,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
