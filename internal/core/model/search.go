package model

// EntityResult is an entity as returned by the query layer.
type EntityResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type RelationshipResult struct {
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Relationship string         `json:"relationship"`
	Properties   map[string]any `json:"properties"`
}

// Confidence reads the confidence property, if any.
func (r RelationshipResult) Confidence() (float64, bool) {
	switch v := r.Properties["confidence"].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

type Neighborhood struct {
	CenterEntity  string               `json:"center_entity"`
	Entities      []string             `json:"entities"`
	Relationships []RelationshipResult `json:"relationships"`
	Paths         [][]string           `json:"paths"`
}

// EmptyNeighborhood is returned for names that do not resolve to an entity.
func EmptyNeighborhood(name string) Neighborhood {
	return Neighborhood{
		CenterEntity:  name,
		Entities:      []string{},
		Relationships: []RelationshipResult{},
		Paths:         [][]string{},
	}
}

type GraphStats struct {
	Episodes      int64 `json:"episodes"`
	Entities      int64 `json:"entities"`
	Relationships int64 `json:"relationships"`
}

const (
	HitEntity       = "entity"
	HitRelationship = "relationship"
)

// SearchHit is one row of the combined entity and relationship search.
type SearchHit struct {
	Kind             string `json:"type"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	EntityType       string `json:"entity_type,omitempty"`
	RelationshipType string `json:"relationship_type,omitempty"`
	Source           string `json:"source"`
}
