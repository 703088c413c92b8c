package extraction

// DefaultEntityPrompt is formatted with the episode text.
const DefaultEntityPrompt = `Extract entities from the following text. For each entity, determine:
1. Name (exact text from content)
2. Type (person, organization, product, concept, event, location)
3. Brief description

Text: %s

Return a JSON array of entities in this format:
[
    {
        "name": "entity name",
        "type": "entity_type",
        "description": "brief description"
    }
]

Only return valid JSON, no other text.`

// DefaultRelationshipPrompt is formatted with the episode text and the
// list of extracted entity names.
const DefaultRelationshipPrompt = `Given the following text and entities, identify relationships between entities.

Text: %s
Entities: %s

For each relationship, determine:
1. Source entity (must be from the entity list)
2. Target entity (must be from the entity list)
3. Relationship type (related_to, works_for, located_in, created_by, belongs_to, happened_at)
4. Description of the relationship
5. Confidence (0.0 to 1.0)

Return a JSON array:
[
    {
        "source": "source entity name",
        "target": "target entity name",
        "type": "relationship_type",
        "description": "relationship description",
        "confidence": 0.8
    }
]

Only return valid JSON, no other text.`
