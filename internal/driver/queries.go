package driver

const (
	EpisodeLabel  = "Episode"
	EntityLabel   = "Entity"
	MentionsLabel = "mentions"
)

const (
	EpisodeExistsQuery = `
		MATCH (n:Episode {id: $id, group_name: $group_name})
		RETURN n.id AS id
		LIMIT 1
	`

	CreateEpisodeQuery = `
		CREATE (n:Episode)
		SET n = $props
		RETURN n.id AS id
	`

	UpdateEpisodeQuery = `
		MATCH (n:Episode {id: $id, group_name: $group_name})
		SET n += $props
		RETURN n.id AS id
	`

	EntityExistsQuery = `
		MATCH (n:Entity {id: $id, group_name: $group_name})
		RETURN n.id AS id
		LIMIT 1
	`

	CreateEntityQuery = `
		CREATE (n:Entity)
		SET n = $props
		RETURN n.id AS id
	`

	UpdateEntityQuery = `
		MATCH (n:Entity {id: $id, group_name: $group_name})
		SET n += $props
		RETURN n.id AS id
	`

	SetEmbeddingSampleQuery = `
		MATCH (n:Entity {id: $id, group_name: $group_name})
		SET n.embedding_sample = $embedding_sample
		RETURN n.id AS id
	`

	// addEdgeQuery is formatted with a label that has already passed validLabel.
	addEdgeQuery = "MATCH (a {id: $from_id, group_name: $group_name}) " +
		"MATCH (b {id: $to_id, group_name: $group_name}) " +
		"CREATE (a)-[e:`%s`]->(b) " +
		"SET e = $props " +
		"RETURN id(e) AS edge_id"

	CountVerticesQuery = `
		MATCH (n {group_name: $group_name})
		WHERE $label IN labels(n)
		RETURN count(n) AS count
	`

	CountEdgesQuery = `
		MATCH ()-[e {group_name: $group_name}]->()
		RETURN count(e) AS count
	`

	FindEntitiesByNameQuery = `
		MATCH (n:Entity {name: $name, group_name: $group_name})
		RETURN n
		LIMIT $limit
	`

	ListEntitiesQuery = `
		MATCH (n:Entity {group_name: $group_name})
		RETURN n
		LIMIT $limit
	`

	ListEdgesQuery = `
		MATCH (s)-[e {group_name: $group_name}]->(t)
		RETURN e, type(e) AS label, s.id AS source_id, t.id AS target_id, id(e) AS edge_id
		LIMIT $limit
	`

	VertexNameQuery = `
		MATCH (n {id: $id, group_name: $group_name})
		RETURN n.name AS name
		LIMIT 1
	`

	IncidentEdgesQuery = `
		MATCH (c {id: $id, group_name: $group_name})-[e]-(v)
		WHERE e.group_name = $group_name
		RETURN e, type(e) AS label, startNode(e).id AS source_id, endNode(e).id AS target_id,
			v, labels(v) AS labels, id(e) AS edge_id
		LIMIT $limit
	`
)

var indexQueries = []string{
	"CREATE INDEX ON :Entity(id);",
	"CREATE INDEX ON :Episode(id);",
	"CREATE INDEX ON :Entity(group_name);",
	"CREATE INDEX ON :Episode(group_name);",
	"CREATE INDEX ON :Entity(name);",
}
