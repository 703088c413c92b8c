package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/episodegraph/internal/core/ident"
	"github.com/agenthands/episodegraph/internal/core/model"
	"github.com/agenthands/episodegraph/internal/driver"
)

// AddEpisode extracts entities and relationships from the episode content,
// writes the episode vertex, one vertex and mentions edge per distinct
// entity and one edge per relationship. It returns the episode vertex id.
//
// Only a failed episode vertex write fails the call. Extraction problems
// yield an episode without entities, and individual entity or edge write
// failures are logged and skipped.
func (g *KnowledgeGraph) AddEpisode(ctx context.Context, ep model.Episode) (string, error) {
	c, err := g.ready()
	if err != nil {
		return "", err
	}
	defer g.metrics.ObserveIngest(time.Now())

	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.Timestamp.IsZero() {
		ep.Timestamp = g.now().UTC()
	}
	log := g.logger.With(zap.String("episode_id", ep.ID))

	entRes := c.extractor.ExtractEntities(ctx, ep.Content)
	g.metrics.Extraction("entities", string(entRes.Outcome))
	entities := distinctEntities(entRes.Items)

	relRes := c.extractor.ExtractRelationships(ctx, ep.Content, entities)
	g.metrics.Extraction("relationships", string(relRes.Outcome))

	g.upsertMu.Lock()
	episodeVertexID, _, err := c.store.UpsertEpisodeVertex(ctx, ep)
	g.upsertMu.Unlock()
	if err != nil {
		g.metrics.EpisodeIngested("failed")
		return "", fmt.Errorf("failed to store episode %s: %w", ep.ID, err)
	}

	written := 0
	for _, ent := range entities {
		g.upsertMu.Lock()
		entityID, created, err := c.store.UpsertEntityVertex(ctx, ent, ep.ID)
		g.upsertMu.Unlock()
		if err != nil {
			log.Warn("failed to upsert entity", zap.String("entity", ent.Name), zap.Error(err))
			continue
		}
		g.metrics.EntityUpserted(created)

		err = c.store.AddEdge(ctx, episodeVertexID, entityID, driver.MentionsLabel, map[string]any{
			"confidence": model.MentionConfidence,
			"episode_id": ep.ID,
		})
		g.metrics.EdgeWritten(driver.MentionsLabel, err)
		if err != nil {
			log.Warn("failed to link episode to entity", zap.String("entity", ent.Name), zap.Error(err))
		}
	}

	for _, rel := range relRes.Items {
		err := c.store.AddEdge(ctx, ident.EntityID(rel.Source), ident.EntityID(rel.Target), string(rel.Type), relationshipProps(rel, ep))
		g.metrics.EdgeWritten("relationship", err)
		if err != nil {
			log.Warn("failed to create relationship",
				zap.String("source", rel.Source),
				zap.String("target", rel.Target),
				zap.String("type", string(rel.Type)),
				zap.Error(err),
			)
			continue
		}
		written++
	}

	g.metrics.EpisodeIngested("ok")
	log.Info("episode processed",
		zap.String("vertex_id", episodeVertexID),
		zap.Int("entities", len(entities)),
		zap.Int("relationships", written),
	)
	return episodeVertexID, nil
}

// AddEpisodes ingests episodes concurrently, bounded by the bulk_ingest
// setting. The returned ids follow the input order. The first failure
// cancels the remaining episodes.
func (g *KnowledgeGraph) AddEpisodes(ctx context.Context, episodes []model.Episode) ([]string, error) {
	if _, err := g.ready(); err != nil {
		return nil, err
	}

	ids := make([]string, len(episodes))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, g.cfg.Concurrency.BulkIngest))

	for i, ep := range episodes {
		eg.Go(func() error {
			id, err := g.AddEpisode(egCtx, ep)
			if err != nil {
				return fmt.Errorf("episode %d: %w", i, err)
			}
			ids[i] = id
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return ids, err
	}
	return ids, nil
}

// distinctEntities keeps the first occurrence of every normalized name.
func distinctEntities(entities []model.Entity) []model.Entity {
	seen := make(map[string]bool, len(entities))
	out := make([]model.Entity, 0, len(entities))
	for _, ent := range entities {
		id := ident.EntityID(ent.Name)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, ent)
	}
	return out
}

func relationshipProps(rel model.Relationship, ep model.Episode) map[string]any {
	validFrom := rel.ValidFrom
	if validFrom.IsZero() {
		validFrom = ep.Timestamp
	}

	props := map[string]any{
		"description": rel.Description,
		"confidence":  model.ClampConfidence(rel.Confidence),
		"episode_id":  ep.ID,
		"valid_from":  validFrom.UTC().Format(time.RFC3339),
	}
	if rel.ValidTo != nil {
		props["valid_to"] = rel.ValidTo.UTC().Format(time.RFC3339)
	}
	if len(rel.Properties) > 0 {
		props["properties"] = driver.EncodeBag(rel.Properties)
	}
	return props
}
