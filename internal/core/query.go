package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenthands/episodegraph/internal/core/model"
)

// Read operations never fail. Before Initialize they return empty results.

func (g *KnowledgeGraph) SearchEntities(ctx context.Context, query string, limit int) []model.EntityResult {
	c, err := g.ready()
	if err != nil {
		g.logger.Warn("search entities", zap.Error(err))
		return []model.EntityResult{}
	}
	return c.search.SearchEntities(ctx, query, limit)
}

func (g *KnowledgeGraph) SearchRelationships(ctx context.Context, query string, limit int) []model.RelationshipResult {
	c, err := g.ready()
	if err != nil {
		g.logger.Warn("search relationships", zap.Error(err))
		return []model.RelationshipResult{}
	}
	return c.search.SearchRelationships(ctx, query, limit)
}

func (g *KnowledgeGraph) GetEntityNeighbors(ctx context.Context, name string, maxHops int) model.Neighborhood {
	c, err := g.ready()
	if err != nil {
		g.logger.Warn("entity neighbors", zap.Error(err))
		return model.EmptyNeighborhood(name)
	}
	return c.search.GetEntityNeighbors(ctx, name, maxHops)
}

func (g *KnowledgeGraph) GetGraphStats(ctx context.Context) model.GraphStats {
	c, err := g.ready()
	if err != nil {
		g.logger.Warn("graph stats", zap.Error(err))
		return model.GraphStats{}
	}
	return c.search.GetGraphStats(ctx)
}

func (g *KnowledgeGraph) Search(ctx context.Context, query string, limit int) []model.SearchHit {
	c, err := g.ready()
	if err != nil {
		g.logger.Warn("search", zap.Error(err))
		return []model.SearchHit{}
	}
	return c.search.Search(ctx, query, limit)
}
