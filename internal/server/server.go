package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/episodegraph/internal/core/model"
	"github.com/agenthands/episodegraph/internal/logger"
)

// Graph is the part of the knowledge graph engine served over HTTP.
type Graph interface {
	AddEpisode(ctx context.Context, ep model.Episode) (string, error)
	AddEpisodes(ctx context.Context, episodes []model.Episode) ([]string, error)
	SearchEntities(ctx context.Context, query string, limit int) []model.EntityResult
	SearchRelationships(ctx context.Context, query string, limit int) []model.RelationshipResult
	GetEntityNeighbors(ctx context.Context, name string, maxHops int) model.Neighborhood
	GetGraphStats(ctx context.Context) model.GraphStats
	Search(ctx context.Context, query string, limit int) []model.SearchHit
}

const (
	defaultLimit   = 10
	defaultMaxHops = 2
	maxBulk        = 500
)

type Server struct {
	graph   Graph
	logger  *zap.Logger
	metrics http.Handler
}

// NewServer wires the handlers. metrics may be nil, in which case /metrics
// is not mounted.
func NewServer(graph Graph, log *zap.Logger, metrics http.Handler) *Server {
	return &Server{graph: graph, logger: logger.OrNop(log), metrics: metrics}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.Health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	r.POST("/episodes", s.AddEpisode)
	r.POST("/episodes/bulk", s.AddEpisodes)
	r.GET("/entities", s.SearchEntities)
	r.GET("/entities/:name/neighbors", s.EntityNeighbors)
	r.GET("/relationships", s.SearchRelationships)
	r.GET("/search", s.Search)
	r.GET("/stats", s.Stats)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type AddEpisodeRequest struct {
	EpisodeID string         `json:"episode_id"`
	Content   string         `json:"content" binding:"required"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

func (r AddEpisodeRequest) episode() model.Episode {
	return model.Episode{
		ID:        r.EpisodeID,
		Content:   r.Content,
		Source:    r.Source,
		Timestamp: r.Timestamp,
		Metadata:  r.Metadata,
	}
}

func (s *Server) AddEpisode(c *gin.Context) {
	var req AddEpisodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	id, err := s.graph.AddEpisode(c.Request.Context(), req.episode())
	if err != nil {
		s.logger.Error("Failed to add episode", zap.String("episode_id", req.EpisodeID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process episode"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"episode_vertex_id": id})
}

type AddEpisodesRequest struct {
	Episodes []AddEpisodeRequest `json:"episodes" binding:"required,min=1,dive"`
}

func (s *Server) AddEpisodes(c *gin.Context) {
	var req AddEpisodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if len(req.Episodes) > maxBulk {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many episodes, at most " + strconv.Itoa(maxBulk) + " per request"})
		return
	}

	episodes := make([]model.Episode, len(req.Episodes))
	for i, r := range req.Episodes {
		episodes[i] = r.episode()
	}

	ids, err := s.graph.AddEpisodes(c.Request.Context(), episodes)
	if err != nil {
		s.logger.Error("Failed to add episodes", zap.Int("count", len(episodes)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process episodes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"episode_vertex_ids": ids})
}

// queryAndLimit reads the q and limit parameters, writing a 400 response
// and returning false when either is invalid.
func queryAndLimit(c *gin.Context) (string, int, bool) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return "", 0, false
	}
	limit, ok := positiveInt(c, "limit", defaultLimit)
	if !ok {
		return "", 0, false
	}
	return q, limit, true
}

func positiveInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter " + key + " must be a positive integer"})
		return 0, false
	}
	return n, true
}

func (s *Server) SearchEntities(c *gin.Context) {
	q, limit, ok := queryAndLimit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": s.graph.SearchEntities(c.Request.Context(), q, limit)})
}

func (s *Server) SearchRelationships(c *gin.Context) {
	q, limit, ok := queryAndLimit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationships": s.graph.SearchRelationships(c.Request.Context(), q, limit)})
}

func (s *Server) Search(c *gin.Context) {
	q, limit, ok := queryAndLimit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": s.graph.Search(c.Request.Context(), q, limit)})
}

func (s *Server) EntityNeighbors(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Entity name is required"})
		return
	}
	hops, ok := positiveInt(c, "max_hops", defaultMaxHops)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.graph.GetEntityNeighbors(c.Request.Context(), name, hops))
}

func (s *Server) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.graph.GetGraphStats(c.Request.Context()))
}
