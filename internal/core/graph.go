package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/episodegraph/internal/config"
	"github.com/agenthands/episodegraph/internal/core/extraction"
	"github.com/agenthands/episodegraph/internal/core/search"
	"github.com/agenthands/episodegraph/internal/driver"
	"github.com/agenthands/episodegraph/internal/llm"
	"github.com/agenthands/episodegraph/internal/logger"
	"github.com/agenthands/episodegraph/internal/metrics"
)

var (
	ErrConnection     = errors.New("backend connection failed")
	ErrNotInitialized = errors.New("knowledge graph not initialized")
)

type DriverFactory func(ctx context.Context, cfg config.MemgraphConfig, logger *zap.Logger) (driver.GraphDriver, error)

type LLMFactory func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (llm.LLMClient, llm.EmbedderClient, error)

type CacheFactory func(ctx context.Context, cfg config.CacheConfig) (llm.EmbeddingCache, error)

func defaultDriverFactory(ctx context.Context, cfg config.MemgraphConfig, logger *zap.Logger) (driver.GraphDriver, error) {
	d, err := driver.NewMemgraphDriver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func defaultCacheFactory(ctx context.Context, cfg config.CacheConfig) (llm.EmbeddingCache, error) {
	c, err := llm.NewRedisCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// KnowledgeGraph turns episodes into entities and typed relationships and
// answers queries over one group of the graph store.
type KnowledgeGraph struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	newDriver DriverFactory
	newLLM    LLMFactory
	newCache  CacheFactory

	// upsertMu serializes the check-then-write vertex upserts of this process.
	upsertMu sync.Mutex

	mu        sync.RWMutex
	driver    driver.GraphDriver
	llm       llm.LLMClient
	embedder  llm.EmbedderClient
	cache     llm.EmbeddingCache
	store     *driver.Store
	extractor *extraction.Extractor
	search    *search.Service
}

type Option func(*KnowledgeGraph)

func WithLogger(l *zap.Logger) Option {
	return func(g *KnowledgeGraph) { g.logger = logger.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *KnowledgeGraph) { g.metrics = m }
}

func WithDriverFactory(f DriverFactory) Option {
	return func(g *KnowledgeGraph) {
		if f != nil {
			g.newDriver = f
		}
	}
}

func WithLLMFactory(f LLMFactory) Option {
	return func(g *KnowledgeGraph) {
		if f != nil {
			g.newLLM = f
		}
	}
}

func WithCacheFactory(f CacheFactory) Option {
	return func(g *KnowledgeGraph) {
		if f != nil {
			g.newCache = f
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *KnowledgeGraph) {
		if now != nil {
			g.now = now
		}
	}
}

// New returns an engine that is not yet connected. Call Initialize before use.
func New(cfg *config.Config, opts ...Option) *KnowledgeGraph {
	if cfg == nil {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}
	g := &KnowledgeGraph{
		cfg:       cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
		newDriver: defaultDriverFactory,
		newLLM:    llm.NewClient,
		newCache:  defaultCacheFactory,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Initialize connects the graph store first and the LLM provider second.
// When the LLM cannot be reached the already opened store is closed again.
// Calling Initialize on a ready engine is a no-op.
func (g *KnowledgeGraph) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.store != nil {
		return nil
	}
	if err := g.cfg.Validate(); err != nil {
		return err
	}

	d, err := g.newDriver(ctx, g.cfg.Memgraph, g.logger)
	if err != nil {
		return fmt.Errorf("%w: graph store: %w", ErrConnection, err)
	}

	gen, emb, err := g.newLLM(ctx, g.cfg.LLM, g.logger)
	if err != nil {
		if cerr := d.Close(ctx); cerr != nil {
			g.logger.Warn("failed to close graph store", zap.Error(cerr))
		}
		return fmt.Errorf("%w: llm provider %s: %w", ErrConnection, g.cfg.LLM.Provider, err)
	}

	if err := d.BuildIndices(ctx); err != nil {
		g.logger.Warn("failed to build indices", zap.Error(err))
	}

	var cache llm.EmbeddingCache
	if emb != nil && g.cfg.Cache.RedisAddr != "" {
		c, err := g.newCache(ctx, g.cfg.Cache)
		if err != nil {
			g.logger.Warn("embedding cache disabled", zap.String("addr", g.cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			cache = c
			emb = llm.NewCachedEmbedder(emb, c, g.cfg.LLM.EmbeddingModel, g.logger)
		}
	}

	store := driver.NewStore(d, g.cfg.Graph.GroupName,
		driver.WithContentLimit(g.cfg.Graph.ContentLimit),
		driver.WithLogger(g.logger),
		driver.WithClock(g.now),
	)

	g.driver = d
	g.llm = gen
	g.embedder = emb
	g.cache = cache
	g.store = store
	g.extractor = extraction.NewExtractor(gen, emb, g.cfg.Extraction,
		extraction.WithLogger(g.logger),
		extraction.WithSampling(g.cfg.LLM.Temperature, g.cfg.LLM.MaxTokens),
	)
	g.search = search.NewService(store,
		search.WithWindow(g.cfg.Graph.SearchWindow),
		search.WithNeighborLimit(g.cfg.Graph.NeighborLimit),
		search.WithLogger(g.logger),
		search.WithMetrics(g.metrics),
	)

	g.logger.Info("knowledge graph initialized",
		zap.String("group", store.Group()),
		zap.String("llm_provider", g.cfg.LLM.Provider),
		zap.Bool("embeddings", emb != nil),
		zap.Bool("embedding_cache", cache != nil),
	)
	return nil
}

// Close releases the LLM clients, the embedding cache and the graph store.
// Failures are logged and never returned. The engine may be initialized again.
func (g *KnowledgeGraph) Close(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.store == nil {
		return
	}

	var closed []any
	closeOnce := func(name string, v any) {
		c, ok := v.(io.Closer)
		if !ok {
			return
		}
		for _, prev := range closed {
			if prev == v {
				return
			}
		}
		closed = append(closed, v)
		if err := c.Close(); err != nil {
			g.logger.Warn("failed to close "+name, zap.Error(err))
		}
	}
	closeOnce("llm client", g.llm)
	closeOnce("embedder", g.embedder)
	closeOnce("embedding cache", g.cache)

	if err := g.driver.Close(ctx); err != nil {
		g.logger.Warn("failed to close graph store", zap.Error(err))
	}

	g.driver = nil
	g.llm = nil
	g.embedder = nil
	g.cache = nil
	g.store = nil
	g.extractor = nil
	g.search = nil
	g.logger.Info("knowledge graph closed")
}

type components struct {
	store     *driver.Store
	extractor *extraction.Extractor
	search    *search.Service
}

func (g *KnowledgeGraph) ready() (components, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.store == nil {
		return components{}, ErrNotInitialized
	}
	return components{store: g.store, extractor: g.extractor, search: g.search}, nil
}

// Group is the logical partition every read and write is scoped to.
func (g *KnowledgeGraph) Group() string {
	return g.cfg.Graph.GroupName
}
