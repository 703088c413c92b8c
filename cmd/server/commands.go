package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/agenthands/episodegraph/internal/config"
	"github.com/agenthands/episodegraph/internal/core"
	"github.com/agenthands/episodegraph/internal/core/model"
	"github.com/agenthands/episodegraph/internal/logger"
	"github.com/agenthands/episodegraph/internal/metrics"
	"github.com/agenthands/episodegraph/internal/server"
)

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	graph    *core.KnowledgeGraph
}

// open loads the configuration and initializes the knowledge graph.
func open(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	graph := core.New(cfg, core.WithLogger(log), core.WithMetrics(metrics.New(reg)))
	if err := graph.Initialize(ctx); err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("failed to initialize knowledge graph: %w", err)
	}

	return &app{cfg: cfg, logger: log, registry: reg, graph: graph}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.graph.Close(ctx)
	_ = a.logger.Sync()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdServe(configPath *string) *cli.Command {
	var port string

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "port",
				Usage:       "HTTP port, overrides [server] port",
				Sources:     cli.EnvVars("PORT"),
				Destination: &port,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := open(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if port == "" {
				port = a.cfg.Server.Port
			}

			srv := server.NewServer(a.graph, a.logger, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
			httpServer := &http.Server{
				Addr:              ":" + port,
				Handler:           srv.SetupRouter(),
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("failed to start server: %w", err)
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shutdown server: %w", err)
			}
			a.logger.Info("Server stopped")
			return nil
		},
	}
}

// readEpisodes accepts a JSON array of episodes or an object with an
// "episodes" array.
func readEpisodes(path string) ([]model.Episode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var episodes []model.Episode
	if err := json.Unmarshal(data, &episodes); err == nil {
		return episodes, nil
	}

	var wrapped struct {
		Episodes []model.Episode `json:"episodes"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return wrapped.Episodes, nil
}

func cmdIngest(configPath *string) *cli.Command {
	var file, content, source, episodeID string

	return &cli.Command{
		Name:  "ingest",
		Usage: "Add one episode from --content or many from a JSON --file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "JSON file with episodes", Destination: &file},
			&cli.StringFlag{Name: "content", Usage: "Episode text", Destination: &content},
			&cli.StringFlag{Name: "source", Usage: "Episode source", Value: "cli", Destination: &source},
			&cli.StringFlag{Name: "id", Usage: "Episode id, generated when empty", Destination: &episodeID},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			var episodes []model.Episode
			switch {
			case file != "":
				eps, err := readEpisodes(file)
				if err != nil {
					return err
				}
				episodes = eps
			case strings.TrimSpace(content) != "":
				episodes = []model.Episode{{ID: episodeID, Content: content, Source: source}}
			default:
				return errors.New("either --file or --content is required")
			}

			a, err := open(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ids, err := a.graph.AddEpisodes(ctx, episodes)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"episode_vertex_ids": ids})
		},
	}
}

func cmdSearch(configPath *string) *cli.Command {
	var limit int

	return &cli.Command{
		Name:      "search",
		Usage:     "Search entities and relationships",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 10, Destination: &limit},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return errors.New("a query is required")
			}

			a, err := open(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			return printJSON(a.graph.Search(ctx, query, limit))
		},
	}
}

func cmdStats(configPath *string) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print episode, entity and relationship counts",
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := open(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			return printJSON(a.graph.GetGraphStats(ctx))
		},
	}
}
