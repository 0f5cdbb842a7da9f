package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/easelhq/easel/db"
	"github.com/easelhq/easel/internal/agent"
	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/broadcast"
	"github.com/easelhq/easel/internal/chat"
	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/log"
	"github.com/easelhq/easel/internal/orchestrator"
	"github.com/easelhq/easel/internal/task"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting easel", "version", AppVersion, "storage", cfg.Storage)

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	graph, err := buildGraph(ctx, cfg, logger)
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(cfg.ChannelBuffer, logger)
	registry := task.NewRegistry()
	orch := orchestrator.New(store, registry, hub, graph, cfg.ConfirmationTools, logger)

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Orchestrator: orch,
		Store:        store,
		Hub:          hub,
		CORSOrigins:  cfg.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr,
		"api", "/api/v1/*",
		"health", "/health",
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

// buildStore selects the message log backend. The postgres backend runs
// pending migrations before opening the pool.
func buildStore(ctx context.Context, cfg *config.Config, logger log.Logger) (chat.Store, func(), error) {
	if cfg.Storage == config.StorageMemory {
		return chat.NewMemoryStore(logger), func() {}, nil
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return chat.NewPostgresStore(pool, logger), pool.Close, nil
}

// buildGraph initializes Genkit with the configured provider and wraps it as
// the agent graph.
func buildGraph(ctx context.Context, cfg *config.Config, logger log.Logger) (agent.Graph, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	}
	if g == nil {
		return nil, fmt.Errorf("initializing genkit with %s provider", cfg.Provider)
	}
	logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.FullModelName())

	return agent.NewGenkitGraph(g, cfg.FullModelName(), logger), nil
}
