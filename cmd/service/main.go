// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-repo-sync/internal/account"
	"github-repo-sync/internal/api"
	"github-repo-sync/internal/cache"
	"github-repo-sync/internal/config"
	"github-repo-sync/internal/crypto"
	"github-repo-sync/internal/database"
	"github-repo-sync/internal/github"
	"github-repo-sync/internal/ingest"
	"github-repo-sync/internal/oauth"
	"github-repo-sync/internal/project"
	"github-repo-sync/internal/store"
	"github-repo-sync/internal/telemetry"
	"github-repo-sync/internal/tree"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration and initialize structured logger
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := telemetry.SetupLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	logger.Info("Configuration loaded successfully")

	// 2. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 3. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	if err := dbpool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	logger.Info("Database connection established")

	if err := runMigrations(cfg.MigrationsPath, cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 4. Initialize application components
	app, err := newApp(cfg, database.New(dbpool), logger, nil)
	if err != nil {
		return err
	}
	defer app.pipeline.Close()

	// 5. Start the token sweeper and the HTTP server
	if cfg.TokenSweepInterval > 0 {
		go app.sweeper.Start(ctx)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 6. Wait for shutdown signal
	logger.Info("Application started. Waiting for shutdown signal...")
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shut down", "error", err)
	}

	// In-flight ingestion runs are cancelled and record FAILED before the pool closes.
	app.pipeline.Close()
	logger.Info("Shutdown complete")
	return nil
}

// app holds the wired components of the service.
type app struct {
	handler  http.Handler
	pipeline *ingest.Pipeline
	sweeper  *oauth.Sweeper
}

// newApp wires every component over q. httpClient, when set, is used for all
// calls to GitHub.
func newApp(cfg *config.Config, q database.Querier, logger *slog.Logger, httpClient *http.Client) (*app, error) {
	cipher, err := crypto.DeriveTokenCipher(cfg.TokenEncryptionKey, []byte(cfg.TokenEncryptionSalt))
	if err != nil {
		return nil, fmt.Errorf("failed to create token cipher: %w", err)
	}
	st := store.New(q, cipher)

	gh, err := github.NewClient(github.Options{
		BaseURL:      cfg.GithubAPIURL,
		ClientID:     cfg.GithubClientID,
		ClientSecret: cfg.GithubClientSecret,
		CallTimeout:  cfg.RemoteCallTimeout,
		HTTPClient:   httpClient,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}

	manager := oauth.NewManager(oauth.Config{
		ClientID:     cfg.GithubClientID,
		ClientSecret: cfg.GithubClientSecret,
		RedirectURI:  cfg.GithubRedirectURI,
		OAuthURL:     cfg.GithubOAuthURL,
		Scopes:       cfg.GithubOAuthScopes,
		RefreshSkew:  cfg.TokenRefreshSkew,
		DefaultTTL:   cfg.DefaultTokenTTL,
		HTTPClient:   httpClient,
	}, st, gh, logger)
	states := oauth.NewStateSigner(cfg.OAuthStateSecret, cfg.OAuthStateTTL)

	contentCache := cache.New(st, manager, gh, logger)
	transformer := tree.NewTransformer(tree.DefaultIgnorePolicy(cfg.IgnoreExtraSegments...))
	pipeline := ingest.NewPipeline(st, gh, manager, contentCache, transformer, logger, ingest.Options{
		PRConcurrency: cfg.PRConcurrency,
		RunTimeout:    cfg.IngestTimeout,
	})

	projects := project.NewService(st, manager, gh, pipeline, contentCache, logger)
	accounts := account.NewService(states, manager, gh, st, logger)

	return &app{
		handler:  api.NewRouter(projects, accounts, logger),
		pipeline: pipeline,
		sweeper:  oauth.NewSweeper(manager, st, logger, cfg.TokenSweepInterval),
	}, nil
}

func runMigrations(source, dbURL string) error {
	m, err := migrate.New(source, dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
