// Package application assembles the import service from configuration: the
// record store, run history, metrics and the importer that ties them together.
// Both the HTTP server and the CLI start from New.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fleetsync/internal/config"
	"github.com/JonMunkholm/fleetsync/internal/core"
	"github.com/JonMunkholm/fleetsync/internal/core/feeds"
	"github.com/JonMunkholm/fleetsync/internal/history"
	"github.com/JonMunkholm/fleetsync/internal/metrics"
	"github.com/JonMunkholm/fleetsync/internal/store/httpstore"
	"github.com/JonMunkholm/fleetsync/internal/store/pgstore"
)

// App holds the long-lived collaborators of a process.
type App struct {
	Config   *config.Config
	Store    core.Store
	History  history.Store
	Metrics  *metrics.Recorder
	Limiter  *core.RunLimiter
	Importer *core.Importer

	pool *pgxpool.Pool
}

// New connects every backend cfg selects. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config:  cfg,
		Metrics: metrics.NewRecorder(),
		Limiter: core.NewRunLimiter(cfg.Import.MaxConcurrentRuns, cfg.Import.MaxWaitTime),
	}

	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Importer = core.NewImporter(app.Store, core.ImporterConfig{
		Workers:      cfg.Import.Workers,
		StoreTimeout: cfg.Store.Timeout,
		FeeFallback:  cfg.Import.FeeFallback,
		Observer:     app.Metrics,
		Logger:       slog.Default(),
	})

	slog.Info("feeds registered",
		"count", core.FeedCount(),
		"groups", len(core.Groups()),
	)
	for _, group := range core.Groups() {
		slog.Debug("feed group", "group", group, "feeds", len(core.ByGroup(group)))
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	if cfg.Import.FeedsFile != "" {
		n, err := feeds.LoadFile(cfg.Import.FeedsFile)
		if err != nil {
			return fmt.Errorf("load feeds file: %w", err)
		}
		slog.Info("loaded feeds file", "path", cfg.Import.FeedsFile, "feeds", n)
	}

	if cfg.NeedsDatabase() {
		pool, err := connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		a.pool = pool
	}

	switch cfg.Store.Backend {
	case "postgres":
		a.Store = pgstore.New(a.pool)
	default:
		store, err := httpstore.New(httpstore.Config{
			BaseURL: cfg.Store.BaseURL,
			Token:   cfg.Store.APIToken,
			Timeout: cfg.Store.Timeout,
		})
		if err != nil {
			return err
		}
		a.Store = store
	}
	slog.Info("record store ready", "backend", cfg.Store.Backend)

	switch cfg.History.Backend {
	case "postgres":
		pg := history.NewPostgres(a.pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		a.History = pg
	case "sqlite":
		lite, err := history.OpenSQLite(ctx, cfg.History.SQLitePath)
		if err != nil {
			return err
		}
		a.History = lite
	default:
		a.History = history.NewMemory(0)
	}
	slog.Info("run history ready", "backend", cfg.History.Backend)
	return nil
}

// connect opens and pings a pgx pool sized from cfg.
func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// StartRetention prunes old run history until ctx is cancelled.
func (a *App) StartRetention(ctx context.Context) {
	history.StartRetention(ctx, a.History, history.RetentionConfig{
		RetentionDays: a.Config.History.RetentionDays,
		CheckInterval: a.Config.History.CheckInterval,
	})
}

// Close releases history and the database pool.
func (a *App) Close() error {
	var errs []error
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
