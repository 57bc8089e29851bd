// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/browser/cdpdriver"
	"github.com/xkilldash9x/reelpost/internal/browser/rodriver"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/reporting"
	"github.com/xkilldash9x/reelpost/internal/store"
)

// LauncherFunc builds the browser launcher for a configuration.
type LauncherFunc func(cfg config.BrowserConfig, logger *zap.Logger) (browser.Launcher, error)

// NewLauncher selects the browser driver. Neither driver starts a browser
// until the first page is requested.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) (browser.Launcher, error) {
	switch cfg.Driver {
	case config.DriverChromedp, "":
		return cdpdriver.NewLauncher(cfg, logger), nil
	case config.DriverRod:
		return rodriver.NewLauncher(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported browser driver: %s", cfg.Driver)
	}
}

// InitializeReporters builds every configured outcome sink. The JSON file
// reporter is always on; the stream and the databases are added when
// configured.
func InitializeReporters(ctx context.Context, cfg config.ReportingConfig, logger *zap.Logger) (*reporting.Multi, error) {
	var sinks []reporting.Reporter
	closeAll := func() {
		_ = reporting.NewMulti(logger, sinks...).Close()
	}

	files, err := reporting.NewFileReporter(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file reporter: %w", err)
	}
	sinks = append(sinks, files)

	if cfg.Stream != "" {
		stream, err := reporting.New("jsonl", cfg.Stream)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to initialize outcome stream: %w", err)
		}
		sinks = append(sinks, stream)
	}

	if cfg.SQLitePath != "" {
		logger.Info("Initializing SQLite outcome store.", zap.String("path", cfg.SQLitePath))
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, db)
	}

	if cfg.PostgresURL != "" {
		pg, err := InitializePostgresStore(ctx, cfg.PostgresURL, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, pg)
	}

	return reporting.NewMulti(logger, sinks...), nil
}

// InitializePostgresStore connects, verifies and migrates the Postgres
// outcome store. Closing the store closes the pool.
func InitializePostgresStore(ctx context.Context, url string, logger *zap.Logger) (*store.Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	logger.Info("Initializing PostgreSQL outcome store.", zap.String("host", poolConfig.ConnConfig.Host))

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}
