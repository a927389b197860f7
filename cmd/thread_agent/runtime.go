package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/evanhsu/dealthread/internal/campaign"
	"github.com/evanhsu/dealthread/internal/config"
	"github.com/evanhsu/dealthread/internal/db"
	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/matching"
	"github.com/evanhsu/dealthread/internal/observability"
	"github.com/evanhsu/dealthread/internal/server"
	"github.com/evanhsu/dealthread/internal/storage"
)

// runtime bundles the wired components every command works against.
type runtime struct {
	eng       *engine.Engine
	matcher   *matching.Matcher
	orch      *campaign.Orchestrator
	campaigns engine.CampaignStore
	users     server.UserStore
	logger    *zap.Logger
	close     func()
}

// loadSettings resolves the effective configuration: optional config file,
// overridden by flags, overridden by DATABASE_URL from the environment.
func loadSettings() (config.Config, error) {
	cfg := config.Config{
		SQLitePath: rootDBPath,
		Segments:   rootSegments,
		Verbose:    rootVerbose,
	}
	if rootConfig != "" {
		fileCfg, err := config.LoadConfig(rootConfig)
		if err != nil {
			return config.Config{}, err
		}
		cfg = cfg.MergeWithDefaults(*fileCfg)
		cfg.Verbose = cfg.Verbose || fileCfg.Verbose
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newRuntime opens the configured store and wires the engine, matcher and
// orchestrator. DATABASE_URL selects Postgres; otherwise the local SQLite
// file is used. The caller must invoke close.
func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	logger, err := observability.NewLogger(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	rt := &runtime{logger: logger}

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		rt.eng = engine.New(database, database, nil, logger)
		rt.campaigns = database
		rt.users = database
		rt.close = func() {
			database.Close()
			_ = logger.Sync()
		}
	} else {
		store, err := storage.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		rt.eng = engine.New(store, store, nil, logger)
		rt.campaigns = store
		rt.close = func() {
			_ = store.Close()
			_ = logger.Sync()
		}
	}

	// The segment catalog is optional: threads run unbound without one, and
	// campaigns are unavailable.
	if _, statErr := os.Stat(cfg.Segments); statErr == nil {
		segments, err := matching.LoadCatalog(cfg.Segments)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.matcher = matching.NewMatcher(segments, cfg.MatchThreshold, logger)
		rt.orch = campaign.NewOrchestrator(rt.eng, rt.campaigns, rt.matcher, logger)
	} else {
		logger.Warn("segment catalog not found, matching disabled",
			zap.String("path", cfg.Segments))
	}

	return rt, nil
}
