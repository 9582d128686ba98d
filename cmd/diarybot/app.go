package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/assistant"
	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/database"
	"github.com/diarybot/diarybot/internal/i18n"
	"github.com/diarybot/diarybot/internal/llm"
	"github.com/diarybot/diarybot/internal/media/lens"
	"github.com/diarybot/diarybot/internal/media/ranking"
	"github.com/diarybot/diarybot/internal/media/search"
	"github.com/diarybot/diarybot/internal/media/session"
	"github.com/diarybot/diarybot/internal/media/websearch"
	"github.com/diarybot/diarybot/internal/metadata"
	"github.com/diarybot/diarybot/internal/metadata/tmdb"
	"github.com/diarybot/diarybot/internal/quota"
	"github.com/diarybot/diarybot/internal/startup"
	"github.com/diarybot/diarybot/internal/users"
)

// app holds the components shared by serve and identify.
type app struct {
	db        *database.DB
	users     *users.Repository
	meter     *quota.Meter
	sessions  *session.Store
	catalog   *i18n.Catalog
	assistant *assistant.Assistant

	closers []func()
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*database.DB, error) {
	var db *database.DB
	err := startup.WithRetry(ctx, "database connection", startup.DefaultRetryConfig(), func(context.Context) error {
		var err error
		db, err = database.New(cfg)
		return err
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	log.Info().Str("driver", string(db.Dialect())).Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		db:       db,
		users:    users.NewRepository(db, log),
		meter:    quota.NewMeter(db, cfg.Quota.Plans, log),
		sessions: session.NewStore(cfg.Assistant.SessionTTL()),
		catalog:  i18n.MustLoad(),
	}
	a.closers = append(a.closers, func() { db.Close() })

	cache, err := a.searchCache(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	tmdbClient := tmdb.NewClient(cfg.TMDB, log)
	if !tmdbClient.IsConfigured() {
		log.Warn().Msg("TMDB is not configured, title search will return nothing")
	}

	threshold := cfg.Assistant.ConfidenceThreshold
	if threshold <= 0 {
		threshold = ranking.DefaultThreshold
	}

	deps := assistant.Deps{
		Searcher: search.NewSearcher(tmdbClient, cache, cfg.TMDB.Languages, log),
		Web:      websearch.NewExtractor(cfg.Wikipedia, cfg.Brave, cfg.SerpAPI, log),
		LLM:      llm.NewClient(cfg.LLM, log),
		Sessions: a.sessions,
		Users:    a.users,
		Meter:    a.meter,
		Ranker:   ranking.NewRanker(a.catalog, threshold),
		Catalog:  a.catalog,
	}
	if lensClient := lens.NewClient(cfg.Lens, log); lensClient.IsConfigured() {
		deps.Lens = lens.NewExtractor(lensClient, log)
	}

	a.assistant = assistant.New(deps, cfg.Assistant, log)
	return a, nil
}

// searchCache prefers the shared Redis cache and falls back to memory.
func (a *app) searchCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (metadata.SearchCache, error) {
	if cfg.Redis.Addr == "" {
		cache := metadata.NewCache(metadata.DefaultCacheConfig())
		a.closers = append(a.closers, cache.Close)
		return cache, nil
	}

	var cache *metadata.RedisCache
	err := startup.WithRetry(ctx, "redis connection", startup.DefaultRetryConfig(), func(ctx context.Context) error {
		var err error
		cache, err = metadata.NewRedisCache(ctx, cfg.Redis, log)
		return err
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { cache.Close() })
	return cache, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
