package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	database "github.com/FACorreiaa/go-poi-recommendations/app/db"
	"github.com/FACorreiaa/go-poi-recommendations/config"
	"github.com/FACorreiaa/go-poi-recommendations/internal/api/catalog"
	generativeAI "github.com/FACorreiaa/go-poi-recommendations/internal/api/generative_ai"
	"github.com/FACorreiaa/go-poi-recommendations/internal/api/places"
	"github.com/FACorreiaa/go-poi-recommendations/internal/api/recommendations"
)

// Container holds all application dependencies
type Container struct {
	Config                *config.Config
	Logger                *slog.Logger
	Pool                  *pgxpool.Pool
	Redis                 *redis.Client
	RecommendationHandler *recommendations.HandlerImpl
}

// NewContainer initializes and returns a new dependency container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	// Interaction log is optional; without Postgres ranking calls are not recorded.
	var interactions recommendations.InteractionRepository = recommendations.NoopInteractionRepo{}
	if cfg.Repositories.Postgres.Enabled {
		pool, err := initPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		interactions = recommendations.NewPostgresInteractionRepo(pool, logger)
	}

	cache, err := c.initCache(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	cat, err := catalog.New(cfg.Recommendations.CatalogPath, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	if p := strings.ToLower(cfg.Places.Provider); p != "" && p != "kakao" {
		c.Close()
		return nil, fmt.Errorf("unknown places provider %q", cfg.Places.Provider)
	}
	if cfg.Places.APIKey == "" {
		logger.Warn("KAKAO_REST_API_KEY is not set, every search will fail and the static catalog will be served")
	}
	provider := places.NewKakaoProvider(places.KakaoConfig{
		BaseURL:                 cfg.Places.BaseURL,
		APIKey:                  cfg.Places.APIKey,
		PageSize:                cfg.Places.PageSize,
		RequestsPerSecond:       cfg.Places.RequestsPerSecond,
		Burst:                   cfg.Places.Burst,
		BreakerFailureThreshold: cfg.Places.BreakerFailureThreshold,
		BreakerTimeout:          cfg.Places.BreakerTimeout,
	}, logger)

	ranker, err := generativeAI.NewRanker(ctx, generativeAI.Config{
		Provider:      cfg.Ranking.Provider,
		Model:         cfg.Ranking.Model,
		Temperature:   cfg.Ranking.Temperature,
		GeminiAPIKey:  cfg.Ranking.GeminiAPIKey,
		OpenAIAPIKey:  cfg.Ranking.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Ranking.OpenAIBaseURL,
	}, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize ranker: %w", err)
	}

	service := recommendations.NewServiceImpl(
		recommendations.NewKeywordGenerator(cfg.Recommendations.MaxVisitedPlaces),
		recommendations.NewSearchFanout(provider, cfg.Recommendations.ConcurrencyLimit, cfg.Recommendations.PerQueryTimeout, logger),
		recommendations.NewAIRankingSelector(ranker, interactions, cfg.Ranking.Temperature, logger),
		cat,
		cache,
		recommendations.ServiceConfig{
			OverallDeadline: cfg.Recommendations.OverallDeadline,
			RankingTimeout:  cfg.Recommendations.RankingTimeout,
		},
		logger,
	)
	c.RecommendationHandler = recommendations.NewHandlerImpl(service, logger)

	logger.Info("Container initialized",
		slog.String("places_provider", "kakao"),
		slog.String("ranking_provider", ranker.Provider()),
		slog.String("cache_backend", cfg.Cache.Backend),
		slog.Bool("interaction_log", c.Pool != nil),
		slog.Int("catalog_version", cat.Version()),
	)
	return c, nil
}

func initPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	// Run migrations *before* initializing the main pool
	if err = database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(ctx, dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}
	if !database.WaitForDB(ctx, pool, logger) {
		pool.Close()
		return nil, errors.New("database not ready after waiting")
	}
	return pool, nil
}

func (c *Container) initCache(ctx context.Context) (*recommendations.RecommendationCache, error) {
	cfg := c.Config.Cache
	var backend recommendations.CacheBackend

	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		backend = recommendations.NewMemoryCacheBackend(cfg.TTL, cfg.CleanupInterval)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Config.Repositories.Redis.Addr,
			Password: c.Config.Repositories.Redis.Password,
			DB:       c.Config.Repositories.Redis.DB,
		})
		rb := recommendations.NewRedisCacheBackend(client)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rb.Ping(pingCtx); err != nil {
			// Recommendations still work without Redis; they are just not shared.
			c.Logger.Warn("Redis unreachable, falling back to in-memory cache",
				slog.String("addr", c.Config.Repositories.Redis.Addr), slog.Any("error", err))
			_ = client.Close()
			backend = recommendations.NewMemoryCacheBackend(cfg.TTL, cfg.CleanupInterval)
			break
		}
		c.Redis = client
		backend = rb
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return recommendations.NewRecommendationCache(backend, cfg.TTL, cfg.DegradedTTL, c.Logger), nil
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("Failed to close redis client", slog.Any("error", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
