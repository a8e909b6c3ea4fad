// Package wire 提供依赖注入装配
package wire

import (
	"context"

	"contentforge-ai-api/internal/application/assembler"
	"contentforge-ai-api/internal/application/generation"
	"contentforge-ai-api/internal/application/tree"
	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/infrastructure/llm"
	"contentforge-ai-api/internal/infrastructure/persistence/postgres"
	"contentforge-ai-api/internal/infrastructure/persistence/redis"
	"contentforge-ai-api/internal/interfaces/http/handler"
	"contentforge-ai-api/internal/interfaces/http/middleware"
	"contentforge-ai-api/internal/interfaces/http/router"
	"contentforge-ai-api/internal/provider"
	"contentforge-ai-api/pkg/logger"
	"contentforge-ai-api/pkg/utils"
)

// App 应用依赖容器
type App struct {
	Config *config.Config

	// 数据层
	PgClient    *postgres.Client
	RedisClient *redis.Client
	Cache       *redis.Cache

	// 生成引擎
	Registry     *provider.Registry
	Tracker      *provider.UsageTracker
	Selector     *provider.Selector
	TreeStore    *tree.Store
	Assembler    *assembler.Assembler
	Orchestrator *generation.Orchestrator

	Router *router.Router
}

// InitializeApp 装配整个应用。
// 返回的 cleanup 负责释放全部外部连接，按装配逆序执行。
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// PostgreSQL
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { pgClient.Close() })

	txMgr := postgres.NewTxManager(pgClient)
	nodeRepo := postgres.NewNodeRepository(pgClient)
	settingsRepo := postgres.NewProviderSettingsRepository(pgClient)
	usageRepo := postgres.NewUsageLogRepository(pgClient)
	styleGuideRepo := postgres.NewStyleGuideRepository(pgClient)
	contentRepo := postgres.NewContentRepository(pgClient)

	// Redis
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { redisClient.Close() })
	cache := redis.NewCache(redisClient)

	// 凭证加密
	cipher, err := utils.NewAESCipher(cfg.Security.EncryptionSecret)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// Provider 注册表与选择器
	factory := llm.NewFactory(cfg)
	registry := provider.NewRegistry(settingsRepo, cipher, factory)
	if err := registry.LoadProviders(ctx); err != nil {
		logger.Warn(ctx, "failed to load providers at startup", "error", err.Error())
	}

	tracker := provider.NewUsageTracker(usageRepo,
		cfg.Generation.Usage.FlushInterval, cfg.Generation.Usage.FlushSize)
	tracker.Start(ctx)
	cleanups = append(cleanups, func() { tracker.Stop(context.Background()) })

	selector := provider.NewSelector(registry, tracker, &cfg.Generation)

	// 应用层
	treeStore := tree.NewStore(nodeRepo, txMgr, cache, &cfg.Generation.Tree)
	contextAssembler := assembler.New(styleGuideRepo, contentRepo, &cfg.Generation.Context)
	orchestrator := generation.New(selector, treeStore, contextAssembler, &cfg.Generation)

	// HTTP 层
	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: cfg.Security.RateLimit.RequestsPerSecond,
		Burst:             cfg.Security.RateLimit.Burst,
	}, redis.NewRateLimiter(redisClient))

	handlers := router.Handlers{
		Health:     handler.NewHealthHandler(pgClient, redisClient),
		Generation: handler.NewGenerationHandler(orchestrator, selector),
		Tree:       handler.NewTreeHandler(treeStore),
		Provider:   handler.NewProviderHandler(registry, settingsRepo, usageRepo, cipher),
	}
	httpRouter := router.New(cfg, handlers, limiter)

	app := &App{
		Config:       cfg,
		PgClient:     pgClient,
		RedisClient:  redisClient,
		Cache:        cache,
		Registry:     registry,
		Tracker:      tracker,
		Selector:     selector,
		TreeStore:    treeStore,
		Assembler:    contextAssembler,
		Orchestrator: orchestrator,
		Router:       httpRouter,
	}
	return app, cleanup, nil
}
