// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/interfaces/http/handler"
	"contentforge-ai-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Health     *handler.HealthHandler
	Generation *handler.GenerationHandler
	Tree       *handler.TreeHandler
	Provider   *handler.ProviderHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  gin.HandlerFunc
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, limiter gin.HandlerFunc) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// CORS 中间件
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	// 系统端点
	r.engine.GET("/health", r.handlers.Health.Health)
	r.engine.GET("/ready", r.handlers.Health.Ready)
	r.engine.GET("/live", r.handlers.Health.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// API v1 路由组
	v1 := r.engine.Group("/v1")
	if r.limiter != nil {
		v1.Use(r.limiter)
	}

	// 生成
	generate := v1.Group("/generate")
	{
		generate.POST("", r.handlers.Generation.Generate)
		generate.POST("/stream", r.handlers.Generation.GenerateStream)          // SSE 进度事件
		generate.POST("/direct/stream", r.handlers.Generation.StreamDirect)     // SSE Token 分片
	}

	// 生成树
	trees := v1.Group("/trees")
	{
		trees.GET("/:tid", r.handlers.Tree.GetTree)
		trees.GET("/:tid/stats", r.handlers.Tree.GetTreeStats)
	}

	// 节点
	nodes := v1.Group("/nodes")
	{
		nodes.GET("", r.handlers.Tree.ListNodes)
		nodes.GET("/:nid/path", r.handlers.Tree.GetNodePath)
		nodes.GET("/:nid/children", r.handlers.Tree.GetChildren)
		nodes.GET("/:nid/siblings", r.handlers.Tree.GetSiblings)
		nodes.POST("/:nid/select", r.handlers.Tree.SelectNode)
		nodes.PUT("/:nid/visibility", r.handlers.Tree.ToggleVisibility)
		nodes.POST("/:nid/move", r.handlers.Tree.MoveNode)
		nodes.POST("/:nid/clone", r.handlers.Tree.CloneNode)
		nodes.DELETE("/:nid", r.handlers.Tree.DeleteNode)
	}

	// 后端管理
	providers := v1.Group("/providers")
	{
		providers.GET("", r.handlers.Provider.ListProviders)
		providers.PUT("", r.handlers.Provider.UpsertProvider)
		providers.DELETE("/:name", r.handlers.Provider.DeleteProvider)
		providers.GET("/:name/health", r.handlers.Provider.CheckHealth)
		providers.POST("/:name/test", r.handlers.Provider.TestConnection)
		providers.GET("/:name/usage", r.handlers.Provider.GetUsage)
	}
}
