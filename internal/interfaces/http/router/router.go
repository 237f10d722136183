// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kb-ext-api/internal/config"
	"kb-ext-api/internal/infrastructure/persistence/redis"
	"kb-ext-api/internal/interfaces/http/handler"
	"kb-ext-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器集合
type Handlers struct {
	Knowledge *handler.KnowledgeHandler
	Retrieval *handler.RetrievalHandler
	Document  *handler.DocumentHandler
	Health    *handler.HealthHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  *redis.RateLimiter
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, limiter *redis.RateLimiter) *Router {
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
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	// 限流中间件
	r.engine.Use(middleware.RateLimit(r.cfg.Security.RateLimit, r.limiter))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	// 系统端点
	r.engine.GET("/health", r.handlers.Health.Health)
	r.engine.GET("/ready", r.handlers.Health.Ready)
	r.engine.GET("/live", r.handlers.Health.Live)
	r.engine.GET("/", r.handlers.Health.Root)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// 知识条目管理
	knowledge := r.engine.Group("/knowledge")
	{
		knowledge.POST("/update", r.handlers.Knowledge.Update)
		knowledge.POST("/delete", r.handlers.Knowledge.Delete)
		knowledge.POST("/bind_batch", r.handlers.Knowledge.BindBatch)
		knowledge.POST("/unbind_batch", r.handlers.Knowledge.UnbindBatch)
		knowledge.POST("/search", r.handlers.Knowledge.Search)
	}

	// Dify External Knowledge API，需要 Bearer 认证
	r.engine.POST("/retrieval",
		middleware.Auth(r.cfg.Security.Auth),
		r.handlers.Retrieval.Retrieve,
	)

	// 文档上传与分块
	r.engine.POST("/upload_documents", r.handlers.Document.Upload)
	r.engine.POST("/analyzing_documents", r.handlers.Document.Analyze)
	r.engine.POST("/chunk_text", r.handlers.Document.ChunkText)
}
