// Package main 知识库 API 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kb-ext-api/internal/application/ingestion"
	"kb-ext-api/internal/application/knowledge"
	"kb-ext-api/internal/config"
	"kb-ext-api/internal/infrastructure/embedding"
	"kb-ext-api/internal/infrastructure/messaging"
	"kb-ext-api/internal/infrastructure/persistence/elasticsearch"
	"kb-ext-api/internal/infrastructure/persistence/redis"
	"kb-ext-api/internal/infrastructure/ragflow"
	"kb-ext-api/internal/interfaces/http/handler"
	"kb-ext-api/internal/interfaces/http/router"
	"kb-ext-api/pkg/logger"
	"kb-ext-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-server",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 基础设施客户端
	esClient, err := elasticsearch.NewClient(&cfg.Elasticsearch, cfg.Embedding.Dimension)
	if err != nil {
		logger.Fatal(ctx, "failed to init elasticsearch client", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis client", err)
	}
	defer redisClient.Close()

	embedder, err := embedding.NewProvider(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init embedding provider", err)
	}

	// 知识检索链路，库绑定读取走 redis read-through 缓存
	cache := redis.NewCache(redisClient)
	repo := elasticsearch.NewRepository(esClient)
	store := redis.NewBindingStore(repo, cache, cfg.Cache.BindingTTL)
	knowledgeSvc := knowledge.NewService(store, embedder)

	// 文档摄取链路
	artifactStore, err := ingestion.NewArtifactStore(cfg.Documents.StorageDir)
	if err != nil {
		logger.Fatal(ctx, "failed to init artifact store", err)
	}
	tasks := ingestion.NewTaskTracker(cache, cfg.Documents.TaskStatusTTL)
	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
	ragflowClient := ragflow.NewClient(&cfg.RAGFlow)
	processor := ingestion.NewProcessor(ragflowClient, artifactStore, tasks,
		cfg.Documents.DefaultChunkToken, cfg.Documents.PartialChunkCount)
	ingestionSvc := ingestion.NewService(artifactStore, tasks, producer, processor,
		cfg.Documents.DefaultChunkToken)

	// HTTP 层
	handlers := router.Handlers{
		Knowledge: handler.NewKnowledgeHandler(knowledgeSvc),
		Retrieval: handler.NewRetrievalHandler(knowledgeSvc),
		Document:  handler.NewDocumentHandler(ingestionSvc),
		Health:    handler.NewHealthHandler(esClient, redisClient),
	}
	limiter := redis.NewRateLimiter(redisClient)
	r := router.New(cfg, handlers, limiter)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
