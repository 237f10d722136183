// Package main 文档解析 worker 入口（doc-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kb-ext-api/internal/application/ingestion"
	"kb-ext-api/internal/config"
	"kb-ext-api/internal/infrastructure/messaging"
	"kb-ext-api/internal/infrastructure/persistence/redis"
	"kb-ext-api/internal/infrastructure/ragflow"
	"kb-ext-api/pkg/logger"
	"kb-ext-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "doc-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	artifactStore, err := ingestion.NewArtifactStore(cfg.Documents.StorageDir)
	if err != nil {
		logger.Fatal(ctx, "failed to init artifact store", err)
	}

	cache := redis.NewCache(redisClient)
	tasks := ingestion.NewTaskTracker(cache, cfg.Documents.TaskStatusTTL)
	ragflowClient := ragflow.NewClient(&cfg.RAGFlow)
	processor := ingestion.NewProcessor(ragflowClient, artifactStore, tasks,
		cfg.Documents.DefaultChunkToken, cfg.Documents.PartialChunkCount)

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamDocParse,
		Group:         messaging.ConsumerGroupDocWorker,
		ConsumerName:  consumerName(cfg.Messaging.RedisStream.ConsumerName),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.MessageTypeDocParse, processor.HandleDocParse)

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	go consumer.MonitorDLQ(ctx, 100)

	log := logger.FromContext(ctx)
	log.Info("doc-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("doc-worker shutting down")
	consumer.Stop()
}

func consumerName(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "doc-worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
