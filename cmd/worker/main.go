package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ai-content-pipeline/internal/ai"
	"ai-content-pipeline/internal/config"
	"ai-content-pipeline/internal/content"
	"ai-content-pipeline/internal/logging"
	"ai-content-pipeline/internal/queue"
	"ai-content-pipeline/internal/store"
	"ai-content-pipeline/internal/telemetry"
	workerproc "ai-content-pipeline/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN, cfg.EmbeddingDim)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	q := queue.New(redisClient, cfg.VisibilityTimeout)

	chatClient, err := ai.NewChatClient(cfg.ChatConfig(), cfg.ProviderTimeout)
	if err != nil {
		log.Fatalf("init chat client: %v", err)
	}
	inferenceClient, err := ai.NewInferenceClient(cfg.GenerationConfig(), cfg.SummaryConfig(), cfg.EmbeddingConfig(), cfg.ProviderTimeout)
	if err != nil {
		log.Fatalf("init inference client: %v", err)
	}
	svc := content.New(chatClient, inferenceClient, inferenceClient)

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	processor := workerproc.New(q, st, nil, cfg.WorkerPollInterval, workerID)
	workerproc.NewHandlers(svc, st).Register(processor)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Warn("metrics server stopped", "err", err)
		}
	}()

	logger.Info("worker started", "worker_id", workerID, "visibility", cfg.VisibilityTimeout.String())
	if err := processor.Run(ctx); err != nil {
		logger.Info("worker stopped", "err", err)
	}
}
