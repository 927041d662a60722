package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ai-content-pipeline/internal/ai"
	"ai-content-pipeline/internal/api"
	"ai-content-pipeline/internal/config"
	"ai-content-pipeline/internal/content"
	"ai-content-pipeline/internal/logging"
	"ai-content-pipeline/internal/queue"
	"ai-content-pipeline/internal/ratelimit"
	"ai-content-pipeline/internal/search"
	"ai-content-pipeline/internal/store"
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
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	chatClient, err := ai.NewChatClient(cfg.ChatConfig(), cfg.ProviderTimeout)
	if err != nil {
		log.Fatalf("init chat client: %v", err)
	}
	inferenceClient, err := ai.NewInferenceClient(cfg.GenerationConfig(), cfg.SummaryConfig(), cfg.EmbeddingConfig(), cfg.ProviderTimeout)
	if err != nil {
		log.Fatalf("init inference client: %v", err)
	}

	svc := content.New(chatClient, inferenceClient, inferenceClient)
	searcher := search.New(st, inferenceClient)

	server := api.New(svc, searcher, st, q, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("api listening", "port", cfg.HTTPPort, "env", cfg.Env)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
