package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/proxyrank/proxyrank/internal/api"
	"github.com/proxyrank/proxyrank/internal/config"
	"github.com/proxyrank/proxyrank/internal/metrics"
	"github.com/proxyrank/proxyrank/internal/registry"
	"github.com/proxyrank/proxyrank/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	st := openStore(cfg)
	defer st.Close()

	reg := registry.New(st, registry.Config{
		ScoreMin:   cfg.Score.Min,
		ScoreMax:   cfg.Score.Max,
		ScoreInit:  cfg.Score.Init,
		SampleTopK: cfg.Sample.TopK,
		Metrics:    metrics.New(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewServer(reg, slog.Default()).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("registryd listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

// openStore connects to Redis, falling back to the in-memory store when
// the config allows it. The fallback keeps local development working
// without a Redis instance; production config should leave it off.
func openStore(cfg *config.Config) store.ScoreStore {
	st, err := store.NewRedisStore(store.RedisOptions{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		Key:          cfg.Redis.Key,
		DialTimeout:  cfg.Redis.DialTimeout(),
		ReadTimeout:  cfg.Redis.ReadTimeout(),
		WriteTimeout: cfg.Redis.WriteTimeout(),
	})
	if err != nil {
		if cfg.Redis.MemoryFallback {
			slog.Warn("redis unavailable, using in-memory store", "error", err)
			return store.NewMemoryStore()
		}
		slog.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	return st
}
