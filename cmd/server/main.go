package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"eduvision/registry/internal/clients"
	"eduvision/registry/internal/config"
	"eduvision/registry/internal/db"
	"eduvision/registry/internal/events"
	registryhttp "eduvision/registry/internal/http"
	"eduvision/registry/internal/jobs"
	"eduvision/registry/internal/registration"
	"eduvision/registry/internal/repository"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store registration.Store
	var sweeper jobs.Store
	if cfg.DatabaseURL == "memory" {
		log.Printf("using in-memory store")
		mem := repository.NewMemoryStore()
		store = mem
		sweeper = mem
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer pool.Close()
		pg := repository.NewStore(pool)
		store = pg
		sweeper = pg
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, decision events disabled: %v", err)
			redisClient = nil
		}
	}
	publisher := events.NewPublisher(redisClient)

	var faces *clients.FaceGateway
	if cfg.FaceGatewayURL != "" {
		faces = clients.NewFaceGateway(cfg.FaceGatewayURL, cfg.FaceGatewayTimeout)
	}

	jobs.StartPendingReconcileJob(ctx, cfg, sweeper)

	server := registryhttp.NewServer(cfg, store, publisher, faces)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("registry listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
