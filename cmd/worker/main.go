package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uniattend/internal/attendance"
	"uniattend/internal/audit"
	"uniattend/internal/config"
	"uniattend/internal/queue"
	"uniattend/internal/store"
)

// Worker consumes check-in messages and writes the check-in audit trail.
func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("worker needs a shared queue; QUEUE_BACKEND=memory is consumed inside the api process")
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := store.Migrate(ctx, db.Client); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable, will keep retrying", cfg.RedisAddr)
	}

	q := queue.New(cfg.QueueBackend, redisClient.Client)
	repo := attendance.NewRepository(db.Client)

	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerMetrics, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	log.Println("worker started, waiting for messages...")
	if err := audit.Run(ctx, q, repo); err != nil {
		log.Printf("worker: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Println("worker stopped")
}
