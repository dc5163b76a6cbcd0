package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"lead-gateway/internal/config"
	"lead-gateway/internal/delivery"
	"lead-gateway/internal/mapper"
	"lead-gateway/internal/normalizer"
	"lead-gateway/internal/queue"
	"lead-gateway/internal/store"
	"lead-gateway/internal/telemetry"
	"lead-gateway/internal/validator"
	"lead-gateway/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN, cfg.PoolMinConns, cfg.PoolMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	q := newQueue(cfg, st)

	v, err := validator.New(cfg)
	if err != nil {
		log.Fatalf("build validator: %v", err)
	}
	n := normalizer.New(cfg)
	m := mapper.New(cfg)
	c := delivery.New(cfg)

	processor := worker.NewProcessor(cfg, q, st, v, n, m, c)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	go func() {
		if err := processor.RunSweeper(ctx); err != nil {
			log.Printf("orphan sweeper stopped: %v", err)
		}
	}()

	log.Printf("worker started with concurrency=%d backoff_base=%s max_attempts=%d",
		cfg.WorkerConcurrency, cfg.BackoffBase, cfg.MaxAttempts)

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := processor.Run(ctx); err != nil {
				log.Printf("worker loop stopped: %v", err)
			}
		}()
	}
	wg.Wait()
}

func newQueue(cfg config.Config, st *store.Store) queue.Queue {
	if cfg.QueueTransport == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return queue.NewRedisQueue(client, cfg.BackoffBase)
	}
	return queue.NewPostgresQueue(st.Pool())
}
