package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"scanq/internal/admission"
	"scanq/internal/config"
	"scanq/internal/engine"
	server "scanq/internal/http"
	"scanq/internal/migrate"
	"scanq/internal/queue"
	"scanq/internal/ratelimit"
	"scanq/internal/retention"
	"scanq/internal/scans"
	"scanq/internal/store"
	"scanq/internal/tier"
	"scanq/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	// Ensure the initial admin account if configured
	if cfg.Auth.Enabled && cfg.Auth.InitialAdminKey != "" {
		if _, err := st.EnsureAccount(context.Background(), "admin@scanq.local", cfg.Auth.InitialAdminKey, string(tier.Enterprise), true); err != nil {
			log.Fatalf("ensure admin account failed: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("parse redis url failed: %v", err)
		}
		rdb = redis.NewClient(opt)
	}

	// The Redis-backed queue and window store are used when Redis is
	// configured; otherwise the in-process fallbacks keep a single-node
	// deployment working.
	var q queue.Queue
	var windows ratelimit.WindowStore
	if rdb != nil {
		q = queue.NewRedisQueue(rdb)
		windows = ratelimit.NewRedisWindows(rdb)
	} else {
		q = queue.NewMemoryQueue()
		windows = ratelimit.NewMemoryWindows()
		logger.Warn("redis not configured, using in-process queue and rate limiter")
	}

	registry := tier.NewRegistry(cfg.Tiers)
	limiter := ratelimit.New(windows, logger)
	adm := admission.NewController(registry, limiter, st, logger)
	svc := scans.NewService(st, q, adm, registry, logger)

	soft := time.Duration(cfg.Worker.SoftLimitMs) * time.Millisecond
	hard := time.Duration(cfg.Worker.HardLimitMs) * time.Millisecond
	eng := engine.NewCLI(cfg.Engine, soft, hard, logger)
	exec := worker.NewExecutor(st, q, eng, cfg.Worker, logger)
	runner := worker.NewRunner(cfg.Worker, q, exec, logger)
	sweeper := retention.NewSweeper(st, registry, logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startWorker := func() {
		go runner.Start(rootCtx)
		go sweeper.Start(rootCtx, cfg.Retention)
	}

	startAPI := func() {
		s := server.NewServer(cfg, server.Deps{
			Store:   st,
			Scans:   svc,
			Queue:   q,
			Sweeper: sweeper,
			Tiers:   registry,
			Redis:   rdb,
		}, logger)
		go func() {
			<-rootCtx.Done()
			if err := s.Shutdown(); err != nil {
				logger.Warn("server shutdown failed", "error", err)
			}
		}()
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	}

	switch *role {
	case "api":
		// Without a shared queue no worker process can pick scans up,
		// so execute them inline on a bounded pool.
		if rdb == nil {
			pool := worker.NewPool(cfg.Worker.MaxConcurrentScans)
			svc.EnableInlineExecution(exec, pool)
			defer pool.Drain()
		}
		startAPI()
	case "worker":
		startWorker()
		<-rootCtx.Done()
	case "all":
		startWorker()
		startAPI()
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}
