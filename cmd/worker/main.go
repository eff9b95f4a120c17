package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jdores/selfserve-egressip/internal/config"
	"github.com/jdores/selfserve-egressip/internal/pkg/distlock"
	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
	"github.com/jdores/selfserve-egressip/internal/pkg/metrics"
	"github.com/jdores/selfserve-egressip/internal/repository/postgres"
	"github.com/jdores/selfserve-egressip/internal/service/audit"
	"github.com/jdores/selfserve-egressip/internal/storage"
	"github.com/jdores/selfserve-egressip/internal/worker"
)

const cleanupLockKey = "egress:audit-cleanup"

func main() {
	once := flag.Bool("once", false, "run a single retention sweep and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address (e.g. :9090)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(config.ResolvePath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateStore(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.Configure(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Redact(), os.Stderr)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	auditSvc := audit.NewService(postgres.NewAuditLogRepo(db), cfg.Audit.Retention())
	auditSvc.SetMetrics(metrics.New(reg))
	archiver, err := storage.New(ctx, cfg.Audit.ArchiveConfig())
	if err != nil {
		log.Fatalf("Failed to initialize audit archive: %v", err)
	}
	if archiver != nil {
		auditSvc.SetArchiver(archiver)
		logger.Info("audit archive enabled", "bucket", cfg.Audit.ArchiveBucket, "dir", cfg.Audit.ArchiveDir)
	}

	lock := distlock.NewLock(redisClient, db, cleanupLockKey, cfg.Audit.CleanupLockTTL())
	cleanup := worker.NewAuditCleanupWorker(auditSvc, lock, cfg.Audit.CleanupInterval())
	cleanup.SetLockTTL(cfg.Audit.CleanupLockTTL())

	if *once {
		deleted, ran := cleanup.RunOnce(ctx)
		logger.Info("single sweep finished", "ran", ran, "deleted", deleted)
		return
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer metricsServer.Close()
	}

	done := make(chan struct{})
	go func() {
		cleanup.Start(ctx)
		close(done)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("worker did not stop in time")
	}
}
