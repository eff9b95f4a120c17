package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jdores/selfserve-egressip/internal/api"
	"github.com/jdores/selfserve-egressip/internal/config"
	"github.com/jdores/selfserve-egressip/internal/gateway"
	"github.com/jdores/selfserve-egressip/internal/pkg/distlock"
	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
	"github.com/jdores/selfserve-egressip/internal/pkg/metrics"
	"github.com/jdores/selfserve-egressip/internal/repository/postgres"
	"github.com/jdores/selfserve-egressip/internal/service/audit"
	"github.com/jdores/selfserve-egressip/internal/service/egress"
)

func main() {
	cfg, err := config.LoadFromEnv(config.ResolvePath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.Configure(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Redact(), os.Stderr)

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	lists := gateway.NewClient(cfg.Gateway.ClientConfig())
	lists.SetMetrics(m)

	auditSvc := audit.NewService(postgres.NewAuditLogRepo(db), cfg.Audit.Retention())
	auditSvc.SetMetrics(m)

	egressSvc := egress.NewService(cfg.EgressLocations(), lists, auditSvc)
	egressSvc.SetMetrics(m)
	if cfg.Lease.Enabled {
		egressSvc.SetLeaser(distlock.NewLeaser(redisClient, db, "egress:user:", cfg.Lease.TTL()))
		logger.Info("per-user lease enabled", "ttl", cfg.Lease.TTL().String())
	}

	server := api.NewServer(cfg.Server, api.NewHandlers(egressSvc, auditSvc), api.RouteOptions{
		IdentityHeader: cfg.Identity.Header,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Health:         api.NewHealthChecker(db, redisClient),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr(), "locations", cfg.EgressLocations().Len())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
