// genesisd is the Genesis governance daemon: it owns the audit log, the
// epoch ledger, and the domain state, and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/config"
	"github.com/genesis-gov/genesis/internal/governance/handler"
	"github.com/genesis-gov/genesis/internal/governance/service"
	"github.com/genesis-gov/genesis/internal/identity"
	"github.com/genesis-gov/genesis/internal/snapshot"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("genesisd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	startCtx := context.Background()

	// ── Audit log ────────────────────────────────────────────────────────────
	var log audit.Log
	if dbURL := cfg.Storage.DatabaseURL; dbURL != "" {
		pool, err := pgxpool.New(startCtx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(startCtx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		pg := audit.NewPostgresLog(pool, logger)
		if err := pg.EnsureSchema(startCtx); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}
		log = pg
		logger.Info("audit log: postgres")
	} else {
		fl, err := audit.NewFileLog(cfg.Storage.EventLogPath)
		if err != nil {
			// Fail closed: an unverifiable log never comes online.
			return fmt.Errorf("open event log: %w", err)
		}
		defer fl.Close()
		log = fl
		logger.Info("audit log: jsonl file", zap.String("path", cfg.Storage.EventLogPath))
	}

	if err := log.Verify(startCtx); err != nil {
		return fmt.Errorf("audit log integrity check failed: %w", err)
	}
	n, _ := log.Count(startCtx)
	logger.Info("audit log verified", zap.Int("events", n))

	// ── Service ──────────────────────────────────────────────────────────────
	snaps := snapshot.NewStore(cfg.Storage.SnapshotPath)
	svc, err := service.New(startCtx, cfg, log, snaps, logger)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	svc.WithEventHook(handler.RecordEventAppend)

	// ── Identity ─────────────────────────────────────────────────────────────
	issuerURL := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	tokenTTL := time.Duration(cfg.Server.TokenTTLSecs) * time.Second
	secret := cfg.Server.JWTSecret
	if secret == "" {
		secret = cfg.Server.AdminSecret
	}
	if secret == "" {
		logger.Warn("no jwt_secret or admin_secret configured; mutating routes will reject all tokens")
	}
	tokens := identity.NewTokenIssuer([]byte(secret), issuerURL, tokenTTL)

	// ── Router ───────────────────────────────────────────────────────────────
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if cfg.Server.RateLimitRPS > 0 {
		router.Use(handler.RateLimiter(cfg.Server))
	}
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	protected := router.Group("/api/v1")
	protected.Use(handler.RequireOperator(tokens, logger))

	handler.NewAuthHandler(tokens, cfg.Server.AdminSecret, logger).Register(v1)
	handler.NewSystemHandler(svc, logger).Register(v1)
	handler.NewActorHandler(svc, logger).Register(v1, protected)
	handler.NewMissionHandler(svc, logger).Register(v1, protected)
	handler.NewLeaveHandler(svc, logger).Register(v1, protected)
	handler.NewMarketHandler(svc, logger).Register(v1, protected)
	handler.NewEpochHandler(svc, logger).Register(v1, protected)

	// ── Serve ────────────────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("genesisd listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down genesisd...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("genesisd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
