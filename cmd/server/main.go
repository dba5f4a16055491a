package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/config"
	"kidcheck/internal/database"
	"kidcheck/internal/handlers"
	"kidcheck/internal/logger"
	"kidcheck/internal/metrics"
	"kidcheck/internal/security"
	"kidcheck/internal/service"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	zl.Info("database connection established", zap.String("type", db.Dialect.Name()))

	if err := db.RunMigrations(ctx, cfg.Database.MigrationsPath, zl); err != nil {
		return err
	}

	loc, err := cfg.Custody.Location()
	if err != nil {
		return err
	}

	// PIN lockout counters live in Redis when configured so that every
	// replica sees the same failures
	var attempts security.AttemptLimiter = security.NewMemoryAttemptLimiter(cfg.Custody.PINLockoutWindow)
	if cfg.Redis.Addr != "" {
		rdb, err := security.NewRedisClient(cfg.Redis, zl)
		if err != nil {
			return err
		}
		defer rdb.Close()
		attempts = security.NewRedisAttemptLimiter(rdb, cfg.Custody.PINLockoutWindow)
	}

	var notifier service.Notifier = service.NopNotifier{}
	email, err := service.NewEmailNotifier(ctx, cfg.Mail, zl)
	if err != nil {
		zl.Warn("email notifications disabled", zap.Error(err))
	} else if email.IsEnabled() {
		notifier = email
	}

	prom := metrics.NewPrometheus()

	svc := service.New(service.Dependencies{
		DB:             db,
		PINs:           security.NewPINHasher(cfg.Custody.PINCost),
		QR:             security.NewQRSigner(cfg.Custody.QRSecret),
		Attempts:       attempts,
		Audit:          service.MultiAuditSink{service.NewDBAuditSink(db), service.NewLogAuditSink(zl)},
		Notifier:       notifier,
		Metrics:        prom,
		Logger:         zl,
		Location:       loc,
		MaxPINFailures: cfg.Custody.PINMaxFailures,
		OverrideRoles:  cfg.Custody.OverrideRoles,
	})

	if _, err := svc.Roster.SyncClassrooms(ctx, cfg.Classrooms); err != nil {
		return err
	}
	zl.Info("classroom catalog synced", zap.Int("classrooms", len(cfg.Classrooms)))

	var limiter *security.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = security.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitWindow)
		defer limiter.Stop()
	}

	router := handlers.NewRouter(svc, handlers.RouterConfig{
		Middleware: handlers.NewMiddleware(security.NewTokenManager(cfg.Auth), limiter, zl),
		DB:         db,
		Location:   loc,
		Metrics:    prom.Handler(),
		Logger:     zl,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go sweepGrants(ctx, svc.Grants, cfg.Custody.GrantSweepEvery, zl)

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sweepGrants periodically expires grants whose validity has lapsed
func sweepGrants(ctx context.Context, grants *service.GrantService, every time.Duration, zl *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := grants.ExpireStale(ctx, now)
			if err != nil {
				zl.Error("grant sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zl.Info("expired stale grants", zap.Int("count", n))
			}
		}
	}
}
