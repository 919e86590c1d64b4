package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/handler"
	"github.com/noah-isme/library-api/internal/repository"
	"github.com/noah-isme/library-api/internal/service"
	"github.com/noah-isme/library-api/pkg/cache"
	"github.com/noah-isme/library-api/pkg/config"
	"github.com/noah-isme/library-api/pkg/database"
	"github.com/noah-isme/library-api/pkg/jobs"
	"github.com/noah-isme/library-api/pkg/logger"
	"github.com/noah-isme/library-api/pkg/storage"
)

// @title Library Loan API
// @version 1.0.0
// @description Catalog, roster and loan ledger for a school library
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB, logr); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	var redisClient redis.UniversalClient
	if cfg.Stats.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			redisClient = client
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient)
	var redisCheck handler.Pinger
	if redisClient != nil {
		redisCheck = cachePinger{repo: cacheRepo}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, redisClient != nil)

	bookRepo := repository.NewBookRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	reportRepo := repository.NewReportRepository(db)
	userRepo := repository.NewUserRepository(db)

	catalogSvc := service.NewCatalogService(bookRepo, categoryRepo, cacheSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, cacheSvc, cfg.Loans.MaxConcurrent, validate, logr)
	loanSvc := service.NewLoanService(loanRepo, service.LoanPolicy{
		MaxConcurrent:       cfg.Loans.MaxConcurrent,
		DefaultDurationDays: cfg.Loans.DefaultDurationDays,
		MaxDurationDays:     cfg.Loans.MaxDurationDays,
		PenaltyPerDay:       cfg.Loans.PenaltyPerDay,
	}, cacheSvc, metrics, validate, logr)
	reportSvc := service.NewReportService(reportRepo, cacheSvc, cfg.Stats.CacheTTL, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(loanSvc, files, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, validate, logr)

	created, err := authSvc.EnsureBootstrapAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminName)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logr.Info("bootstrap administrator created", zap.String("email", cfg.Bootstrap.AdminEmail))
	}

	if cfg.Maintenance.Enabled {
		queue := jobs.NewQueue("maintenance", jobs.Config{
			Workers:    cfg.Maintenance.Workers,
			MaxRetries: cfg.Maintenance.Retries,
			RetryDelay: 30 * time.Second,
			Logger:     logr,
		})
		maintenance := service.NewMaintenanceService(queue, loanSvc, exportSvc, metrics, cfg.Maintenance.Interval, logr)
		maintenance.Start(ctx)
		defer maintenance.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := newRouter(cfg, logr, routes{
		auth:       handler.NewAuthHandler(authSvc),
		categories: handler.NewCategoryHandler(catalogSvc),
		books:      handler.NewBookHandler(catalogSvc, loanSvc),
		students:   handler.NewStudentHandler(studentSvc, loanSvc),
		loans:      handler.NewLoanHandler(loanSvc),
		reports:    handler.NewReportHandler(reportSvc),
		exports:    handler.NewExportHandler(exportSvc),
		metrics:    handler.NewMetricsHandler(metrics, map[string]handler.Pinger{"database": db, "redis": redisCheck}),
		tokens:     authSvc,
		metricsSvc: metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type cachePinger struct {
	repo *repository.CacheRepository
}

func (p cachePinger) PingContext(ctx context.Context) error {
	return p.repo.Ping(ctx)
}
