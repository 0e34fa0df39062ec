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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/camp-checkin-api/api/swagger"
	"github.com/noah-isme/camp-checkin-api/internal/handler"
	"github.com/noah-isme/camp-checkin-api/internal/middleware"
	"github.com/noah-isme/camp-checkin-api/internal/repository"
	"github.com/noah-isme/camp-checkin-api/internal/service"
	"github.com/noah-isme/camp-checkin-api/pkg/cache"
	"github.com/noah-isme/camp-checkin-api/pkg/config"
	"github.com/noah-isme/camp-checkin-api/pkg/database"
	"github.com/noah-isme/camp-checkin-api/pkg/jobs"
	"github.com/noah-isme/camp-checkin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/camp-checkin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/camp-checkin-api/pkg/middleware/requestid"
	"github.com/noah-isme/camp-checkin-api/pkg/storage"
	"github.com/noah-isme/camp-checkin-api/pkg/tracing"
)

// @title Camp Check-in API
// @version 1.0.0
// @description Registration, payments and door check-in for a single camp event
// @BasePath /api/v1
// @schemes http https
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

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		logr.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("failed to apply schema", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if !errors.Is(err, cache.ErrDisabled) {
			logr.Warn("redis unavailable, continuing without it", zap.Error(err))
		}
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	attendeeRepo := repository.NewAttendeeRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	reportRepo := repository.NewReportRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	numberingOpts := service.NumberingOptions{MaxRetries: cfg.CheckIn.MaxRetries, Metrics: metrics, Logger: logr}
	var numberer service.Numberer
	var throttle interface {
		Allow(ctx context.Context, station string, interval time.Duration) (bool, error)
	}
	if redisClient != nil {
		numberer = service.NewNumberer(cfg.CheckIn.Numbering, attendeeRepo, repository.NewAttendanceCounter(redisClient, cfg.CheckIn.CounterKey), numberingOpts)
		throttle = repository.NewScanThrottle(redisClient)
	} else {
		numberer = service.NewNumberer(cfg.CheckIn.Numbering, attendeeRepo, nil, numberingOpts)
		throttle = service.NewLocalScanThrottle()
	}
	logr.Info("attendance numbering configured",
		zap.String("strategy", numberer.Strategy()),
		zap.String("reconfirm_policy", cfg.CheckIn.ReconfirmPolicy),
	)

	authSvc := service.NewAuthService(userRepo, tokenRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	attendeeSvc := service.NewAttendeeService(service.AttendeeServiceParams{
		Repo:      attendeeRepo,
		History:   auditRepo,
		Audit:     auditRepo,
		Cache:     cacheSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
		Options: service.AttendeeOptions{
			RegistrationOpen: cfg.Registration.Open,
			DefaultFee:       cfg.Registration.DefaultFee,
		},
	})
	paymentSvc := service.NewPaymentService(attendeeRepo, auditRepo, cacheSvc, metrics, validate, logr)
	ticketSvc := service.NewTicketService(attendeeRepo, cfg.Tickets.QRSize)
	checkInSvc := service.NewCheckInService(attendeeRepo, numberer, throttle, auditRepo, cacheSvc, metrics, logr, service.CheckInOptions{
		ReconfirmPolicy: cfg.CheckIn.ReconfirmPolicy,
		ScanInterval:    cfg.CheckIn.ScanInterval,
	})

	handlers := handler.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		Users:     handler.NewUserHandler(userSvc),
		Attendees: handler.NewAttendeeHandler(attendeeSvc),
		Payments:  handler.NewPaymentHandler(paymentSvc),
		Tickets:   handler.NewTicketHandler(ticketSvc),
		CheckIn:   handler.NewCheckInHandler(checkInSvc),
	}

	if cfg.Dashboard.Enabled {
		dashboardSvc := service.NewDashboardService(attendeeRepo, cacheSvc, cfg.Event.Name, cfg.Dashboard.CacheTTL, logr)
		handlers.Dashboard = handler.NewDashboardHandler(dashboardSvc)
	}

	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare report storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(attendeeRepo, files, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			EventName: cfg.Event.Name,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, nil, nil)

		worker := service.NewReportWorker(reportRepo, exportSvc, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			RetryDelay: 2 * time.Second,
			OnGiveUp:   worker.GiveUp,
			Logger:     logr,
		})
		reportQueue.Start(ctx)

		reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		})
		reportSvc.RecoverPendingJobs(ctx)
		go reportSvc.StartCleanup(ctx)
		handlers.Reports = handler.NewReportHandler(reportSvc)
	}

	go purgeExpiredTokens(ctx, tokenRepo, logr)

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = pingRedis(redisClient)
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	handlers.Metrics = metricsHandler

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(tracing.GinMiddleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	handler.RegisterOps(r, metricsHandler)
	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handlers, authSvc, auditRepo)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "event", cfg.Event.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
}

func pingRedis(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func purgeExpiredTokens(ctx context.Context, tokens *repository.TokenRepository, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := tokens.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logr.Warn("failed to purge expired refresh tokens", zap.Error(err))
				continue
			}
			if removed > 0 {
				logr.Info("purged expired refresh tokens", zap.Int64("count", removed))
			}
		}
	}
}
