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

	"github.com/noah-isme/formation-api/internal/handler"
	"github.com/noah-isme/formation-api/internal/middleware"
	"github.com/noah-isme/formation-api/internal/models"
	"github.com/noah-isme/formation-api/internal/repository"
	"github.com/noah-isme/formation-api/internal/service"
	"github.com/noah-isme/formation-api/pkg/cache"
	"github.com/noah-isme/formation-api/pkg/config"
	"github.com/noah-isme/formation-api/pkg/database"
	"github.com/noah-isme/formation-api/pkg/jobs"
	"github.com/noah-isme/formation-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/formation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/formation-api/pkg/middleware/requestid"
	"github.com/noah-isme/formation-api/pkg/storage"
)

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
		}
	}

	blobStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	validate := validator.New()

	formationRepo := repository.NewFormationRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	documentSvc := service.NewDocumentService(documentRepo, formationRepo, blobStore, signer, validate, logr, cfg.Documents.MaxFileSizeBytes)
	formationSvc := service.NewFormationService(formationRepo, documentSvc, cacheSvc, validate, logr)
	reconcilerSvc := service.NewReconcilerService(formationRepo, cacheSvc, metricsSvc, logr)

	formationHandler := handler.NewFormationHandler(formationSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)
	adminHandler := handler.NewAdminHandler(reconcilerSvc, metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", adminHandler.Metrics)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		api.GET("/formations", formationHandler.List)
		api.POST("/formations", formationHandler.Create)
		api.GET("/formations/:id", formationHandler.Get)
		api.PATCH("/formations/:id", formationHandler.Update)
		api.DELETE("/formations/:id", formationHandler.Delete)

		api.PUT("/formations/:id/schedule", formationHandler.Transition(models.StatusActionSchedule))
		api.PUT("/formations/:id/start", formationHandler.Transition(models.StatusActionStart))
		api.PUT("/formations/:id/finish", formationHandler.Transition(models.StatusActionFinish))
		api.PUT("/formations/:id/cancel", formationHandler.Transition(models.StatusActionCancel))
		api.PUT("/formations/:id/archive", formationHandler.Archive)
		api.PUT("/formations/:id/restore", formationHandler.Restore)

		api.POST("/formations/:id/participants", formationHandler.Enroll)
		api.DELETE("/formations/:id/participants/:participantId", formationHandler.Unenroll)
		api.POST("/formations/:id/trainers", formationHandler.AssignTrainer)
		api.DELETE("/formations/:id/trainers/:trainerId", formationHandler.UnassignTrainer)
		api.GET("/formations/:id/export", formationHandler.Export)

		api.POST("/formations/:id/documents", documentHandler.Upload)
		api.GET("/formations/:id/documents", documentHandler.List)
		api.GET("/documents/:id", documentHandler.Get)
		api.GET("/documents/:id/download-url", documentHandler.DownloadURL)
		api.GET("/documents/:id/download", documentHandler.Download)
		api.DELETE("/documents/:id", documentHandler.Delete)

		api.POST("/admin/reconcile", adminHandler.Reconcile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runner *jobs.Runner
	if cfg.Reconciler.Enabled {
		runner = jobs.NewRunner("reconciler", func(ctx context.Context) error {
			_, err := reconcilerSvc.Run(ctx)
			return err
		}, jobs.RunnerConfig{Interval: cfg.Reconciler.Interval, RunAtStart: true, Logger: logr})
		runner.Start(ctx)
		defer runner.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
