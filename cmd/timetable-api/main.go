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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/campusmesh/timetable-api/api/swagger"
	"github.com/campusmesh/timetable-api/internal/handler"
	"github.com/campusmesh/timetable-api/internal/middleware"
	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/repository"
	"github.com/campusmesh/timetable-api/internal/service"
	"github.com/campusmesh/timetable-api/pkg/cache"
	"github.com/campusmesh/timetable-api/pkg/config"
	"github.com/campusmesh/timetable-api/pkg/database"
	"github.com/campusmesh/timetable-api/pkg/jobs"
	"github.com/campusmesh/timetable-api/pkg/logger"
	corsmiddleware "github.com/campusmesh/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusmesh/timetable-api/pkg/middleware/requestid"
	"github.com/campusmesh/timetable-api/pkg/storage"
)

// @title Timetable API
// @version 1.0.0
// @description Constraint-based timetable generation and management for college departments
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	// Redis is optional. Without it the API runs uncached.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Analytics.CacheTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	collegeRepo := repository.NewCollegeRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	constraintRepo := repository.NewConstraintRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)

	authService := service.NewAuthService(userRepo, tokenRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "timetable-api",
	})
	userService := service.NewUserService(userRepo, auditRepo, validate, logr)
	batchService := service.NewBatchService(batchRepo, cacheService, validate, logr)
	subjectService := service.NewSubjectService(subjectRepo, cacheService, validate, logr)
	facultyService := service.NewFacultyService(facultyRepo, cacheService, validate, logr)
	roomService := service.NewRoomService(roomRepo, cacheService, validate, logr)
	collegeService := service.NewCollegeService(collegeRepo, cacheService, validate, logr)
	allocationService := service.NewAllocationService(allocationRepo, batchRepo, subjectRepo, facultyRepo, roomRepo, collegeService, cacheService, validate, logr)
	constraintService := service.NewConstraintService(constraintRepo, cacheService, validate, logr)
	snapshotService := service.NewSnapshotService(batchRepo, subjectRepo, facultyRepo, roomRepo, allocationRepo, collegeRepo, constraintRepo, cacheService, cfg.Scheduler.SnapshotTTL, logr)

	generationService := service.NewGenerationService(snapshotService, timetableRepo, db, cacheService, metricsService, auditRepo, validate, logr, service.GenerationConfig{
		DefaultAlgorithm: cfg.Scheduler.Algorithm,
		RunTTL:           cfg.Scheduler.RunTTL,
		Workers:          cfg.Scheduler.Workers,
		PopulationSize:   cfg.Scheduler.PopulationSize,
		MaxGenerations:   cfg.Scheduler.MaxGenerations,
		CrossoverRate:    cfg.Scheduler.CrossoverRate,
		MutationRate:     cfg.Scheduler.MutationRate,
		EliteSize:        cfg.Scheduler.EliteSize,
		TournamentSize:   cfg.Scheduler.TournamentSize,
	})
	timetableService := service.NewTimetableService(timetableRepo, db, snapshotService, collegeService, batchRepo, subjectRepo, facultyRepo, roomRepo, cacheService, auditRepo, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Export.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL)
	exportService := service.NewExportService(timetableService, exportStore, signer, auditRepo, validate, logr, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Export.SignedURLTTL,
	}, nil, nil)

	analyticsService := service.NewAnalyticsService(batchRepo, subjectRepo, facultyRepo, roomRepo, allocationRepo, timetableRepo, auditRepo, snapshotService, cacheService, metricsService, logr)

	if err := userService.EnsureDefaultAdmin(ctx); err != nil {
		logr.Warn("failed to seed default admin", zap.Error(err))
	}
	if err := constraintService.SeedDefaults(ctx); err != nil {
		logr.Warn("failed to seed default constraints", zap.Error(err))
	}

	queue := jobs.NewQueue("generation", generationService.HandleJob, jobs.Options{
		Workers: cfg.Scheduler.QueueWorkers,
		Logger:  logr,
	})
	queue.Start(ctx)
	generationService.SetQueue(queue)

	exportService.StartCleanup(ctx, cfg.Export.CleanupInterval)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	batchHandler := handler.NewBatchHandler(batchService)
	subjectHandler := handler.NewSubjectHandler(subjectService)
	facultyHandler := handler.NewFacultyHandler(facultyService)
	roomHandler := handler.NewRoomHandler(roomService)
	collegeHandler := handler.NewCollegeHandler(collegeService)
	allocationHandler := handler.NewAllocationHandler(allocationService)
	constraintHandler := handler.NewConstraintHandler(constraintService)
	generationHandler := handler.NewGenerationHandler(generationService)
	timetableHandler := handler.NewTimetableHandler(timetableService, exportService)
	exportHandler := handler.NewExportHandler(exportService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)
	metricsHandler := handler.NewMetricsHandler(metricsService, db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		authed := auth.Group("", middleware.JWT(authService))
		{
			authed.POST("/logout", authHandler.Logout)
			authed.POST("/change-password", authHandler.ChangePassword)
			authed.GET("/me", authHandler.Me)
		}
	}

	// Download links carry their own HMAC token, no session required.
	api.GET("/export/:token", exportHandler.Download)

	protected := api.Group("", middleware.JWT(authService))

	users := protected.Group("/users")
	{
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.SelfRole), userHandler.Get)
		manage := users.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			manage.GET("", userHandler.List)
			manage.POST("", userHandler.Create)
			manage.PUT("/:id", userHandler.Update)
			manage.DELETE("/:id", userHandler.Delete)
			manage.POST("/:id/reset-password", userHandler.ResetPassword)
		}
	}

	batches := protected.Group("/batches")
	{
		batches.GET("", batchHandler.List)
		batches.GET("/:id", batchHandler.Get)
		writes := batches.Group("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditRepo, models.ActivityCatalogWrite, "batches"))
		{
			writes.POST("", batchHandler.Create)
			writes.PUT("/:id", batchHandler.Update)
			writes.DELETE("/:id", batchHandler.Delete)
		}
	}

	subjects := protected.Group("/subjects")
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		writes := subjects.Group("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditRepo, models.ActivityCatalogWrite, "subjects"))
		{
			writes.POST("", subjectHandler.Create)
			writes.PUT("/:id", subjectHandler.Update)
			writes.DELETE("/:id", subjectHandler.Delete)
		}
	}

	faculty := protected.Group("/faculty")
	{
		faculty.GET("", facultyHandler.List)
		faculty.GET("/:id", facultyHandler.Get)
		writes := faculty.Group("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditRepo, models.ActivityCatalogWrite, "faculty"))
		{
			writes.POST("", facultyHandler.Create)
			writes.PUT("/:id", facultyHandler.Update)
			writes.DELETE("/:id", facultyHandler.Delete)
		}
	}

	rooms := protected.Group("/rooms")
	{
		rooms.GET("", roomHandler.List)
		rooms.GET("/:id", roomHandler.Get)
		writes := rooms.Group("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditRepo, models.ActivityCatalogWrite, "rooms"))
		{
			writes.POST("", roomHandler.Create)
			writes.PUT("/:id", roomHandler.Update)
			writes.DELETE("/:id", roomHandler.Delete)
		}
	}

	college := protected.Group("/college")
	{
		college.GET("", collegeHandler.Get)
		college.PUT("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditRepo, models.ActivityCatalogWrite, "college"), collegeHandler.Update)
	}

	allocations := protected.Group("/allocations")
	{
		allocations.GET("", allocationHandler.List)
		writes := allocations.Group("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditRepo, models.ActivityCatalogWrite, "allocations"))
		{
			writes.POST("", allocationHandler.Create)
			writes.DELETE("/:id", allocationHandler.Delete)
		}
	}

	fixedSlots := protected.Group("/fixed-slots")
	{
		fixedSlots.GET("", allocationHandler.ListFixedSlots)
		writes := fixedSlots.Group("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditRepo, models.ActivityCatalogWrite, "fixed_slots"))
		{
			writes.POST("", allocationHandler.CreateFixedSlot)
			writes.DELETE("/:id", allocationHandler.DeleteFixedSlot)
		}
	}

	constraints := protected.Group("/constraints")
	{
		constraints.GET("", constraintHandler.List)
		constraints.PUT("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(auditRepo, models.ActivityCatalogWrite, "constraints"), constraintHandler.Update)
	}

	generate := protected.Group("/generate")
	{
		generate.GET("/runs/:id", generationHandler.Run)
		admin := generate.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("", generationHandler.Generate)
			admin.POST("/runs/:id/save", generationHandler.Save)
		}
	}

	timetables := protected.Group("/timetables")
	{
		timetables.GET("", timetableHandler.List)
		timetables.GET("/:id", timetableHandler.Get)
		timetables.GET("/:id/view", timetableHandler.View)
		timetables.GET("/:id/validate", timetableHandler.Validate)
		timetables.POST("/:id/export", timetableHandler.Export)
		admin := timetables.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/:id/activate", timetableHandler.Activate)
			admin.DELETE("/:id", timetableHandler.Delete)
		}
	}

	if cfg.Analytics.Enabled {
		analytics := protected.Group("/analytics")
		{
			analytics.GET("/dashboard", analyticsHandler.Dashboard)
			analytics.GET("/timetable", analyticsHandler.Timetable)
			analytics.GET("/activity", middleware.RequireRoles(models.RoleAdmin), analyticsHandler.Activity)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("forced shutdown", zap.Error(err))
	}
	queue.Stop()
}
