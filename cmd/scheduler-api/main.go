package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-scheduler-api/api/swagger"
	"github.com/noah-isme/timetable-scheduler-api/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-scheduler-api/internal/middleware"
	"github.com/noah-isme/timetable-scheduler-api/internal/repository"
	"github.com/noah-isme/timetable-scheduler-api/internal/scheduler"
	"github.com/noah-isme/timetable-scheduler-api/internal/service"
	"github.com/noah-isme/timetable-scheduler-api/pkg/cache"
	"github.com/noah-isme/timetable-scheduler-api/pkg/config"
	"github.com/noah-isme/timetable-scheduler-api/pkg/database"
	"github.com/noah-isme/timetable-scheduler-api/pkg/export"
	"github.com/noah-isme/timetable-scheduler-api/pkg/jobs"
	"github.com/noah-isme/timetable-scheduler-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-scheduler-api/pkg/middleware/requestid"
)

// @title Timetable Scheduler API
// @version 1.0.0
// @description Generates weekly university timetables, detects conflicts and exports schedules.
// @BasePath /api
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, logr)
	if err != nil {
		logr.Warn("redis unavailable, timetable cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	grid, err := scheduler.NewGrid(cfg.Scheduler.Days, cfg.Scheduler.TimeSlots)
	if err != nil {
		return fmt.Errorf("scheduler grid: %w", err)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	checks := []handler.ReadinessCheck{{Name: "postgres", Ping: db.PingContext}}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		redisRepo := repository.NewCacheRepository(redisClient, logr)
		cacheRepo = redisRepo
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Ping: redisRepo.Ping})
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	courseRepo := repository.NewCourseRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	entryRepo := repository.NewTimetableEntryRepository(db)

	engine := scheduler.NewEngine(grid, scheduler.Options{
		Mode:              scheduler.Mode(cfg.Scheduler.Mode),
		CapacityPolicy:    scheduler.CapacityPolicy(cfg.Scheduler.CapacityPolicy),
		BacktrackWindow:   cfg.Scheduler.BacktrackWindow,
		RetryBudget:       cfg.Scheduler.RetryBudget,
		DefaultEnrollment: cfg.Scheduler.DefaultEnrollment,
		ContiguousBlocks:  cfg.Scheduler.ContiguousBlocks,
	}, logr)
	detector := scheduler.NewDetector(grid, cfg.Scheduler.DefaultEnrollment)

	timetableSvc := service.NewTimetableService(
		timetableRepo,
		entryRepo,
		courseRepo,
		facultyRepo,
		roomRepo,
		engine,
		detector,
		db,
		cacheSvc,
		metrics,
		validate,
		logr,
		service.TimetableConfig{
			SolveTimeout:        cfg.Scheduler.Timeout,
			MaxConcurrentSolves: cfg.Scheduler.MaxConcurrentSolves,
		},
	)

	revalidation := service.NewRevalidationService(timetableSvc, metrics, jobs.QueueConfig{
		Workers:    cfg.Revalidation.Workers,
		BufferSize: cfg.Revalidation.BufferSize,
		MaxRetries: cfg.Revalidation.MaxRetries,
		RetryDelay: cfg.Revalidation.RetryDelay,
		Logger:     logr,
	}, cfg.Revalidation.Enabled)
	revalidation.Start(ctx)
	defer revalidation.Stop()

	courseSvc := service.NewCourseService(courseRepo, entryRepo, revalidation, validate, logr)
	facultySvc := service.NewFacultyService(facultyRepo, entryRepo, revalidation, validate, logr)
	roomSvc := service.NewRoomService(roomRepo, entryRepo, revalidation, validate, logr)

	loc, err := time.LoadLocation(cfg.Export.Timezone)
	if err != nil {
		logr.Warn("unknown export timezone, using UTC", zap.String("timezone", cfg.Export.Timezone), zap.Error(err))
		loc = time.UTC
	}
	exportSvc := service.NewExportService(
		timetableSvc,
		courseRepo,
		facultyRepo,
		roomRepo,
		grid,
		logr,
		export.NewCSVExporter(),
		export.NewPDFExporter(),
		export.NewXLSXExporter(),
		export.NewICSExporter(loc, cfg.Export.Weeks),
	)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, checks...)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		swagger.SetBasePath(cfg.APIPrefix)
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Routes{
		Courses:    handler.NewCourseHandler(courseSvc),
		Faculty:    handler.NewFacultyHandler(facultySvc),
		Rooms:      handler.NewRoomHandler(roomSvc),
		Timetables: handler.NewTimetableHandler(timetableSvc, exportSvc),
	}.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
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
