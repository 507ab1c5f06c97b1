package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/unimaster/unimaster/internal/app"
	"github.com/unimaster/unimaster/internal/auth"
	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/courses"
	"github.com/unimaster/unimaster/internal/materials"
	"github.com/unimaster/unimaster/internal/observability"
	"github.com/unimaster/unimaster/internal/platform/cache"
	"github.com/unimaster/unimaster/internal/platform/db"
	"github.com/unimaster/unimaster/internal/requests"
	"github.com/unimaster/unimaster/internal/shared"
	"github.com/unimaster/unimaster/internal/universities"
	"github.com/unimaster/unimaster/internal/users"
	"github.com/unimaster/unimaster/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger)
	authzMW := authz.Middleware{Source: usersService, Logger: logger}
	usersHandler := users.NewHandler(logger, usersService, authzMW)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(usersRepo, authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	universitiesRepo := universities.NewRepository(dbpool)
	universitiesService := universities.NewService(universitiesRepo, auditLogger)
	universitiesHandler := universities.NewHandler(logger, universitiesService, authzMW)

	coursesRepo := courses.NewRepository(dbpool)
	coursesService := courses.NewService(coursesRepo, auditLogger)
	coursesHandler := courses.NewHandler(logger, coursesService, authzMW)

	materialsCache := materials.NewCache(redisClient)
	materialsRepo := materials.NewRepository(dbpool)
	materialsService := materials.NewService(materialsRepo, materialsCache, auditLogger, logger)
	materialsHandler := materials.NewHandler(logger, materialsService, authzMW)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewReviewNotifier(jobsClient)

	requestsRepo := requests.NewRepository(dbpool)
	requestsService := requests.NewService(requestsRepo, usersService, auditLogger, notifier, logger)
	requestsHandler := requests.NewHandler(logger, requestsService, authzMW)

	metrics := observability.NewMetrics()
	overviewHandler := app.NewOverviewHandler(dbpool, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, metrics, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		Authz:               authzMW,
		AuthHandler:         authHandler,
		UniversitiesHandler: universitiesHandler,
		CoursesHandler:      coursesHandler,
		MaterialsHandler:    materialsHandler,
		RequestsHandler:     requestsHandler,
		UsersHandler:        usersHandler,
		OverviewHandler:     overviewHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
