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

	"github.com/projtrack/projtrack/internal/app"
	"github.com/projtrack/projtrack/internal/auth"
	"github.com/projtrack/projtrack/internal/modules"
	"github.com/projtrack/projtrack/internal/observability"
	"github.com/projtrack/projtrack/internal/platform/cache"
	"github.com/projtrack/projtrack/internal/platform/db"
	"github.com/projtrack/projtrack/internal/projects"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
	"github.com/projtrack/projtrack/internal/users"
	"github.com/projtrack/projtrack/jobs"
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
	slog.SetDefault(logger)

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

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())

	rbacService := rbac.NewService(metrics, logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	projectRepo := projects.NewRepository(dbpool)
	projectService := projects.NewService(projectRepo, rbacService, logger)
	projectHandler := projects.NewHandler(logger, projectService, rbacMiddleware)

	moduleRepo := modules.NewRepository(dbpool)
	moduleService := modules.NewService(moduleRepo, projectRepo, rbacService, logger)
	moduleHandler := modules.NewHandler(logger, moduleService)

	userRepo := users.NewRepository(dbpool)
	userService := users.NewService(userRepo, rbacService, logger).WithBcryptCost(cfg.BcryptCost)
	userHandler := users.NewHandler(logger, userService, rbacMiddleware)

	permissionsHandler := rbac.NewPermissionsHandler(rbacService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthService:        authService,
		AuthHandler:        authHandler,
		ProjectsHandler:    projectHandler,
		ModulesHandler:     moduleHandler,
		UsersHandler:       userHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
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
