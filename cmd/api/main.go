package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/evaluation-service/internal/api/http"
	"github.com/spec-kit/evaluation-service/internal/api/http/handlers"
	"github.com/spec-kit/evaluation-service/internal/app"
	"github.com/spec-kit/evaluation-service/internal/auth"
	"github.com/spec-kit/evaluation-service/internal/config"
	"github.com/spec-kit/evaluation-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		container.Close()
		logger.Fatal("failed to build service", zap.Error(err))
	}
	defer container.Close()

	fiberApp := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(fiberApp, logger, container.Metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, container.Postgres, container.Redis),
		Cycles:         handlers.NewCyclesHandler(container.Cycles),
		Publications:   handlers.NewPublicationHandler(container.Publications),
		Hierarchy:      handlers.NewHierarchyHandler(container.Hierarchy),
		AuthMiddleware: auth.NewAuthMiddleware(container.Tokens),
		Metrics:        container.Metrics,
	})

	go func() {
		if err := fiberApp.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = fiberApp.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
