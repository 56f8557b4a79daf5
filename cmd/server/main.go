package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/design-copilot/internal/adapter/extract"
	"github.com/arturoeanton/design-copilot/internal/bootstrap"
	"github.com/arturoeanton/design-copilot/internal/handler"
	"github.com/arturoeanton/design-copilot/internal/mcp"
	"github.com/arturoeanton/design-copilot/internal/middleware"
	"github.com/arturoeanton/design-copilot/pkg/config"
)

const version = "1.0.0"

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	bootstrap.SetupLogging(cfg, os.Stderr)

	slog.Info("🚀 Starting Design Copilot",
		"port", cfg.Port,
		"store", cfg.StoreDriver,
		"ai_provider", cfg.AIProvider,
		"embedding_dimension", cfg.EmbeddingDimension,
		"mcp_enabled", cfg.MCPEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────────
	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// ── Adapters ─────────────────────────────────────────────────────────
	aiClient, err := bootstrap.NewAIClient(cfg)
	if err != nil {
		slog.Error("failed to configure AI provider", "provider", cfg.AIProvider, "error", err)
		os.Exit(1)
	}
	extractors := extract.Default()

	// ── Services ─────────────────────────────────────────────────────────
	services, err := bootstrap.NewServices(cfg, store, aiClient)
	if err != nil {
		slog.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		BodyLimit:    cfg.MaxUploadMB * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "healthy",
			"app":             cfg.AppName,
			"version":         version,
			"model":           aiClient.ModelName(),
			"embedding_model": aiClient.EmbeddingModel(),
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	jwtCfg := middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: cfg.JWTTTL(),
	}
	jwtMiddleware := middleware.JWTMiddleware(jwtCfg)

	// Audit runs after JWT so entries carry the caller.
	api := app.Group("/api/v1", jwtMiddleware, middleware.AuditMiddleware(store))

	jobTracker := handler.NewJobTracker()
	go pruneJobs(ctx, jobTracker)

	documentHandler := handler.NewDocumentHandler(services.Ingest, services.Documents, extractors, jobTracker, cfg.JobTimeout)
	documentHandler.Register(api)

	askHandler := handler.NewAskHandler(services.Query)
	askHandler.Register(api)

	jobsHandler := handler.NewJobsHandler(jobTracker)
	jobsHandler.Register(api)

	auditHandler := handler.NewAuditHandler(store)
	auditHandler.Register(api)

	// ── MCP Server (separate port, same bearer tokens) ───────────────────
	var mcpServer *mcp.Server
	if cfg.MCPEnabled {
		mcpServer = mcp.NewServer(services.Query, services.Ingest, services.Documents, store, jwtCfg, cfg.MCPPort, version)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("🛑 Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if mcpServer != nil {
			if err := mcpServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("MCP shutdown failed", "error", err)
			}
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown failed", "error", err)
		}
	}()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// pruneJobs drops finished ingestion jobs an hour after completion.
func pruneJobs(ctx context.Context, tracker *handler.JobTracker) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tracker.Prune(time.Hour); n > 0 {
				slog.Debug("pruned ingestion jobs", "count", n)
			}
		}
	}
}
