package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"cvintel/internal/config"
	"cvintel/internal/handlers"
	"cvintel/internal/logger"
	"cvintel/internal/metrics"
	"cvintel/internal/models"
	"cvintel/internal/repositories"
	"cvintel/internal/ruleset"
	"cvintel/internal/services"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.Error(err))
	}
	zlog.Info("database connected", zap.String("db", cfg.Database.DBName))

	batchRepo := repositories.NewBatchRepository(db)

	rulesets, err := ruleset.NewStore(cfg.Ruleset.Path)
	if err != nil {
		zlog.Fatal("failed to load ruleset", zap.Error(err))
	}
	zlog.Info("ruleset loaded",
		zap.String("path", cfg.Ruleset.Path),
		zap.String("version", rulesets.Current().Version()))

	m := metrics.New()

	// Optional similarity index; ranking never depends on it.
	var similarity services.SimilarityService
	if cfg.SimilarityEnabled() {
		embeddings, err := services.NewGeminiService(cfg.Gemini.APIKey)
		if err != nil {
			zlog.Fatal("failed to initialize Gemini", zap.Error(err))
		}
		index, err := services.NewQdrantIndex(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection)
		if err != nil {
			zlog.Fatal("failed to initialize Qdrant", zap.Error(err))
		}
		if err := index.InitCollection(); err != nil {
			zlog.Fatal("failed to initialize Qdrant collection", zap.Error(err))
		}
		similarity = services.NewSimilarityService(embeddings, index, rulesets, zlog, cfg.Ruleset.MinDocumentChars)
		zlog.Info("similarity index enabled", zap.String("collection", cfg.Qdrant.Collection))
	} else {
		zlog.Info("similarity index disabled")
	}

	ranker := services.NewRanker(
		batchRepo,
		rulesets,
		similarity,
		m,
		zlog,
		cfg.Ranker.Concurrency,
		cfg.Ruleset.MinDocumentChars,
	)

	worker := services.NewWorker(
		batchRepo,
		ranker,
		zlog,
		cfg.Worker.Concurrency,
		cfg.Worker.QueueSize,
		cfg.Worker.PollInterval,
	)

	ctx := context.Background()
	worker.Start(ctx)

	batchHandler := handlers.NewBatchHandler(batchRepo, ranker, worker)
	similarHandler := handlers.NewSimilarHandler(batchRepo, similarity)
	adminHandler := handlers.NewAdminHandler(rulesets, zlog)

	app := fiber.New(fiber.Config{
		AppName:      "CV Intelligence API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/batches", batchHandler.HandleCreateBatch)
	api.Get("/batches", batchHandler.HandleListBatches)
	api.Get("/batches/:id", batchHandler.HandleGetBatch)
	api.Post("/batches/:id/rank", batchHandler.HandleRankBatch)
	api.Post("/batches/:id/cancel", batchHandler.HandleCancelBatch)
	api.Get("/batches/:id/candidates/:cid/similar", similarHandler.HandleFindSimilar)
	api.Post("/admin/ruleset/reload", adminHandler.HandleReloadRuleset)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "CV Intelligence API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/batches",
				"GET /api/v1/batches",
				"GET /api/v1/batches/:id",
				"POST /api/v1/batches/:id/rank",
				"POST /api/v1/batches/:id/cancel",
				"GET /api/v1/batches/:id/candidates/:cid/similar",
			},
		})
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		worker.Stop()
		if err := app.Shutdown(); err != nil {
			zlog.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	zlog.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Error:   "INTERNAL",
		Message: err.Error(),
	})
}
