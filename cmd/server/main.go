package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/tagforge/api/internal/client"
	"github.com/tagforge/api/internal/config"
	"github.com/tagforge/api/internal/handler"
	"github.com/tagforge/api/internal/media"
	"github.com/tagforge/api/internal/middleware"
	"github.com/tagforge/api/internal/scheduler"
	"github.com/tagforge/api/internal/service"
	"github.com/tagforge/api/internal/store"
	"github.com/tagforge/api/internal/worker"
	ws "github.com/tagforge/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize storage client (optional - jobs fail at publish if absent)
	var storageClient client.StorageClient
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.S3)
		if err != nil {
			log.Printf("Warning: storage client not initialized: %v", err)
		} else {
			storageClient = s3Client
		}
	} else {
		log.Println("Info: object storage not configured, publishing will fail")
	}

	// Initialize media components
	downloader := media.NewYtdlpDownloader(cfg.Media.YtdlpPath)
	encoder := media.NewFFmpegEncoder(cfg.Media.FFmpegPath, cfg.Media.Bitrate)
	artworkResolver := media.NewHTTPArtworkResolver(time.Duration(cfg.Media.ArtworkTimeout) * time.Second)

	// Initialize job store and worker scheduler
	jobStore := store.NewRedisJobStore(redisClient)
	sched := scheduler.New(time.Duration(cfg.Scheduler.SweepIntervalMS) * time.Millisecond)
	sched.Start()

	// Initialize pipeline worker and job service
	jobWorker := worker.NewJobWorker(jobStore, downloader, encoder, artworkResolver, storageClient, hub, cfg.Media.WorkDir)
	jobService := service.NewJobService(jobStore, sched, jobWorker, artworkResolver, downloader, storageClient)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	mediaHandler := handler.NewMediaHandler(jobService, validate)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    100 * 1024 * 1024, // 100MB uploads
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"storage": storageClient != nil,
				"auth":    cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	music := api.Group("/music")
	music.Post("/jobs", rateLimiter.CreateJobLimit(cfg.RateLimit.CreateJobPerHour), jobHandler.Create)
	music.Get("/jobs", jobHandler.List)
	music.Get("/jobs/:jobId", jobHandler.Get)
	music.Delete("/jobs/:jobId", jobHandler.Delete)

	metadata := music.Group("", rateLimiter.MetadataLimit(cfg.RateLimit.MetadataPerMin))
	metadata.Get("/grouping", mediaHandler.Grouping)
	metadata.Get("/artwork", mediaHandler.Artwork)
	metadata.Post("/tags", mediaHandler.Tags)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := sched.Stop(time.Duration(cfg.Scheduler.StopTimeoutSec) * time.Second); err != nil {
			log.Printf("Scheduler shutdown: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
