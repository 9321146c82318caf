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
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/docucast/api/internal/client"
	"github.com/docucast/api/internal/config"
	"github.com/docucast/api/internal/handler"
	"github.com/docucast/api/internal/middleware"
	"github.com/docucast/api/internal/service"
	"github.com/docucast/api/internal/storage"
	"github.com/docucast/api/internal/store"
	"github.com/docucast/api/internal/worker"
	ws "github.com/docucast/api/internal/websocket"
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

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	geminiClient := client.NewGeminiClient(&cfg.Gemini)
	runpodClient := client.NewRunPodClient(&cfg.RunPod)

	// Initialize blob storage (R2 when configured, local filesystem otherwise)
	var blobs storage.BlobStore
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Store, err := storage.NewR2Store(&cfg.R2)
		if err != nil {
			log.Fatalf("Failed to initialize R2 storage: %v", err)
		}
		blobs = r2Store
	} else {
		log.Printf("Info: R2 storage not configured, using local directory %s", cfg.Storage.LocalDir)
		localStore, err := storage.NewLocalStore(cfg.Storage.LocalDir)
		if err != nil {
			log.Fatalf("Failed to initialize local storage: %v", err)
		}
		blobs = localStore
	}

	// Initialize job store and services
	retention := time.Duration(cfg.Jobs.RetentionHours) * time.Hour
	jobStore := store.NewRedisStore(redisClient, retention)
	dispatcher := service.NewAsynqDispatcher(asynqClient, retention)
	podcastService := service.NewPodcastService(jobStore, blobs, dispatcher)

	// Initialize handlers
	maxUploadBytes := int64(cfg.Jobs.MaxUploadMB) * 1024 * 1024
	podcastHandler := handler.NewPodcastHandler(podcastService, validate, maxUploadBytes)
	voicesHandler := handler.NewVoicesHandler(cfg.Voices.Speakers)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(maxUploadBytes),
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

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"gemini": geminiClient.IsConfigured(),
				"runpod": runpodClient.IsConfigured(),
				"redis":  redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	podcast := api.Group("/podcast")
	podcast.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), podcastHandler.Generate)
	podcast.Get("/status/:jobId", podcastHandler.Status)
	podcast.Get("/result/:jobId", podcastHandler.Result)
	podcast.Get("/script/:jobId", podcastHandler.Script)

	api.Get("/voices", voicesHandler.List)

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

	// Start Asynq worker server
	go startWorkerServer(cfg, podcastService, geminiClient, runpodClient, blobs, hub)

	// Start stale job monitor
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	monitor := service.NewStaleMonitor(jobStore,
		time.Duration(cfg.Jobs.StaleAfterMin)*time.Minute,
		time.Duration(cfg.Jobs.MonitorEveryMin)*time.Minute)
	go monitor.Run(monitorCtx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancelMonitor()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	podcastService *service.PodcastService,
	geminiClient *client.GeminiClient,
	runpodClient *client.RunPodClient,
	blobs storage.BlobStore,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				service.QueueEpisodes: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	episodeWorker := worker.NewEpisodeWorker(
		podcastService,
		geminiClient,
		runpodClient,
		blobs,
		hub,
		cfg.Voices.Speakers,
		cfg.Voices.IntroKey,
		time.Duration(cfg.Gemini.Timeout)*time.Second,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeEpisode, episodeWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
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
