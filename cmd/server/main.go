package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storybook-server/internal/catalog"
	"storybook-server/internal/config"
	"storybook-server/internal/database"
	"storybook-server/internal/handler"
	"storybook-server/internal/logger"
	"storybook-server/internal/messaging"
	"storybook-server/internal/middleware"
	"storybook-server/internal/models"
	"storybook-server/internal/pipeline"
	"storybook-server/internal/prompt"
	"storybook-server/internal/quota"
	"storybook-server/internal/repository"
	"storybook-server/internal/selection"
	"storybook-server/internal/service"
	"storybook-server/internal/session"
	"storybook-server/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	log.Info("Configuration loaded", cfg.LogFields()...)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStart()

	// --- External Connections ---
	stories, closeRepo, err := setupRepository(startCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize story repository", zap.Error(err))
	}
	defer closeRepo()

	var redisClient *redis.Client
	if cfg.QuotaBackend == config.QuotaRedis {
		redisClient, err = setupRedis(startCtx, cfg)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	publisher, closePublisher, err := setupPublisher(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize review publisher", zap.Error(err))
	}
	defer closePublisher()

	// --- Generators and Storage ---
	textGen, err := service.NewTextGenerator(startCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize text generator", zap.Error(err))
	}
	imageGen, err := service.NewImageGenerator(startCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize image generator", zap.Error(err))
	}
	objectStorage, err := storage.New(startCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	limits := quota.Limits{PerMinute: cfg.QuotaPerMinute, PerDay: cfg.QuotaPerDay}
	var limiter quota.Limiter = quota.NewMemoryLimiter(limits)
	if redisClient != nil {
		limiter = quota.NewRedisLimiter(redisClient, limits, log)
	}

	// --- Dependency Injection ---
	storyCatalog := catalog.Default()
	prompts := prompt.NewBuilder(cfg.PromptStyleSuffix)
	assembler := pipeline.NewAssembler(objectStorage, stories, publisher, pipeline.AssemblerConfig{
		PathPrefix:     cfg.StoragePathPrefix,
		Concurrency:    cfg.UploadConcurrency,
		UploadTimeout:  cfg.UploadTimeout,
		PlaceholderURL: cfg.PlaceholderImageURL,
	}, log)
	opts := pipeline.Options{
		ImageFailurePolicy:          pipeline.ImageFailurePolicy(cfg.ImageFailurePolicy),
		RequireSummaryBeforePersist: cfg.RequireSummaryBeforePersist,
		SummaryTimeout:              cfg.SummaryTimeout,
	}
	factory := func(sc models.SessionContext) *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(sc, selection.NewAggregator(storyCatalog), prompts,
			textGen, imageGen, assembler, limiter, opts, log)
	}
	sessions := session.NewManager(factory, session.Config{
		MaxSessions:     cfg.SessionMax,
		TTL:             cfg.SessionTTL,
		CleanupInterval: cfg.SessionCleanupInterval,
	}, log)
	sessions.StartCleanup()

	storyHandler := handler.NewStoryHandler(sessions, stories, storyCatalog, cfg.JWTSecret, log)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ZapLogger(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
		log.Info("CORS_ALLOWED_ORIGINS not set, allowing all origins")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessions.Count()})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.StorageBackend == config.StorageLocal {
		router.Static("/images", cfg.StorageLocalPath)
	}

	storyHandler.RegisterRoutes(router, middleware.RateLimit(cfg.HTTPRateLimitPerMinute, redisClient, log))

	// Prometheus middleware после регистрации роутов
	p.Use(router)

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Переходы отвечают сразу, долгих ответов нет
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.HTTPServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		log.Error("Sessions did not stop in time", zap.Error(err))
	}

	log.Info("Server exiting")
}

// setupRepository выбирает хранилище историй по REPOSITORY_BACKEND.
func setupRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.StoryRepository, func(), error) {
	switch cfg.RepositoryBackend {
	case config.RepositoryMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI, log)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("Failed to disconnect from MongoDB", zap.Error(err))
			}
		}
		repo, err := repository.NewMongoStoryRepository(ctx, client.Database(cfg.MongoDatabase), log)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		log.Info("Connected to MongoDB", zap.String("database", cfg.MongoDatabase))
		return repo, closeFn, nil
	default:
		if err := database.ApplyMigrations(cfg.GetDSN()); err != nil {
			return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		pool, err := database.Connect(ctx, database.PoolConfig{
			DSN:         cfg.GetDSN(),
			MaxConns:    cfg.DBMaxConns,
			IdleTimeout: cfg.DBIdleTimeout,
			MaxRetries:  20,
			RetryDelay:  3 * time.Second,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Connected to PostgreSQL")
		return repository.NewPgStoryRepository(pool, log), pool.Close, nil
	}
}

// setupRedis создает клиента Redis и проверяет соединение.
func setupRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// setupPublisher подключается к RabbitMQ, если задан RABBITMQ_URL.
func setupPublisher(cfg *config.Config, log *zap.Logger) (messaging.ReviewPublisher, func(), error) {
	if cfg.RabbitMQURL == "" {
		log.Info("RABBITMQ_URL not set, review events are disabled")
		return messaging.NoopReviewPublisher{Logger: log}, func() {}, nil
	}
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	publisher, err := messaging.NewRabbitMQReviewPublisher(ch, cfg.ReviewQueueName, log)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	log.Info("Connected to RabbitMQ", zap.String("queue", cfg.ReviewQueueName))
	return publisher, func() {
		ch.Close()
		conn.Close()
	}, nil
}
