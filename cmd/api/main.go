package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pulse-chat/config"
	"pulse-chat/internal/handler"
	"pulse-chat/internal/middleware"
	"pulse-chat/internal/redis"
	"pulse-chat/internal/repository"
	"pulse-chat/internal/server"
	"pulse-chat/internal/services"
	"pulse-chat/internal/storage"
	"pulse-chat/pkg/database"
	"pulse-chat/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger := logger.New(logger.ModeFor(cfg.AppMode))
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()
	zl := appLogger.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]server.HealthCheck{}

	// Stores
	var (
		userRepo    repository.UserRepository
		messageRepo repository.MessageRepository
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg)
		if err != nil {
			zl.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := database.MigrateUp(ctx, db); err != nil {
			zl.Fatal("Failed to apply migrations", zap.Error(err))
		}

		userRepo = repository.NewUserRepository(db)
		messageRepo = repository.NewMessageRepository(db)
		health["database"] = func(ctx context.Context) error { return database.HealthCheck(ctx, db) }
	} else {
		zl.Warn("DATABASE_URL not set, using in-memory stores; data is lost on restart")
		users := repository.NewMemoryUserRepository()
		userRepo = users
		messageRepo = repository.NewMemoryMessageRepository(users)
	}

	// Rate limiting. The interfaces stay nil when Redis is off.
	var (
		messageLimiter server.MessageLimiter
		connectLimiter server.ConnectLimiter
		authLimiter    middleware.AuthLimiter
	)
	if cfg.RedisEnabled() {
		redisClient := redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		if err := redis.Ping(ctx, redisClient); err != nil {
			zl.Warn("Redis not reachable at startup, limiters will fail open", zap.Error(err))
		}

		limiter := redis.NewRateLimiter(redisClient, redis.DefaultRateLimitConfig())
		messageLimiter = limiter
		connectLimiter = limiter
		authLimiter = limiter
		health["redis"] = func(ctx context.Context) error { return redis.Ping(ctx, redisClient) }
	} else {
		zl.Info("REDIS_HOST not set, rate limiting disabled")
	}

	// Avatar storage
	var avatars services.AvatarStorage
	if cfg.S3Enabled() {
		s3Client, err := storage.NewClient(ctx, storage.S3ConfigFrom(cfg))
		if err != nil {
			zl.Fatal("Failed to configure S3", zap.Error(err))
		}
		avatars = s3Client
	} else {
		zl.Info("S3 not configured, avatar uploads disabled")
	}

	authService := services.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL())
	userService := services.NewUserService(userRepo, avatars)
	messageService := services.NewMessageService(messageRepo)
	statsService := services.NewStatsService(userRepo, messageRepo)

	wsLogger := server.NewWebSocketLogger(appLogger.Logger)
	hub := server.NewHub(messageService, messageLimiter, wsLogger)

	srv := server.New(cfg, appLogger)
	srv.SetupRoutes(&server.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		User:      handler.NewUserHandler(userService),
		Analytics: handler.NewAnalyticsHandler(statsService),
		WebSocket: server.NewWebSocketHandler(hub, authService, userService, connectLimiter, cfg.ClientOrigin, wsLogger),
	}, server.RouteDeps{
		Verifier:    authService,
		AuthLimiter: authLimiter,
		Health:      health,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		zl.Error("Server exited with error", zap.Error(err))
		return
	}
	zl.Info("Shutdown complete")
}
