package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/teachlyze/tamanduai-api/internal/config"
	"github.com/teachlyze/tamanduai-api/internal/database"
	"github.com/teachlyze/tamanduai-api/internal/handler"
	"github.com/teachlyze/tamanduai-api/internal/middleware"
	"github.com/teachlyze/tamanduai-api/internal/repository"
	"github.com/teachlyze/tamanduai-api/internal/router"
	"github.com/teachlyze/tamanduai-api/internal/service"
	"github.com/teachlyze/tamanduai-api/internal/utils"
	"github.com/teachlyze/tamanduai-api/pkg/ai"
	"github.com/teachlyze/tamanduai-api/pkg/email"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	db, err := database.ConnectPostgres(database.PostgresOptions{
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		SlowQuery:       cfg.Database.SlowQuery,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), database.RedisOptions{
			URL:         cfg.RedisURL,
			ClientName:  cfg.AppName,
			DialTimeout: cfg.RedisDialTimeout,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured; result cache and cross-node notifications disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	var events service.EventPublisher
	if cfg.RabbitMQURL != "" {
		rabbit, err := database.ConnectRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		defer rabbit.Close()
		events = service.NewRabbitEventPublisher(rabbit.Channel, cfg.RabbitMQExchange, logger)
	}

	detector, err := ai.NewOpenAIDetector(ai.OpenAIConfig{
		APIKey:  cfg.Plagiarism.ProviderAPIKey,
		BaseURL: cfg.Plagiarism.ProviderBaseURL,
		Model:   cfg.Plagiarism.ProviderModel,
		Timeout: cfg.Plagiarism.ProviderTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create plagiarism provider")
	}

	var emailSender service.EmailSender = service.NewLogEmailSender(logger)
	if cfg.Email.APIKey != "" {
		sender, err := email.NewSendgridSender(email.Config{
			APIKey:      cfg.Email.APIKey,
			Host:        cfg.Email.BaseURL,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Timeout:     cfg.Email.Timeout,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create email sender")
		}
		emailSender = sender
	}

	validate := utils.NewValidator()

	submissionRepo := repository.NewSubmissionRepository(db)
	checkRepo := repository.NewPlagiarismCheckRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	settingRepo := repository.NewNotificationSettingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.RealtimeChannel, natsConn, validate, logger)
	notifier := service.NewPlagiarismNotifier(classroomRepo, settingRepo, notificationService, emailSender, events, cfg.Plagiarism.Thresholds, logger)
	plagiarismService := service.NewPlagiarismService(
		checkRepo,
		submissionRepo,
		detector,
		service.NewPlagiarismCache(redisClient, logger),
		notifier,
		validate,
		cfg.Plagiarism.CacheTTL,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notificationService.Start(ctx)

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	var limiterStorage fiber.Storage
	if redisClient != nil {
		limiterStorage = middleware.NewRedisLimiterStorage(redisClient, cfg.RateLimitPrefix, logger)
	}

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		PlagiarismHandler:   handler.NewPlagiarismHandler(plagiarismService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.NotificationStreamTimeout),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		CheckRateLimit:      middleware.RateLimit(middleware.RateLimitConfig{
			Identifier: "plagiarism-check",
			Max:        cfg.Plagiarism.RateLimit,
			Window:     time.Minute,
			Storage:    limiterStorage,
		}),
		HealthProbes:        probes,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
