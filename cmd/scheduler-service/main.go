package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/kaushalkrishnax/inflow-backend/internal/api/handler"
	"github.com/kaushalkrishnax/inflow-backend/internal/api/router"
	"github.com/kaushalkrishnax/inflow-backend/internal/config"
	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
	"github.com/kaushalkrishnax/inflow-backend/internal/events"
	"github.com/kaushalkrishnax/inflow-backend/internal/media"
	"github.com/kaushalkrishnax/inflow-backend/internal/platform"
	"github.com/kaushalkrishnax/inflow-backend/internal/scheduler"
	"github.com/kaushalkrishnax/inflow-backend/internal/store"
	"github.com/kaushalkrishnax/inflow-backend/internal/timer"
	"github.com/kaushalkrishnax/inflow-backend/shared/logger"
	"github.com/kaushalkrishnax/inflow-backend/shared/postgresql"
	"github.com/kaushalkrishnax/inflow-backend/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("SCHEDULER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/scheduler-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting scheduler service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Initialize media store
	mediaStore, err := media.NewStore(cfg.Scheduler.MediaDir, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}

	// Initialize scheduler engine
	jobStore := store.NewJobStore(dbClient.GetDB(), appLogger.Logger)
	timers := timer.NewRegistry(appLogger.Logger)
	eventPublisher := events.NewPublisher(rabbitClient, appLogger.Logger)
	adapters := initAdapters(&cfg.Scheduler, mediaStore, appLogger.Logger)

	engine := scheduler.NewEngine(jobStore, mediaStore, timers, adapters, eventPublisher, appLogger.Logger)

	// Rebuild timers from persisted jobs before accepting traffic
	recoverCtx, recoverCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Recover(recoverCtx); err != nil {
		recoverCancel()
		return fmt.Errorf("failed to recover scheduled jobs: %w", err)
	}
	recoverCancel()

	// Initialize router
	r := initRouter(cfg.App.Environment, appLogger.Logger, engine, mediaStore, dbClient)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Scheduler service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	cleanup := func() {
		cancel()
		engine.Shutdown()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initAdapters builds one platform adapter per supported network
func initAdapters(cfg *config.SchedulerConfig, mediaStore *media.Store, logger *slog.Logger) map[domain.Platform]platform.Adapter {
	return map[domain.Platform]platform.Adapter{
		domain.PlatformFacebook: platform.NewFacebook(platform.FacebookConfig{
			BaseURL:        cfg.Facebook.BaseURL,
			APIVersion:     cfg.Facebook.APIVersion,
			ProcessingWait: cfg.Facebook.ProcessingWait,
			PublishWait:    cfg.Facebook.PublishWait,
		}, &http.Client{Timeout: cfg.Facebook.RequestTimeout}, mediaStore, logger),

		domain.PlatformInstagram: platform.NewInstagram(platform.InstagramConfig{
			BaseURL:      cfg.Instagram.BaseURL,
			APIVersion:   cfg.Instagram.APIVersion,
			PollInterval: cfg.Instagram.PollInterval,
			PollRetries:  cfg.Instagram.PollRetries,
		}, &http.Client{Timeout: cfg.Instagram.RequestTimeout}, logger),

		domain.PlatformYouTube: platform.NewYouTube(platform.YouTubeConfig{
			BaseURL:       cfg.YouTube.BaseURL,
			UploadBaseURL: cfg.YouTube.UploadBaseURL,
		}, &http.Client{Timeout: cfg.YouTube.RequestTimeout}, logger),
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, engine *scheduler.Engine, mediaStore *media.Store, dbClient *postgresql.Client) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:    logger,
		Scheduler: engine,
		Media:     mediaStore,
		Database:  dbClient,
	}

	return router.SetupRouter(handlerDeps)
}
