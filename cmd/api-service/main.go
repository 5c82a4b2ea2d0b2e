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
	"golang.org/x/oauth2"

	"github.com/glebkhr/vk-group-builder/internal/api/handler"
	"github.com/glebkhr/vk-group-builder/internal/api/router"
	"github.com/glebkhr/vk-group-builder/internal/api/storage"
	"github.com/glebkhr/vk-group-builder/internal/config"
	"github.com/glebkhr/vk-group-builder/shared/logger"
	"github.com/glebkhr/vk-group-builder/shared/postgresql"
	"github.com/glebkhr/vk-group-builder/shared/rabbitmq"
	"github.com/glebkhr/vk-group-builder/shared/secretbox"
)

// VK OAuth endpoints.
const (
	vkAuthURL  = "https://oauth.vk.com/authorize"
	vkTokenURL = "https://oauth.vk.com/access_token"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger := initLogger(&cfg.Logging)

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	box, err := secretbox.New(cfg.Encryption.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize token encryption: %w", err)
	}

	store := storage.NewStorage(dbClient)

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go runStateCleanup(cleanupCtx, store, appLogger.Logger)

	r := initRouter(cfg, appLogger.Logger, store, rabbitClient, box, dbClient.HealthCheck)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
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
		stopCleanup()
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
func initLogger(cfg *config.LoggingConfig) *logger.Logger {
	return logger.New(&logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.EnableCaller,
		TimeFormat: time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
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
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client with both queues declared
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		VHost:           cfg.VHost,
		ExchangeName:    cfg.Exchange.Name,
		ExchangeType:    cfg.Exchange.Type,
		ExchangeDurable: cfg.Exchange.Durable,
		Queues: []rabbitmq.Queue{
			{Name: cfg.GroupQueue.Name, RoutingKey: cfg.GroupQueue.RoutingKey, Durable: cfg.GroupQueue.Durable},
			{Name: cfg.PostQueue.Name, RoutingKey: cfg.PostQueue.RoutingKey, Durable: cfg.PostQueue.Durable},
		},
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		PublishRetries:    cfg.Publish.RetryAttempts,
		PublishRetryDelay: cfg.Publish.RetryInterval,
	}, logger)
}

// runStateCleanup periodically removes OAuth states whose TTL has passed, so
// abandoned authorization attempts do not accumulate in the table.
func runStateCleanup(ctx context.Context, store *storage.Storage, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.DeleteExpiredOAuthStates(ctx)
			if err != nil {
				logger.Warn("Failed to clean up expired OAuth states",
					slog.Any("error", err),
				)
				continue
			}
			if removed > 0 {
				logger.Info("Removed expired OAuth states",
					slog.Int64("count", removed),
				)
			}
		}
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, store *storage.Storage, rabbitClient *rabbitmq.Client, box *secretbox.Box, healthCheck func(context.Context) error) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	deps := &handler.Dependencies{
		Logger:    logger,
		Storage:   store,
		Publisher: rabbitClient,
		Box:       box,
		OAuth: &oauth2.Config{
			ClientID:     cfg.VK.ClientID,
			ClientSecret: cfg.VK.ClientSecret,
			RedirectURL:  cfg.VK.RedirectURI,
			Scopes:       []string{cfg.VK.Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  vkAuthURL,
				TokenURL: vkTokenURL,
			},
		},
		APIVersion:      cfg.VK.APIVersion,
		GroupRoutingKey: cfg.RabbitMQ.GroupQueue.RoutingKey,
		JobMaxRetries:   cfg.Worker.MaxRetries,
		HealthCheck:     healthCheck,
	}

	return router.SetupRouter(deps, cfg.Server.CORSOrigin)
}
