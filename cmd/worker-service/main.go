package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/glebkhr/vk-group-builder/internal/config"
	"github.com/glebkhr/vk-group-builder/internal/vk"
	"github.com/glebkhr/vk-group-builder/internal/worker"
	"github.com/glebkhr/vk-group-builder/internal/worker/storage"
	"github.com/glebkhr/vk-group-builder/shared/logger"
	"github.com/glebkhr/vk-group-builder/shared/postgresql"
	"github.com/glebkhr/vk-group-builder/shared/rabbitmq"
	"github.com/glebkhr/vk-group-builder/shared/secretbox"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.EnableCaller,
		TimeFormat: time.RFC3339,
	})

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:            cfg.RabbitMQ.Host,
		Port:            cfg.RabbitMQ.Port,
		User:            cfg.RabbitMQ.User,
		Password:        cfg.RabbitMQ.Password,
		VHost:           cfg.RabbitMQ.VHost,
		ExchangeName:    cfg.RabbitMQ.Exchange.Name,
		ExchangeType:    cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable: cfg.RabbitMQ.Exchange.Durable,
		Queues: []rabbitmq.Queue{
			{Name: cfg.RabbitMQ.GroupQueue.Name, RoutingKey: cfg.RabbitMQ.GroupQueue.RoutingKey, Durable: cfg.RabbitMQ.GroupQueue.Durable},
			{Name: cfg.RabbitMQ.PostQueue.Name, RoutingKey: cfg.RabbitMQ.PostQueue.RoutingKey, Durable: cfg.RabbitMQ.PostQueue.Durable},
		},
		RetryAttempts:     cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:     cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:         cfg.RabbitMQ.Connection.Heartbeat,
		PublishRetries:    cfg.RabbitMQ.Publish.RetryAttempts,
		PublishRetryDelay: cfg.RabbitMQ.Publish.RetryInterval,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	box, err := secretbox.New(cfg.Encryption.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize token encryption: %w", err)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       appLogger.Logger,
		Storage:      storage.NewStorage(dbClient.DB(), appLogger.Logger),
		RabbitClient: rabbitClient,
		Box:          box,
		VKConfig: vk.Config{
			BaseURL:       cfg.VK.BaseURL,
			APIVersion:    cfg.VK.APIVersion,
			Timeout:       cfg.VK.Timeout,
			RetryAttempts: cfg.VK.RetryAttempts,
			RetryDelay:    cfg.VK.RetryDelay,
		},
		GroupQueue: rabbitmq.Queue{
			Name:       cfg.RabbitMQ.GroupQueue.Name,
			RoutingKey: cfg.RabbitMQ.GroupQueue.RoutingKey,
		},
		PostQueue: rabbitmq.Queue{
			Name:       cfg.RabbitMQ.PostQueue.Name,
			RoutingKey: cfg.RabbitMQ.PostQueue.RoutingKey,
		},
		GroupConcurrency:  cfg.Worker.GroupConcurrency,
		PostConcurrency:   cfg.Worker.PostConcurrency,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		MaxRetries:        cfg.Worker.MaxRetries,
		RetryBaseDelay:    cfg.Worker.RetryBaseDelay,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
