// Package worker consumes the two provisioning queues and executes jobs:
// full group creation on one pool, deferred post scheduling on the other.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glebkhr/vk-group-builder/internal/provision"
	"github.com/glebkhr/vk-group-builder/internal/vk"
	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
	"github.com/glebkhr/vk-group-builder/internal/worker/storage"
	"github.com/glebkhr/vk-group-builder/shared/rabbitmq"
	"github.com/glebkhr/vk-group-builder/shared/secretbox"
)

// queueBinding ties a consumed queue to its pool size and the routing key
// used when a failed job is republished for a retry.
type queueBinding struct {
	queueName   string
	routingKey  string
	concurrency int
}

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Storage      *storage.Storage
	RabbitClient *rabbitmq.Client
	Box          *secretbox.Box
	VKConfig     vk.Config

	GroupQueue        rabbitmq.Queue
	PostQueue         rabbitmq.Queue
	GroupConcurrency  int
	PostConcurrency   int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

// Worker represents the background job worker
type Worker struct {
	logger       *slog.Logger
	storage      *storage.Storage
	rabbitClient *rabbitmq.Client
	box          *secretbox.Box
	vkConfig     vk.Config
	workflow     *provision.Workflow

	groupBinding queueBinding
	postBinding  queueBinding

	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	retryBaseDelay    time.Duration
	retryCap          int

	workerID string
	wg       sync.WaitGroup
	stopChan chan struct{}

	// sleep is swapped out by tests to avoid real backoff delays.
	sleep func(time.Duration)
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:       cfg.Logger,
		storage:      cfg.Storage,
		rabbitClient: cfg.RabbitClient,
		box:          cfg.Box,
		vkConfig:     cfg.VKConfig,
		groupBinding: queueBinding{
			queueName:   cfg.GroupQueue.Name,
			routingKey:  cfg.GroupQueue.RoutingKey,
			concurrency: cfg.GroupConcurrency,
		},
		postBinding: queueBinding{
			queueName:   cfg.PostQueue.Name,
			routingKey:  cfg.PostQueue.RoutingKey,
			concurrency: cfg.PostConcurrency,
		},
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		retryCap:          cfg.MaxRetries,
		retryBaseDelay:    cfg.RetryBaseDelay,
		workerID:          fmt.Sprintf("worker-%s", uuid.NewString()[:8]),
		stopChan:          make(chan struct{}),
		sleep:             time.Sleep,
	}
}

// Start begins consuming both queues and blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("group_concurrency", w.groupBinding.concurrency),
		slog.Int("post_concurrency", w.postBinding.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	w.workflow = provision.NewWorkflow(&queueScheduler{worker: w}, w.logger)

	for _, binding := range []queueBinding{w.groupBinding, w.postBinding} {
		deliveries, err := w.setupConsumer(binding)
		if err != nil {
			return fmt.Errorf("failed to set up consumer for %s: %w", binding.queueName, err)
		}

		jobsChan := make(chan *domain.JobMessage)
		w.spawnWorkerPool(ctx, binding, jobsChan)

		w.wg.Add(1)
		go func(b queueBinding) {
			defer w.wg.Done()
			w.dispatchMessages(ctx, b, deliveries, jobsChan)
		}(binding)
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
