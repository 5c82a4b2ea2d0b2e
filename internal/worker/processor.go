package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glebkhr/vk-group-builder/internal/vk"
	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

// processJob claims the referenced job, executes it with timeout and
// heartbeat, and decides its fate: completed, republished for a retry with
// backoff, or terminally failed.
func (w *Worker) processJob(ctx context.Context, binding queueBinding, msg *domain.JobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.JobID),
		slog.String("worker_id", w.workerID),
	)

	job, err := w.storage.ClaimJob(ctx, msg.JobID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			w.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", msg.JobID),
			)
			return fmt.Errorf("job already claimed: %w", err)
		}
		// Database error, likely transient.
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.JobID, heartbeatDone)
	defer close(heartbeatDone)

	execErr := w.executeJob(jobCtx, job)
	if execErr == nil {
		return nil
	}

	if errors.Is(execErr, domain.ErrInvalidPayload) {
		// No amount of retrying fixes a malformed payload.
		if updateErr := w.storage.UpdateJobStatus(ctx, job.JobID, domain.JobStatusFailed, nil, execErr.Error()); updateErr != nil {
			w.logger.Error("Failed to update job status to FAILED",
				slog.String("job_id", job.JobID),
				slog.String("error", updateErr.Error()),
			)
		}
		return execErr
	}

	w.logger.Error("Job execution failed",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("error", execErr.Error()),
	)

	if job.RetryCount < job.MaxRetries {
		return w.scheduleRetry(ctx, binding, job, execErr)
	}

	w.logger.Warn("Job exceeded max retries",
		slog.String("job_id", job.JobID),
		slog.Int("retry_count", job.RetryCount),
		slog.Int("max_retries", job.MaxRetries),
	)
	if updateErr := w.storage.UpdateJobStatus(ctx, job.JobID, domain.JobStatusFailed, nil, execErr.Error()); updateErr != nil {
		w.logger.Error("Failed to update job status to FAILED",
			slog.String("job_id", job.JobID),
			slog.String("error", updateErr.Error()),
		)
	}
	return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, execErr)
}

// scheduleRetry returns the job to the waiting state and republishes its
// message after an exponential backoff. The original delivery is then ACKed
// by the caller; the republished copy drives the next attempt.
func (w *Worker) scheduleRetry(ctx context.Context, binding queueBinding, job *domain.Job, cause error) error {
	retryCount, err := w.storage.IncrementRetry(ctx, job.JobID)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to increment retry count: %w", err))
	}

	backoff := w.retryBaseDelay * time.Duration(1<<uint(retryCount-1))
	w.logger.Info("Job will be retried",
		slog.String("job_id", job.JobID),
		slog.Int("retry_count", retryCount),
		slog.Int("max_retries", job.MaxRetries),
		slog.Duration("backoff", backoff),
		slog.Any("cause", cause),
	)

	if err := ctx.Err(); err != nil {
		return domain.NewRetryableError(err)
	}
	w.sleep(backoff)

	body, err := json.Marshal(domain.JobMessage{JobID: job.JobID})
	if err != nil {
		return fmt.Errorf("failed to marshal retry message: %w", err)
	}
	if err := w.rabbitClient.PublishWithRetry(ctx, binding.routingKey, body); err != nil {
		// Requeue the original delivery so the attempt is not lost.
		return domain.NewRetryableError(fmt.Errorf("failed to republish job: %w", err))
	}

	return nil
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	interval := w.heartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.storage.UpdateJobHeartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// executeJob runs the job body for its type.
func (w *Worker) executeJob(ctx context.Context, job *domain.Job) error {
	switch job.JobType {
	case domain.JobTypeGroupCreation:
		return w.runGroupCreation(ctx, job)
	case domain.JobTypePostScheduling:
		return w.runPostScheduling(ctx, job)
	default:
		return fmt.Errorf("%w: unknown job type %q", domain.ErrInvalidPayload, job.JobType)
	}
}

// runGroupCreation drives the provisioning workflow for one student. The
// access token is decrypted for the duration of the run only and never
// logged or persisted in plaintext.
func (w *Worker) runGroupCreation(ctx context.Context, job *domain.Job) error {
	var payload domain.GroupCreationPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := payload.Profile.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	api, err := w.vkClientFor(ctx, payload.StudentID)
	if err != nil {
		return err
	}

	// Resume from the previous attempt's progress, if any.
	seed, err := w.storage.GetLatestProgress(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}

	sink := &storageSink{storage: w.storage, jobID: job.JobID}
	result, err := w.workflow.Run(ctx, api, payload.StudentID, &payload.Profile, seed, sink)
	if err != nil {
		return err
	}

	if err := w.storage.SaveGroup(ctx, payload.StudentID, result); err != nil {
		return err
	}
	if err := w.storage.UpdateJobStatus(ctx, job.JobID, domain.JobStatusCompleted, result, ""); err != nil {
		w.logger.Error("Failed to update job status to COMPLETED",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// runPostScheduling places the deferred posts on the community wall, each
// with its future publish timestamp.
func (w *Worker) runPostScheduling(ctx context.Context, job *domain.Job) error {
	var payload domain.PostSchedulingPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if payload.GroupID == 0 {
		return fmt.Errorf("%w: missing group id", domain.ErrInvalidPayload)
	}

	api, err := w.vkClientFor(ctx, payload.StudentID)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, post := range payload.Posts {
		params := vk.WallPostParams{
			OwnerID:   -payload.GroupID,
			Message:   post.Content,
			FromGroup: true,
		}
		if post.DelayDays > 0 {
			params.PublishDate = now.Add(time.Duration(post.DelayDays) * 24 * time.Hour).Unix()
		}

		if _, err := api.WallPost(ctx, params); err != nil {
			return fmt.Errorf("failed to schedule post: %w", err)
		}
	}

	if err := w.storage.UpdateJobStatus(ctx, job.JobID, domain.JobStatusCompleted, nil, ""); err != nil {
		w.logger.Error("Failed to update job status to COMPLETED",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// vkClientFor builds an API client for the student's decrypted token.
func (w *Worker) vkClientFor(ctx context.Context, studentID string) (*vk.Client, error) {
	encrypted, err := w.storage.GetStudentToken(ctx, studentID)
	if err != nil {
		return nil, err
	}
	token, err := w.box.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return vk.NewClient(w.vkConfig, token, w.logger), nil
}

// storageSink persists workflow progress snapshots for one job.
type storageSink struct {
	storage interface {
		AppendProgress(ctx context.Context, jobID string, progress domain.Progress) error
	}
	jobID string
}

func (s *storageSink) Snapshot(ctx context.Context, progress domain.Progress) error {
	return s.storage.AppendProgress(ctx, s.jobID, progress)
}

// queueScheduler hands a deferred post batch to the post-scheduling queue:
// it records a job row and publishes the message referencing it. The row is
// created in the delayed state since every post in the batch carries a
// future publish time.
type queueScheduler struct {
	worker *Worker
}

func (q *queueScheduler) EnqueueDeferred(ctx context.Context, studentID string, groupID int64, posts []domain.DeferredPost) error {
	payload, err := json.Marshal(domain.PostSchedulingPayload{
		StudentID: studentID,
		GroupID:   groupID,
		Posts:     posts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal post batch: %w", err)
	}

	jobID := uuid.NewString()
	if err := q.worker.storage.CreateJob(ctx, jobID, domain.JobTypePostScheduling, domain.JobStatusDelayed, payload, q.worker.retryCap); err != nil {
		return err
	}

	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}
	if err := q.worker.rabbitClient.PublishWithRetry(ctx, q.worker.postBinding.routingKey, body); err != nil {
		return fmt.Errorf("failed to publish post-scheduling job: %w", err)
	}

	q.worker.logger.Info("Deferred post batch enqueued",
		slog.String("job_id", jobID),
		slog.String("student_id", studentID),
		slog.Int64("group_id", groupID),
		slog.Int("posts", len(posts)),
	)
	return nil
}
