package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, job_type, payload, status, worker_id, retry_count, max_retries
		FROM jobs
		WHERE job_id = $1
	`

	var job domain.Job
	var workerID sql.NullString

	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.JobID,
		&job.JobType,
		&job.Payload,
		&job.Status,
		&workerID,
		&job.RetryCount,
		&job.MaxRetries,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if workerID.Valid {
		job.WorkerID = workerID.String
	}

	return &job, nil
}

// ClaimJob attempts to claim a waiting job using optimistic locking.
// Returns full job details on success, error if the job is already claimed
// or doesn't exist.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status IN ($4, $5)
		RETURNING job_id, job_type, payload, retry_count, max_retries
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query,
		domain.JobStatusActive, workerID, jobID,
		domain.JobStatusWaiting, domain.JobStatusDelayed,
	).Scan(
		&job.JobID,
		&job.JobType,
		&job.Payload,
		&job.RetryCount,
		&job.MaxRetries,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.JobStatusActive
	job.WorkerID = workerID

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("job_type", job.JobType),
	)

	return &job, nil
}

// AppendProgress stores a progress snapshot. Each snapshot is appended to the
// job_progress log and mirrored on the job row, so the status endpoint reads
// the latest state with a single row lookup while history stays queryable.
func (s *Storage) AppendProgress(ctx context.Context, jobID string, progress domain.Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO job_progress (job_id, progress, created_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := tx.ExecContext(ctx, insertQuery, jobID, data); err != nil {
		return fmt.Errorf("failed to insert progress snapshot: %w", err)
	}

	updateQuery := `
		UPDATE jobs
		SET progress = $1,
		    updated_at = NOW()
		WHERE job_id = $2
	`
	if _, err := tx.ExecContext(ctx, updateQuery, data, jobID); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit progress snapshot: %w", err)
	}

	return nil
}

// GetLatestProgress returns the progress stored on the job row. A job that
// never ran yields the zero value.
func (s *Storage) GetLatestProgress(ctx context.Context, jobID string) (domain.Progress, error) {
	query := `SELECT progress FROM jobs WHERE job_id = $1`

	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, jobID).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return domain.Progress{}, domain.ErrJobNotFound
		}
		return domain.Progress{}, fmt.Errorf("failed to get job progress: %w", err)
	}

	var progress domain.Progress
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &progress); err != nil {
			return domain.Progress{}, fmt.Errorf("failed to unmarshal progress: %w", err)
		}
	}
	return progress, nil
}

// UpdateJobStatus updates the job status and optionally sets result/error
func (s *Storage) UpdateJobStatus(ctx context.Context, jobID, status string, result *domain.Result, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1::text,
			result = $2,
			error_message = $3,
			completed_at = CASE
				WHEN $1::text IN ($4::text, $5::text) THEN NOW()
				ELSE NULL
			END,
			updated_at = NOW()
		WHERE job_id = $6
	`

	var resultJSON []byte
	var err error
	if result != nil {
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, query, status, resultJSON, errorMsg, domain.JobStatusCompleted, domain.JobStatusFailed, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}

// IncrementRetry bumps the retry counter and returns the job to the waiting
// state so a republished message can claim it again.
func (s *Storage) IncrementRetry(ctx context.Context, jobID string) (int, error) {
	query := `
		UPDATE jobs
		SET retry_count = retry_count + 1,
		    status = $1,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE job_id = $2
		RETURNING retry_count
	`

	var retryCount int
	err := s.db.QueryRowContext(ctx, query, domain.JobStatusWaiting, jobID).Scan(&retryCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, domain.ErrJobNotFound
		}
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}

	return retryCount, nil
}

// UpdateJobHeartbeat updates the last_heartbeat_at timestamp for an active job
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusActive)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may not be active)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// CreateJob inserts a new job row. The worker uses it when a group-creation
// run spawns a post-scheduling job for the deferred batch.
func (s *Storage) CreateJob(ctx context.Context, jobID, jobType, status string, payload []byte, maxRetries int) error {
	query := `
		INSERT INTO jobs (job_id, job_type, payload, status, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`

	_, err := s.db.ExecContext(ctx, query, jobID, jobType, payload, status, maxRetries)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", jobID),
		slog.String("job_type", jobType),
		slog.String("status", status),
	)

	return nil
}

// GetStudentToken returns the encrypted VK token of a student.
func (s *Storage) GetStudentToken(ctx context.Context, studentID string) (string, error) {
	query := `SELECT vk_token FROM students WHERE id = $1`

	var token string
	if err := s.db.QueryRowContext(ctx, query, studentID).Scan(&token); err != nil {
		if err == sql.ErrNoRows {
			return "", domain.ErrStudentNotFound
		}
		return "", fmt.Errorf("failed to get student token: %w", err)
	}

	return token, nil
}

// SaveGroup records the provisioned community for a student.
func (s *Storage) SaveGroup(ctx context.Context, studentID string, result *domain.Result) error {
	query := `
		INSERT INTO groups (student_id, vk_group_id, screen_name, url, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (vk_group_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, studentID, result.GroupID, result.ScreenName, result.URL)
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}

	s.logger.Info("Group saved",
		slog.String("student_id", studentID),
		slog.Int64("vk_group_id", result.GroupID),
	)

	return nil
}
