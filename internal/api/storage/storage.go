package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/glebkhr/vk-group-builder/internal/api/model"
	"github.com/glebkhr/vk-group-builder/shared/postgresql"
)

var (
	// ErrStateNotFound is returned when an OAuth state is unknown or expired
	ErrStateNotFound = errors.New("oauth state not found or expired")

	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrGroupNotFound is returned when a group cannot be found in the database
	ErrGroupNotFound = errors.New("group not found")
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.DB(),
	}
}

// SaveOAuthState stores the submitted profile under its state parameter.
func (s *Storage) SaveOAuthState(ctx context.Context, state, profile string, ttl time.Duration) error {
	query := `
		INSERT INTO oauth_states (state, profile, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	_, err := s.db.ExecContext(ctx, query, state, profile, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}

	return nil
}

// ConsumeOAuthState atomically removes a live state and returns its profile.
// A state is single-use; a second callback with the same value fails.
func (s *Storage) ConsumeOAuthState(ctx context.Context, state string) (string, error) {
	query := `
		DELETE FROM oauth_states
		WHERE state = $1 AND expires_at > NOW()
		RETURNING profile
	`

	var profile string
	if err := s.db.QueryRowContext(ctx, query, state).Scan(&profile); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrStateNotFound
		}
		return "", fmt.Errorf("failed to consume oauth state: %w", err)
	}

	return profile, nil
}

// DeleteExpiredOAuthStates removes handshakes that were never completed.
func (s *Storage) DeleteExpiredOAuthStates(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired oauth states: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// CreateStudent inserts a student record with the encrypted token.
func (s *Storage) CreateStudent(ctx context.Context, student *model.Student) error {
	query := `
		INSERT INTO students (
			id, name, city, area, phone,
			vk_user_id, vk_token, profile, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, NOW()
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		student.ID,
		student.Name,
		student.City,
		student.Area,
		student.Phone,
		student.VKUserID,
		student.VKToken,
		student.Profile,
	)

	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}

	return nil
}

// CreateJob inserts a job row in the given initial status.
func (s *Storage) CreateJob(ctx context.Context, jobID, jobType, status, payload string, maxRetries int) error {
	query := `
		INSERT INTO jobs (
			job_id, job_type, payload, status, max_retries, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW()
		)
	`

	_, err := s.db.ExecContext(ctx, query, jobID, jobType, payload, status, maxRetries)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID returns the status-facing view of a job.
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `
		SELECT
			job_id, job_type, status, progress, result,
			error_message, created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type GroupFilter struct {
	StudentID string
	PageSize  int
	Cursor    *GroupCursor
}

type GroupCursor struct {
	CreatedAt time.Time
	ID        string
}

// ListStudentGroups returns one page of a student's groups, newest first.
// Fetches one extra row so the caller can tell whether more pages exist.
func (s *Storage) ListStudentGroups(ctx context.Context, filter GroupFilter) ([]model.Group, error) {
	query := `
		SELECT id, student_id, vk_group_id, screen_name, url, status, created_at
		FROM groups
		WHERE student_id = $1
	`
	args := []interface{}{filter.StudentID}
	argIdx := 2

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var groups []model.Group
	if err := s.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	return groups, nil
}

// RevokeGroup marks a group as revoked. The remote community is left as-is;
// only the stored association is retired.
func (s *Storage) RevokeGroup(ctx context.Context, groupID string) error {
	query := `
		UPDATE groups
		SET status = $1
		WHERE id = $2
	`

	result, err := s.db.ExecContext(ctx, query, model.GroupStatusRevoked, groupID)
	if err != nil {
		return fmt.Errorf("failed to revoke group: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrGroupNotFound
	}

	return nil
}
