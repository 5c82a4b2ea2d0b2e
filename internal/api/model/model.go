package model

import (
	"database/sql"
	"time"
)

// Student is a therapist who completed the OAuth flow. The vk_token column
// holds the AES-GCM encrypted access token; the plaintext never reaches the
// API process after the callback handler finishes.
type Student struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	City      string    `db:"city"`
	Area      string    `db:"area"`
	Phone     string    `db:"phone"`
	VKUserID  int64     `db:"vk_user_id"`
	VKToken   string    `db:"vk_token"`
	Profile   string    `db:"profile"` // full intake form, JSON
	CreatedAt time.Time `db:"created_at"`
}

// Job is the API-side view of a job row.
type Job struct {
	JobID        string         `db:"job_id"`
	JobType      string         `db:"job_type"`
	Status       string         `db:"status"`
	Progress     sql.NullString `db:"progress"` // JSON
	Result       sql.NullString `db:"result"`   // JSON
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// Group is a provisioned community.
type Group struct {
	ID         string    `db:"id"`
	StudentID  string    `db:"student_id"`
	VKGroupID  int64     `db:"vk_group_id"`
	ScreenName string    `db:"screen_name"`
	URL        string    `db:"url"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
}

// Group statuses.
const (
	GroupStatusActive  = "active"
	GroupStatusRevoked = "revoked"
)

// OAuthState is a pending OAuth handshake: the submitted profile keyed by
// the random state parameter, valid until ExpiresAt.
type OAuthState struct {
	State     string    `db:"state"`
	Profile   string    `db:"profile"` // JSON
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
