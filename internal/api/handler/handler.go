package handler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/glebkhr/vk-group-builder/internal/api/model"
	"github.com/glebkhr/vk-group-builder/internal/api/storage"
	"github.com/glebkhr/vk-group-builder/shared/secretbox"
)

// Store is the persistence surface the handlers need. Implemented by
// *storage.Storage; faked in tests.
type Store interface {
	SaveOAuthState(ctx context.Context, state, profile string, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (string, error)
	CreateStudent(ctx context.Context, student *model.Student) error
	CreateJob(ctx context.Context, jobID, jobType, status, payload string, maxRetries int) error
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListStudentGroups(ctx context.Context, filter storage.GroupFilter) ([]model.Group, error)
	RevokeGroup(ctx context.Context, groupID string) error
}

// Publisher pushes job messages onto the exchange.
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Storage   Store
	Publisher Publisher
	Box       *secretbox.Box

	OAuth           *oauth2.Config
	APIVersion      string
	StateTTL        time.Duration
	GroupRoutingKey string
	JobMaxRetries   int

	HealthCheck func(ctx context.Context) error
}

// GroupHandler handles provisioning HTTP requests: the OAuth flow that
// kicks off a job, status polling, and the group listing.
type GroupHandler struct {
	logger    *slog.Logger
	storage   Store
	publisher Publisher
	box       *secretbox.Box

	oauth           *oauth2.Config
	apiVersion      string
	stateTTL        time.Duration
	groupRoutingKey string
	jobMaxRetries   int
}

// NewGroupHandler creates a new GroupHandler instance
func NewGroupHandler(deps *Dependencies) *GroupHandler {
	stateTTL := deps.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &GroupHandler{
		logger:          deps.Logger,
		storage:         deps.Storage,
		publisher:       deps.Publisher,
		box:             deps.Box,
		oauth:           deps.OAuth,
		apiVersion:      deps.APIVersion,
		stateTTL:        stateTTL,
		groupRoutingKey: deps.GroupRoutingKey,
		jobMaxRetries:   deps.JobMaxRetries,
	}
}
