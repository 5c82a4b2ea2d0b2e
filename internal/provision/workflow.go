// Package provision drives one student profile through the ordered sequence
// of VK calls that builds a configured community. Steps are explicit
// descriptors executed by a driver loop; progress is persisted after every
// step so polling clients see fine-grained status and a retried job resumes
// from where the previous attempt stopped.
package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glebkhr/vk-group-builder/internal/content"
	"github.com/glebkhr/vk-group-builder/internal/vk"
	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

// Currency id 1 is RUB in the provider's catalog.
const currencyRUB = 1

const immediatePostQuota = 2

const (
	reviewsTopicTitle = "Отзывы"
	reviewsTopicText  = "Оставляйте свои отзывы о качестве массажа и сервиса. Ваше мнение очень важно для нас!"
)

// API is the subset of provider operations the workflow issues. Satisfied by
// *vk.Client; faked in tests.
type API interface {
	CreateGroup(ctx context.Context, params vk.CreateGroupParams) (int64, error)
	EditGroup(ctx context.Context, params vk.EditGroupParams) error
	GetOwnerPhotoUploadServer(ctx context.Context) (*vk.UploadServer, error)
	SaveOwnerPhoto(ctx context.Context, ticket *vk.PhotoUpload) error
	GetOwnerCoverPhotoUploadServer(ctx context.Context, groupID int64, cropX2, cropY2 int) (*vk.UploadServer, error)
	SaveOwnerCoverPhoto(ctx context.Context, ticket *vk.PhotoUpload) error
	UploadPhoto(ctx context.Context, uploadURL string, data []byte) (*vk.PhotoUpload, error)
	WallPost(ctx context.Context, params vk.WallPostParams) (int64, error)
	AddBoardTopic(ctx context.Context, groupID int64, title, text string) (int64, error)
	ToggleMarket(ctx context.Context, groupID int64, enabled bool, currencyID int) error
	MarketAdd(ctx context.Context, params vk.MarketItemParams) (int64, error)
	SetLongPollSettings(ctx context.Context, groupID int64, enabled, messageNew bool) error
}

// ProgressSink receives a snapshot after every completed step.
type ProgressSink interface {
	Snapshot(ctx context.Context, progress domain.Progress) error
}

// PostScheduler hands deferred posts over to the secondary queue.
type PostScheduler interface {
	EnqueueDeferred(ctx context.Context, studentID string, groupID int64, posts []domain.DeferredPost) error
}

// Workflow provisions communities. One instance is shared across jobs; all
// per-job state lives in the run.
type Workflow struct {
	scheduler PostScheduler
	logger    *slog.Logger
}

func NewWorkflow(scheduler PostScheduler, logger *slog.Logger) *Workflow {
	return &Workflow{scheduler: scheduler, logger: logger}
}

// run is the mutable state of one execution.
type run struct {
	api       API
	profile   *domain.StudentProfile
	studentID string
	progress  domain.Progress
	scheduler PostScheduler
	logger    *slog.Logger
}

// step is one entry of the ordered sequence. done-steps are skipped on
// resume; the create step in particular must never be re-issued for a group
// that already exists.
type step struct {
	name string
	done func(p *domain.Progress) bool
	exec func(ctx context.Context, r *run) error
}

func steps() []step {
	return []step{
		{
			name: "create_group",
			done: func(p *domain.Progress) bool { return p.GroupCreated },
			exec: createGroup,
		},
		{
			name: "configure_group",
			// No dedicated flag; groups.edit is idempotent and cheap to
			// repeat on resume.
			done: func(p *domain.Progress) bool { return false },
			exec: configureGroup,
		},
		{
			name: "upload_avatar",
			done: func(p *domain.Progress) bool { return p.AvatarUploaded },
			exec: uploadAvatar,
		},
		{
			name: "upload_cover",
			done: func(p *domain.Progress) bool { return p.CoverUploaded },
			exec: uploadCover,
		},
		{
			name: "publish_posts",
			done: func(p *domain.Progress) bool {
				return p.TotalPosts > 0 && p.PostsPublished >= min(immediatePostQuota, p.TotalPosts)
			},
			exec: publishImmediatePosts,
		},
		{
			name: "schedule_deferred_posts",
			done: func(p *domain.Progress) bool { return false },
			exec: scheduleDeferredPosts,
		},
		{
			name: "create_reviews_topic",
			done: func(p *domain.Progress) bool { return p.ReviewsTopicCreated },
			exec: createReviewsTopic,
		},
		{
			name: "enable_market",
			done: func(p *domain.Progress) bool { return p.MarketEnabled },
			exec: enableMarket,
		},
		{
			name: "add_services",
			done: func(p *domain.Progress) bool {
				return p.TotalServices > 0 && p.ServicesAdded >= p.TotalServices
			},
			exec: addServices,
		},
		{
			name: "add_address",
			done: func(p *domain.Progress) bool { return p.AddressAdded },
			exec: addAddress,
		},
		{
			name: "enable_auto_responder",
			done: func(p *domain.Progress) bool { return p.AutoResponderEnabled },
			exec: enableAutoResponder,
		},
	}
}

// Run executes the sequence against the given state. seed is the latest
// persisted progress of the job (zero value on a first attempt); completed
// steps are skipped. The sink receives a snapshot after every executed step.
func (w *Workflow) Run(
	ctx context.Context,
	api API,
	studentID string,
	profile *domain.StudentProfile,
	seed domain.Progress,
	sink ProgressSink,
) (*domain.Result, error) {
	r := &run{
		api:       api,
		profile:   profile,
		studentID: studentID,
		progress:  seed,
		scheduler: w.scheduler,
		logger:    w.logger.With(slog.String("student_id", studentID)),
	}

	for _, s := range steps() {
		if s.done(&r.progress) {
			r.logger.Debug("step already done, skipping", slog.String("step", s.name))
			continue
		}

		r.progress.Step = s.name
		r.logger.Info("executing step",
			slog.String("step", s.name),
			slog.Int64("group_id", r.progress.GroupID),
		)

		if err := s.exec(ctx, r); err != nil {
			// Partial progress is kept; the snapshot lets a retry resume.
			if snapErr := sink.Snapshot(ctx, r.progress); snapErr != nil {
				r.logger.Error("failed to persist progress snapshot", slog.Any("error", snapErr))
			}
			return nil, fmt.Errorf("step %s: %w", s.name, err)
		}

		if err := sink.Snapshot(ctx, r.progress); err != nil {
			return nil, fmt.Errorf("step %s: failed to persist progress: %w", s.name, err)
		}
	}

	result := &domain.Result{
		GroupID:    r.progress.GroupID,
		ScreenName: fmt.Sprintf("club%d", r.progress.GroupID),
		URL:        fmt.Sprintf("https://vk.com/club%d", r.progress.GroupID),
	}
	r.logger.Info("provisioning completed", slog.Int64("group_id", result.GroupID))
	return result, nil
}

func createGroup(ctx context.Context, r *run) error {
	desc := content.GenerateDescription(r.profile)

	groupID, err := r.api.CreateGroup(ctx, vk.CreateGroupParams{
		Title:             desc.Title,
		Type:              "page",
		Subtype:           "company",
		PublicCategory:    desc.Category,
		PublicSubcategory: desc.Subcategory,
	})
	if err != nil {
		return err
	}

	r.progress.GroupID = groupID
	r.progress.GroupCreated = true
	return nil
}

func configureGroup(ctx context.Context, r *run) error {
	desc := content.GenerateDescription(r.profile)

	return r.api.EditGroup(ctx, vk.EditGroupParams{
		GroupID:     r.progress.GroupID,
		Description: desc.Body,
		Website:     fmt.Sprintf("https://vk.com/club%d", r.progress.GroupID),
		Wall:        1,
		Topics:      1,
		Photos:      1,
		Market:      1,
		Messages:    1,
	})
}

func uploadAvatar(ctx context.Context, r *run) error {
	data, err := content.GenerateAvatar(r.profile)
	if err != nil {
		return err
	}

	server, err := r.api.GetOwnerPhotoUploadServer(ctx)
	if err != nil {
		return err
	}
	ticket, err := r.api.UploadPhoto(ctx, server.UploadURL, data)
	if err != nil {
		return err
	}
	if err := r.api.SaveOwnerPhoto(ctx, ticket); err != nil {
		return err
	}

	r.progress.AvatarUploaded = true
	return nil
}

func uploadCover(ctx context.Context, r *run) error {
	data, err := content.GenerateCover(r.profile)
	if err != nil {
		return err
	}

	server, err := r.api.GetOwnerCoverPhotoUploadServer(ctx, r.progress.GroupID, coverWidth, coverHeight)
	if err != nil {
		return err
	}
	ticket, err := r.api.UploadPhoto(ctx, server.UploadURL, data)
	if err != nil {
		return err
	}
	if err := r.api.SaveOwnerCoverPhoto(ctx, ticket); err != nil {
		return err
	}

	r.progress.CoverUploaded = true
	return nil
}

// Cover crop matches the rendered image dimensions.
const (
	coverWidth  = 1200
	coverHeight = 300
)

func publishImmediatePosts(ctx context.Context, r *run) error {
	posts := content.GeneratePosts(r.profile)
	if r.progress.TotalPosts == 0 {
		r.progress.TotalPosts = len(posts)
	}

	published := 0
	for _, post := range posts {
		if !post.PublishImmediately {
			continue
		}
		if published >= immediatePostQuota {
			break
		}
		published++
		// A resumed run skips posts the previous attempt already placed.
		if published <= r.progress.PostsPublished {
			continue
		}

		if _, err := r.api.WallPost(ctx, vk.WallPostParams{
			OwnerID:   -r.progress.GroupID,
			Message:   post.Content,
			FromGroup: true,
		}); err != nil {
			return err
		}
		r.progress.PostsPublished++
	}
	return nil
}

func scheduleDeferredPosts(ctx context.Context, r *run) error {
	posts := content.GeneratePosts(r.profile)

	var deferred []domain.DeferredPost
	for _, post := range posts {
		if post.PublishImmediately {
			continue
		}
		deferred = append(deferred, domain.DeferredPost{
			Content:   post.Content,
			DelayDays: post.DelayDays,
		})
	}
	if len(deferred) == 0 {
		return nil
	}

	return r.scheduler.EnqueueDeferred(ctx, r.studentID, r.progress.GroupID, deferred)
}

func createReviewsTopic(ctx context.Context, r *run) error {
	if _, err := r.api.AddBoardTopic(ctx, r.progress.GroupID, reviewsTopicTitle, reviewsTopicText); err != nil {
		return err
	}
	r.progress.ReviewsTopicCreated = true
	return nil
}

func enableMarket(ctx context.Context, r *run) error {
	if err := r.api.ToggleMarket(ctx, r.progress.GroupID, true, currencyRUB); err != nil {
		return err
	}
	r.progress.MarketEnabled = true
	return nil
}

func addServices(ctx context.Context, r *run) error {
	items := content.GenerateMarketItems(r.profile)
	if r.progress.TotalServices == 0 {
		r.progress.TotalServices = len(items)
	}

	for i, item := range items {
		// Items are added in pricing order; a resumed run continues after
		// the last confirmed add.
		if i < r.progress.ServicesAdded {
			continue
		}

		if _, err := r.api.MarketAdd(ctx, vk.MarketItemParams{
			OwnerID:     -r.progress.GroupID,
			Name:        item.Title,
			Description: item.Description,
			CategoryID:  item.CategoryID,
			Price:       item.Price,
			CurrencyID:  currencyRUB,
		}); err != nil {
			return err
		}
		r.progress.ServicesAdded++
	}
	return nil
}

// addAddress is a placeholder while geocoding is out of scope. The flag is
// still set so the status surface shows the step as passed.
func addAddress(ctx context.Context, r *run) error {
	if r.profile.Address != "" {
		r.progress.AddressAdded = true
	}
	return nil
}

func enableAutoResponder(ctx context.Context, r *run) error {
	if err := r.api.SetLongPollSettings(ctx, r.progress.GroupID, true, true); err != nil {
		return err
	}
	r.progress.AutoResponderEnabled = true
	return nil
}
