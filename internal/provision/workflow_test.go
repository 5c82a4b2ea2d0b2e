package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebkhr/vk-group-builder/internal/vk"
	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

const testGroupID = int64(987654)

// fakeAPI records issued calls and lets tests inject a failure at a named
// call site.
type fakeAPI struct {
	calls    []string
	failAt   string
	failWith error

	wallPosts   []vk.WallPostParams
	marketItems []vk.MarketItemParams
	created     int
}

func (f *fakeAPI) record(name string) error {
	f.calls = append(f.calls, name)
	if f.failAt == name {
		return f.failWith
	}
	return nil
}

func (f *fakeAPI) CreateGroup(ctx context.Context, params vk.CreateGroupParams) (int64, error) {
	if err := f.record("groups.create"); err != nil {
		return 0, err
	}
	f.created++
	return testGroupID, nil
}

func (f *fakeAPI) EditGroup(ctx context.Context, params vk.EditGroupParams) error {
	return f.record("groups.edit")
}

func (f *fakeAPI) GetOwnerPhotoUploadServer(ctx context.Context) (*vk.UploadServer, error) {
	if err := f.record("photos.getOwnerPhotoUploadServer"); err != nil {
		return nil, err
	}
	return &vk.UploadServer{UploadURL: "https://upload.example/avatar"}, nil
}

func (f *fakeAPI) SaveOwnerPhoto(ctx context.Context, ticket *vk.PhotoUpload) error {
	return f.record("photos.saveOwnerPhoto")
}

func (f *fakeAPI) GetOwnerCoverPhotoUploadServer(ctx context.Context, groupID int64, cropX2, cropY2 int) (*vk.UploadServer, error) {
	if err := f.record("photos.getOwnerCoverPhotoUploadServer"); err != nil {
		return nil, err
	}
	return &vk.UploadServer{UploadURL: "https://upload.example/cover"}, nil
}

func (f *fakeAPI) SaveOwnerCoverPhoto(ctx context.Context, ticket *vk.PhotoUpload) error {
	return f.record("photos.saveOwnerCoverPhoto")
}

func (f *fakeAPI) UploadPhoto(ctx context.Context, uploadURL string, data []byte) (*vk.PhotoUpload, error) {
	if err := f.record("upload"); err != nil {
		return nil, err
	}
	return &vk.PhotoUpload{Server: 1, Photo: "[]", Hash: "h"}, nil
}

func (f *fakeAPI) WallPost(ctx context.Context, params vk.WallPostParams) (int64, error) {
	if err := f.record("wall.post"); err != nil {
		return 0, err
	}
	f.wallPosts = append(f.wallPosts, params)
	return int64(len(f.wallPosts)), nil
}

func (f *fakeAPI) AddBoardTopic(ctx context.Context, groupID int64, title, text string) (int64, error) {
	if err := f.record("board.addTopic"); err != nil {
		return 0, err
	}
	return 1, nil
}

func (f *fakeAPI) ToggleMarket(ctx context.Context, groupID int64, enabled bool, currencyID int) error {
	return f.record("groups.toggleMarket")
}

func (f *fakeAPI) MarketAdd(ctx context.Context, params vk.MarketItemParams) (int64, error) {
	if err := f.record("market.add"); err != nil {
		return 0, err
	}
	f.marketItems = append(f.marketItems, params)
	return int64(len(f.marketItems)), nil
}

func (f *fakeAPI) SetLongPollSettings(ctx context.Context, groupID int64, enabled, messageNew bool) error {
	return f.record("groups.setLongPollSettings")
}

// memorySink keeps every snapshot so tests can check monotonicity.
type memorySink struct {
	snapshots []domain.Progress
}

func (s *memorySink) Snapshot(ctx context.Context, p domain.Progress) error {
	s.snapshots = append(s.snapshots, p)
	return nil
}

func (s *memorySink) latest() domain.Progress {
	return s.snapshots[len(s.snapshots)-1]
}

type fakeScheduler struct {
	batches [][]domain.DeferredPost
	err     error
}

func (s *fakeScheduler) EnqueueDeferred(ctx context.Context, studentID string, groupID int64, posts []domain.DeferredPost) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, posts)
	return nil
}

func testProfile() *domain.StudentProfile {
	return &domain.StudentProfile{
		Name:        "Анна Иванова",
		City:        "Москва",
		Area:        "Арбат",
		Phone:       "79161234567",
		Techniques:  []string{"классический"},
		Pricing:     []domain.PricingItem{{Title: "Classic 60min", Price: 2500}},
		IsHomeVisit: true,
	}
}

func newTestWorkflow(scheduler PostScheduler) *Workflow {
	return NewWorkflow(scheduler, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunCompletesAllSteps(t *testing.T) {
	api := &fakeAPI{}
	sink := &memorySink{}
	scheduler := &fakeScheduler{}

	result, err := newTestWorkflow(scheduler).Run(
		context.Background(), api, "student-1", testProfile(), domain.Progress{}, sink)
	require.NoError(t, err)

	assert.Equal(t, testGroupID, result.GroupID)
	assert.Equal(t, "club987654", result.ScreenName)
	assert.Equal(t, "https://vk.com/club987654", result.URL)

	final := sink.latest()
	assert.True(t, final.GroupCreated)
	assert.True(t, final.AvatarUploaded)
	assert.True(t, final.CoverUploaded)
	assert.True(t, final.ReviewsTopicCreated)
	assert.True(t, final.MarketEnabled)
	assert.True(t, final.AutoResponderEnabled)
	assert.Equal(t, 1, final.ServicesAdded)
	assert.Equal(t, 1, final.TotalServices)
	assert.Equal(t, 2, final.PostsPublished)
	assert.Equal(t, 5, final.TotalPosts)
	assert.Equal(t, testGroupID, final.GroupID)
}

func TestRunPublishesQuotaAndSchedulesRest(t *testing.T) {
	api := &fakeAPI{}
	sink := &memorySink{}
	scheduler := &fakeScheduler{}

	_, err := newTestWorkflow(scheduler).Run(
		context.Background(), api, "student-1", testProfile(), domain.Progress{}, sink)
	require.NoError(t, err)

	// Two immediate posts on the community wall.
	require.Len(t, api.wallPosts, 2)
	for _, post := range api.wallPosts {
		assert.Equal(t, -testGroupID, post.OwnerID)
		assert.True(t, post.FromGroup)
		assert.Zero(t, post.PublishDate)
	}

	// The three deferred posts go to the scheduling queue as one batch.
	require.Len(t, scheduler.batches, 1)
	require.Len(t, scheduler.batches[0], 3)
	for _, post := range scheduler.batches[0] {
		assert.Positive(t, post.DelayDays)
	}
}

func TestRunAbortsWhenCreateFails(t *testing.T) {
	api := &fakeAPI{
		failAt: "groups.create",
		failWith: &vk.APIError{
			Method: "groups.create", Code: 100, Message: "missing parameter",
		},
	}
	sink := &memorySink{}

	_, err := newTestWorkflow(&fakeScheduler{}).Run(
		context.Background(), api, "student-1", testProfile(), domain.Progress{}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step create_group")
	assert.Contains(t, err.Error(), "code 100")

	// The failure snapshot carries no flags.
	require.NotEmpty(t, sink.snapshots)
	final := sink.latest()
	assert.False(t, final.GroupCreated)
	assert.Zero(t, final.GroupID)
}

func TestRunKeepsPartialProgressOnFailure(t *testing.T) {
	api := &fakeAPI{
		failAt:   "photos.getOwnerCoverPhotoUploadServer",
		failWith: fmt.Errorf("boom"),
	}
	sink := &memorySink{}

	_, err := newTestWorkflow(&fakeScheduler{}).Run(
		context.Background(), api, "student-1", testProfile(), domain.Progress{}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step upload_cover")

	final := sink.latest()
	assert.True(t, final.GroupCreated)
	assert.True(t, final.AvatarUploaded)
	assert.False(t, final.CoverUploaded)
	assert.Equal(t, testGroupID, final.GroupID)
}

func TestRunResumesWithoutRecreatingGroup(t *testing.T) {
	api := &fakeAPI{}
	sink := &memorySink{}

	// Simulates a retry after the previous attempt failed at the cover step.
	seed := domain.Progress{
		GroupCreated:   true,
		AvatarUploaded: true,
		GroupID:        testGroupID,
	}

	result, err := newTestWorkflow(&fakeScheduler{}).Run(
		context.Background(), api, "student-1", testProfile(), seed, sink)
	require.NoError(t, err)

	assert.Zero(t, api.created, "resumed run must not create a second group")
	assert.NotContains(t, api.calls, "photos.getOwnerPhotoUploadServer")
	assert.Equal(t, testGroupID, result.GroupID)
	assert.True(t, sink.latest().CoverUploaded)
}

func TestRunAbortsWhenEnqueueFails(t *testing.T) {
	api := &fakeAPI{}
	scheduler := &fakeScheduler{err: fmt.Errorf("broker unavailable")}

	_, err := newTestWorkflow(scheduler).Run(
		context.Background(), api, "student-1", testProfile(), domain.Progress{}, &memorySink{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step schedule_deferred_posts")
}

func TestRunAddressPlaceholder(t *testing.T) {
	profile := testProfile()
	profile.IsHomeVisit = false
	profile.Address = "ул. Пушкина, д. 10"

	api := &fakeAPI{}
	sink := &memorySink{}

	_, err := newTestWorkflow(&fakeScheduler{}).Run(
		context.Background(), api, "student-1", profile, domain.Progress{}, sink)
	require.NoError(t, err)

	// The address step sets its flag without touching the provider.
	assert.True(t, sink.latest().AddressAdded)
	assert.NotContains(t, api.calls, "address")
}

func TestRunProgressIsMonotonic(t *testing.T) {
	api := &fakeAPI{}
	sink := &memorySink{}

	_, err := newTestWorkflow(&fakeScheduler{}).Run(
		context.Background(), api, "student-1", testProfile(), domain.Progress{}, sink)
	require.NoError(t, err)

	var prev domain.Progress
	for i, snap := range sink.snapshots {
		assert.GreaterOrEqual(t, snap.PostsPublished, prev.PostsPublished, "snapshot %d", i)
		assert.GreaterOrEqual(t, snap.ServicesAdded, prev.ServicesAdded, "snapshot %d", i)
		if snap.TotalPosts > 0 {
			assert.LessOrEqual(t, snap.PostsPublished, snap.TotalPosts, "snapshot %d", i)
		}
		if snap.TotalServices > 0 {
			assert.LessOrEqual(t, snap.ServicesAdded, snap.TotalServices, "snapshot %d", i)
		}
		if prev.GroupCreated {
			assert.True(t, snap.GroupCreated, "snapshot %d", i)
		}
		if prev.AvatarUploaded {
			assert.True(t, snap.AvatarUploaded, "snapshot %d", i)
		}
		prev = snap
	}
}
