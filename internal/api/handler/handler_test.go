package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/glebkhr/vk-group-builder/internal/api/dto"
	"github.com/glebkhr/vk-group-builder/internal/api/model"
	"github.com/glebkhr/vk-group-builder/internal/api/storage"
	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
	"github.com/glebkhr/vk-group-builder/shared/secretbox"
)

const testKeyHex = "2b7e151628aed2a6abf7158809cf4f3c2b7e151628aed2a6abf7158809cf4f3c"

type fakeStore struct {
	states   map[string]string
	students []*model.Student
	jobs     map[string]*model.Job
	created  []string
	groups   []model.Group
	revoked  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states: make(map[string]string),
		jobs:   make(map[string]*model.Job),
	}
}

func (f *fakeStore) SaveOAuthState(ctx context.Context, state, profile string, ttl time.Duration) error {
	f.states[state] = profile
	return nil
}

func (f *fakeStore) ConsumeOAuthState(ctx context.Context, state string) (string, error) {
	profile, ok := f.states[state]
	if !ok {
		return "", storage.ErrStateNotFound
	}
	delete(f.states, state)
	return profile, nil
}

func (f *fakeStore) CreateStudent(ctx context.Context, student *model.Student) error {
	f.students = append(f.students, student)
	return nil
}

func (f *fakeStore) CreateJob(ctx context.Context, jobID, jobType, status, payload string, maxRetries int) error {
	f.created = append(f.created, jobID)
	f.jobs[jobID] = &model.Job{JobID: jobID, JobType: jobType, Status: status}
	return nil
}

func (f *fakeStore) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeStore) ListStudentGroups(ctx context.Context, filter storage.GroupFilter) ([]model.Group, error) {
	limit := filter.PageSize + 1
	if limit > len(f.groups) {
		limit = len(f.groups)
	}
	return f.groups[:limit], nil
}

func (f *fakeStore) RevokeGroup(ctx context.Context, groupID string) error {
	for _, g := range f.groups {
		if g.ID == groupID {
			f.revoked = append(f.revoked, groupID)
			return nil
		}
	}
	return storage.ErrGroupNotFound
}

type fakePublisher struct {
	published []struct {
		routingKey string
		body       []byte
	}
	err error
}

func (p *fakePublisher) PublishWithRetry(ctx context.Context, routingKey string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, struct {
		routingKey string
		body       []byte
	}{routingKey, body})
	return nil
}

func testBox(t *testing.T) *secretbox.Box {
	t.Helper()
	box, err := secretbox.New(testKeyHex)
	require.NoError(t, err)
	return box
}

func setupTestRouter(t *testing.T, store *fakeStore, publisher *fakePublisher, tokenURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	deps := &Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Storage:   store,
		Publisher: publisher,
		Box:       testBox(t),
		OAuth: &oauth2.Config{
			ClientID:     "123456",
			ClientSecret: "secret",
			RedirectURL:  "https://app.example/callback",
			Scopes:       []string{"groups,photos,wall,market,docs"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://oauth.vk.com/authorize",
				TokenURL: tokenURL,
			},
		},
		APIVersion:      "5.199",
		StateTTL:        10 * time.Minute,
		GroupRoutingKey: "group.creation",
		JobMaxRetries:   3,
	}

	h := NewGroupHandler(deps)

	r := gin.New()
	r.POST("/api/v1/oauth/init", h.InitOAuth)
	r.GET("/api/v1/oauth/callback", h.OAuthCallback)
	r.GET("/api/v1/groups/:id/status", h.GetStatus)
	r.DELETE("/api/v1/groups/:id/revoke", h.RevokeGroup)
	r.GET("/api/v1/students/:student_id/groups", h.ListStudentGroups)
	return r
}

func validProfileBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"name":       "Анна Иванова",
		"city":       "Москва",
		"area":       "Арбат",
		"phone":      "79161234567",
		"techniques": []string{"классический"},
		"pricing": []map[string]any{
			{"title": "Classic 60min", "price": 2500},
		},
		"is_home_visit": true,
	})
	return body
}

func TestInitOAuth(t *testing.T) {
	store := newFakeStore()
	r := setupTestRouter(t, store, &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/oauth/init", bytes.NewReader(validProfileBody()))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.OAuthInitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.State, 64)
	assert.Contains(t, resp.AuthURL, "oauth.vk.com/authorize")
	assert.Contains(t, resp.AuthURL, "client_id=123456")
	assert.Contains(t, resp.AuthURL, "state="+resp.State)
	assert.Contains(t, resp.AuthURL, "v=5.199")

	// The submitted profile is parked under the state.
	assert.Contains(t, store.states, resp.State)
}

func TestInitOAuthRejectsInvalidProfile(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "missing techniques",
			body: map[string]any{
				"name": "A", "city": "B", "area": "C", "phone": "123",
				"pricing":       []map[string]any{{"title": "X", "price": 100}},
				"is_home_visit": true,
			},
		},
		{
			name: "zero price",
			body: map[string]any{
				"name": "A", "city": "B", "area": "C", "phone": "123",
				"techniques":    []string{"x"},
				"pricing":       []map[string]any{{"title": "X", "price": 0}},
				"is_home_visit": true,
			},
		},
		{
			name: "office without address",
			body: map[string]any{
				"name": "A", "city": "B", "area": "C", "phone": "123",
				"techniques":    []string{"x"},
				"pricing":       []map[string]any{{"title": "X", "price": 100}},
				"is_home_visit": false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTestRouter(t, newFakeStore(), &fakePublisher{}, "http://unused")

			body, _ := json.Marshal(tt.body)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/oauth/init", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestOAuthCallback(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"vk-access-token","token_type":"bearer","expires_in":86400,"user_id":42}`)
	}))
	defer tokenServer.Close()

	store := newFakeStore()
	publisher := &fakePublisher{}
	r := setupTestRouter(t, store, publisher, tokenServer.URL)

	// Seed a pending handshake the way InitOAuth would.
	profile := domain.StudentProfile{
		Name: "Анна", City: "Москва", Area: "Арбат", Phone: "79161234567",
		Techniques:  []string{"классический"},
		Pricing:     []domain.PricingItem{{Title: "Classic 60min", Price: 2500}},
		IsHomeVisit: true,
	}
	profileJSON, _ := json.Marshal(profile)
	store.states["teststate"] = string(profileJSON)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/oauth/callback?code=authcode&state=teststate", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp dto.OAuthCallbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.StudentID)
	assert.NotEmpty(t, resp.JobID)

	// Student stored with the token encrypted, not in plaintext.
	require.Len(t, store.students, 1)
	student := store.students[0]
	assert.Equal(t, int64(42), student.VKUserID)
	assert.NotEqual(t, "vk-access-token", student.VKToken)
	decrypted, err := testBox(t).Decrypt(student.VKToken)
	require.NoError(t, err)
	assert.Equal(t, "vk-access-token", decrypted)

	// The state is single-use.
	assert.NotContains(t, store.states, "teststate")

	// A group-creation job was recorded and its message published.
	require.Len(t, store.created, 1)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "group.creation", publisher.published[0].routingKey)

	var msg domain.JobMessage
	require.NoError(t, json.Unmarshal(publisher.published[0].body, &msg))
	assert.Equal(t, resp.JobID, msg.JobID)

	job := store.jobs[resp.JobID]
	require.NotNil(t, job)
	assert.Equal(t, domain.JobTypeGroupCreation, job.JobType)
	assert.Equal(t, domain.JobStatusWaiting, job.Status)
}

func TestOAuthCallbackRejectsUnknownState(t *testing.T) {
	r := setupTestRouter(t, newFakeStore(), &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/oauth/callback?code=x&state=unknown", nil)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthCallbackRequiresParams(t *testing.T) {
	r := setupTestRouter(t, newFakeStore(), &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/oauth/callback?code=x", nil)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatus(t *testing.T) {
	store := newFakeStore()
	jobID := uuid.NewString()
	store.jobs[jobID] = &model.Job{
		JobID:     jobID,
		JobType:   domain.JobTypeGroupCreation,
		Status:    domain.JobStatusActive,
		Progress:  nullString(`{"group_created":true,"group_id":777}`),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r := setupTestRouter(t, store, &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/"+jobID+"/status", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, jobID, resp.ID)
	assert.Equal(t, domain.JobStatusActive, resp.Status)

	var progress domain.Progress
	require.NoError(t, json.Unmarshal(resp.Progress, &progress))
	assert.True(t, progress.GroupCreated)
	assert.Equal(t, int64(777), progress.GroupID)
}

func TestGetStatusNotFound(t *testing.T) {
	r := setupTestRouter(t, newFakeStore(), &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/"+uuid.NewString()+"/status", nil)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatusRejectsBadID(t *testing.T) {
	r := setupTestRouter(t, newFakeStore(), &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/not-a-uuid/status", nil)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStudentGroupsPagination(t *testing.T) {
	store := newFakeStore()
	studentID := uuid.NewString()
	base := time.Now()
	for i := 0; i < 3; i++ {
		store.groups = append(store.groups, model.Group{
			ID:         uuid.NewString(),
			StudentID:  studentID,
			VKGroupID:  int64(1000 + i),
			ScreenName: fmt.Sprintf("club%d", 1000+i),
			URL:        fmt.Sprintf("https://vk.com/club%d", 1000+i),
			Status:     model.GroupStatusActive,
			CreatedAt:  base.Add(-time.Duration(i) * time.Hour),
		})
	}
	r := setupTestRouter(t, store, &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/"+studentID+"/groups?page_size=2", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ListGroupsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Groups, 2)
	assert.NotEmpty(t, resp.NextCursor)

	cursor, err := DecodeGroupCursor(resp.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, resp.Groups[1].ID, cursor.ID)
}

func TestRevokeGroup(t *testing.T) {
	store := newFakeStore()
	groupID := uuid.NewString()
	store.groups = append(store.groups, model.Group{ID: groupID})
	r := setupTestRouter(t, store, &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/groups/"+groupID+"/revoke", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{groupID}, store.revoked)
}

func TestRevokeGroupNotFound(t *testing.T) {
	r := setupTestRouter(t, newFakeStore(), &fakePublisher{}, "http://unused")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/groups/"+uuid.NewString()+"/revoke", nil)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupCursorRoundTrip(t *testing.T) {
	orig := &storage.GroupCursor{
		CreatedAt: time.Unix(0, 1756700000000000000),
		ID:        uuid.NewString(),
	}

	encoded := EncodeGroupCursor(orig)
	decoded, err := DecodeGroupCursor(encoded)
	require.NoError(t, err)
	assert.True(t, orig.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, orig.ID, decoded.ID)

	_, err = DecodeGroupCursor("%%%not-base64%%%")
	assert.Error(t, err)

	_, err = DecodeGroupCursor(base64.StdEncoding.EncodeToString([]byte("no-separator")))
	assert.Error(t, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
