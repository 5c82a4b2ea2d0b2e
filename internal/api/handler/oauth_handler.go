package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/glebkhr/vk-group-builder/internal/api/dto"
	"github.com/glebkhr/vk-group-builder/internal/api/model"
	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

// InitOAuth handles POST /api/v1/oauth/init
// Validates the intake form, stashes it under a fresh state parameter and
// returns the provider authorization URL.
func (h *GroupHandler) InitOAuth(c *gin.Context) {
	var req dto.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	profile := profileFromRequest(&req)
	if err := profile.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	state, err := newState()
	if err != nil {
		h.logger.Error("Failed to generate state", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to initiate OAuth",
		})
		return
	}

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		h.logger.Error("Failed to marshal profile", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to initiate OAuth",
		})
		return
	}

	if err := h.storage.SaveOAuthState(c.Request.Context(), state, string(profileJSON), h.stateTTL); err != nil {
		h.logger.Error("Failed to save oauth state", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to initiate OAuth",
		})
		return
	}

	authURL := h.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("v", h.apiVersion),
	)

	h.logger.Info("OAuth initiated",
		slog.String("state", state),
		slog.String("city", profile.City),
	)

	c.JSON(http.StatusOK, dto.OAuthInitResponse{
		AuthURL: authURL,
		State:   state,
	})
}

// OAuthCallback handles GET /api/v1/oauth/callback
// Exchanges the authorization code, stores the student with the encrypted
// token and enqueues the group-creation job.
func (h *GroupHandler) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing code or state parameter",
		})
		return
	}

	profileJSON, err := h.storage.ConsumeOAuthState(c.Request.Context(), state)
	if err != nil {
		h.logger.Warn("Unknown or expired oauth state", slog.String("state", state))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid or expired state",
		})
		return
	}

	var profile domain.StudentProfile
	if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
		h.logger.Error("Failed to unmarshal stored profile", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "OAuth callback failed",
		})
		return
	}

	token, err := h.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("Token exchange failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to exchange code for token",
		})
		return
	}

	encrypted, err := h.box.Encrypt(token.AccessToken)
	if err != nil {
		h.logger.Error("Failed to encrypt token", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "OAuth callback failed",
		})
		return
	}

	student := &model.Student{
		ID:       uuid.NewString(),
		Name:     profile.Name,
		City:     profile.City,
		Area:     profile.Area,
		Phone:    profile.Phone,
		VKUserID: extractUserID(token),
		VKToken:  encrypted,
		Profile:  profileJSON,
	}
	if err := h.storage.CreateStudent(c.Request.Context(), student); err != nil {
		h.logger.Error("Failed to create student", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "OAuth callback failed",
		})
		return
	}

	jobID, err := h.enqueueGroupCreation(c, student.ID, &profile)
	if err != nil {
		h.logger.Error("Failed to enqueue group creation", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start group creation",
		})
		return
	}

	h.logger.Info("OAuth completed",
		slog.String("student_id", student.ID),
		slog.Int64("vk_user_id", student.VKUserID),
		slog.String("job_id", jobID),
	)

	c.JSON(http.StatusOK, dto.OAuthCallbackResponse{
		Success:   true,
		StudentID: student.ID,
		JobID:     jobID,
		Message:   "Group creation started",
	})
}

// enqueueGroupCreation records the job row and publishes its message.
func (h *GroupHandler) enqueueGroupCreation(c *gin.Context, studentID string, profile *domain.StudentProfile) (string, error) {
	payload, err := json.Marshal(domain.GroupCreationPayload{
		StudentID: studentID,
		Profile:   *profile,
	})
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	ctx := c.Request.Context()
	if err := h.storage.CreateJob(ctx, jobID, domain.JobTypeGroupCreation, domain.JobStatusWaiting, string(payload), h.jobMaxRetries); err != nil {
		return "", err
	}

	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		return "", err
	}
	if err := h.publisher.PublishWithRetry(ctx, h.groupRoutingKey, body); err != nil {
		return "", err
	}

	return jobID, nil
}

func profileFromRequest(req *dto.ProfileRequest) *domain.StudentProfile {
	pricing := make([]domain.PricingItem, len(req.Pricing))
	for i, item := range req.Pricing {
		pricing[i] = domain.PricingItem{Title: item.Title, Price: item.Price}
	}
	return &domain.StudentProfile{
		Name:        req.Name,
		City:        req.City,
		Area:        req.Area,
		Phone:       req.Phone,
		Telegram:    req.Telegram,
		Techniques:  req.Techniques,
		Pricing:     pricing,
		IsHomeVisit: req.IsHomeVisit,
		Address:     req.Address,
	}
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// extractUserID reads the provider's user_id extra from the token response.
func extractUserID(token *oauth2.Token) int64 {
	switch v := token.Extra("user_id").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
