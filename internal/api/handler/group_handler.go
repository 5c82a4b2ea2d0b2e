package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/glebkhr/vk-group-builder/internal/api/dto"
	"github.com/glebkhr/vk-group-builder/internal/api/storage"
)

// GetStatus handles GET /api/v1/groups/:id/status
// Returns the latest persisted state of a provisioning job.
func (h *GroupHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get group status",
		})
		return
	}

	resp := dto.StatusResponse{
		ID:        job.JobID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Progress.Valid {
		resp.Progress = json.RawMessage(job.Progress.String)
	}
	if job.Result.Valid {
		resp.Result = json.RawMessage(job.Result.String)
	}
	if job.ErrorMessage.Valid {
		resp.Error = job.ErrorMessage.String
	}

	c.JSON(http.StatusOK, resp)
}

// ListStudentGroups handles GET /api/v1/students/:student_id/groups
// Lists a student's provisioned groups with cursor pagination.
func (h *GroupHandler) ListStudentGroups(c *gin.Context) {
	studentID := c.Param("student_id")
	if _, err := uuid.Parse(studentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "student_id must be a valid UUID",
		})
		return
	}

	var req dto.ListGroupsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeGroupCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	groups, err := h.storage.ListStudentGroups(c.Request.Context(), storage.GroupFilter{
		StudentID: studentID,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list groups", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get student groups",
		})
		return
	}

	hasMore := len(groups) > req.PageSize
	if hasMore {
		groups = groups[:req.PageSize]
	}

	groupDTOs := make([]dto.GroupDTO, len(groups))
	for i, group := range groups {
		groupDTOs[i] = dto.GroupDTO{
			ID:         group.ID,
			VKGroupID:  group.VKGroupID,
			ScreenName: group.ScreenName,
			URL:        group.URL,
			Status:     group.Status,
			CreatedAt:  group.CreatedAt.Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		last := groups[len(groups)-1]
		nextCursor = EncodeGroupCursor(&storage.GroupCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListGroupsResponse{
		Groups:     groupDTOs,
		NextCursor: nextCursor,
	})
}

// RevokeGroup handles DELETE /api/v1/groups/:id/revoke
// Retires the stored association between a student and a community.
func (h *GroupHandler) RevokeGroup(c *gin.Context) {
	groupID := c.Param("id")
	if _, err := uuid.Parse(groupID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "group_id must be a valid UUID",
		})
		return
	}

	if err := h.storage.RevokeGroup(c.Request.Context(), groupID); err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Group not found",
			})
			return
		}
		h.logger.Error("Failed to revoke group", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to revoke access",
		})
		return
	}

	h.logger.Info("Group access revoked", slog.String("group_id", groupID))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Access revoked successfully",
	})
}
