package handler

import (
	"strconv"

	"github.com/y-cruce/postflow/internal/pkg/response"
	"github.com/y-cruce/postflow/internal/service"

	"github.com/gin-gonic/gin"
)

// PostHandler 单帖 CRUD 与手动触发发布接口
type PostHandler struct {
	postService *service.PostService
	scheduler   *service.SchedulerService
}

func NewPostHandler(postService *service.PostService, scheduler *service.SchedulerService) *PostHandler {
	return &PostHandler{postService: postService, scheduler: scheduler}
}

// CreatePostRequest 建帖请求体
type CreatePostRequest struct {
	AccountID       int64  `json:"account_id" binding:"required"`
	Platform        string `json:"platform"`
	PostType        string `json:"post_type" binding:"required,oneof=photo reel_feed reel_only carousel"`
	MediaURL        string `json:"media_url"`
	Caption         string `json:"caption"`
	ScheduledAt     string `json:"scheduled_at" binding:"required"`
	AssetID         string `json:"asset_id"`
	ClientRequestID string `json:"client_request_id"`
	OverrideSpacing bool   `json:"override_spacing"`
}

// UpdatePostRequest 改帖请求体；nil 字段表示不改
type UpdatePostRequest struct {
	PostType        *string `json:"post_type" binding:"omitempty,oneof=photo reel_feed reel_only carousel"`
	MediaURL        *string `json:"media_url"`
	Caption         *string `json:"caption"`
	ScheduledAt     *string `json:"scheduled_at"`
	OverrideSpacing bool    `json:"override_spacing"`
}

// Query lists posts in [start, end) ordered by scheduled_at.
// GET /api/posts/query?account_id=&start=&end=
func (h *PostHandler) Query(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Query("account_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "account_id is required")
		return
	}
	start, end := c.Query("start"), c.Query("end")
	if start == "" || end == "" {
		response.BadRequest(c, "start and end are required")
		return
	}

	posts, err := h.postService.Query(c.Request.Context(), accountID, start, end)
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"items": posts})
}

// Create schedules one post. Replays with the same client_request_id return
// the original row unchanged.
// POST /api/posts
func (h *PostHandler) Create(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	post, created, err := h.postService.Create(c.Request.Context(), service.CreatePostInput{
		AccountID:       req.AccountID,
		Platform:        req.Platform,
		PostType:        req.PostType,
		MediaURL:        req.MediaURL,
		Caption:         req.Caption,
		ScheduledAt:     req.ScheduledAt,
		AssetID:         req.AssetID,
		ClientRequestID: req.ClientRequestID,
		OverrideSpacing: req.OverrideSpacing,
	})
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}

	body := gin.H{"id": post.ID, "status": post.Status}
	if created {
		response.Created(c, body)
		return
	}
	response.Success(c, body)
}

// Update edits a future scheduled post.
// PUT /api/posts/:id, PATCH /api/posts/:id
func (h *PostHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid post ID")
		return
	}
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	post, err := h.postService.Update(c.Request.Context(), id, service.UpdatePostInput{
		PostType:        req.PostType,
		MediaURL:        req.MediaURL,
		Caption:         req.Caption,
		ScheduledAt:     req.ScheduledAt,
		OverrideSpacing: req.OverrideSpacing,
	})
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, post)
}

// Delete removes a post; in-flight posts are cancelled instead.
// DELETE /api/posts/:id
func (h *PostHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid post ID")
		return
	}

	if err := h.postService.Delete(c.Request.Context(), id); err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

// BulkDelete removes a set of posts in one transaction.
// POST /api/posts/bulk_delete
func (h *PostHandler) BulkDelete(c *gin.Context) {
	var req struct {
		IDs []int64 `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	deleted, err := h.postService.BulkDelete(c.Request.Context(), req.IDs)
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}

// DeleteAfter removes pending posts scheduled after the given instant.
// POST /api/posts/delete_after
func (h *PostHandler) DeleteAfter(c *gin.Context) {
	var req struct {
		AccountID int64  `json:"account_id" binding:"required"`
		After     string `json:"after" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	deleted, err := h.postService.DeleteAfter(c.Request.Context(), req.AccountID, req.After)
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}

// PublishDue runs one scheduler tick on demand, same lease path as the loop.
// POST /api/posts/publish_due
func (h *PostHandler) PublishDue(c *gin.Context) {
	dispatched, err := h.scheduler.RunDueNow(c.Request.Context())
	if err != nil {
		response.InternalError(c, "Failed to dispatch due posts: "+err.Error())
		return
	}
	response.Success(c, gin.H{"ok": true, "dispatched": dispatched})
}
