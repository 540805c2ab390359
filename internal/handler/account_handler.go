// Package handler translates HTTP requests into service calls.
package handler

import (
	"strconv"

	"github.com/y-cruce/postflow/internal/pkg/response"
	"github.com/y-cruce/postflow/internal/service"

	"github.com/gin-gonic/gin"
)

// AccountHandler 账号目录与冻结控制接口
type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// accountView 账号的对外形态；令牌不出接口
type accountView struct {
	ID             int64  `json:"id"`
	Handle         string `json:"handle"`
	PlatformUserID string `json:"platform_user_id"`
	Timezone       string `json:"timezone"`
	Active         bool   `json:"active"`
	PauseReason    string `json:"pause_reason,omitempty"`
}

func toAccountViews(accounts []service.Account) []accountView {
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			ID:             a.ID,
			Handle:         a.Handle,
			PlatformUserID: a.PlatformUserID,
			Timezone:       a.Timezone,
			Active:         a.Active,
			PauseReason:    a.PauseReason,
		})
	}
	return views
}

// RefreshAccountsRequest 账号发现/刷新请求
type RefreshAccountsRequest struct {
	Token    string `json:"token"`
	Timezone string `json:"timezone"`
}

// List returns all known accounts.
// GET /api/accounts
func (h *AccountHandler) List(c *gin.Context) {
	var active *bool
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(c, "active must be a boolean")
			return
		}
		active = &v
	}

	accounts, err := h.accountService.List(c.Request.Context(), active)
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"items": toAccountViews(accounts)})
}

// Refresh discovers business accounts behind a token and upserts them.
// POST /api/accounts/refresh
func (h *AccountHandler) Refresh(c *gin.Context) {
	var req RefreshAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	upserted, accounts, err := h.accountService.Refresh(c.Request.Context(), req.Token, req.Timezone)
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"items": toAccountViews(accounts), "upserted": upserted})
}

// Freeze deactivates the account and fails its pending posts.
// POST /api/accounts/:id/freeze
func (h *AccountHandler) Freeze(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid account ID")
		return
	}

	failed, err := h.accountService.Freeze(c.Request.Context(), id)
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true, "failed_posts": failed})
}

// Unfreeze reactivates the account. Failed posts stay failed.
// POST /api/accounts/:id/unfreeze
func (h *AccountHandler) Unfreeze(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid account ID")
		return
	}

	if err := h.accountService.Unfreeze(c.Request.Context(), id); err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

// ClearOldPosts removes the account's posts scheduled before now.
// POST /api/accounts/:id/clear_old_posts
func (h *AccountHandler) ClearOldPosts(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid account ID")
		return
	}

	deleted, err := h.accountService.ClearOldPosts(c.Request.Context(), id)
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}
