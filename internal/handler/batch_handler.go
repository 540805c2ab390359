package handler

import (
	"github.com/y-cruce/postflow/internal/pkg/response"
	"github.com/y-cruce/postflow/internal/service"

	"github.com/gin-gonic/gin"
)

// BatchHandler 批量排期的预演与落库接口
type BatchHandler struct {
	planner *service.PlannerService
}

func NewBatchHandler(planner *service.PlannerService) *BatchHandler {
	return &BatchHandler{planner: planner}
}

// BatchPlanRequest 批量排期参数；preflight 与 commit 共用
type BatchPlanRequest struct {
	AccountID         int64    `json:"account_id" binding:"required"`
	StartDate         string   `json:"start_date" binding:"required"`
	EndDate           string   `json:"end_date" binding:"required"`
	WeeklyPlan        []int    `json:"weekly_plan" binding:"required"`
	Timezone          string   `json:"timezone"`
	RandomStart       int      `json:"random_start"`
	RandomEnd         int      `json:"random_end"`
	MinSpacingMinutes int      `json:"min_spacing_minutes"`
	MediaURLs         []string `json:"media_urls"`
	VideoMode         string   `json:"video_mode" binding:"omitempty,oneof=reel_feed reel_only"`
	OverrideConflicts bool     `json:"override_conflicts"`
	Seed              int64    `json:"seed"`
}

func (r BatchPlanRequest) toPlanRequest() service.PlanRequest {
	return service.PlanRequest{
		AccountID:         r.AccountID,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		WeeklyPlan:        r.WeeklyPlan,
		Timezone:          r.Timezone,
		RandomStartMinute: r.RandomStart,
		RandomEndMinute:   r.RandomEnd,
		MinSpacingMinutes: r.MinSpacingMinutes,
		MediaPool:         r.MediaURLs,
		VideoMode:         r.VideoMode,
		OverrideSpacing:   r.OverrideConflicts,
		Seed:              r.Seed,
	}
}

// Preflight simulates the plan without writing anything.
// POST /api/posts/batch_preflight
func (h *BatchHandler) Preflight(c *gin.Context) {
	var req BatchPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	report, err := h.planner.Preflight(c.Request.Context(), req.toPlanRequest())
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{
		"seed":               report.Seed,
		"slots":              report.Slots,
		"conflicts":          report.Conflicts,
		"insufficient_media": report.InsufficientMedia,
		"media_shortfall":    report.MediaShortfall,
	})
}

// Commit recomputes the plan and inserts posts week by week.
// POST /api/posts/batch/commit
func (h *BatchHandler) Commit(c *gin.Context) {
	var req BatchPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.planner.Commit(c.Request.Context(), req.toPlanRequest())
	if err != nil {
		response.ErrorFromAPIError(c, err)
		return
	}
	response.Success(c, gin.H{
		"ok":           len(result.FailedWeeks) == 0,
		"batch_id":     result.BatchID,
		"seed":         result.Seed,
		"created":      result.Created,
		"created_ids":  result.CreatedIDs,
		"failed_weeks": result.FailedWeeks,
		"conflicts":    result.Report.Conflicts,
	})
}
