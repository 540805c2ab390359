package service

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/y-cruce/postflow/internal/config"
)

// Conflict reasons reported by preflight and commit.
const (
	PlanConflictDailyCap = "daily_cap"
	PlanConflictWindow   = "window_overflow"
)

const minutesPerDay = 24 * 60

// PlanRequest 批量排期参数。RandomStartMinute/RandomEndMinute 为本地零点起的
// 分钟偏移（含端点），end 为 0 时整个窗口取配置默认值。
type PlanRequest struct {
	AccountID         int64
	StartDate         string // YYYY-MM-DD，本地日期
	EndDate           string
	WeeklyPlan        []int  // Mon..Sun 每天条数，不足 7 位按 0 补齐
	Timezone          string // 为空时用账号时区
	RandomStartMinute int
	RandomEndMinute   int
	MinSpacingMinutes int
	MediaPool         []string // 条目内用 | 分隔多个 URL 时生成轮播
	VideoMode         string   // reel_feed | reel_only
	OverrideSpacing   bool
	Seed              int64 // 0 表示由批次号派生
}

// PlanSlot is one placed candidate: a UTC instant plus the media assigned to
// it from the pool.
type PlanSlot struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	LocalDate   string    `json:"local_date"`
	MediaURL    string    `json:"media_url"`
	PostType    string    `json:"post_type"`
	Caption     string    `json:"caption,omitempty"`
}

// PlanConflict is a requested slot that could not be placed.
type PlanConflict struct {
	LocalDate string    `json:"local_date"`
	At        time.Time `json:"at"` // intended UTC instant before repair
	Reason    string    `json:"reason"`
}

// PlanReport preflight 的结果；commit 复用同一份。
type PlanReport struct {
	Seed              int64          `json:"seed"`
	Slots             []PlanSlot     `json:"slots"`
	Conflicts         []PlanConflict `json:"conflicts"`
	InsufficientMedia bool           `json:"insufficient_media"`
	MediaShortfall    int            `json:"media_shortfall,omitempty"`
}

// CommitResult 落库结果。FailedWeeks 列出整块回滚的 ISO 周。
type CommitResult struct {
	BatchID     string      `json:"batch_id"`
	Seed        int64       `json:"seed"`
	Created     int         `json:"created"`
	CreatedIDs  []int64     `json:"created_ids"`
	FailedWeeks []string    `json:"failed_weeks,omitempty"`
	Report      *PlanReport `json:"report"`
}

// PlannerService 按每周计划在本地日窗口内随机撒点：采样整分钟偏移、排序后按
// 最小间隔前向修复，放不下的丢弃并记入报告。preflight 只模拟不写库，commit
// 按 ISO 周分块落库，单块一个事务。
type PlannerService struct {
	posts    PostRepository
	accounts AccountRepository

	dailyCap          int
	minSpacingMinutes int
	defaultStartMin   int
	defaultEndMin     int
}

func NewPlannerService(posts PostRepository, accounts AccountRepository, cfg *config.Config) *PlannerService {
	return &PlannerService{
		posts:             posts,
		accounts:          accounts,
		dailyCap:          cfg.Planner.DailyCap,
		minSpacingMinutes: cfg.Planner.MinSpacingMinutes,
		defaultStartMin:   cfg.Planner.DefaultDayStartHour * 60,
		defaultEndMin:     cfg.Planner.DefaultDayEndHour*60 - 1,
	}
}

// Preflight 模拟一次排期并返回完整报告，不产生任何写入。
func (s *PlannerService) Preflight(ctx context.Context, req PlanRequest) (*PlanReport, error) {
	account, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	seed := s.resolveSeed(req, uuid.NewString())
	return s.plan(ctx, req, account, seed)
}

// Commit 重新计算方案并落库。按 ISO 周切块，每块一个事务；某周失败只回滚该
// 周，其余周照常生效。client_request_id 由批次号加全局序号构成，重放同一批
// 次不会重复建帖。
func (s *PlannerService) Commit(ctx context.Context, req PlanRequest) (*CommitResult, error) {
	account, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, ErrAccountFrozen
	}
	if len(req.MediaPool) == 0 {
		return nil, ErrEmptyMediaPool
	}

	batchID := uuid.NewString()
	seed := s.resolveSeed(req, batchID)
	report, err := s.plan(ctx, req, account, seed)
	if err != nil {
		return nil, err
	}

	result := &CommitResult{BatchID: batchID, Seed: seed, Report: report}

	idx := 0
	for _, chunk := range chunkByISOWeek(report.Slots) {
		posts := make([]*Post, 0, len(chunk.slots))
		for _, slot := range chunk.slots {
			requestID := fmt.Sprintf("batch_%s_%06d", batchID, idx)
			idx++
			posts = append(posts, &Post{
				AccountID:       req.AccountID,
				Platform:        PlatformInstagram,
				PostType:        slot.PostType,
				MediaURL:        slot.MediaURL,
				Caption:         slot.Caption,
				ScheduledAt:     slot.ScheduledAt,
				Status:          PostStatusScheduled,
				ClientRequestID: &requestID,
			})
		}
		created, err := s.posts.CreateBatch(ctx, posts)
		if err != nil {
			log.Printf("[Planner] week chunk insert failed: batch_id=%s week=%s posts=%d err=%v",
				batchID, chunk.week, len(posts), err)
			result.FailedWeeks = append(result.FailedWeeks, chunk.week)
			continue
		}
		result.Created += created
		for _, p := range posts {
			result.CreatedIDs = append(result.CreatedIDs, p.ID)
		}
	}

	log.Printf("[Planner] batch committed: batch_id=%s account_id=%d created=%d conflicts=%d failed_weeks=%d",
		batchID, req.AccountID, result.Created, len(report.Conflicts), len(result.FailedWeeks))
	return result, nil
}

// resolveSeed 请求未带种子时从批次号派生并打印，之后把打印出的种子传回来就
// 能复现同一份排期。
func (s *PlannerService) resolveSeed(req PlanRequest, batchID string) int64 {
	if req.Seed != 0 {
		return req.Seed
	}
	seed := int64(xxhash.Sum64String(batchID))
	log.Printf("[Planner] derived seed: account_id=%d batch_id=%s seed=%d", req.AccountID, batchID, seed)
	return seed
}

func (s *PlannerService) plan(ctx context.Context, req PlanRequest, account *Account, seed int64) (*PlanReport, error) {
	loc := account.Location()
	if req.Timezone != "" {
		parsed, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return nil, ErrInvalidTimezone
		}
		loc = parsed
	}
	startDay, err := time.ParseInLocation("2006-01-02", req.StartDate, loc)
	if err != nil {
		return nil, ErrInvalidDate
	}
	endDay, err := time.ParseInLocation("2006-01-02", req.EndDate, loc)
	if err != nil {
		return nil, ErrInvalidDate
	}
	if endDay.Before(startDay) {
		return nil, ErrInvalidDateRange
	}

	startMin, endMin := req.RandomStartMinute, req.RandomEndMinute
	if endMin == 0 {
		startMin, endMin = s.defaultStartMin, s.defaultEndMin
	}
	if startMin < 0 || endMin < startMin || endMin >= minutesPerDay {
		return nil, ErrInvalidPlanWindow
	}
	spacing := req.MinSpacingMinutes
	if spacing <= 0 {
		spacing = s.minSpacingMinutes
	}

	pool, err := buildPool(req.MediaPool, req.VideoMode)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	report := &PlanReport{Seed: seed}
	var placedAll []placedSlot

	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		requested := weeklyCount(req.WeeklyPlan, day.Weekday())
		if requested > s.dailyCap {
			requested = s.dailyCap
		}
		if requested <= 0 {
			continue
		}

		// 采样在名额裁剪之前做，保证同一种子下不受库里已有数据影响。
		sampled := sampleOffsets(rng, requested, startMin, endMin)

		dayStartUTC := day.UTC()
		dayEndUTC := day.AddDate(0, 0, 1).UTC()
		existing, err := s.posts.ListActiveBetween(ctx, req.AccountID, dayStartUTC, dayEndUTC)
		if err != nil {
			return nil, err
		}

		localDate := day.Format("2006-01-02")

		room := s.dailyCap - len(existing)
		if room < 0 {
			room = 0
		}
		if len(sampled) > room {
			for _, minute := range sampled[room:] {
				report.Conflicts = append(report.Conflicts, PlanConflict{
					LocalDate: localDate,
					At:        day.Add(time.Duration(minute) * time.Minute).UTC(),
					Reason:    PlanConflictDailyCap,
				})
			}
			sampled = sampled[:room]
		}
		if len(sampled) == 0 {
			continue
		}

		var fixed []int
		if !req.OverrideSpacing {
			for _, p := range existing {
				fixed = append(fixed, int(p.ScheduledAt.Sub(dayStartUTC).Minutes()))
			}
		}

		placed, dropped := placeWithSpacing(sampled, fixed, spacing, endMin)
		for _, minute := range dropped {
			report.Conflicts = append(report.Conflicts, PlanConflict{
				LocalDate: localDate,
				At:        day.Add(time.Duration(minute) * time.Minute).UTC(),
				Reason:    PlanConflictWindow,
			})
		}
		for _, minute := range placed {
			placedAll = append(placedAll, placedSlot{
				localDate: localDate,
				at:        day.Add(time.Duration(minute) * time.Minute).UTC(),
			})
		}
	}

	for i, slot := range placedAll {
		if i >= len(pool) {
			report.InsufficientMedia = true
			report.MediaShortfall = len(placedAll) - i
			break
		}
		item := pool[i]
		report.Slots = append(report.Slots, PlanSlot{
			ScheduledAt: slot.at,
			LocalDate:   slot.localDate,
			MediaURL:    item.mediaURL,
			PostType:    item.postType,
			Caption:     item.caption,
		})
	}
	return report, nil
}

type placedSlot struct {
	localDate string
	at        time.Time
}

// sampleOffsets 在 [startMin, endMin] 闭区间内均匀采样 count 个互不相同的整
// 分钟偏移，升序返回。区间不够大时退化为全量。
func sampleOffsets(rng *rand.Rand, count, startMin, endMin int) []int {
	span := endMin - startMin + 1
	if count > span {
		count = span
	}
	perm := rng.Perm(span)
	offsets := make([]int, count)
	for i := 0; i < count; i++ {
		offsets[i] = startMin + perm[i]
	}
	sort.Ints(offsets)
	return offsets
}

// placeWithSpacing 前向修复：升序逐个放置，与上一占用点不足最小间隔就向后
// 推，途中撞上已有帖子（fixed，不可移动）则跳到其后，被推出窗口末端的丢弃。
func placeWithSpacing(sampled, fixed []int, spacing, windowEnd int) (placed, dropped []int) {
	sort.Ints(sampled)
	sort.Ints(fixed)

	last := -2 * spacing // 哨兵，首个点不需要移动
	fi := 0
	for _, minute := range sampled {
		at := minute
		if at < last+spacing {
			at = last + spacing
		}
		for fi < len(fixed) && fixed[fi]-at < spacing {
			if fixed[fi] > last {
				last = fixed[fi]
			}
			fi++
			if at < last+spacing {
				at = last + spacing
			}
		}
		if at > windowEnd {
			dropped = append(dropped, minute)
			continue
		}
		placed = append(placed, at)
		last = at
	}
	return placed, dropped
}

// weeklyCount 周计划按 Mon..Sun 存放；time.Weekday 以周日为 0，这里换算。
func weeklyCount(plan []int, wd time.Weekday) int {
	idx := (int(wd) + 6) % 7
	if idx >= len(plan) || plan[idx] < 0 {
		return 0
	}
	return plan[idx]
}

type poolItem struct {
	mediaURL string
	postType string
	caption  string
}

// buildPool 预解析素材池：| 分隔的多 URL 条目转轮播封装，视频按 video_mode
// 定类型，标题从首个 URL 的文件名提取。
func buildPool(mediaPool []string, videoMode string) ([]poolItem, error) {
	videoType := PostTypeReelFeed
	if videoMode == PostTypeReelOnly {
		videoType = PostTypeReelOnly
	}
	items := make([]poolItem, 0, len(mediaPool))
	for _, raw := range mediaPool {
		urls := splitMediaItem(raw)
		if len(urls) == 0 {
			continue
		}
		item := poolItem{caption: ExtractCaptionFromURL(urls[0])}
		switch {
		case len(urls) > 1:
			envelope, err := BuildCarouselEnvelope(urls)
			if err != nil {
				return nil, ErrInvalidEnvelope
			}
			item.mediaURL = envelope
			item.postType = PostTypeCarousel
		case IsVideoURL(urls[0]):
			item.mediaURL = urls[0]
			item.postType = videoType
		default:
			item.mediaURL = urls[0]
			item.postType = PostTypePhoto
		}
		items = append(items, item)
	}
	return items, nil
}

func splitMediaItem(raw string) []string {
	parts := strings.Split(raw, "|")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

type weekChunk struct {
	week  string
	slots []PlanSlot
}

// chunkByISOWeek 保序切块；slots 已按时间升序。
func chunkByISOWeek(slots []PlanSlot) []weekChunk {
	var chunks []weekChunk
	for _, slot := range slots {
		year, week := slot.ScheduledAt.ISOWeek()
		label := fmt.Sprintf("%d-W%02d", year, week)
		if len(chunks) == 0 || chunks[len(chunks)-1].week != label {
			chunks = append(chunks, weekChunk{week: label})
		}
		chunks[len(chunks)-1].slots = append(chunks[len(chunks)-1].slots, slot)
	}
	return chunks
}
