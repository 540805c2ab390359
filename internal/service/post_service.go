package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/y-cruce/postflow/internal/config"
)

// CreatePostInput 建帖参数。ScheduledAt 接受带时区的 RFC3339，或不带时区的
// 本地时间（按账号时区解释）。
type CreatePostInput struct {
	AccountID       int64
	Platform        string
	PostType        string
	MediaURL        string
	Caption         string
	ScheduledAt     string
	AssetID         string
	ClientRequestID string
	OverrideSpacing bool
}

// UpdatePostInput 部分更新；nil 字段保持原值。
type UpdatePostInput struct {
	PostType        *string
	MediaURL        *string
	Caption         *string
	ScheduledAt     *string
	OverrideSpacing bool
}

// PostService 单帖的增删改查。改动排期都要过最小间隔与每日上限校验，
// override_spacing 同时豁免两者；发布时限流器仍会兜底。
type PostService struct {
	posts    PostRepository
	accounts AccountRepository
	media    MediaAssetRepository
	notifier StatusNotifier
	clock    Clock

	dailyCap   int
	minSpacing time.Duration
}

func NewPostService(posts PostRepository, accounts AccountRepository, media MediaAssetRepository, notifier StatusNotifier, clock Clock, cfg *config.Config) *PostService {
	return &PostService{
		posts:      posts,
		accounts:   accounts,
		media:      media,
		notifier:   notifier,
		clock:      clock,
		dailyCap:   cfg.Planner.DailyCap,
		minSpacing: cfg.Planner.MinSpacing(),
	}
}

// Create 建帖。client_request_id 命中已有行时原样返回旧帖，created=false，
// 重放方拿到与首次完全一致的应答。
func (s *PostService) Create(ctx context.Context, in CreatePostInput) (*Post, bool, error) {
	account, err := s.accounts.GetByID(ctx, in.AccountID)
	if err != nil {
		return nil, false, err
	}
	if !account.IsActive() {
		return nil, false, ErrAccountFrozen
	}

	platform := in.Platform
	if platform == "" {
		platform = PlatformInstagram
	}
	if platform != PlatformInstagram {
		return nil, false, ErrInvalidPlatform
	}
	if !ValidPostType(in.PostType) {
		return nil, false, ErrInvalidPostType
	}

	mediaURL := strings.TrimSpace(in.MediaURL)
	if in.AssetID != "" {
		asset, err := s.media.GetByID(ctx, in.AssetID)
		if err != nil {
			return nil, false, err
		}
		if asset.AccountID != in.AccountID {
			return nil, false, ErrMediaNotFound
		}
		mediaURL = asset.MediaURL
	}
	if mediaURL == "" {
		return nil, false, ErrMissingMediaURL
	}
	if err := validateMediaForType(in.PostType, mediaURL); err != nil {
		return nil, false, err
	}

	at, err := ParseScheduleTime(in.ScheduledAt, account.Location())
	if err != nil {
		return nil, false, ErrInvalidSchedule
	}

	// 重放要在间隔/上限校验之前短路：首次建出的行就是重放自己的邻居，
	// 先校验会把重放当 SPACING_CONFLICT 拒掉。并发竞态由插入的
	// ON CONFLICT 兜底。
	clientRequestID := strings.TrimSpace(in.ClientRequestID)
	if clientRequestID != "" {
		existing, err := s.posts.GetByClientRequestID(ctx, in.AccountID, clientRequestID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			log.Printf("[Post] idempotent replay: id=%d account_id=%d client_request_id=%s",
				existing.ID, existing.AccountID, clientRequestID)
			return existing, false, nil
		}
	}

	if !in.OverrideSpacing {
		if err := s.checkPlacement(ctx, account, at, 0); err != nil {
			return nil, false, err
		}
	}

	post := &Post{
		AccountID:   in.AccountID,
		Platform:    platform,
		PostType:    in.PostType,
		MediaURL:    mediaURL,
		Caption:     in.Caption,
		ScheduledAt: at,
		Status:      PostStatusScheduled,
	}
	if clientRequestID != "" {
		post.ClientRequestID = &clientRequestID
	}

	created, err := s.posts.Create(ctx, post)
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Printf("[Post] created: id=%d account_id=%d type=%s scheduled_at=%s",
			post.ID, post.AccountID, post.PostType, post.ScheduledAt.Format(time.RFC3339))
		s.notify(post, post.Status, "")
	} else {
		log.Printf("[Post] idempotent replay: id=%d account_id=%d client_request_id=%s",
			post.ID, post.AccountID, in.ClientRequestID)
	}
	return post, created, nil
}

func (s *PostService) Get(ctx context.Context, id int64) (*Post, error) {
	return s.posts.GetByID(ctx, id)
}

// Update 只允许改未来的 scheduled 帖。换素材且请求未带 caption 时，尝试从新
// URL 的文件名提取内嵌标题；提取不到则保留原标题。
func (s *PostService) Update(ctx context.Context, id int64, in UpdatePostInput) (*Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status != PostStatusScheduled || !post.ScheduledAt.After(s.clock.Now()) {
		return nil, ErrPostNotEditable
	}
	account, err := s.accounts.GetByID(ctx, post.AccountID)
	if err != nil {
		return nil, err
	}

	if in.PostType != nil {
		if !ValidPostType(*in.PostType) {
			return nil, ErrInvalidPostType
		}
		post.PostType = *in.PostType
	}
	if in.MediaURL != nil {
		post.MediaURL = strings.TrimSpace(*in.MediaURL)
		if in.Caption == nil {
			if env, envErr := ParseMediaEnvelope(post.MediaURL); envErr == nil {
				if extracted := ExtractCaptionFromURL(env.URLs[0]); extracted != "" {
					post.Caption = extracted
				}
			}
		}
	}
	if in.Caption != nil {
		post.Caption = *in.Caption
	}
	if err := validateMediaForType(post.PostType, post.MediaURL); err != nil {
		return nil, err
	}

	if in.ScheduledAt != nil {
		at, err := ParseScheduleTime(*in.ScheduledAt, account.Location())
		if err != nil {
			return nil, ErrInvalidSchedule
		}
		if !in.OverrideSpacing {
			if err := s.checkPlacement(ctx, account, at, post.ID); err != nil {
				return nil, err
			}
		}
		post.ScheduledAt = at
	}

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	log.Printf("[Post] updated: id=%d account_id=%d scheduled_at=%s",
		post.ID, post.AccountID, post.ScheduledAt.Format(time.RFC3339))
	s.notify(post, post.Status, "")
	return post, nil
}

// Delete 单帖删除。还没进入执行态的直接删行；leased/publishing 改为取消，
// 发布器通过 CAS 落空感知；终态行按历史清理直接删。
func (s *PostService) Delete(ctx context.Context, id int64) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if post.Status == PostStatusLeased || post.Status == PostStatusPublishing {
		cancelled, err := s.posts.Cancel(ctx, id)
		if err != nil {
			return err
		}
		if cancelled {
			log.Printf("[Post] cancelled in flight: id=%d account_id=%d status=%s", id, post.AccountID, post.Status)
			s.notify(post, PostStatusCancelled, "")
			return nil
		}
		// CAS 落空说明并发进了终态，按终态删除处理
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[Post] deleted: id=%d account_id=%d status=%s", id, post.AccountID, post.Status)
	return nil
}

// BulkDelete 一条语句删一批，天然单事务。
func (s *PostService) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted, err := s.posts.BulkDelete(ctx, ids)
	if err != nil {
		return 0, err
	}
	log.Printf("[Post] bulk delete: requested=%d deleted=%d", len(ids), deleted)
	return deleted, nil
}

// DeleteAfter 删除 after 之后还未进入执行态的帖子（scheduled/leased）。
func (s *PostService) DeleteAfter(ctx context.Context, accountID int64, after string) (int64, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	at, err := ParseScheduleTime(after, account.Location())
	if err != nil {
		return 0, ErrInvalidSchedule
	}
	deleted, err := s.posts.DeleteAfter(ctx, accountID, at)
	if err != nil {
		return 0, err
	}
	log.Printf("[Post] delete after: account_id=%d after=%s deleted=%d",
		accountID, at.Format(time.RFC3339), deleted)
	return deleted, nil
}

// Query 返回 [start, end) 内的帖子，按 scheduled_at 升序。
func (s *PostService) Query(ctx context.Context, accountID int64, start, end string) ([]Post, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	loc := account.Location()
	from, err := ParseScheduleTime(start, loc)
	if err != nil {
		return nil, ErrInvalidSchedule
	}
	to, err := ParseScheduleTime(end, loc)
	if err != nil {
		return nil, ErrInvalidSchedule
	}
	return s.posts.QueryRange(ctx, accountID, from, to)
}

// checkPlacement 校验 at 所在本地日的最小间隔与每日上限；excludeID 在移动
// 场景下排除帖子自身。
func (s *PostService) checkPlacement(ctx context.Context, account *Account, at time.Time, excludeID int64) error {
	dayStart, dayEnd := account.DayBounds(at)
	existing, err := s.posts.ListActiveBetween(ctx, account.ID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	var neighbors []time.Time
	active := 0
	for _, p := range existing {
		if p.ID == excludeID {
			continue
		}
		active++
		if diff := at.Sub(p.ScheduledAt); diff > -s.minSpacing && diff < s.minSpacing {
			neighbors = append(neighbors, p.ScheduledAt)
		}
	}
	if len(neighbors) > 0 {
		return NewSpacingConflict(neighbors)
	}
	if active >= s.dailyCap {
		return ErrDailyCapReached
	}
	return nil
}

// validateMediaForType 轮播帖的 media_url 必须是 2-10 条的轮播封装，其余
// 类型必须是单条 URL。
func validateMediaForType(postType, mediaURL string) error {
	envelope, err := ParseMediaEnvelope(mediaURL)
	if err != nil {
		return ErrInvalidEnvelope
	}
	if (postType == PostTypeCarousel) != (envelope.Kind == MediaKindCarousel) {
		return ErrInvalidEnvelope
	}
	return nil
}

func (s *PostService) notify(post *Post, status, code string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyPostStatus(post.ID, post.AccountID, status, code)
}
