package service

import (
	"context"
	"log"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/y-cruce/postflow/internal/config"
	"github.com/y-cruce/postflow/internal/pkg/instagram"
)

// ReserveState 预约结果：允许、本地日上限已满、平台滚动配额已满
type ReserveState int

const (
	ReserveOK ReserveState = iota
	ReserveLocalCap
	ReserveRemoteQuota
)

// Reservation is the governor's verdict for one publish attempt.
// RetryAfter is only meaningful for ReserveRemoteQuota.
type Reservation struct {
	State      ReserveState
	RetryAfter time.Duration
}

const (
	defaultQuotaRetryAfter = time.Hour
	minQuotaRetryAfter     = 15 * time.Minute
	maxQuotaRetryAfter     = 24 * time.Hour
)

// RateGovernor 统一把关发布预算：本地 15/日上限 + 平台滚动 24 小时配额
type RateGovernor struct {
	posts  PostRepository
	quota  QuotaCounterCache
	client PlatformAPI
	clock  Clock

	dailyCap    int
	counterTTL  time.Duration
	snapshots   *gocache.Cache
	refreshOnce singleflight.Group
}

func NewRateGovernor(posts PostRepository, quota QuotaCounterCache, client PlatformAPI, clock Clock, cfg *config.Config) *RateGovernor {
	remoteTTL := cfg.RateLimit.RemoteQuotaTTL()
	return &RateGovernor{
		posts:      posts,
		quota:      quota,
		client:     client,
		clock:      clock,
		dailyCap:   cfg.Planner.DailyCap,
		counterTTL: time.Duration(cfg.RateLimit.CounterSlackHours) * time.Hour,
		snapshots:  gocache.New(remoteTTL, 2*remoteTTL),
	}
}

// Reserve 发布前校验两项预算；不落库、不持久化，仅在发布瞬间咨询
func (g *RateGovernor) Reserve(ctx context.Context, account *Account, at time.Time) (*Reservation, error) {
	localDate := account.LocalDate(at)

	published, err := g.quota.GetDay(ctx, account.ID, localDate)
	if err != nil {
		// Degraded path via the store. That count includes the post being
		// published right now, so the comparison is strict-greater.
		log.Printf("[RateLimit] day counter unavailable, using store count: account=%d err=%v", account.ID, err)
		dayStart, dayEnd := account.DayBounds(at)
		n, cerr := g.posts.CountActiveBetween(ctx, account.ID, dayStart, dayEnd)
		if cerr != nil {
			return nil, cerr
		}
		if n > g.dailyCap {
			return &Reservation{State: ReserveLocalCap}, nil
		}
	} else if published >= int64(g.dailyCap) {
		return &Reservation{State: ReserveLocalCap}, nil
	}

	snap := g.snapshot(ctx, account)
	if snap != nil && snap.Used >= snap.Limit {
		return &Reservation{State: ReserveRemoteQuota, RetryAfter: g.retryAfter(snap)}, nil
	}
	return &Reservation{State: ReserveOK}, nil
}

// ConfirmPublish 发布成功后累加当日计数；计数器带本地日结束 + 冗余时长的过期
func (g *RateGovernor) ConfirmPublish(ctx context.Context, account *Account, at time.Time) {
	localDate := account.LocalDate(at)
	_, dayEnd := account.DayBounds(at)
	ttl := dayEnd.Sub(at) + g.counterTTL
	if _, err := g.quota.IncrDay(ctx, account.ID, localDate, ttl); err != nil {
		log.Printf("[RateLimit] day counter increment failed: account=%d date=%s err=%v", account.ID, localDate, err)
	}

	if v, ok := g.snapshots.Get(snapshotKey(account.ID)); ok {
		if snap, ok := v.(*instagram.PublishingLimit); ok {
			snap.Used++
		}
	}
}

// HandleQuotaError 平台返回配额类错误时强制刷新快照并给出重试间隔
func (g *RateGovernor) HandleQuotaError(ctx context.Context, account *Account) time.Duration {
	g.snapshots.Delete(snapshotKey(account.ID))
	return g.retryAfter(g.snapshot(ctx, account))
}

// snapshot returns the cached publishing limit, refreshing through a
// singleflight so concurrent workers for one account share a single
// Graph API call. A failed refresh yields nil: the publish call itself
// is the backstop then.
func (g *RateGovernor) snapshot(ctx context.Context, account *Account) *instagram.PublishingLimit {
	key := snapshotKey(account.ID)
	if v, ok := g.snapshots.Get(key); ok {
		if snap, ok := v.(*instagram.PublishingLimit); ok {
			return snap
		}
	}
	v, err, _ := g.refreshOnce.Do(key, func() (any, error) {
		snap, err := g.client.GetPublishingLimit(ctx, account.Credentials())
		if err != nil {
			return nil, err
		}
		g.snapshots.Set(key, snap, gocache.DefaultExpiration)
		return snap, nil
	})
	if err != nil {
		log.Printf("[RateLimit] publishing limit refresh failed: account=%d err=%v", account.ID, err)
		return nil
	}
	return v.(*instagram.PublishingLimit)
}

// retryAfter 估算下一个配额空位：滚动窗口均摊 window/limit，限定在 [15m, 24h]
func (g *RateGovernor) retryAfter(snap *instagram.PublishingLimit) time.Duration {
	if snap == nil || snap.Limit <= 0 {
		return defaultQuotaRetryAfter
	}
	window := snap.WindowResetsAt.Sub(g.clock.Now())
	if window <= 0 {
		return minQuotaRetryAfter
	}
	d := window / time.Duration(snap.Limit)
	if d < minQuotaRetryAfter {
		return minQuotaRetryAfter
	}
	if d > maxQuotaRetryAfter {
		return maxQuotaRetryAfter
	}
	return d
}

func snapshotKey(accountID int64) string {
	return strconv.FormatInt(accountID, 10)
}
