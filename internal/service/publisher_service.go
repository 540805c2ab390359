package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"github.com/y-cruce/postflow/internal/config"
	infraerrors "github.com/y-cruce/postflow/internal/pkg/errors"
	"github.com/y-cruce/postflow/internal/pkg/instagram"
)

const maxRetryDelay = time.Hour

// PlatformAPI is the slice of the graph client the publishing side needs.
// Declared here so tests can substitute a fake platform.
type PlatformAPI interface {
	CreateImageContainer(ctx context.Context, cred instagram.Credentials, imageURL, caption string) (string, error)
	CreateVideoContainer(ctx context.Context, cred instagram.Credentials, videoURL, caption string, shareToFeed bool) (string, error)
	CreateCarouselItem(ctx context.Context, cred instagram.Credentials, itemURL string, isVideo bool) (string, error)
	CreateCarouselContainer(ctx context.Context, cred instagram.Credentials, childIDs []string, caption string) (string, error)
	GetContainerStatus(ctx context.Context, cred instagram.Credentials, containerID string) (instagram.ContainerStatus, error)
	PublishContainer(ctx context.Context, cred instagram.Credentials, containerID string) (string, error)
	GetPublishingLimit(ctx context.Context, cred instagram.Credentials) (*instagram.PublishingLimit, error)
	GetAccountInfo(ctx context.Context, accessToken string) (*instagram.AccountInfo, error)
	DiscoverBusinessAccounts(ctx context.Context, accessToken string) ([]instagram.AccountInfo, error)
}

// containerFailure 容器在平台侧进入 ERROR/EXPIRED 终态
type containerFailure struct {
	containerID string
	status      instagram.ContainerStatus
}

func (e *containerFailure) Error() string {
	return fmt.Sprintf("container %s ended %s: %s", e.containerID, e.status.Code, e.status.Detail)
}

// retryable: an expired container just means we were slow to publish it;
// a fresh one can be staged. ERROR is a verdict about the media itself.
func (e *containerFailure) retryable() bool {
	return e.status.Code == instagram.ContainerExpired
}

// accountLocks 按账号串行化发布；引用计数归零即回收条目
type accountLocks struct {
	mu      sync.Mutex
	entries map[int64]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{entries: make(map[int64]*accountLock)}
}

func (l *accountLocks) lock(id int64) *accountLock {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &accountLock{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return entry
}

func (l *accountLocks) unlock(id int64, entry *accountLock) {
	entry.mu.Unlock()

	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, id)
	}
	l.mu.Unlock()
}

// PublisherService 驱动单条帖子的发布状态机：
// leased → publishing →（建容器、轮询、发布)→ posted，
// 失败按可重试性退回 scheduled 或落入 failed。
type PublisherService struct {
	posts        PostRepository
	accounts     AccountRepository
	accountCache AccountSnapshotCache
	governor     *RateGovernor
	client       PlatformAPI
	notifier     StatusNotifier
	clock        Clock

	maxRetries     int
	retryBaseDelay time.Duration
	pollInitial    time.Duration
	pollMax        time.Duration
	pollTotal      time.Duration

	locks *accountLocks
}

func NewPublisherService(
	posts PostRepository,
	accounts AccountRepository,
	accountCache AccountSnapshotCache,
	governor *RateGovernor,
	client PlatformAPI,
	notifier StatusNotifier,
	clock Clock,
	cfg *config.Config,
) *PublisherService {
	return &PublisherService{
		posts:          posts,
		accounts:       accounts,
		accountCache:   accountCache,
		governor:       governor,
		client:         client,
		notifier:       notifier,
		clock:          clock,
		maxRetries:     cfg.Scheduler.MaxRetries,
		retryBaseDelay: cfg.Scheduler.RetryBaseDelay(),
		pollInitial:    cfg.Scheduler.PollInitial(),
		pollMax:        cfg.Scheduler.PollMax(),
		pollTotal:      cfg.Scheduler.PollTotal(),
		locks:          newAccountLocks(),
	}
}

// PublishLeased 处理一条已租约帖子。任何取消都通过状态 CAS 失败被观察到。
func (s *PublisherService) PublishLeased(ctx context.Context, postID int64) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		log.Printf("[Publisher] load failed: post=%d err=%v", postID, err)
		return
	}
	if post.Status != PostStatusLeased {
		return
	}

	lock := s.locks.lock(post.AccountID)
	defer s.locks.unlock(post.AccountID, lock)

	// Reload under the account lock; a cancel or the watchdog may have
	// touched the row while this job sat in the queue.
	post, err = s.posts.GetByID(ctx, postID)
	if err != nil {
		log.Printf("[Publisher] reload failed: post=%d err=%v", postID, err)
		return
	}
	if post.Status != PostStatusLeased {
		return
	}

	account, err := s.account(ctx, post.AccountID)
	if err != nil {
		// leave the lease; the watchdog reschedules it
		log.Printf("[Publisher] account load failed: post=%d account=%d err=%v", post.ID, post.AccountID, err)
		return
	}

	if !account.IsActive() {
		s.failFrozen(ctx, post, account)
		return
	}

	if post.RetryCount > s.maxRetries {
		s.fail(ctx, account, post, ErrCodeRetriesExceeded, post.PublishResult)
		return
	}

	now := s.clock.Now()
	reservation, err := s.governor.Reserve(ctx, account, now)
	if err != nil {
		log.Printf("[Publisher] reserve failed: post=%d err=%v", post.ID, err)
		return
	}
	switch reservation.State {
	case ReserveLocalCap:
		_, dayEnd := account.DayBounds(now)
		s.deferPublish(ctx, post, dayEnd, ErrCodeQuotaDeferred)
		return
	case ReserveRemoteQuota:
		s.deferPublish(ctx, post, now.Add(reservation.RetryAfter), ErrCodeQuotaDeferred)
		return
	}

	ok, err := s.posts.MarkPublishing(ctx, post.ID)
	if err != nil {
		log.Printf("[Publisher] mark publishing failed: post=%d err=%v", post.ID, err)
		return
	}
	if !ok {
		log.Printf("[Publisher] lease lost before publish: post=%d", post.ID)
		return
	}
	post.Status = PostStatusPublishing
	s.notify(post, PostStatusPublishing, "")

	mediaID, result, err := s.runPublish(ctx, account, post)
	if err != nil {
		s.handleFailure(ctx, account, post, result, err)
		return
	}

	publishedAt := s.clock.Now()
	result, _ = sjson.Set(result, "platform_media_id", mediaID)
	result, _ = sjson.Set(result, "published_at", publishedAt.UTC().Format(time.RFC3339))
	ok, err = s.posts.MarkPosted(ctx, post.ID, result)
	if err != nil {
		log.Printf("[Publisher] mark posted failed: post=%d media=%s err=%v", post.ID, mediaID, err)
		return
	}
	if !ok {
		// Cancelled after the platform accepted the publish. The cancel
		// keeps the stored status; record what actually happened.
		log.Printf("[Publisher] published but row cancelled: post=%d media=%s", post.ID, mediaID)
		if perr := s.posts.SetPublishResult(ctx, post.ID, result); perr != nil {
			log.Printf("[Publisher] result persist failed: post=%d err=%v", post.ID, perr)
		}
		return
	}

	s.governor.ConfirmPublish(ctx, account, publishedAt)
	if err := s.accounts.RecordPublishSuccess(ctx, post.AccountID); err != nil {
		log.Printf("[Publisher] streak reset failed: account=%d err=%v", post.AccountID, err)
	}
	s.accountCache.Del(post.AccountID)
	s.notify(post, PostStatusPosted, "")
	log.Printf("[Publisher] published: post=%d account=%d media=%s", post.ID, post.AccountID, mediaID)
}

// runPublish 建容器（或续用已存的 container_id）、等就绪、调发布
func (s *PublisherService) runPublish(ctx context.Context, account *Account, post *Post) (string, string, error) {
	cred := account.Credentials()
	result := post.PublishResult
	if result == "" {
		result = "{}"
	}

	containerID := post.ContainerID()
	if containerID == "" {
		var err error
		containerID, result, err = s.createContainer(ctx, cred, post, result)
		if err != nil {
			return "", result, err
		}
		result, _ = sjson.Set(result, "container_id", containerID)
		if perr := s.posts.SetPublishResult(ctx, post.ID, result); perr != nil {
			log.Printf("[Publisher] container id persist failed: post=%d err=%v", post.ID, perr)
		}
	} else {
		log.Printf("[Publisher] resuming from container: post=%d container=%s", post.ID, containerID)
	}

	if err := s.waitContainer(ctx, cred, post.ID, containerID); err != nil {
		return "", result, err
	}

	mediaID, err := s.client.PublishContainer(ctx, cred, containerID)
	if err != nil {
		return "", result, err
	}
	return mediaID, result, nil
}

func (s *PublisherService) createContainer(ctx context.Context, cred instagram.Credentials, post *Post, result string) (string, string, error) {
	switch post.PostType {
	case PostTypePhoto:
		id, err := s.client.CreateImageContainer(ctx, cred, post.MediaURL, post.Caption)
		return id, result, err

	case PostTypeReelFeed, PostTypeReelOnly:
		id, err := s.client.CreateVideoContainer(ctx, cred, post.MediaURL, post.Caption, post.PostType == PostTypeReelFeed)
		return id, result, err

	case PostTypeCarousel:
		envelope, err := ParseMediaEnvelope(post.MediaURL)
		if err != nil {
			return "", result, err
		}
		childIDs := make([]string, 0, len(envelope.URLs))
		for _, itemURL := range envelope.URLs {
			isVideo := IsVideoURL(itemURL)
			childID, err := s.client.CreateCarouselItem(ctx, cred, itemURL, isVideo)
			if err != nil {
				return "", result, err
			}
			// video children must finish processing before the parent exists
			if isVideo {
				if err := s.waitContainer(ctx, cred, post.ID, childID); err != nil {
					return "", result, err
				}
			}
			childIDs = append(childIDs, childID)
		}
		result, _ = sjson.Set(result, "children", childIDs)
		id, err := s.client.CreateCarouselContainer(ctx, cred, childIDs, post.Caption)
		return id, result, err

	default:
		return "", result, ErrInvalidPostType
	}
}

// waitContainer 轮询容器状态：2s 起步、倍增、封顶，总时长受 pollTotal 约束。
// 每轮刷新心跳，长视频处理不会被看门狗误回收。
func (s *PublisherService) waitContainer(ctx context.Context, cred instagram.Credentials, postID int64, containerID string) error {
	deadline := s.clock.Now().Add(s.pollTotal)
	delay := s.pollInitial
	for {
		status, err := s.client.GetContainerStatus(ctx, cred, containerID)
		if err != nil {
			return err
		}
		switch status.Code {
		case instagram.ContainerFinished, instagram.ContainerPublished:
			return nil
		case instagram.ContainerError, instagram.ContainerExpired:
			return &containerFailure{containerID: containerID, status: status}
		}

		if s.clock.Now().Add(delay).After(deadline) {
			return fmt.Errorf("container %s still %s after %s", containerID, status.Code, s.pollTotal)
		}
		if err := s.posts.Heartbeat(ctx, postID); err != nil {
			log.Printf("[Publisher] heartbeat failed: post=%d err=%v", postID, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.pollMax {
			delay = s.pollMax
		}
	}
}

func (s *PublisherService) handleFailure(ctx context.Context, account *Account, post *Post, result string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// shutdown or lease cutoff: leave the row, the watchdog reclaims it
		log.Printf("[Publisher] publish interrupted: post=%d err=%v", post.ID, err)
		return
	}

	if result == "" {
		result = "{}"
	}
	result, _ = sjson.Set(result, "last_error", err.Error())

	var cf *containerFailure
	if errors.As(err, &cf) {
		// the staged container is dead either way; retries start fresh
		result, _ = sjson.Delete(result, "container_id")
	}

	code := publishErrorCode(err)
	switch {
	case instagram.IsRateLimit(err):
		retryAfter := s.governor.HandleQuotaError(ctx, account)
		if perr := s.posts.SetPublishResult(ctx, post.ID, result); perr != nil {
			log.Printf("[Publisher] result persist failed: post=%d err=%v", post.ID, perr)
		}
		s.deferPublish(ctx, post, s.clock.Now().Add(retryAfter), ErrCodeQuotaDeferred)

	case instagram.IsAuthError(err):
		s.fail(ctx, account, post, ErrCodeTokenInvalid, result)

	case s.isRetryable(err, cf) && post.RetryCount < s.maxRetries:
		delay := s.backoffDelay(post.RetryCount)
		at := s.clock.Now().Add(delay)
		if at.Before(post.ScheduledAt) {
			at = post.ScheduledAt
		}
		if perr := s.posts.SetPublishResult(ctx, post.ID, result); perr != nil {
			log.Printf("[Publisher] result persist failed: post=%d err=%v", post.ID, perr)
		}
		s.deferPublish(ctx, post, at, code)

	case s.isRetryable(err, cf):
		result, _ = sjson.Set(result, "retries_exceeded", true)
		s.fail(ctx, account, post, code, result)

	default:
		s.fail(ctx, account, post, code, result)
	}
}

func (s *PublisherService) isRetryable(err error, cf *containerFailure) bool {
	if cf != nil {
		return cf.retryable()
	}
	var domainErr *infraerrors.APIError
	if errors.As(err, &domainErr) {
		// bad stored data (envelope, post type) never heals by retrying
		return false
	}
	return instagram.IsRetryable(err)
}

// deferPublish 释放租约退回 scheduled；scheduled_at 单调不回退，且不早于
// 该账号最近一次 posted 的排期，保证账号内发布顺序不被重试打乱
func (s *PublisherService) deferPublish(ctx context.Context, post *Post, at time.Time, code string) {
	if at.Before(post.ScheduledAt) {
		at = post.ScheduledAt
	}
	if last, err := s.posts.LastPostedScheduledAt(ctx, post.AccountID); err != nil {
		log.Printf("[Publisher] ordering check failed: post=%d err=%v", post.ID, err)
	} else if last != nil && at.Before(*last) {
		at = *last
	}

	ok, err := s.posts.Reschedule(ctx, post.ID, at, post.RetryCount+1, code)
	if err != nil {
		log.Printf("[Publisher] reschedule failed: post=%d err=%v", post.ID, err)
		return
	}
	if !ok {
		log.Printf("[Publisher] defer skipped, lease lost: post=%d", post.ID)
		return
	}
	s.notify(post, PostStatusScheduled, code)
	log.Printf("[Publisher] deferred: post=%d account=%d until=%s code=%s retry=%d",
		post.ID, post.AccountID, at.UTC().Format(time.RFC3339), code, post.RetryCount+1)
}

func (s *PublisherService) fail(ctx context.Context, account *Account, post *Post, code, result string) {
	ok, err := s.posts.MarkFailed(ctx, post.ID, code, result)
	if err != nil {
		log.Printf("[Publisher] mark failed errored: post=%d err=%v", post.ID, err)
		return
	}
	if !ok {
		log.Printf("[Publisher] fail skipped, row already terminal: post=%d", post.ID)
		return
	}
	s.notify(post, PostStatusFailed, code)
	log.Printf("[Publisher] publish failed: post=%d account=%d code=%s retry=%d", post.ID, post.AccountID, code, post.RetryCount)
	s.recordFailure(ctx, account, post)
}

func (s *PublisherService) failFrozen(ctx context.Context, post *Post, account *Account) {
	code := ErrCodeAccountFrozen
	if account.PauseReason == PauseReasonAutoPaused || account.PauseReason == PauseReasonTokenInvalid {
		code = ErrCodeAccountPaused
	}
	ok, err := s.posts.MarkFailed(ctx, post.ID, code, "")
	if err != nil {
		log.Printf("[Publisher] freeze fail errored: post=%d err=%v", post.ID, err)
		return
	}
	if ok {
		s.notify(post, PostStatusFailed, code)
		log.Printf("[Publisher] inactive account, post failed: post=%d account=%d code=%s", post.ID, account.ID, code)
	}
}

// recordFailure 维护连续失败计数；只有重试耗尽级别的失败才计入，
// 达到阈值后自动冻结账号并让剩余帖子立即显示失败
func (s *PublisherService) recordFailure(ctx context.Context, account *Account, post *Post) {
	if post.RetryCount < autoPauseMinRetries {
		return
	}
	streak, err := s.accounts.RecordPublishFailure(ctx, post.AccountID)
	if err != nil {
		log.Printf("[Publisher] streak bump failed: account=%d err=%v", post.AccountID, err)
		return
	}
	s.accountCache.Del(post.AccountID)
	if streak < autoPauseThreshold || !account.Active {
		return
	}

	log.Printf("[Publisher] auto-pausing account: account=%d streak=%d", account.ID, streak)
	if err := s.accounts.SetActive(ctx, account.ID, false, PauseReasonAutoPaused); err != nil {
		log.Printf("[Publisher] auto-pause failed: account=%d err=%v", account.ID, err)
		return
	}
	s.accountCache.Del(account.ID)
	n, err := s.posts.FailAllActive(ctx, account.ID, ErrCodeAccountPaused)
	if err != nil {
		log.Printf("[Publisher] pending fail sweep errored: account=%d err=%v", account.ID, err)
		return
	}
	log.Printf("[Publisher] auto-pause swept pending posts: account=%d failed=%d", account.ID, n)
}

func (s *PublisherService) account(ctx context.Context, id int64) (*Account, error) {
	if account, ok := s.accountCache.Get(id); ok {
		return account, nil
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.accountCache.Set(account)
	return account, nil
}

func (s *PublisherService) backoffDelay(retryCount int) time.Duration {
	d := s.retryBaseDelay
	for i := 0; i < retryCount && d < maxRetryDelay; i++ {
		d *= 2
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}

func (s *PublisherService) notify(post *Post, status, code string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyPostStatus(post.ID, post.AccountID, status, code)
}

// publishErrorCode 把失败压缩成可检索的 error_code 短串
func publishErrorCode(err error) string {
	var cf *containerFailure
	if errors.As(err, &cf) {
		return "container_" + strings.ToLower(cf.status.Code)
	}
	var apiErr *instagram.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != 0 {
			return fmt.Sprintf("graph_%d", apiErr.Code)
		}
		if apiErr.StatusCode != 0 {
			return fmt.Sprintf("http_%d", apiErr.StatusCode)
		}
		return "transient_io"
	}
	var domainErr *infraerrors.APIError
	if errors.As(err, &domainErr) {
		return strings.ToLower(domainErr.Code)
	}
	return "transient_io"
}
