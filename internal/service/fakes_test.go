package service

// 本文件是 service 层单测共用的内存桩。行为对齐 internal/repository 的 SQL
// 语义：CAS 按当前状态落空、租约按 scheduled_at 排序、MarkFailed 合并
// publish_result、MarkPosted 整体覆盖。

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/y-cruce/postflow/internal/pkg/instagram"
)

// =============================================================================
// 可拨动的时钟
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// =============================================================================
// 内存版帖子仓库
// =============================================================================

type fakePostRepo struct {
	mu     sync.Mutex
	clock  Clock
	nextID int64
	rows   map[int64]Post

	createBatchCalls  int
	failCreateBatchOn int // 第 N 次 CreateBatch 报错（从 1 数），0 不报
	listErr           error
}

func newFakePostRepo(clock Clock) *fakePostRepo {
	return &fakePostRepo{clock: clock, rows: make(map[int64]Post)}
}

func (f *fakePostRepo) put(p Post) Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		f.nextID++
		p.ID = f.nextID
	} else if p.ID > f.nextID {
		f.nextID = p.ID
	}
	if p.Status == "" {
		p.Status = PostStatusScheduled
	}
	now := f.clock.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	f.rows[p.ID] = p
	return p
}

func (f *fakePostRepo) get(id int64) (Post, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	return p, ok
}

func (f *fakePostRepo) Create(ctx context.Context, post *Post) (bool, error) {
	f.mu.Lock()
	if post.ClientRequestID != nil {
		for _, row := range f.rows {
			if row.AccountID == post.AccountID && row.ClientRequestID != nil && *row.ClientRequestID == *post.ClientRequestID {
				*post = row
				f.mu.Unlock()
				return false, nil
			}
		}
	}
	f.mu.Unlock()
	*post = f.put(*post)
	return true, nil
}

func (f *fakePostRepo) CreateBatch(ctx context.Context, posts []*Post) (int, error) {
	f.mu.Lock()
	f.createBatchCalls++
	calls := f.createBatchCalls
	f.mu.Unlock()
	if f.failCreateBatchOn != 0 && calls == f.failCreateBatchOn {
		return 0, fmt.Errorf("insert chunk %d: forced failure", calls)
	}
	for _, p := range posts {
		*p = f.put(*p)
	}
	return len(posts), nil
}

func (f *fakePostRepo) GetByID(ctx context.Context, id int64) (*Post, error) {
	if p, ok := f.get(id); ok {
		return &p, nil
	}
	return nil, ErrPostNotFound
}

func (f *fakePostRepo) GetByClientRequestID(ctx context.Context, accountID int64, clientRequestID string) (*Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.AccountID == accountID && row.ClientRequestID != nil && *row.ClientRequestID == clientRequestID {
			p := row
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakePostRepo) Update(ctx context.Context, post *Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[post.ID]
	if !ok {
		return ErrPostNotFound
	}
	row.PostType = post.PostType
	row.MediaURL = post.MediaURL
	row.Caption = post.Caption
	row.ScheduledAt = post.ScheduledAt
	row.UpdatedAt = f.clock.Now()
	f.rows[post.ID] = row
	return nil
}

func (f *fakePostRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return ErrPostNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakePostRepo) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := f.rows[id]; ok {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakePostRepo) DeleteAfter(ctx context.Context, accountID int64, after time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if row.AccountID == accountID && row.ScheduledAt.After(after) &&
			(row.Status == PostStatusScheduled || row.Status == PostStatusLeased) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakePostRepo) DeleteBefore(ctx context.Context, accountID int64, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if row.AccountID == accountID && row.ScheduledAt.Before(cutoff) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakePostRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if row.ScheduledAt.Before(cutoff) && row.IsTerminal() {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakePostRepo) QueryRange(ctx context.Context, accountID int64, start, end time.Time) ([]Post, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Post
	for _, row := range f.rows {
		if row.AccountID == accountID && !row.ScheduledAt.Before(start) && row.ScheduledAt.Before(end) {
			out = append(out, row)
		}
	}
	sortPostsBySchedule(out)
	return out, nil
}

func (f *fakePostRepo) ListActiveBetween(ctx context.Context, accountID int64, start, end time.Time) ([]Post, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Post
	for _, row := range f.rows {
		if row.AccountID == accountID && row.CountsTowardCap() &&
			!row.ScheduledAt.Before(start) && row.ScheduledAt.Before(end) {
			out = append(out, row)
		}
	}
	sortPostsBySchedule(out)
	return out, nil
}

func (f *fakePostRepo) CountActiveBetween(ctx context.Context, accountID int64, start, end time.Time) (int, error) {
	rows, err := f.ListActiveBetween(ctx, accountID, start, end)
	return len(rows), err
}

func (f *fakePostRepo) LastPostedScheduledAt(ctx context.Context, accountID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *time.Time
	for _, row := range f.rows {
		if row.AccountID == accountID && row.Status == PostStatusPosted {
			at := row.ScheduledAt
			if last == nil || at.After(*last) {
				last = &at
			}
		}
	}
	return last, nil
}

func (f *fakePostRepo) LeaseDue(ctx context.Context, dueBefore time.Time, limit int) (*LeasedBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []Post
	for _, row := range f.rows {
		if row.Status == PostStatusScheduled && !row.ScheduledAt.After(dueBefore) {
			due = append(due, row)
		}
	}
	sortPostsBySchedule(due)
	if len(due) > limit {
		due = due[:limit]
	}
	leasedAt := f.clock.Now()
	for i := range due {
		row := due[i]
		row.Status = PostStatusLeased
		at := leasedAt
		row.LockedAt = &at
		row.UpdatedAt = leasedAt
		f.rows[row.ID] = row
		due[i] = row
	}
	return &LeasedBatch{Posts: due, LeasedAt: leasedAt}, nil
}

func (f *fakePostRepo) ReapExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if (row.Status == PostStatusLeased || row.Status == PostStatusPublishing) &&
			row.LockedAt != nil && row.LockedAt.Before(cutoff) {
			row.Status = PostStatusScheduled
			row.LockedAt = nil
			row.RetryCount++
			row.ErrorCode = ErrCodeStuckRecovered
			row.UpdatedAt = f.clock.Now()
			f.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (f *fakePostRepo) Heartbeat(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || (row.Status != PostStatusLeased && row.Status != PostStatusPublishing) {
		return nil
	}
	now := f.clock.Now()
	row.LockedAt = &now
	f.rows[id] = row
	return nil
}

func (f *fakePostRepo) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	return f.cas(id, func(row *Post) bool {
		if row.Status != PostStatusLeased {
			return false
		}
		row.Status = PostStatusPublishing
		return true
	})
}

func (f *fakePostRepo) MarkPosted(ctx context.Context, id int64, publishResult string) (bool, error) {
	return f.cas(id, func(row *Post) bool {
		if row.Status != PostStatusPublishing {
			return false
		}
		row.Status = PostStatusPosted
		row.PublishResult = publishResult
		row.ErrorCode = ""
		row.LockedAt = nil
		return true
	})
}

func (f *fakePostRepo) MarkFailed(ctx context.Context, id int64, errorCode, publishResult string) (bool, error) {
	return f.cas(id, func(row *Post) bool {
		switch row.Status {
		case PostStatusScheduled, PostStatusLeased, PostStatusPublishing:
		default:
			return false
		}
		row.Status = PostStatusFailed
		row.ErrorCode = errorCode
		row.PublishResult = mergeJSON(row.PublishResult, publishResult)
		row.LockedAt = nil
		return true
	})
}

func (f *fakePostRepo) Reschedule(ctx context.Context, id int64, at time.Time, retryCount int, errorCode string) (bool, error) {
	return f.cas(id, func(row *Post) bool {
		if row.Status != PostStatusLeased && row.Status != PostStatusPublishing {
			return false
		}
		row.Status = PostStatusScheduled
		row.ScheduledAt = at
		row.RetryCount = retryCount
		row.ErrorCode = errorCode
		row.LockedAt = nil
		return true
	})
}

func (f *fakePostRepo) Cancel(ctx context.Context, id int64) (bool, error) {
	return f.cas(id, func(row *Post) bool {
		switch row.Status {
		case PostStatusScheduled, PostStatusLeased, PostStatusPublishing:
		default:
			return false
		}
		row.Status = PostStatusCancelled
		row.LockedAt = nil
		return true
	})
}

func (f *fakePostRepo) SetPublishResult(ctx context.Context, id int64, publishResult string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return ErrPostNotFound
	}
	row.PublishResult = publishResult
	row.UpdatedAt = f.clock.Now()
	f.rows[id] = row
	return nil
}

func (f *fakePostRepo) FailAllActive(ctx context.Context, accountID int64, errorCode string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if row.AccountID != accountID {
			continue
		}
		switch row.Status {
		case PostStatusScheduled, PostStatusLeased, PostStatusPublishing:
			row.Status = PostStatusFailed
			row.ErrorCode = errorCode
			row.LockedAt = nil
			row.UpdatedAt = f.clock.Now()
			f.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (f *fakePostRepo) cas(id int64, apply func(*Post) bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	if !apply(&row) {
		return false, nil
	}
	row.UpdatedAt = f.clock.Now()
	f.rows[id] = row
	return true, nil
}

func sortPostsBySchedule(posts []Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].ScheduledAt.Equal(posts[j].ScheduledAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].ScheduledAt.Before(posts[j].ScheduledAt)
	})
}

// mergeJSON 模拟 jsonb || 的顶层合并
func mergeJSON(base, patch string) string {
	if base == "" {
		base = "{}"
	}
	if patch == "" {
		return base
	}
	merged := base
	gjson.Parse(patch).ForEach(func(key, value gjson.Result) bool {
		merged, _ = sjson.Set(merged, key.String(), value.Value())
		return true
	})
	return merged
}

// =============================================================================
// 内存版账号仓库
// =============================================================================

type fakeAccountRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{rows: make(map[int64]Account)}
}

func (f *fakeAccountRepo) seed(account Account) Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account.ID == 0 {
		f.nextID++
		account.ID = f.nextID
	} else if account.ID > f.nextID {
		f.nextID = account.ID
	}
	if account.Timezone == "" {
		account.Timezone = "UTC"
	}
	f.rows[account.ID] = account
	return account
}

func (f *fakeAccountRepo) Create(ctx context.Context, account *Account) error {
	f.mu.Lock()
	for id, row := range f.rows {
		if row.PlatformUserID == account.PlatformUserID {
			row.Handle = account.Handle
			row.AccessToken = account.AccessToken
			f.rows[id] = row
			*account = row
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()
	*account = f.seed(*account)
	return nil
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		return &row, nil
	}
	return nil, ErrAccountNotFound
}

func (f *fakeAccountRepo) GetByPlatformUserID(ctx context.Context, platformUserID string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.PlatformUserID == platformUserID {
			return &row, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (f *fakeAccountRepo) List(ctx context.Context) ([]Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Account, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAccountRepo) Update(ctx context.Context, account *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[account.ID]; !ok {
		return ErrAccountNotFound
	}
	f.rows[account.ID] = *account
	return nil
}

func (f *fakeAccountRepo) SetActive(ctx context.Context, id int64, active bool, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return ErrAccountNotFound
	}
	row.Active = active
	if active {
		row.PauseReason = ""
		row.ConsecutiveFailures = 0
	} else {
		row.PauseReason = reason
	}
	f.rows[id] = row
	return nil
}

func (f *fakeAccountRepo) RecordPublishFailure(ctx context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	row.ConsecutiveFailures++
	f.rows[id] = row
	return row.ConsecutiveFailures, nil
}

func (f *fakeAccountRepo) RecordPublishSuccess(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return ErrAccountNotFound
	}
	row.ConsecutiveFailures = 0
	f.rows[id] = row
	return nil
}

// =============================================================================
// 账号快照缓存与配额计数器
// =============================================================================

type fakeSnapshotCache struct {
	mu    sync.Mutex
	items map[int64]*Account
	dels  int
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{items: make(map[int64]*Account)}
}

func (f *fakeSnapshotCache) Get(id int64) (*Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	return a, ok
}

func (f *fakeSnapshotCache) Set(account *Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[account.ID] = account
}

func (f *fakeSnapshotCache) Del(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	f.dels++
}

type fakeQuotaCache struct {
	mu      sync.Mutex
	counts  map[string]int64
	getErr  error
	incrErr error
}

func newFakeQuotaCache() *fakeQuotaCache {
	return &fakeQuotaCache{counts: make(map[string]int64)}
}

func (f *fakeQuotaCache) IncrDay(ctx context.Context, accountID int64, localDate string, ttl time.Duration) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%s", accountID, localDate)
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeQuotaCache) GetDay(ctx context.Context, accountID int64, localDate string) (int64, error) {
	if f.getErr != nil {
		return 0, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[fmt.Sprintf("%d:%s", accountID, localDate)], nil
}

// =============================================================================
// 平台桩：按脚本吐容器状态，记录所有调用
// =============================================================================

type fakePlatform struct {
	mu sync.Mutex

	nextContainer int
	statusScript  map[string][]string // container_id -> 依次返回的状态
	defaultStatus string

	createErr  error
	statusErr  error
	publishErr error
	limit      *instagram.PublishingLimit
	limitErr   error
	limitCalls int
	info       *instagram.AccountInfo
	infoErr    error
	discovered []instagram.AccountInfo

	imageCalls    int
	videoCalls    int
	itemCalls     int
	carouselCalls int
	publishCalls  int
	statusCalls   int
	published     []string
	lastShareFeed bool
	lastChildIDs  []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		statusScript:  make(map[string][]string),
		defaultStatus: instagram.ContainerFinished,
		limit:         &instagram.PublishingLimit{Used: 0, Limit: 50},
	}
}

func (f *fakePlatform) newContainerID() string {
	f.nextContainer++
	return fmt.Sprintf("ctr-%d", f.nextContainer)
}

func (f *fakePlatform) script(containerID string, statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusScript[containerID] = statuses
}

func (f *fakePlatform) CreateImageContainer(ctx context.Context, cred instagram.Credentials, imageURL, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.imageCalls++
	return f.newContainerID(), nil
}

func (f *fakePlatform) CreateVideoContainer(ctx context.Context, cred instagram.Credentials, videoURL, caption string, shareToFeed bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.videoCalls++
	f.lastShareFeed = shareToFeed
	return f.newContainerID(), nil
}

func (f *fakePlatform) CreateCarouselItem(ctx context.Context, cred instagram.Credentials, itemURL string, isVideo bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.itemCalls++
	return f.newContainerID(), nil
}

func (f *fakePlatform) CreateCarouselContainer(ctx context.Context, cred instagram.Credentials, childIDs []string, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.carouselCalls++
	f.lastChildIDs = append([]string(nil), childIDs...)
	return f.newContainerID(), nil
}

func (f *fakePlatform) GetContainerStatus(ctx context.Context, cred instagram.Credentials, containerID string) (instagram.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return instagram.ContainerStatus{}, f.statusErr
	}
	if script, ok := f.statusScript[containerID]; ok && len(script) > 0 {
		code := script[0]
		if len(script) > 1 {
			f.statusScript[containerID] = script[1:]
		}
		return instagram.ContainerStatus{Code: code}, nil
	}
	return instagram.ContainerStatus{Code: f.defaultStatus}, nil
}

func (f *fakePlatform) PublishContainer(ctx context.Context, cred instagram.Credentials, containerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.publishCalls++
	f.published = append(f.published, containerID)
	return fmt.Sprintf("media-%d", f.publishCalls), nil
}

func (f *fakePlatform) GetPublishingLimit(ctx context.Context, cred instagram.Credentials) (*instagram.PublishingLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limitCalls++
	if f.limitErr != nil {
		return nil, f.limitErr
	}
	limit := *f.limit
	return &limit, nil
}

func (f *fakePlatform) GetAccountInfo(ctx context.Context, accessToken string) (*instagram.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.info != nil {
		info := *f.info
		return &info, nil
	}
	return &instagram.AccountInfo{UserID: "ig-1", Username: "tester"}, nil
}

func (f *fakePlatform) DiscoverBusinessAccounts(ctx context.Context, accessToken string) ([]instagram.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return append([]instagram.AccountInfo(nil), f.discovered...), nil
}

// =============================================================================
// 事件与对象存储桩
// =============================================================================

type notifyEvent struct {
	postID    int64
	accountID int64
	status    string
	errorCode string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifyEvent
}

func (f *fakeNotifier) NotifyPostStatus(postID, accountID int64, status, errorCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notifyEvent{postID, accountID, status, errorCode})
}

func (f *fakeNotifier) statuses(postID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		if e.postID == postID {
			out = append(out, e.status)
		}
	}
	return out
}

type fakeMediaRepo struct {
	mu   sync.Mutex
	rows map[string]MediaAsset
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{rows: make(map[string]MediaAsset)}
}

func (f *fakeMediaRepo) Upsert(ctx context.Context, asset *MediaAsset) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.AccountID == asset.AccountID && row.SHA256 == asset.SHA256 {
			*asset = row
			return true, nil
		}
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	f.rows[asset.ID] = *asset
	return false, nil
}

func (f *fakeMediaRepo) GetByID(ctx context.Context, id string) (*MediaAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		return &row, nil
	}
	return nil, ErrMediaNotFound
}

func (f *fakeMediaRepo) List(ctx context.Context, accountID int64) ([]MediaAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []MediaAsset
	for _, row := range f.rows {
		if row.AccountID == accountID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMediaRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return ErrMediaNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deletes []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeObjectStore) URL(ctx context.Context, key string) (string, error) {
	return "https://media.test/" + key, nil
}
