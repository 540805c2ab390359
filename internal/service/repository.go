package service

import (
	"context"
	"time"
)

// Repository interfaces implemented by internal/repository. Declared here so
// services depend on behavior, not on the storage package.

type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByPlatformUserID(ctx context.Context, platformUserID string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	Update(ctx context.Context, account *Account) error
	// SetActive freezes or unfreezes; reason is recorded when freezing and
	// cleared (together with the failure streak) when unfreezing.
	SetActive(ctx context.Context, id int64, active bool, reason string) error
	// RecordPublishFailure bumps the consecutive-failure streak and returns
	// the new value. RecordPublishSuccess resets it.
	RecordPublishFailure(ctx context.Context, id int64) (int, error)
	RecordPublishSuccess(ctx context.Context, id int64) error
}

// LeasedBatch is one leaser tick's claim.
type LeasedBatch struct {
	Posts    []Post
	LeasedAt time.Time
}

type PostRepository interface {
	// Create inserts the post, honoring (account_id, client_request_id)
	// idempotency. On an idempotent hit the existing row is loaded into
	// post and created is false.
	Create(ctx context.Context, post *Post) (created bool, err error)
	// CreateBatch inserts all posts in a single transaction; any failure
	// rolls the whole chunk back.
	CreateBatch(ctx context.Context, posts []*Post) (int, error)
	GetByID(ctx context.Context, id int64) (*Post, error)
	// GetByClientRequestID resolves a prior create by its idempotency key;
	// (nil, nil) when no row carries it.
	GetByClientRequestID(ctx context.Context, accountID int64, clientRequestID string) (*Post, error)
	// Update rewrites the mutable planning fields (media_url, caption,
	// post_type, scheduled_at) of a row.
	Update(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id int64) error
	BulkDelete(ctx context.Context, ids []int64) (int64, error)
	DeleteAfter(ctx context.Context, accountID int64, after time.Time) (int64, error)
	DeleteBefore(ctx context.Context, accountID int64, cutoff time.Time) (int64, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	QueryRange(ctx context.Context, accountID int64, start, end time.Time) ([]Post, error)
	// ListActiveBetween returns posts counting toward cap/spacing
	// (status not in failed/cancelled) in [start, end).
	ListActiveBetween(ctx context.Context, accountID int64, start, end time.Time) ([]Post, error)
	CountActiveBetween(ctx context.Context, accountID int64, start, end time.Time) (int, error)
	LastPostedScheduledAt(ctx context.Context, accountID int64) (*time.Time, error)

	// LeaseDue atomically claims due scheduled posts with SKIP LOCKED
	// semantics and flips them to leased.
	LeaseDue(ctx context.Context, dueBefore time.Time, limit int) (*LeasedBatch, error)
	// ReapExpired returns leases older than cutoff to scheduled with
	// retry_count incremented.
	ReapExpired(ctx context.Context, cutoff time.Time) (int64, error)
	// Heartbeat refreshes locked_at so long publishes outlive the watchdog.
	Heartbeat(ctx context.Context, id int64) error

	// Compare-and-set transitions; false means the row was not in the
	// expected state (typically a concurrent cancel).
	MarkPublishing(ctx context.Context, id int64) (bool, error)
	MarkPosted(ctx context.Context, id int64, publishResult string) (bool, error)
	MarkFailed(ctx context.Context, id int64, errorCode, publishResult string) (bool, error)
	Reschedule(ctx context.Context, id int64, at time.Time, retryCount int, errorCode string) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	SetPublishResult(ctx context.Context, id int64, publishResult string) error

	FailAllActive(ctx context.Context, accountID int64, errorCode string) (int64, error)
}

type MediaAssetRepository interface {
	// Upsert stores the asset; when (account_id, sha256) already exists the
	// stored row is loaded into asset and existing is true.
	Upsert(ctx context.Context, asset *MediaAsset) (existing bool, err error)
	GetByID(ctx context.Context, id string) (*MediaAsset, error)
	List(ctx context.Context, accountID int64) ([]MediaAsset, error)
	Delete(ctx context.Context, id string) error
}

// QuotaCounterCache is the fast per-day publish counter (redis).
type QuotaCounterCache interface {
	IncrDay(ctx context.Context, accountID int64, localDate string, ttl time.Duration) (int64, error)
	GetDay(ctx context.Context, accountID int64, localDate string) (int64, error)
}

// AccountSnapshotCache fronts the account repo for read-heavy paths.
type AccountSnapshotCache interface {
	Get(id int64) (*Account, bool)
	Set(account *Account)
	Del(id int64)
}

// ObjectStore persists media bytes and resolves fetchable URLs (S3).
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	// URL returns a platform-fetchable URL for key: the public base URL
	// joined with key, or a presigned GET.
	URL(ctx context.Context, key string) (string, error)
}

// StatusNotifier receives best-effort post status change events.
type StatusNotifier interface {
	NotifyPostStatus(postID, accountID int64, status, errorCode string)
}
