package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/y-cruce/postflow/internal/service"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	pgc, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("postflow_test"),
		tcpostgres.WithUsername("postflow"),
		tcpostgres.WithPassword("postflow"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgc) })

	dsn, err := pgc.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db))
	return db
}

func createTestAccount(t *testing.T, repo service.AccountRepository, platformUserID string) *service.Account {
	t.Helper()
	account := &service.Account{
		PlatformUserID: platformUserID,
		Handle:         "handle_" + platformUserID,
		AccessToken:    "token",
		Timezone:       "UTC",
		Active:         true,
	}
	require.NoError(t, repo.Create(context.Background(), account))
	return account
}

func createScheduledPost(t *testing.T, repo service.PostRepository, accountID int64, at time.Time) *service.Post {
	t.Helper()
	post := &service.Post{
		AccountID:   accountID,
		Platform:    service.PlatformInstagram,
		PostType:    service.PostTypePhoto,
		MediaURL:    fmt.Sprintf("https://cdn.example.com/%d.jpg", at.UnixNano()),
		Caption:     "it",
		ScheduledAt: at,
		Status:      service.PostStatusScheduled,
	}
	created, err := repo.Create(context.Background(), post)
	require.NoError(t, err)
	require.True(t, created)
	return post
}

func TestPostRepositoryIntegration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	accounts := NewAccountRepository(db)
	posts := NewPostRepository(db)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("idempotent create replays stored row", func(t *testing.T) {
		account := createTestAccount(t, accounts, "acc-idem")
		reqID := "req-1"
		first := &service.Post{
			AccountID: account.ID, Platform: service.PlatformInstagram, PostType: service.PostTypePhoto,
			MediaURL: "https://cdn.example.com/x.jpg", ScheduledAt: base, Status: service.PostStatusScheduled,
			ClientRequestID: &reqID,
		}
		created, err := posts.Create(ctx, first)
		require.NoError(t, err)
		require.True(t, created)

		replay := &service.Post{
			AccountID: account.ID, Platform: service.PlatformInstagram, PostType: service.PostTypeReelFeed,
			MediaURL: "https://cdn.example.com/other.mp4", ScheduledAt: base.Add(time.Hour),
			Status: service.PostStatusScheduled, ClientRequestID: &reqID,
		}
		created, err = posts.Create(ctx, replay)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, replay.ID)
		// The stored row wins over the replayed payload.
		require.Equal(t, service.PostTypePhoto, replay.PostType)
		require.True(t, replay.ScheduledAt.Equal(base))
	})

	t.Run("lease due claims in schedule order exactly once", func(t *testing.T) {
		account := createTestAccount(t, accounts, "acc-lease")
		late := createScheduledPost(t, posts, account.ID, base.Add(30*time.Minute))
		early := createScheduledPost(t, posts, account.ID, base)
		createScheduledPost(t, posts, account.ID, base.Add(48*time.Hour)) // not due

		batch, err := posts.LeaseDue(ctx, base.Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, batch.Posts, 2)
		require.Equal(t, early.ID, batch.Posts[0].ID)
		require.Equal(t, late.ID, batch.Posts[1].ID)
		for _, p := range batch.Posts {
			require.Equal(t, service.PostStatusLeased, p.Status)
			require.NotNil(t, p.LockedAt)
		}

		again, err := posts.LeaseDue(ctx, base.Add(time.Hour), 10)
		require.NoError(t, err)
		require.Empty(t, again.Posts)
	})

	t.Run("concurrent leasing never double-claims", func(t *testing.T) {
		account := createTestAccount(t, accounts, "acc-race")
		const n = 20
		for i := 0; i < n; i++ {
			createScheduledPost(t, posts, account.ID, base.Add(time.Duration(i)*time.Minute))
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed = make(map[int64]int)
			errs    []error
		)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				batch, err := posts.LeaseDue(ctx, base.Add(time.Hour), n)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				for _, p := range batch.Posts {
					claimed[p.ID]++
				}
			}()
		}
		wg.Wait()
		require.Empty(t, errs)

		require.Len(t, claimed, n)
		for id, count := range claimed {
			require.Equal(t, 1, count, "post %d claimed more than once", id)
		}
	})

	t.Run("reaper returns expired leases with retry bump", func(t *testing.T) {
		account := createTestAccount(t, accounts, "acc-reap")
		post := createScheduledPost(t, posts, account.ID, base)

		batch, err := posts.LeaseDue(ctx, base.Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, batch.Posts, 1)

		n, err := posts.ReapExpired(ctx, time.Now().UTC().Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		got, err := posts.GetByID(ctx, post.ID)
		require.NoError(t, err)
		require.Equal(t, service.PostStatusScheduled, got.Status)
		require.Equal(t, 1, got.RetryCount)
		require.Equal(t, service.ErrCodeStuckRecovered, got.ErrorCode)
		require.Nil(t, got.LockedAt)
	})

	t.Run("status transitions are compare-and-swap", func(t *testing.T) {
		account := createTestAccount(t, accounts, "acc-cas")
		post := createScheduledPost(t, posts, account.ID, base)

		// publishing requires a lease first
		ok, err := posts.MarkPublishing(ctx, post.ID)
		require.NoError(t, err)
		require.False(t, ok)

		batch, err := posts.LeaseDue(ctx, base.Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, batch.Posts, 1)

		ok, err = posts.MarkPublishing(ctx, post.ID)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = posts.MarkPosted(ctx, post.ID, `{"platform_media_id":"m9","container_id":"c9"}`)
		require.NoError(t, err)
		require.True(t, ok)

		// terminal rows reject further transitions
		ok, err = posts.Cancel(ctx, post.ID)
		require.NoError(t, err)
		require.False(t, ok)

		got, err := posts.GetByID(ctx, post.ID)
		require.NoError(t, err)
		require.Equal(t, service.PostStatusPosted, got.Status)
		require.Equal(t, "m9", got.PlatformMediaID())
		require.Nil(t, got.LockedAt)
	})

	t.Run("delete after keeps executing and terminal rows", func(t *testing.T) {
		account := createTestAccount(t, accounts, "acc-delafter")
		cutoff := base.Add(24 * time.Hour)
		keepBefore := createScheduledPost(t, posts, account.ID, base)
		dropLater := createScheduledPost(t, posts, account.ID, cutoff.Add(time.Hour))
		keepPosted := createScheduledPost(t, posts, account.ID, cutoff.Add(2*time.Hour))

		batch, err := posts.LeaseDue(ctx, cutoff.Add(3*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, batch.Posts, 3)
		ok, err := posts.MarkPublishing(ctx, keepPosted.ID)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = posts.MarkPosted(ctx, keepPosted.ID, `{}`)
		require.NoError(t, err)
		require.True(t, ok)
		// return the rest to scheduled so only pending rows face deletion
		_, err = posts.Reschedule(ctx, keepBefore.ID, keepBefore.ScheduledAt, 0, "")
		require.NoError(t, err)
		_, err = posts.Reschedule(ctx, dropLater.ID, dropLater.ScheduledAt, 0, "")
		require.NoError(t, err)

		n, err := posts.DeleteAfter(ctx, account.ID, cutoff)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		_, err = posts.GetByID(ctx, dropLater.ID)
		require.ErrorIs(t, err, service.ErrPostNotFound)
		_, err = posts.GetByID(ctx, keepBefore.ID)
		require.NoError(t, err)
		_, err = posts.GetByID(ctx, keepPosted.ID)
		require.NoError(t, err)
	})

	t.Run("last posted scheduled time", func(t *testing.T) {
		account := createTestAccount(t, accounts, "acc-last")
		last, err := posts.LastPostedScheduledAt(ctx, account.ID)
		require.NoError(t, err)
		require.Nil(t, last)

		post := createScheduledPost(t, posts, account.ID, base)
		batch, err := posts.LeaseDue(ctx, base.Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, batch.Posts, 1)
		_, err = posts.MarkPublishing(ctx, post.ID)
		require.NoError(t, err)
		_, err = posts.MarkPosted(ctx, post.ID, `{}`)
		require.NoError(t, err)

		last, err = posts.LastPostedScheduledAt(ctx, account.ID)
		require.NoError(t, err)
		require.NotNil(t, last)
		require.True(t, last.Equal(base))
	})

	t.Run("freeze fails every active post", func(t *testing.T) {
		account := createTestAccount(t, accounts, "acc-freeze")
		p1 := createScheduledPost(t, posts, account.ID, base)
		p2 := createScheduledPost(t, posts, account.ID, base.Add(time.Hour))

		n, err := posts.FailAllActive(ctx, account.ID, service.ErrCodeAccountFrozen)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		for _, id := range []int64{p1.ID, p2.ID} {
			got, err := posts.GetByID(ctx, id)
			require.NoError(t, err)
			require.Equal(t, service.PostStatusFailed, got.Status)
			require.Equal(t, service.ErrCodeAccountFrozen, got.ErrorCode)
		}
	})
}

func TestMediaAssetRepositoryIntegration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	accounts := NewAccountRepository(db)
	media := NewMediaAssetRepository(db)

	account := createTestAccount(t, accounts, "acc-media")

	asset := &service.MediaAsset{
		ID:         "11111111-2222-3333-4444-555555555555",
		AccountID:  account.ID,
		StoredPath: "media/7/abc.jpg",
		MediaURL:   "https://cdn.example.com/media/7/abc.jpg",
		Bytes:      1024,
		SHA256:     "deadbeef",
		ShortHash:  "deadbeef"[:8],
	}
	existing, err := media.Upsert(ctx, asset)
	require.NoError(t, err)
	require.False(t, existing)

	// same content hash for the same account dedupes to the stored asset
	dup := &service.MediaAsset{
		ID:         "99999999-8888-7777-6666-555555555555",
		AccountID:  account.ID,
		StoredPath: "media/7/other.jpg",
		MediaURL:   "https://cdn.example.com/media/7/other.jpg",
		Bytes:      1024,
		SHA256:     "deadbeef",
		ShortHash:  "deadbeef"[:8],
	}
	existing, err = media.Upsert(ctx, dup)
	require.NoError(t, err)
	require.True(t, existing)
	require.Equal(t, asset.ID, dup.ID)
	require.Equal(t, "media/7/abc.jpg", dup.StoredPath)

	listed, err := media.List(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, media.Delete(ctx, asset.ID))
	_, err = media.GetByID(ctx, asset.ID)
	require.ErrorIs(t, err, service.ErrMediaNotFound)
}
