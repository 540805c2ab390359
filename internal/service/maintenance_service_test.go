package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newMaintenanceFixture(t *testing.T, clearOldSpec string) (*MaintenanceService, *fakePostRepo) {
	t.Helper()
	clock := newFakeClock(mondayNoon)
	posts := newFakePostRepo(clock)
	accounts := newFakeAccountRepo()
	accounts.seed(activeAccount(1))
	accountSvc := NewAccountService(accounts, posts, newFakeSnapshotCache(), newFakePlatform(), clock)

	cfg := testConfig()
	cfg.Maintenance.ClearOldCron = clearOldSpec
	return NewMaintenanceService(posts, accountSvc, clock, cfg), posts
}

func TestMaintenanceRejectsBadCron(t *testing.T) {
	svc, _ := newMaintenanceFixture(t, "not a cron spec")
	require.Error(t, svc.Start())
}

func TestMaintenanceClearOldKeepsActiveRows(t *testing.T) {
	svc, posts := newMaintenanceFixture(t, "30 3 * * *")

	oldPosted := posts.put(Post{AccountID: 1, PostType: PostTypePhoto, MediaURL: "u",
		ScheduledAt: mondayNoon.Add(-31 * 24 * time.Hour), Status: PostStatusPosted})
	oldFailed := posts.put(Post{AccountID: 1, PostType: PostTypePhoto, MediaURL: "u",
		ScheduledAt: mondayNoon.Add(-40 * 24 * time.Hour), Status: PostStatusFailed})
	// 保留期外但仍在排队的行不许动
	oldScheduled := posts.put(Post{AccountID: 1, PostType: PostTypePhoto, MediaURL: "u",
		ScheduledAt: mondayNoon.Add(-31 * 24 * time.Hour)})
	recentPosted := posts.put(Post{AccountID: 1, PostType: PostTypePhoto, MediaURL: "u",
		ScheduledAt: mondayNoon.Add(-2 * 24 * time.Hour), Status: PostStatusPosted})

	svc.runClearOld()

	_, ok := posts.get(oldPosted.ID)
	require.False(t, ok)
	_, ok = posts.get(oldFailed.ID)
	require.False(t, ok)
	_, ok = posts.get(oldScheduled.ID)
	require.True(t, ok)
	_, ok = posts.get(recentPosted.ID)
	require.True(t, ok)
}

func TestMaintenanceStartStop(t *testing.T) {
	svc, _ := newMaintenanceFixture(t, "30 3 * * *")
	require.NoError(t, svc.Start())
	svc.Stop()
}
