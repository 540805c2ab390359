package service

import (
	"fmt"
	"time"

	"github.com/y-cruce/postflow/internal/config"
)

// testConfig mirrors the shipped defaults; individual tests override fields
// they care about.
func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			TickIntervalSeconds:   1,
			BatchSize:             50,
			GraceSeconds:          30,
			LeaseTTLMinutes:       5,
			MaxRetries:            5,
			RetryBaseDelaySeconds: 60,
			WorkerCount:           4,
			QueueSize:             64,
			PollInitialSeconds:    0, // no real sleeping between polls in tests
			PollMaxSeconds:        30,
			PollTotalSeconds:      300,
		},
		Planner: config.PlannerConfig{
			DailyCap:            15,
			MinSpacingMinutes:   15,
			DefaultDayStartHour: 8,
			DefaultDayEndHour:   22,
		},
		RateLimit: config.RateLimitConfig{
			RemoteQuotaTTLSeconds: 60,
			FallbackQuotaLimit:    50,
			CounterSlackHours:     2,
		},
		Maintenance: config.MaintenanceConfig{
			Enabled:        true,
			ClearOldCron:   "30 3 * * *",
			TokenCheckCron: "0 5 * * *",
			RetentionDays:  30,
		},
	}
}

func activeAccount(id int64) Account {
	return Account{
		ID:             id,
		PlatformUserID: fmt.Sprintf("ig-%d", id),
		Handle:         "tester",
		AccessToken:    "token",
		Timezone:       "UTC",
		Active:         true,
	}
}

// mondayNoon 一个固定的参考时刻（2025-06-02 是周一）
var mondayNoon = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
