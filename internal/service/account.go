package service

import (
	"time"

	"github.com/y-cruce/postflow/internal/pkg/instagram"
)

// Account pause reasons recorded when active flips to false.
const (
	PauseReasonManual       = "manual"
	PauseReasonAutoPaused   = "auto_paused"
	PauseReasonTokenInvalid = "token_invalid"
)

// autoPauseThreshold 连续硬失败达到该次数后自动冻结账号；
// 只有重试不少于 autoPauseMinRetries 次的失败才计入
const (
	autoPauseThreshold  = 3
	autoPauseMinRetries = 2
)

type Account struct {
	ID             int64
	PlatformUserID string
	Handle         string
	AccessToken    string
	Timezone       string // IANA name; presentation + local-date math
	Active         bool
	PauseReason    string
	// ConsecutiveFailures counts publish attempts that exhausted their
	// retry budget or failed terminally since the last success.
	ConsecutiveFailures int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (a *Account) IsActive() bool {
	return a != nil && a.Active
}

// Location resolves the account timezone, falling back to UTC on bad data so
// scheduling math never panics on a half-migrated row.
func (a *Account) Location() *time.Location {
	if a == nil || a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Credentials shapes the account for a platform call.
func (a *Account) Credentials() instagram.Credentials {
	return instagram.Credentials{UserID: a.PlatformUserID, AccessToken: a.AccessToken}
}

// LocalDate returns the civil date of t in the account timezone.
func (a *Account) LocalDate(t time.Time) string {
	return t.In(a.Location()).Format("2006-01-02")
}

// DayBounds returns the UTC instants bounding the local calendar day that
// contains t. Used by cap and spacing checks.
func (a *Account) DayBounds(t time.Time) (start, end time.Time) {
	loc := a.Location()
	local := t.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return dayStart.UTC(), dayStart.AddDate(0, 0, 1).UTC()
}
