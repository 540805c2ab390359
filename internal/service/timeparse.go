package service

import (
	"strings"
	"time"
)

// Accepted scheduled_at layouts. The UI sends either a full RFC3339 instant
// or a bare local wall time; the latter is interpreted in the account
// timezone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseScheduleTime normalizes an API timestamp to UTC. Inputs with an
// explicit offset are converted; inputs without one are read as local wall
// time in loc.
func ParseScheduleTime(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	var lastErr error
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
