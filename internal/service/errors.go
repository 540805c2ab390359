package service

import (
	"time"

	infraerrors "github.com/y-cruce/postflow/internal/pkg/errors"
)

// Domain errors returned by the services and mapped to HTTP by handlers.
var (
	ErrAccountNotFound = infraerrors.NotFound("ACCOUNT_NOT_FOUND", "account not found")
	ErrPostNotFound    = infraerrors.NotFound("POST_NOT_FOUND", "post not found")
	ErrMediaNotFound   = infraerrors.NotFound("MEDIA_NOT_FOUND", "media asset not found")

	ErrAccountFrozen      = infraerrors.Conflict("ACCOUNT_FROZEN", "account is frozen")
	ErrPostNotEditable    = infraerrors.Conflict("POST_NOT_EDITABLE", "only future scheduled posts can be modified")
	ErrPostNotCancellable = infraerrors.Conflict("POST_NOT_CANCELLABLE", "post already reached a terminal state")

	ErrInvalidPostType = infraerrors.BadRequest("INVALID_POST_TYPE", "post_type must be one of photo, reel_feed, reel_only, carousel")
	ErrInvalidTimezone = infraerrors.BadRequest("INVALID_TIMEZONE", "timezone is not a valid IANA name")
	ErrInvalidSchedule = infraerrors.BadRequest("INVALID_SCHEDULED_AT", "scheduled_at could not be parsed")
	ErrInvalidEnvelope = infraerrors.BadRequest("INVALID_MEDIA_ENVELOPE", "carousel media_url envelope is malformed")

	ErrInvalidPlatform = infraerrors.BadRequest("INVALID_PLATFORM", "platform must be instagram")
	ErrMissingMediaURL = infraerrors.BadRequest("MISSING_MEDIA_URL", "media_url or asset_id is required")

	ErrInvalidDate       = infraerrors.BadRequest("INVALID_DATE", "dates must be YYYY-MM-DD")
	ErrInvalidDateRange  = infraerrors.BadRequest("INVALID_DATE_RANGE", "start_date must not be after end_date")
	ErrInvalidPlanWindow = infraerrors.BadRequest("INVALID_PLAN_WINDOW", "random window must satisfy 0 <= start <= end < 1440")
	ErrEmptyMediaPool    = infraerrors.BadRequest("EMPTY_MEDIA_POOL", "batch commit requires a non-empty media pool")

	ErrDailyCapReached = infraerrors.Conflict("DAILY_LIMIT_REACHED", "daily post limit reached for this account")
	ErrDuplicateKey    = infraerrors.Conflict("DUPLICATE_KEY", "a row with this unique key already exists")

	ErrTokenInvalid = infraerrors.UnprocessableEntity("TOKEN_INVALID", "the stored access token was rejected by the platform")

	ErrEmptyUpload          = infraerrors.BadRequest("EMPTY_UPLOAD", "uploaded file is empty")
	ErrMediaStorageDisabled = infraerrors.ServiceUnavailable("MEDIA_STORAGE_DISABLED", "object storage is not configured")
)

// NewSpacingConflict builds the 409 carrying the neighboring scheduled
// times the new slot collides with.
func NewSpacingConflict(neighbors []time.Time) *infraerrors.APIError {
	formatted := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		formatted = append(formatted, n.UTC().Format(time.RFC3339))
	}
	return infraerrors.Conflict("SPACING_CONFLICT", "scheduled_at violates the minimum spacing for this account").
		WithDetails(map[string]any{"conflict_with": formatted})
}

// NewRateLimited builds the 429 carrying a retry hint.
func NewRateLimited(retryAfter time.Duration) *infraerrors.APIError {
	return infraerrors.RateLimited("RATE_LIMITED", "platform publishing quota exhausted").
		WithDetails(map[string]any{"retry_after_seconds": int(retryAfter.Seconds())})
}
