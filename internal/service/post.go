package service

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Post statuses. scheduled → leased → publishing → posted is the happy path;
// failed and cancelled are terminal.
const (
	PostStatusScheduled  = "scheduled"
	PostStatusLeased     = "leased"
	PostStatusPublishing = "publishing"
	PostStatusPosted     = "posted"
	PostStatusFailed     = "failed"
	PostStatusCancelled  = "cancelled"
)

// Canonical post types. Anything else is rejected at the API boundary.
const (
	PostTypePhoto    = "photo"
	PostTypeReelFeed = "reel_feed" // reel that also shows on the grid
	PostTypeReelOnly = "reel_only"
	PostTypeCarousel = "carousel"
)

// PlatformInstagram 当前唯一支持的发布平台
const PlatformInstagram = "instagram"

// Error codes persisted on posts.
const (
	ErrCodeAccountFrozen   = "account_frozen"
	ErrCodeAccountPaused   = "account_paused"
	ErrCodeStuckRecovered  = "stuck_recovered"
	ErrCodeQuotaDeferred   = "quota_deferred"
	ErrCodeRetriesExceeded = "retries_exceeded"
	ErrCodeTokenInvalid    = "token_invalid"
)

type Post struct {
	ID              int64      `json:"id"`
	AccountID       int64      `json:"account_id"`
	Platform        string     `json:"platform"`
	PostType        string     `json:"post_type"`
	MediaURL        string     `json:"media_url"`
	Caption         string     `json:"caption"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	ErrorCode       string     `json:"error_code,omitempty"`
	PublishResult   string     `json:"publish_result,omitempty"` // opaque JSON
	ClientRequestID *string    `json:"client_request_id,omitempty"`
	LockedAt        *time.Time `json:"locked_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsTerminal reports whether no further transition is possible.
func (p *Post) IsTerminal() bool {
	return p.Status == PostStatusPosted || p.Status == PostStatusFailed || p.Status == PostStatusCancelled
}

// CountsTowardCap 是否计入每日上限与间隔校验（failed/cancelled 不计入）
func (p *Post) CountsTowardCap() bool {
	return p.Status != PostStatusFailed && p.Status != PostStatusCancelled
}

// ContainerID reads the staged container id out of publish_result, if any.
func (p *Post) ContainerID() string {
	return gjson.Get(p.PublishResult, "container_id").String()
}

// PlatformMediaID reads the published media id out of publish_result.
func (p *Post) PlatformMediaID() string {
	return gjson.Get(p.PublishResult, "platform_media_id").String()
}

// WithResultField returns publish_result with one field set.
func (p *Post) WithResultField(key string, value any) string {
	result := p.PublishResult
	if result == "" {
		result = "{}"
	}
	updated, err := sjson.Set(result, key, value)
	if err != nil {
		return result
	}
	return updated
}

func ValidPostType(t string) bool {
	switch t {
	case PostTypePhoto, PostTypeReelFeed, PostTypeReelOnly, PostTypeCarousel:
		return true
	}
	return false
}

func ValidStatus(s string) bool {
	switch s {
	case PostStatusScheduled, PostStatusLeased, PostStatusPublishing,
		PostStatusPosted, PostStatusFailed, PostStatusCancelled:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Status transitions
// ---------------------------------------------------------------------------

// PostEvent 驱动状态机的事件
type PostEvent string

const (
	EventLease        PostEvent = "lease"
	EventStartPublish PostEvent = "start_publish"
	EventPosted       PostEvent = "posted"
	EventRetry        PostEvent = "retry" // back to scheduled with a delay
	EventFail         PostEvent = "fail"
	EventCancel       PostEvent = "cancel"
	EventLeaseExpired PostEvent = "lease_expired"
)

// NextStatus is the single transition function every status change goes
// through. It returns the successor status or an error for an illegal edge.
func NextStatus(current string, event PostEvent) (string, error) {
	switch event {
	case EventLease:
		if current == PostStatusScheduled {
			return PostStatusLeased, nil
		}
	case EventStartPublish:
		if current == PostStatusLeased {
			return PostStatusPublishing, nil
		}
	case EventPosted:
		if current == PostStatusPublishing {
			return PostStatusPosted, nil
		}
	case EventRetry:
		if current == PostStatusLeased || current == PostStatusPublishing {
			return PostStatusScheduled, nil
		}
	case EventFail:
		if current == PostStatusScheduled || current == PostStatusLeased || current == PostStatusPublishing {
			return PostStatusFailed, nil
		}
	case EventCancel:
		if current == PostStatusScheduled || current == PostStatusLeased || current == PostStatusPublishing {
			return PostStatusCancelled, nil
		}
	case EventLeaseExpired:
		if current == PostStatusLeased || current == PostStatusPublishing {
			return PostStatusScheduled, nil
		}
	}
	return "", fmt.Errorf("illegal transition: %s on %q", event, current)
}

// ---------------------------------------------------------------------------
// Media envelope
// ---------------------------------------------------------------------------

// MediaEnvelope is the decoded form of a post's media_url column: either a
// single URL or a carousel of 2-10 URLs.
type MediaEnvelope struct {
	Kind string // "single" | "carousel"
	URLs []string
}

const (
	MediaKindSingle   = "single"
	MediaKindCarousel = "carousel"
)

// ParseMediaEnvelope decodes media_url. A plain URL is a single; a JSON
// object {"type":"carousel","urls":[...]} is a carousel and is validated on
// every read.
func ParseMediaEnvelope(mediaURL string) (MediaEnvelope, error) {
	trimmed := strings.TrimSpace(mediaURL)
	if trimmed == "" {
		return MediaEnvelope{}, fmt.Errorf("empty media_url")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return MediaEnvelope{Kind: MediaKindSingle, URLs: []string{trimmed}}, nil
	}
	parsed := gjson.Parse(trimmed)
	if parsed.Get("type").String() != "carousel" {
		return MediaEnvelope{}, fmt.Errorf("media_url envelope type %q is not carousel", parsed.Get("type").String())
	}
	raw := parsed.Get("urls").Array()
	urls := make([]string, 0, len(raw))
	for _, item := range raw {
		u := strings.TrimSpace(item.String())
		if u == "" {
			return MediaEnvelope{}, fmt.Errorf("carousel envelope contains an empty url")
		}
		urls = append(urls, u)
	}
	if len(urls) < 2 || len(urls) > 10 {
		return MediaEnvelope{}, fmt.Errorf("carousel requires 2-10 urls, got %d", len(urls))
	}
	return MediaEnvelope{Kind: MediaKindCarousel, URLs: urls}, nil
}

// BuildCarouselEnvelope encodes urls into the persisted carousel form.
func BuildCarouselEnvelope(urls []string) (string, error) {
	if len(urls) < 2 || len(urls) > 10 {
		return "", fmt.Errorf("carousel requires 2-10 urls, got %d", len(urls))
	}
	envelope, _ := sjson.Set("{}", "type", "carousel")
	envelope, err := sjson.Set(envelope, "urls", urls)
	if err != nil {
		return "", err
	}
	return envelope, nil
}

// ---------------------------------------------------------------------------
// URL helpers
// ---------------------------------------------------------------------------

// captionPattern 文件名中 *****标题***** 形式的内嵌标题
var captionPattern = regexp.MustCompile(`\*{5}([^*]{1,200})\*{5}`)

// ExtractCaptionFromURL pulls an embedded caption out of a media URL's file
// name. Returns "" when the convention is absent.
func ExtractCaptionFromURL(rawURL string) string {
	base := path.Base(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		base = path.Base(u.Path)
	}
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}
	m := captionPattern.FindStringSubmatch(base)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".avi": true, ".mkv": true,
}

// IsVideoURL decides media kind by file extension; the planner and carousel
// child creation rely on this.
func IsVideoURL(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return videoExtensions[strings.ToLower(path.Ext(p))]
}
