package instagram

// Graph API defaults. The version is overridable via config so an account
// base can be moved forward without a rebuild.
const (
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultAPIVersion   = "v21.0"
)

// Container status codes returned by GET /{container-id}?fields=status_code.
const (
	ContainerInProgress = "IN_PROGRESS"
	ContainerFinished   = "FINISHED"
	ContainerPublished  = "PUBLISHED"
	ContainerError      = "ERROR"
	ContainerExpired    = "EXPIRED"
)

// Media types accepted by POST /{ig-user-id}/media.
const (
	MediaTypeReels    = "REELS"
	MediaTypeVideo    = "VIDEO"
	MediaTypeCarousel = "CAROUSEL"
)

// Carousel bounds enforced by the platform.
const (
	MinCarouselChildren = 2
	MaxCarouselChildren = 10
)

// MaxCaptionLength Graph API 的 caption 长度上限
const MaxCaptionLength = 2200

// Well-known Graph error codes.
const (
	ErrCodeAPIUnknown        = 1
	ErrCodeAPIService        = 2
	ErrCodeAppRateLimit      = 4
	ErrCodeUserRateLimit     = 17
	ErrCodePageRateLimit     = 32
	ErrCodeCustomRateLimit   = 613
	ErrCodePublishingLimit   = 9
	ErrCodeInvalidParameter  = 100
	ErrCodeAccessToken       = 190
	ErrCodePermissionDenied  = 200
	ErrCodeMediaNotAvailable = 9007

	// Subcodes seen while a container is still processing or rejected.
	SubcodeMediaNotReady     = 2207027
	SubcodeMediaDownloadFail = 2207003
	SubcodeMediaFormat       = 2207026
)

// DefaultQuotaTotal is the documented content_publishing_limit per rolling
// 24 hours; used only when the API omits config.quota_total.
const DefaultQuotaTotal = 50
