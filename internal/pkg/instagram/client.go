// Package instagram is a thin typed wrapper over the Instagram Graph API
// content-publishing endpoints. It performs no retries and holds no state;
// policy (backoff, quotas, ordering) lives in the service layer.
package instagram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

// Credentials identifies one platform account for a single call.
type Credentials struct {
	UserID      string
	AccessToken string
}

// ContainerStatus is the publishing state of a staged media container.
type ContainerStatus struct {
	Code   string // IN_PROGRESS | FINISHED | PUBLISHED | ERROR | EXPIRED
	Detail string
}

// PublishingLimit is the account's rolling 24h publish budget.
type PublishingLimit struct {
	Used           int
	Limit          int
	WindowResetsAt time.Time
}

// AccountInfo is the token owner's identity.
type AccountInfo struct {
	UserID   string
	Username string
}

type Client struct {
	http    *req.Client
	baseURL string
	version string
}

type Option func(*Client)

// WithBaseURL points the client at a non-default Graph host (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithVersion pins the Graph API version.
func WithVersion(version string) Option {
	return func(c *Client) { c.version = version }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    req.C().SetTimeout(30 * time.Second).SetUserAgent("postflow/1.0"),
		baseURL: DefaultGraphBaseURL,
		version: DefaultAPIVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, strings.TrimLeft(path, "/"))
}

// post issues a form POST and returns the raw body or a classified error.
func (c *Client) post(ctx context.Context, path string, form map[string]string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).SetFormData(form).Post(c.url(path))
	if err != nil {
		return nil, transportError(err)
	}
	body := resp.Bytes()
	if !resp.IsSuccessState() {
		return nil, classify(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).SetQueryParams(query).Get(c.url(path))
	if err != nil {
		return nil, transportError(err)
	}
	body := resp.Bytes()
	if !resp.IsSuccessState() {
		return nil, classify(resp.StatusCode, body)
	}
	return body, nil
}

// CreateImageContainer stages a single photo. Returns the container id.
func (c *Client) CreateImageContainer(ctx context.Context, cred Credentials, imageURL, caption string) (string, error) {
	form := map[string]string{
		"access_token": cred.AccessToken,
		"image_url":    imageURL,
	}
	if caption != "" {
		form["caption"] = caption
	}
	body, err := c.post(ctx, cred.UserID+"/media", form)
	if err != nil {
		return "", fmt.Errorf("create image container: %w", err)
	}
	return containerID(body)
}

// CreateVideoContainer stages a video as a reel. shareToFeed controls
// whether the reel also lands on the main grid.
func (c *Client) CreateVideoContainer(ctx context.Context, cred Credentials, videoURL, caption string, shareToFeed bool) (string, error) {
	form := map[string]string{
		"access_token":  cred.AccessToken,
		"media_type":    MediaTypeReels,
		"video_url":     videoURL,
		"share_to_feed": fmt.Sprintf("%t", shareToFeed),
	}
	if caption != "" {
		form["caption"] = caption
	}
	body, err := c.post(ctx, cred.UserID+"/media", form)
	if err != nil {
		return "", fmt.Errorf("create video container: %w", err)
	}
	return containerID(body)
}

// CreateCarouselItem stages one carousel child. Video children need the
// explicit VIDEO media_type; images are the default.
func (c *Client) CreateCarouselItem(ctx context.Context, cred Credentials, itemURL string, isVideo bool) (string, error) {
	form := map[string]string{
		"access_token":     cred.AccessToken,
		"is_carousel_item": "true",
	}
	if isVideo {
		form["media_type"] = MediaTypeVideo
		form["video_url"] = itemURL
	} else {
		form["image_url"] = itemURL
	}
	body, err := c.post(ctx, cred.UserID+"/media", form)
	if err != nil {
		return "", fmt.Errorf("create carousel item: %w", err)
	}
	return containerID(body)
}

// CreateCarouselContainer stages the carousel parent over finished children.
func (c *Client) CreateCarouselContainer(ctx context.Context, cred Credentials, childIDs []string, caption string) (string, error) {
	if len(childIDs) < MinCarouselChildren || len(childIDs) > MaxCarouselChildren {
		return "", &APIError{
			Code:    ErrCodeInvalidParameter,
			Type:    "ValidationError",
			Message: fmt.Sprintf("carousel requires %d-%d children, got %d", MinCarouselChildren, MaxCarouselChildren, len(childIDs)),
		}
	}
	form := map[string]string{
		"access_token": cred.AccessToken,
		"media_type":   MediaTypeCarousel,
		"children":     strings.Join(childIDs, ","),
	}
	if caption != "" {
		form["caption"] = caption
	}
	body, err := c.post(ctx, cred.UserID+"/media", form)
	if err != nil {
		return "", fmt.Errorf("create carousel container: %w", err)
	}
	return containerID(body)
}

// GetContainerStatus polls a staged container.
func (c *Client) GetContainerStatus(ctx context.Context, cred Credentials, containerID string) (ContainerStatus, error) {
	body, err := c.get(ctx, containerID, map[string]string{
		"access_token": cred.AccessToken,
		"fields":       "status_code,status",
	})
	if err != nil {
		return ContainerStatus{}, fmt.Errorf("container status: %w", err)
	}
	return ContainerStatus{
		Code:   gjson.GetBytes(body, "status_code").String(),
		Detail: gjson.GetBytes(body, "status").String(),
	}, nil
}

// PublishContainer publishes a FINISHED container and returns the platform
// media id.
func (c *Client) PublishContainer(ctx context.Context, cred Credentials, containerID string) (string, error) {
	body, err := c.post(ctx, cred.UserID+"/media_publish", map[string]string{
		"access_token": cred.AccessToken,
		"creation_id":  containerID,
	})
	if err != nil {
		return "", fmt.Errorf("publish container: %w", err)
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", &APIError{Type: "MalformedResponse", Message: "publish response missing id", Retryable: true}
	}
	return id, nil
}

// GetPublishingLimit reads the account's rolling 24h quota usage.
func (c *Client) GetPublishingLimit(ctx context.Context, cred Credentials) (*PublishingLimit, error) {
	body, err := c.get(ctx, cred.UserID+"/content_publishing_limit", map[string]string{
		"access_token": cred.AccessToken,
		"fields":       "quota_usage,config",
	})
	if err != nil {
		return nil, fmt.Errorf("publishing limit: %w", err)
	}
	entry := gjson.GetBytes(body, "data.0")
	limit := int(entry.Get("config.quota_total").Int())
	if limit <= 0 {
		limit = DefaultQuotaTotal
	}
	durationSec := entry.Get("config.quota_duration").Int()
	if durationSec <= 0 {
		durationSec = int64(24 * time.Hour / time.Second)
	}
	// The API reports a rolling window, not a reset instant. The window
	// length is an upper bound on when the oldest usage falls off.
	return &PublishingLimit{
		Used:           int(entry.Get("quota_usage").Int()),
		Limit:          limit,
		WindowResetsAt: time.Now().Add(time.Duration(durationSec) * time.Second),
	}, nil
}

// GetAccountInfo resolves the token owner; used by refresh and token checks.
func (c *Client) GetAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	body, err := c.get(ctx, "me", map[string]string{
		"access_token": accessToken,
		"fields":       "id,username",
	})
	if err != nil {
		return nil, fmt.Errorf("account info: %w", err)
	}
	return &AccountInfo{
		UserID:   gjson.GetBytes(body, "id").String(),
		Username: gjson.GetBytes(body, "username").String(),
	}, nil
}

// DiscoverBusinessAccounts walks me/accounts and resolves the
// instagram_business_account linked to each page. Pages without one are
// skipped.
func (c *Client) DiscoverBusinessAccounts(ctx context.Context, accessToken string) ([]AccountInfo, error) {
	body, err := c.get(ctx, "me/accounts", map[string]string{
		"access_token": accessToken,
		"limit":        "100",
	})
	if err != nil {
		return nil, fmt.Errorf("page list: %w", err)
	}
	var accounts []AccountInfo
	for _, page := range gjson.GetBytes(body, "data").Array() {
		pageID := page.Get("id").String()
		if pageID == "" {
			continue
		}
		detail, err := c.get(ctx, pageID, map[string]string{
			"access_token": accessToken,
			"fields":       "instagram_business_account{id,username}",
		})
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", pageID, err)
		}
		userID := gjson.GetBytes(detail, "instagram_business_account.id").String()
		username := gjson.GetBytes(detail, "instagram_business_account.username").String()
		if userID == "" || username == "" {
			continue
		}
		accounts = append(accounts, AccountInfo{UserID: userID, Username: username})
	}
	return accounts, nil
}

func containerID(body []byte) (string, error) {
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", &APIError{Type: "MalformedResponse", Message: "container response missing id", Retryable: true}
	}
	return id, nil
}
