package instagram

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// APIError is a classified Graph API failure.
type APIError struct {
	StatusCode int
	Code       int
	Subcode    int
	Type       string
	Message    string
	FBTraceID  string
	// Retryable marks errors that a caller may retry after a backoff;
	// everything else is a terminal rejection for this payload/account.
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Subcode != 0 {
		return fmt.Sprintf("graph api error %d/%d (%s): %s", e.Code, e.Subcode, e.Type, e.Message)
	}
	return fmt.Sprintf("graph api error %d (%s): %s", e.Code, e.Type, e.Message)
}

// transportError 网络层失败，无响应体可分类，一律视作可重试
func transportError(err error) *APIError {
	return &APIError{Type: "TransportError", Message: err.Error(), Retryable: true}
}

// classify parses a Graph error body and decides retryability.
//
// Body shape: {"error":{"message":...,"type":...,"code":...,"error_subcode":...,"fbtrace_id":...}}
func classify(statusCode int, body []byte) *APIError {
	e := &APIError{
		StatusCode: statusCode,
		Code:       int(gjson.GetBytes(body, "error.code").Int()),
		Subcode:    int(gjson.GetBytes(body, "error.error_subcode").Int()),
		Type:       gjson.GetBytes(body, "error.type").String(),
		Message:    gjson.GetBytes(body, "error.message").String(),
		FBTraceID:  gjson.GetBytes(body, "error.fbtrace_id").String(),
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("unexpected response (HTTP %d)", statusCode)
	}

	switch {
	case e.isRateLimit():
		e.Retryable = true
	case e.Subcode == SubcodeMediaNotReady, e.Code == ErrCodeMediaNotAvailable:
		// Container still processing; the poll loop retries.
		e.Retryable = true
	case e.Code == ErrCodeAPIUnknown, e.Code == ErrCodeAPIService:
		e.Retryable = true
	case statusCode >= 500:
		e.Retryable = true
	default:
		// OAuth failures, bad parameters, rejected media: permanent
		// for this payload/account.
		e.Retryable = false
	}
	return e
}

func (e *APIError) isRateLimit() bool {
	switch e.Code {
	case ErrCodeAppRateLimit, ErrCodeUserRateLimit, ErrCodePageRateLimit,
		ErrCodeCustomRateLimit, ErrCodePublishingLimit:
		return true
	}
	return false
}

// IsRateLimit reports whether err is a quota/throttle rejection.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.isRateLimit()
}

// IsAuthError reports whether err means the stored token is no longer usable.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrCodeAccessToken || apiErr.Code == ErrCodePermissionDenied ||
		(apiErr.Type == "OAuthException" && !apiErr.isRateLimit())
}

// IsMediaNotReady reports whether err means the container has not finished
// processing yet.
func IsMediaNotReady(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Subcode == SubcodeMediaNotReady || apiErr.Code == ErrCodeMediaNotAvailable
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	// Unclassified errors (context cancellation aside) are treated as
	// transient; the worker's retry budget bounds the damage.
	return !errors.Is(err, context.Canceled)
}
