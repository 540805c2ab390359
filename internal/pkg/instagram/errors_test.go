package instagram

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      int
		wantRetryable bool
	}{
		{
			name:          "user rate limit",
			status:        400,
			body:          `{"error":{"message":"User request limit reached","type":"OAuthException","code":17,"fbtrace_id":"AbCd"}}`,
			wantCode:      17,
			wantRetryable: true,
		},
		{
			name:          "application publishing limit",
			status:        400,
			body:          `{"error":{"message":"Application request limit reached","type":"OAuthException","code":9}}`,
			wantCode:      9,
			wantRetryable: true,
		},
		{
			name:          "invalid token",
			status:        401,
			body:          `{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`,
			wantCode:      190,
			wantRetryable: false,
		},
		{
			name:          "media not ready subcode",
			status:        400,
			body:          `{"error":{"message":"Media ID is not available","type":"OAuthException","code":9007,"error_subcode":2207027}}`,
			wantCode:      9007,
			wantRetryable: true,
		},
		{
			name:          "unsupported media format",
			status:        400,
			body:          `{"error":{"message":"The video file you selected is in a format that we don't support","type":"OAuthException","code":100,"error_subcode":2207026}}`,
			wantCode:      100,
			wantRetryable: false,
		},
		{
			name:          "server error without body",
			status:        500,
			body:          ``,
			wantCode:      0,
			wantRetryable: true,
		},
		{
			name:          "unknown api error",
			status:        400,
			body:          `{"error":{"message":"An unknown error occurred","type":"FacebookApiException","code":1}}`,
			wantCode:      1,
			wantRetryable: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := classify(tc.status, []byte(tc.body))
			if got.Code != tc.wantCode {
				t.Fatalf("classify() code = %d, want %d", got.Code, tc.wantCode)
			}
			if got.Retryable != tc.wantRetryable {
				t.Fatalf("classify() retryable = %v, want %v", got.Retryable, tc.wantRetryable)
			}
			if got.Message == "" {
				t.Fatal("classify() produced empty message")
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	rateLimited := classify(400, []byte(`{"error":{"code":4,"type":"OAuthException","message":"limit"}}`))
	if !IsRateLimit(rateLimited) {
		t.Fatal("code 4 should be a rate limit")
	}
	if IsAuthError(rateLimited) {
		t.Fatal("rate limit must not classify as auth error")
	}

	badToken := classify(401, []byte(`{"error":{"code":190,"type":"OAuthException","message":"expired"}}`))
	if !IsAuthError(badToken) {
		t.Fatal("code 190 should be an auth error")
	}
	if IsRetryable(badToken) {
		t.Fatal("auth errors are terminal")
	}

	notReady := classify(400, []byte(`{"error":{"code":9007,"error_subcode":2207027,"message":"not ready"}}`))
	if !IsMediaNotReady(notReady) {
		t.Fatal("subcode 2207027 should be media-not-ready")
	}

	if !IsRetryable(errors.New("dial tcp: connection refused")) {
		t.Fatal("plain transport errors should be retryable")
	}
}
