package service

import "time"

// MediaAsset is an uploaded media object the platform can fetch by URL.
// Content-addressed per account: (account_id, sha256) is unique.
type MediaAsset struct {
	ID         string `json:"id"` // uuid
	AccountID  int64  `json:"account_id"`
	StoredPath string `json:"stored_path"` // object key in the bucket
	MediaURL   string `json:"media_url"`   // publicly fetchable URL
	Bytes      int64  `json:"bytes"`
	SHA256     string `json:"sha256"`
	ShortHash  string `json:"short_hash"`
	CreatedAt  time.Time `json:"created_at"`
}
