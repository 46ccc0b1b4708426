// Package storage issues presigned S3 URLs for job and invoice attachments.
// Clients upload and download directly against the bucket.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by Disabled
var ErrNotConfigured = errors.New("object storage is not configured")

// PresignedURL is a time-limited URL plus the headers the client must send with it
type PresignedURL struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// ObjectStore is what the attachment service needs from a bucket
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string, size int64) (*PresignedURL, error)
	PresignDownload(ctx context.Context, key, filename string) (*PresignedURL, error)
	Delete(ctx context.Context, key string) error
}

// Disabled rejects every call; it is used when storage.enabled is false
type Disabled struct{}

func (Disabled) PresignUpload(context.Context, string, string, int64) (*PresignedURL, error) {
	return nil, ErrNotConfigured
}

func (Disabled) PresignDownload(context.Context, string, string) (*PresignedURL, error) {
	return nil, ErrNotConfigured
}

func (Disabled) Delete(context.Context, string) error {
	return ErrNotConfigured
}

var _ ObjectStore = Disabled{}
