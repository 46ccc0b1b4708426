// Package attachment hands out presigned URLs for files attached to jobs,
// quotes, invoices and customers. File bytes never pass through the API.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllowedContentTypes is the upload whitelist. SVG is excluded because it can carry script.
var AllowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/heic": true,
	"video/mp4":  true,

	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,

	"text/plain": true,
	"text/csv":   true,
}

// Scope is the kind of record a file belongs to
type Scope string

const (
	ScopeJob      Scope = "jobs"
	ScopeQuote    Scope = "quotes"
	ScopeInvoice  Scope = "invoices"
	ScopeCustomer Scope = "customers"
)

// OwnerCheck returns NOT_FOUND when the record does not exist in the org
type OwnerCheck func(ctx context.Context, orgID, id uuid.UUID) error

// Service issues presigned upload and download URLs under orgs/<org_id>/
type Service struct {
	store   storage.ObjectStore
	owners  map[Scope]OwnerCheck
	maxSize int64
	logger  *zap.Logger
}

// NewService creates the service. owners maps each supported scope to a
// lookup of its records; scopes without a check are rejected.
func NewService(store storage.ObjectStore, owners map[Scope]OwnerCheck, maxSize int64, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		owners:  owners,
		maxSize: maxSize,
		logger:  logger,
	}
}

// CreateUploadURL validates the file and presigns a PUT for it
func (s *Service) CreateUploadURL(ctx context.Context, orgID uuid.UUID, req UploadURLRequest) (*UploadURLResponse, error) {
	scope := Scope(req.Scope)
	check, ok := s.owners[scope]
	if !ok {
		return nil, shared.InvalidInput("Unsupported attachment scope " + req.Scope)
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return nil, shared.InvalidInput("owner_id must be a UUID")
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !AllowedContentTypes[contentType] {
		return nil, shared.InvalidInput(fmt.Sprintf("Content type %q is not allowed", req.ContentType))
	}
	if req.Size <= 0 {
		return nil, shared.InvalidInput("size must be positive")
	}
	if s.maxSize > 0 && req.Size > s.maxSize {
		return nil, shared.InvalidInput(fmt.Sprintf("Files are limited to %d bytes", s.maxSize))
	}
	fileName := sanitizeFileName(req.FileName)
	if fileName == "" {
		return nil, shared.InvalidInput("file_name is required")
	}

	if err := check(ctx, orgID, ownerID); err != nil {
		return nil, err
	}

	key := storageKey(orgID, scope, ownerID, fileName)
	presigned, err := s.store.PresignUpload(ctx, key, contentType, req.Size)
	if err != nil {
		return nil, s.storageError("presign upload", err)
	}
	s.logger.Info("Attachment upload URL issued",
		zap.String("org_id", orgID.String()),
		zap.String("key", key),
		zap.Int64("size", req.Size))
	return &UploadURLResponse{Key: key, FileName: fileName, Upload: *presigned}, nil
}

// CreateDownloadURL presigns a GET for a key owned by the org
func (s *Service) CreateDownloadURL(ctx context.Context, orgID uuid.UUID, key string) (*DownloadURLResponse, error) {
	if err := checkKey(orgID, key); err != nil {
		return nil, err
	}
	presigned, err := s.store.PresignDownload(ctx, key, displayName(key))
	if err != nil {
		return nil, s.storageError("presign download", err)
	}
	return &DownloadURLResponse{Key: key, Download: *presigned}, nil
}

// Delete removes a file owned by the org
func (s *Service) Delete(ctx context.Context, orgID uuid.UUID, key string) error {
	if err := checkKey(orgID, key); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return s.storageError("delete", err)
	}
	s.logger.Info("Attachment deleted", zap.String("org_id", orgID.String()), zap.String("key", key))
	return nil
}

func (s *Service) storageError(op string, err error) error {
	if errors.Is(err, storage.ErrNotConfigured) {
		return shared.InvalidState("Attachment storage is not configured")
	}
	s.logger.Error("Object storage call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("attachment %s: %w", op, err)
}

// storageKey builds orgs/{org}/{scope}/{owner}/{uuid}-{name}
func storageKey(orgID uuid.UUID, scope Scope, ownerID uuid.UUID, fileName string) string {
	return fmt.Sprintf("orgs/%s/%s/%s/%s-%s", orgID, scope, ownerID, uuid.New(), fileName)
}

// checkKey accepts only clean keys under the org's prefix
func checkKey(orgID uuid.UUID, key string) error {
	if key == "" {
		return shared.InvalidInput("key is required")
	}
	if path.Clean(key) != key || strings.Contains(key, "..") {
		return shared.InvalidInput("Invalid attachment key")
	}
	prefix := "orgs/" + orgID.String() + "/"
	if !strings.HasPrefix(key, prefix) {
		return shared.NotFound("Attachment")
	}
	parts := strings.Split(strings.TrimPrefix(key, prefix), "/")
	if len(parts) != 3 {
		return shared.InvalidInput("Invalid attachment key")
	}
	return nil
}

// displayName strips the uniqueness prefix from the stored file name
func displayName(key string) string {
	base := path.Base(key)
	if len(base) > 37 && base[36] == '-' {
		if _, err := uuid.Parse(base[:36]); err == nil {
			return base[37:]
		}
	}
	return base
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > 120 {
		ext := filepath.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:120-len(ext)] + ext
	}
	return out
}
