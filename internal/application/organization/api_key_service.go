package organization

import (
	"context"
	"errors"
	"time"

	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// lastUsedResolution limits last_used_at writes to one per key per minute
const lastUsedResolution = time.Minute

var errInvalidAPIKey = shared.NewDomainError("UNAUTHORIZED", "Invalid API key")

// ListAPIKeys returns the organization's keys, newest first
func (s *OrganizationService) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]APIKeyResult, error) {
	keys, err := s.apiKeyRepo.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]APIKeyResult, len(keys))
	for i, k := range keys {
		out[i] = toAPIKeyResult(k)
	}
	return out, nil
}

// CreateAPIKey issues a key. The plaintext is in the result and never stored.
func (s *OrganizationService) CreateAPIKey(ctx context.Context, input CreateAPIKeyInput) (*APIKeyResult, error) {
	key, plaintext, err := organization.NewAPIKey(input.OrgID, input.Name, input.Scopes, input.CreatedBy, input.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.apiKeyRepo.Save(ctx, key); err != nil {
		return nil, err
	}
	s.logger.Info("API key created",
		zap.String("org_id", input.OrgID.String()),
		zap.String("key_id", key.ID.String()),
		zap.Strings("scopes", key.Scopes))
	result := toAPIKeyResult(key)
	result.Key = plaintext
	return &result, nil
}

// RevokeAPIKey disables a key permanently
func (s *OrganizationService) RevokeAPIKey(ctx context.Context, orgID, id uuid.UUID) error {
	key, err := s.apiKeyRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := key.Revoke(s.now()); err != nil {
		return err
	}
	if err := s.apiKeyRepo.Save(ctx, key); err != nil {
		return err
	}
	s.logger.Info("API key revoked", zap.String("org_id", orgID.String()), zap.String("key_id", id.String()))
	return nil
}

// AuthenticateAPIKey resolves a presented key to its active record. Every
// failure returns the same error so callers cannot probe which part was wrong.
func (s *OrganizationService) AuthenticateAPIKey(ctx context.Context, plaintext string) (*organization.APIKey, error) {
	lookup, ok := organization.ParseAPIKeyLookupID(plaintext)
	if !ok {
		return nil, errInvalidAPIKey
	}
	key, err := s.apiKeyRepo.FindByLookupID(ctx, lookup)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errInvalidAPIKey
		}
		return nil, err
	}
	now := s.now()
	if !key.Matches(plaintext) || !key.IsActive(now) {
		return nil, errInvalidAPIKey
	}

	org, err := s.orgRepo.FindByID(ctx, key.OrgID)
	if err != nil {
		return nil, err
	}
	if !org.IsActive() {
		return nil, shared.Forbidden("This organization is suspended")
	}

	if key.LastUsedAt == nil || now.Sub(*key.LastUsedAt) >= lastUsedResolution {
		key.MarkUsed(now)
		if err := s.apiKeyRepo.Save(ctx, key); err != nil {
			s.logger.Warn("Failed to record API key use", zap.String("key_id", key.ID.String()), zap.Error(err))
		}
	}
	return key, nil
}
