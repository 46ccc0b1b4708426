package organization

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const (
	// APIKeyPrefix marks keys issued by this service
	APIKeyPrefix   = "cdk_"
	apiKeyIDLength = 8
)

// API key scopes
const (
	ScopeEventsWrite = "events:write"
	ScopeJobsRead    = "jobs:read"
	ScopeJobsWrite   = "jobs:write"
)

var knownScopes = map[string]bool{
	ScopeEventsWrite: true,
	ScopeJobsRead:    true,
	ScopeJobsWrite:   true,
}

// APIKey authenticates server-to-server calls for one organization.
// Format: cdk_<8-char lookup id>_<secret>. Only the SHA-256 of the full key is stored.
type APIKey struct {
	shared.BaseEntity
	OrgID      uuid.UUID
	Name       string
	LookupID   string
	KeyHash    string
	Scopes     []string
	CreatedBy  uuid.UUID
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
}

// NewAPIKey creates a key and returns it with the plaintext, which is never stored
func NewAPIKey(orgID uuid.UUID, name string, scopes []string, createdBy uuid.UUID, expiresAt *time.Time) (*APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, "", shared.InvalidInput("API key name must be between 1 and 100 characters")
	}
	if len(scopes) == 0 {
		return nil, "", shared.InvalidInput("At least one scope is required")
	}
	for _, s := range scopes {
		if !knownScopes[s] {
			return nil, "", shared.InvalidInput("Unknown scope " + s)
		}
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, "", shared.InvalidInput("Expiry must be in the future")
	}

	lookup, err := randomToken(6)
	if err != nil {
		return nil, "", err
	}
	lookup = lookup[:apiKeyIDLength]
	secret, err := randomToken(32)
	if err != nil {
		return nil, "", err
	}
	plaintext := APIKeyPrefix + lookup + "_" + secret

	key := &APIKey{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      orgID,
		Name:       name,
		LookupID:   lookup,
		KeyHash:    HashToken(plaintext),
		Scopes:     scopes,
		CreatedBy:  createdBy,
		ExpiresAt:  expiresAt,
	}
	return key, plaintext, nil
}

// ParseAPIKeyLookupID extracts the lookup id from a presented key
func ParseAPIKeyLookupID(plaintext string) (string, bool) {
	if !strings.HasPrefix(plaintext, APIKeyPrefix) {
		return "", false
	}
	rest := plaintext[len(APIKeyPrefix):]
	if len(rest) < apiKeyIDLength+2 || rest[apiKeyIDLength] != '_' {
		return "", false
	}
	return rest[:apiKeyIDLength], true
}

// Matches compares a presented key with the stored hash in constant time
func (k *APIKey) Matches(plaintext string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(plaintext)), []byte(k.KeyHash)) == 1
}

// IsActive reports whether the key is usable at now
func (k *APIKey) IsActive(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// HasScope reports whether the key was granted scope
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Revoke disables the key permanently
func (k *APIKey) Revoke(now time.Time) error {
	if k.RevokedAt != nil {
		return shared.InvalidState("API key is already revoked")
	}
	k.RevokedAt = &now
	k.UpdatedAt = now
	return nil
}

// MarkUsed records the last successful authentication
func (k *APIKey) MarkUsed(now time.Time) {
	k.LastUsedAt = &now
}

// Preview is a display-safe rendering of the key
func (k *APIKey) Preview() string {
	return APIKeyPrefix + k.LookupID + "_…"
}
