package organization

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InvitationTTL is how long an invitation link stays valid
const InvitationTTL = 7 * 24 * time.Hour

// Invitation offers a role in an organization to an email address.
// Only the token hash is stored; the plaintext goes out in the invite email or SMS.
type Invitation struct {
	shared.BaseEntity
	OrgID      uuid.UUID
	Email      string
	Role       Role
	TokenHash  string
	InvitedBy  uuid.UUID
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	RevokedAt  *time.Time
}

// NewInvitation creates an invitation and returns it with its plaintext token
func NewInvitation(orgID uuid.UUID, email string, role Role, invitedBy uuid.UUID, now time.Time) (*Invitation, string, error) {
	email = shared.NormalizeEmail(email)
	if !shared.ValidateEmail(email) {
		return nil, "", shared.InvalidInput("Invalid email format")
	}
	if !role.IsValid() || role == RoleOwner {
		return nil, "", shared.InvalidInput("Invitations cannot grant the owner role")
	}
	token, err := randomToken(32)
	if err != nil {
		return nil, "", err
	}
	inv := &Invitation{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      orgID,
		Email:      email,
		Role:       role,
		TokenHash:  HashToken(token),
		InvitedBy:  invitedBy,
		ExpiresAt:  now.Add(InvitationTTL),
	}
	return inv, token, nil
}

// Accept marks the invitation used. Each token works once.
func (i *Invitation) Accept(now time.Time) error {
	switch {
	case i.RevokedAt != nil:
		return shared.InvalidState("Invitation has been revoked")
	case i.AcceptedAt != nil:
		return shared.InvalidState("Invitation has already been accepted")
	case !now.Before(i.ExpiresAt):
		return shared.InvalidState("Invitation has expired")
	}
	i.AcceptedAt = &now
	i.UpdatedAt = now
	return nil
}

// Revoke cancels a pending invitation
func (i *Invitation) Revoke(now time.Time) error {
	if i.AcceptedAt != nil {
		return shared.InvalidState("Invitation has already been accepted")
	}
	i.RevokedAt = &now
	i.UpdatedAt = now
	return nil
}

// IsPending reports whether the invitation can still be accepted
func (i *Invitation) IsPending(now time.Time) bool {
	return i.AcceptedAt == nil && i.RevokedAt == nil && now.Before(i.ExpiresAt)
}

// HashToken returns the hex SHA-256 of a bearer token for storage and lookup
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
