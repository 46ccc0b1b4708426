package organization

import (
	"testing"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrganization(t *testing.T) {
	owner := uuid.New()

	t.Run("defaults", func(t *testing.T) {
		org, err := NewOrganization("Acme Plumbing", "Acme-Plumbing", owner)
		require.NoError(t, err)
		assert.Equal(t, "acme-plumbing", org.Slug)
		assert.Equal(t, PlanFree, org.Plan)
		assert.Equal(t, valueobject.USD, org.Currency)
		assert.Equal(t, "INV", org.Invoicing.InvoicePrefix)
		assert.True(t, org.IsActive())
		require.Len(t, org.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeOrganizationCreated, org.GetDomainEvents()[0].EventType())
		assert.Equal(t, org.ID, org.GetDomainEvents()[0].OrgID())
	})

	tests := []struct {
		name  string
		oname string
		slug  string
		owner uuid.UUID
	}{
		{"empty name", "", "acme", owner},
		{"short slug", "Acme", "ab", owner},
		{"slug with underscore", "Acme", "acme_hvac", owner},
		{"slug ends with dash", "Acme", "acme-", owner},
		{"nil owner", "Acme", "acme", uuid.Nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrganization(tt.oname, tt.slug, tt.owner)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "joe-s-hvac-repair", Slugify("Joe's HVAC & Repair!"))
	assert.Equal(t, "ab0", Slugify("AB"))
	assert.Equal(t, "000", Slugify("!!!"))
	assert.LessOrEqual(t, len(Slugify("a very long business name that keeps going and going forever")), 48)
}

func TestOrganization_UpdateProfile(t *testing.T) {
	org, err := NewOrganization("Acme", "acme", uuid.New())
	require.NoError(t, err)

	err = org.UpdateProfile("Acme Inc", "America/Chicago", "en-US", "+15550001111", "Office@Acme.com",
		valueobject.Address{Line1: "1 Main St", City: "Austin", Country: "us"})
	require.NoError(t, err)
	assert.Equal(t, "office@acme.com", org.Email)
	assert.Equal(t, "US", org.Address.Country)
	assert.Equal(t, "America/Chicago", org.Location().String())

	assert.Error(t, org.UpdateProfile("Acme", "Mars/Olympus", "", "", "", valueobject.Address{}))
	assert.Error(t, org.UpdateProfile("Acme", "", "", "", "bad", valueobject.Address{}))
	assert.Error(t, org.UpdateProfile("Acme", "", "", "", "", valueobject.Address{City: "Austin"}))
}

func TestOrganization_UpdateInvoicing(t *testing.T) {
	org, _ := NewOrganization("Acme", "acme", uuid.New())

	s := DefaultInvoiceSettings()
	s.DefaultTaxRate = decimal.RequireFromString("8.25")
	require.NoError(t, org.UpdateInvoicing(s))

	s.DefaultTaxRate = decimal.NewFromInt(101)
	assert.Error(t, org.UpdateInvoicing(s))

	s = DefaultInvoiceSettings()
	s.InvoicePrefix = ""
	assert.Error(t, org.UpdateInvoicing(s))
}

func TestOrganization_Stripe(t *testing.T) {
	org, _ := NewOrganization("Acme", "acme", uuid.New())
	org.ClearDomainEvents()

	assert.Error(t, org.ConnectStripeAccount("cus_123"))
	require.NoError(t, org.ConnectStripeAccount("acct_123"))
	assert.False(t, org.CanAcceptCardPayments())
	require.NoError(t, org.ConnectStripeAccount("acct_123"))
	assert.ErrorIs(t, org.ConnectStripeAccount("acct_999"), shared.ErrInvalidState)

	org.UpdateStripeCapabilities(true, false)
	assert.True(t, org.CanAcceptCardPayments())
	assert.NotEmpty(t, org.GetDomainEvents())
}

func TestOrganization_ChangePlan(t *testing.T) {
	org, _ := NewOrganization("Acme", "acme", uuid.New())
	org.ClearDomainEvents()

	require.NoError(t, org.ChangePlan(PlanPro))
	require.Len(t, org.GetDomainEvents(), 1)
	evt := org.GetDomainEvents()[0].(*PlanChangedEvent)
	assert.Equal(t, PlanFree, evt.PreviousPlan)

	require.NoError(t, org.ChangePlan(PlanPro))
	assert.Len(t, org.GetDomainEvents(), 1)
	assert.Error(t, org.ChangePlan("platinum"))

	assert.Equal(t, 25, PlanPro.MaxMembers())
	assert.Equal(t, 0, PlanBusiness.MaxMembers())
}

func TestRole_Allows(t *testing.T) {
	assert.True(t, RoleOwner.Allows(PermManageBilling))
	assert.False(t, RoleAdmin.Allows(PermManageBilling))
	assert.True(t, RoleDispatcher.Allows(PermDispatchJobs))
	assert.False(t, RoleTechnician.Allows(PermDispatchJobs))
	assert.True(t, RoleTechnician.Allows(PermWorkJobs))
	assert.False(t, RoleViewer.Allows(PermWorkJobs))
	assert.False(t, Role("ghost").Allows(PermRead))
}

func TestMember_Invariants(t *testing.T) {
	orgID := uuid.New()
	owner, err := NewMember(orgID, uuid.New(), RoleOwner)
	require.NoError(t, err)
	tech, err := NewMember(orgID, uuid.New(), RoleTechnician)
	require.NoError(t, err)

	_, err = NewMember(orgID, uuid.New(), "boss")
	assert.Error(t, err)

	assert.ErrorIs(t, owner.ChangeRole(RoleAdmin), shared.ErrInvalidState)
	assert.ErrorIs(t, tech.ChangeRole(RoleOwner), shared.ErrInvalidState)
	require.NoError(t, tech.ChangeRole(RoleDispatcher))

	assert.Error(t, owner.CanBeRemoved())
	assert.NoError(t, tech.CanBeRemoved())
	assert.Error(t, owner.Suspend())

	require.NoError(t, tech.Suspend())
	assert.False(t, tech.Can(PermRead))
	tech.Reactivate()
	assert.True(t, tech.Can(PermDispatchJobs))
}

func TestTransferOwnership(t *testing.T) {
	ownerUser := uuid.New()
	org, _ := NewOrganization("Acme", "acme", ownerUser)
	owner, _ := NewMember(org.ID, ownerUser, RoleOwner)
	admin, _ := NewMember(org.ID, uuid.New(), RoleAdmin)
	outsider, _ := NewMember(uuid.New(), uuid.New(), RoleAdmin)

	assert.Error(t, TransferOwnership(org, owner, outsider))
	assert.Error(t, TransferOwnership(org, admin, owner))
	assert.Error(t, TransferOwnership(org, owner, owner))

	require.NoError(t, TransferOwnership(org, owner, admin))
	assert.Equal(t, RoleAdmin, owner.Role)
	assert.Equal(t, RoleOwner, admin.Role)
	assert.Equal(t, admin.UserID, org.OwnerID)
}

func TestInvitation(t *testing.T) {
	now := time.Now()
	orgID := uuid.New()

	_, _, err := NewInvitation(orgID, "x@y.co", RoleOwner, uuid.New(), now)
	assert.Error(t, err)
	_, _, err = NewInvitation(orgID, "nope", RoleTechnician, uuid.New(), now)
	assert.Error(t, err)

	inv, token, err := NewInvitation(orgID, "New.Tech@Example.com", RoleTechnician, uuid.New(), now)
	require.NoError(t, err)
	assert.Equal(t, "new.tech@example.com", inv.Email)
	assert.Equal(t, HashToken(token), inv.TokenHash)
	assert.NotEqual(t, token, inv.TokenHash)
	assert.True(t, inv.IsPending(now))

	assert.ErrorIs(t, inv.Accept(now.Add(InvitationTTL)), shared.ErrInvalidState)
	require.NoError(t, inv.Accept(now.Add(time.Hour)))
	assert.Error(t, inv.Accept(now.Add(2*time.Hour)))
	assert.Error(t, inv.Revoke(now))
	assert.False(t, inv.IsPending(now))

	inv2, _, _ := NewInvitation(orgID, "b@y.co", RoleViewer, uuid.New(), now)
	require.NoError(t, inv2.Revoke(now))
	assert.Error(t, inv2.Accept(now))
}

func TestAPIKey(t *testing.T) {
	orgID := uuid.New()

	_, _, err := NewAPIKey(orgID, "zapier", nil, uuid.New(), nil)
	assert.Error(t, err)
	_, _, err = NewAPIKey(orgID, "zapier", []string{"admin:all"}, uuid.New(), nil)
	assert.Error(t, err)
	past := time.Now().Add(-time.Hour)
	_, _, err = NewAPIKey(orgID, "zapier", []string{ScopeJobsRead}, uuid.New(), &past)
	assert.Error(t, err)

	key, plaintext, err := NewAPIKey(orgID, "zapier", []string{ScopeEventsWrite, ScopeJobsRead}, uuid.New(), nil)
	require.NoError(t, err)
	assert.True(t, len(plaintext) > 40)
	assert.Len(t, key.LookupID, 8)

	lookup, ok := ParseAPIKeyLookupID(plaintext)
	require.True(t, ok)
	assert.Equal(t, key.LookupID, lookup)
	assert.True(t, key.Matches(plaintext))
	assert.False(t, key.Matches(plaintext+"x"))
	assert.True(t, key.HasScope(ScopeJobsRead))
	assert.False(t, key.HasScope(ScopeJobsWrite))
	assert.NotContains(t, key.Preview(), plaintext[len(APIKeyPrefix)+9:])

	now := time.Now()
	assert.True(t, key.IsActive(now))
	require.NoError(t, key.Revoke(now))
	assert.False(t, key.IsActive(now))
	assert.Error(t, key.Revoke(now))

	_, ok = ParseAPIKeyLookupID("sk_live_abc")
	assert.False(t, ok)
	_, ok = ParseAPIKeyLookupID("cdk_short")
	assert.False(t, ok)
}
