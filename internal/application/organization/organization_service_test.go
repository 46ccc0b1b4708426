package organization

import (
	"context"
	"testing"
	"time"

	domain "github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/persistence"
	"github.com/crewdesk/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type serviceFixture struct {
	db     *gorm.DB
	svc    *OrganizationService
	tenant *testutil.Tenant
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	svc := NewOrganizationService(
		persistence.NewGormOrganizationRepository(db),
		persistence.NewGormMemberRepository(db),
		persistence.NewGormInvitationRepository(db),
		persistence.NewGormAPIKeyRepository(db),
		persistence.NewGormUserRepository(db),
		persistence.NewTxManager(db),
		zap.NewNop(),
	)
	return &serviceFixture{db: db, svc: svc, tenant: testutil.SeedTenant(t, db, "acme")}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "expected domain error, got %v", err)
	assert.Equal(t, code, de.Code)
}

func TestOrganizationService_Create(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	t.Run("derives a unique slug and makes the caller owner", func(t *testing.T) {
		result, err := f.svc.Create(ctx, CreateOrganizationInput{
			OwnerID:  f.tenant.Owner.ID,
			Name:     "Acme",
			Timezone: "America/Chicago",
			Currency: "EUR",
		})
		require.NoError(t, err)
		assert.Equal(t, "acme-2", result.Slug)
		assert.Equal(t, "America/Chicago", result.Timezone)
		assert.Equal(t, "EUR", result.Currency)

		access, err := f.svc.ResolveAccess(ctx, result.ID, f.tenant.Owner.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleOwner, access.Member.Role)
	})

	t.Run("explicit slug already taken", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateOrganizationInput{OwnerID: f.tenant.Owner.ID, Name: "Other", Slug: "acme"})
		requireCode(t, err, "ALREADY_EXISTS")
	})

	t.Run("rejects unknown timezone without writing", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateOrganizationInput{OwnerID: f.tenant.Owner.ID, Name: "Nowhere", Timezone: "Mars/Base"})
		requireCode(t, err, "INVALID_INPUT")
		exists, err := persistence.NewGormOrganizationRepository(f.db).ExistsBySlug(ctx, "nowhere")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestOrganizationService_Update(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	prefix := "WO"
	rate := decimal.RequireFromString("8.25")
	result, err := f.svc.Update(ctx, UpdateOrganizationInput{
		OrgID:          f.tenant.Org.ID,
		Name:           "Acme Plumbing",
		Phone:          "+15550100",
		InvoicePrefix:  &prefix,
		DefaultTaxRate: &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", result.Name)
	assert.Equal(t, "WO", result.InvoicePrefix)
	assert.Equal(t, "Q", result.QuotePrefix)
	assert.True(t, rate.Equal(result.DefaultTaxRate))

	reloaded, err := f.svc.Get(ctx, f.tenant.Org.ID)
	require.NoError(t, err)
	assert.Equal(t, "WO", reloaded.InvoicePrefix)

	empty := ""
	_, err = f.svc.Update(ctx, UpdateOrganizationInput{OrgID: f.tenant.Org.ID, Name: "Acme", QuotePrefix: &empty})
	requireCode(t, err, "INVALID_INPUT")
}

func TestOrganizationService_Members(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	tech, _ := testutil.SeedMember(t, f.db, f.tenant, "tech@example.com", domain.RoleTechnician)
	_ = tech

	t.Run("add member requires an account", func(t *testing.T) {
		_, err := f.svc.AddMember(ctx, AddMemberInput{OrgID: f.tenant.Org.ID, Email: "nobody@example.com", Role: domain.RoleViewer})
		requireCode(t, err, "NOT_FOUND")
	})

	t.Run("cannot add owner role", func(t *testing.T) {
		_, err := f.svc.AddMember(ctx, AddMemberInput{OrgID: f.tenant.Org.ID, Email: "tech@example.com", Role: domain.RoleOwner})
		requireCode(t, err, "INVALID_INPUT")
	})

	t.Run("duplicate membership", func(t *testing.T) {
		_, err := f.svc.AddMember(ctx, AddMemberInput{OrgID: f.tenant.Org.ID, Email: "TECH@example.com", Role: domain.RoleViewer})
		requireCode(t, err, "ALREADY_EXISTS")
	})

	t.Run("free plan seat limit", func(t *testing.T) {
		other := testutil.SeedTenant(t, f.db, "other")
		_, err := f.svc.AddMember(ctx, AddMemberInput{OrgID: f.tenant.Org.ID, Email: other.Owner.Email, Role: domain.RoleViewer})
		requireCode(t, err, "PAYMENT_REQUIRED")
	})

	t.Run("list includes user details", func(t *testing.T) {
		page, err := f.svc.ListMembers(ctx, f.tenant.Org.ID, shared.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		emails := make([]string, 0, len(page.Items))
		for _, m := range page.Items {
			emails = append(emails, m.Email)
		}
		assert.ElementsMatch(t, []string{"acme-owner@example.com", "tech@example.com"}, emails)
	})
}

func TestOrganizationService_RoleChanges(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, tech := testutil.SeedMember(t, f.db, f.tenant, "tech@example.com", domain.RoleTechnician)

	_, err := f.svc.ChangeRole(ctx, ChangeRoleInput{OrgID: f.tenant.Org.ID, ActorRole: domain.RoleAdmin, MemberID: tech.ID, Role: domain.RoleAdmin})
	requireCode(t, err, "FORBIDDEN")

	m, err := f.svc.ChangeRole(ctx, ChangeRoleInput{OrgID: f.tenant.Org.ID, ActorRole: domain.RoleAdmin, MemberID: tech.ID, Role: domain.RoleDispatcher})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDispatcher, m.Role)

	_, err = f.svc.ChangeRole(ctx, ChangeRoleInput{OrgID: f.tenant.Org.ID, ActorRole: domain.RoleOwner, MemberID: f.tenant.OwnerMember.ID, Role: domain.RoleAdmin})
	require.Error(t, err)

	err = f.svc.RemoveMember(ctx, f.tenant.Org.ID, domain.RoleAdmin, f.tenant.OwnerMember.ID)
	require.Error(t, err)

	require.NoError(t, f.svc.RemoveMember(ctx, f.tenant.Org.ID, domain.RoleAdmin, tech.ID))
	_, err = f.svc.ResolveAccess(ctx, f.tenant.Org.ID, tech.UserID)
	requireCode(t, err, "FORBIDDEN")
}

func TestOrganizationService_TransferOwnership(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	newOwner, member := testutil.SeedMember(t, f.db, f.tenant, "boss@example.com", domain.RoleAdmin)

	require.NoError(t, f.svc.TransferOwnership(ctx, f.tenant.Org.ID, f.tenant.Owner.ID, member.ID))

	access, err := f.svc.ResolveAccess(ctx, f.tenant.Org.ID, newOwner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, access.Member.Role)
	assert.Equal(t, newOwner.ID, access.Org.OwnerID)

	previous, err := f.svc.ResolveAccess(ctx, f.tenant.Org.ID, f.tenant.Owner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, previous.Member.Role)
}

func TestOrganizationService_Invitations(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	invitee := testutil.SeedTenant(t, f.db, "invitee")

	_, err := f.svc.CreateInvitation(ctx, CreateInvitationInput{
		OrgID: f.tenant.Org.ID, InvitedBy: f.tenant.Owner.ID, ActorRole: domain.RoleAdmin,
		Email: invitee.Owner.Email, Role: domain.RoleAdmin,
	})
	requireCode(t, err, "FORBIDDEN")

	inv, err := f.svc.CreateInvitation(ctx, CreateInvitationInput{
		OrgID: f.tenant.Org.ID, InvitedBy: f.tenant.Owner.ID, ActorRole: domain.RoleOwner,
		Email: invitee.Owner.Email, Role: domain.RoleDispatcher,
	})
	require.NoError(t, err)
	require.NotEmpty(t, inv.Token)

	pending, err := f.svc.ListInvitations(ctx, f.tenant.Org.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].Token)

	t.Run("wrong account cannot accept", func(t *testing.T) {
		_, err := f.svc.AcceptInvitation(ctx, f.tenant.Owner.ID, inv.Token)
		requireCode(t, err, "FORBIDDEN")
	})

	t.Run("accept once", func(t *testing.T) {
		member, err := f.svc.AcceptInvitation(ctx, invitee.Owner.ID, inv.Token)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleDispatcher, member.Role)

		_, err = f.svc.AcceptInvitation(ctx, invitee.Owner.ID, inv.Token)
		requireCode(t, err, "INVALID_STATE")
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.svc.AcceptInvitation(ctx, invitee.Owner.ID, "nope")
		requireCode(t, err, "NOT_FOUND")
	})

	t.Run("revoked invitation", func(t *testing.T) {
		other, err := f.svc.CreateInvitation(ctx, CreateInvitationInput{
			OrgID: f.tenant.Org.ID, InvitedBy: f.tenant.Owner.ID, ActorRole: domain.RoleOwner,
			Email: "late@example.com", Role: domain.RoleViewer,
		})
		// the free plan is full after the accepted invite
		if err != nil {
			requireCode(t, err, "PAYMENT_REQUIRED")
			return
		}
		require.NoError(t, f.svc.RevokeInvitation(ctx, f.tenant.Org.ID, other.ID))
	})
}

func TestOrganizationService_APIKeys(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	created, err := f.svc.CreateAPIKey(ctx, CreateAPIKeyInput{
		OrgID: f.tenant.Org.ID, CreatedBy: f.tenant.Owner.ID, Name: "zapier",
		Scopes: []string{domain.ScopeEventsWrite},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.Key)

	key, err := f.svc.AuthenticateAPIKey(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, f.tenant.Org.ID, key.OrgID)
	assert.True(t, key.HasScope(domain.ScopeEventsWrite))
	require.NotNil(t, key.LastUsedAt)

	_, err = f.svc.AuthenticateAPIKey(ctx, created.Key+"x")
	requireCode(t, err, "UNAUTHORIZED")
	_, err = f.svc.AuthenticateAPIKey(ctx, "garbage")
	requireCode(t, err, "UNAUTHORIZED")

	keys, err := f.svc.ListAPIKeys(ctx, f.tenant.Org.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].Key)

	require.NoError(t, f.svc.RevokeAPIKey(ctx, f.tenant.Org.ID, created.ID))
	_, err = f.svc.AuthenticateAPIKey(ctx, created.Key)
	requireCode(t, err, "UNAUTHORIZED")
}

func TestOrganizationService_ResolveAccessSuspendedOrg(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	repo := persistence.NewGormOrganizationRepository(f.db)
	org, err := repo.FindByID(ctx, f.tenant.Org.ID)
	require.NoError(t, err)
	org.Suspend()
	require.NoError(t, repo.Save(ctx, org))

	_, err = f.svc.ResolveAccess(ctx, f.tenant.Org.ID, f.tenant.Owner.ID)
	requireCode(t, err, "FORBIDDEN")
}
