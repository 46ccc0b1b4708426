package organization

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Role is a member's role within an organization
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleDispatcher Role = "dispatcher"
	RoleTechnician Role = "technician"
	RoleViewer     Role = "viewer"
)

// Permission is a coarse capability checked by handlers
type Permission string

const (
	PermManageOrg         Permission = "org:manage"
	PermManageMembers     Permission = "members:manage"
	PermManageBilling     Permission = "billing:manage"
	PermManageCustomers   Permission = "customers:write"
	PermDispatchJobs      Permission = "jobs:dispatch"
	PermWorkJobs          Permission = "jobs:work"
	PermManageSales       Permission = "sales:write"
	PermManageAutomations Permission = "automations:manage"
	PermRead              Permission = "read"
)

var rolePermissions = map[Role][]Permission{
	RoleOwner: {PermManageOrg, PermManageMembers, PermManageBilling, PermManageCustomers,
		PermDispatchJobs, PermWorkJobs, PermManageSales, PermManageAutomations, PermRead},
	RoleAdmin: {PermManageOrg, PermManageMembers, PermManageCustomers, PermDispatchJobs,
		PermWorkJobs, PermManageSales, PermManageAutomations, PermRead},
	RoleDispatcher: {PermManageCustomers, PermDispatchJobs, PermWorkJobs, PermManageSales, PermRead},
	RoleTechnician: {PermWorkJobs, PermRead},
	RoleViewer:     {PermRead},
}

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Allows reports whether the role grants p
func (r Role) Allows(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// MemberStatus represents whether a membership is usable
type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusSuspended MemberStatus = "suspended"
)

// Member grants a user a role in an organization
type Member struct {
	shared.BaseEntity
	OrgID    uuid.UUID
	UserID   uuid.UUID
	Role     Role
	Status   MemberStatus
	Color    string
	JoinedAt time.Time
}

// NewMember creates an active membership
func NewMember(orgID, userID uuid.UUID, role Role) (*Member, error) {
	if !role.IsValid() {
		return nil, shared.InvalidInput("Unknown role " + string(role))
	}
	now := time.Now()
	return &Member{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      orgID,
		UserID:     userID,
		Role:       role,
		Status:     MemberStatusActive,
		JoinedAt:   now,
	}, nil
}

// ChangeRole assigns a new role. The owner role only moves through TransferOwnership.
func (m *Member) ChangeRole(role Role) error {
	if !role.IsValid() {
		return shared.InvalidInput("Unknown role " + string(role))
	}
	if m.Role == RoleOwner {
		return shared.InvalidState("The owner's role cannot be changed; transfer ownership first")
	}
	if role == RoleOwner {
		return shared.InvalidState("Use ownership transfer to assign the owner role")
	}
	m.Role = role
	m.Touch()
	return nil
}

// CanBeRemoved reports whether the membership may be deleted
func (m *Member) CanBeRemoved() error {
	if m.Role == RoleOwner {
		return shared.InvalidState("The organization owner cannot be removed")
	}
	return nil
}

// Suspend blocks the member's access without deleting history
func (m *Member) Suspend() error {
	if m.Role == RoleOwner {
		return shared.InvalidState("The organization owner cannot be suspended")
	}
	m.Status = MemberStatusSuspended
	m.Touch()
	return nil
}

// Reactivate restores access
func (m *Member) Reactivate() {
	m.Status = MemberStatusActive
	m.Touch()
}

// IsActive reports whether the member can act in the organization
func (m *Member) IsActive() bool {
	return m.Status == MemberStatusActive
}

// Can reports whether the active member holds permission p
func (m *Member) Can(p Permission) bool {
	return m.IsActive() && m.Role.Allows(p)
}

// TransferOwnership moves the owner role from one member to another in the
// same organization. The previous owner becomes an admin.
func TransferOwnership(org *Organization, from, to *Member) error {
	if from.OrgID != org.ID || to.OrgID != org.ID {
		return shared.InvalidInput("Both members must belong to the organization")
	}
	if from.Role != RoleOwner {
		return shared.InvalidState("Only the owner can transfer ownership")
	}
	if from.ID == to.ID {
		return shared.InvalidInput("Member already owns the organization")
	}
	if !to.IsActive() {
		return shared.InvalidState("Ownership can only be transferred to an active member")
	}
	from.Role = RoleAdmin
	from.Touch()
	to.Role = RoleOwner
	to.Touch()
	org.TransferOwnership(to.UserID)
	return nil
}
