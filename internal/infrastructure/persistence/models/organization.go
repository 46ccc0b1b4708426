package models

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrganizationModel maps organization.Organization
type OrganizationModel struct {
	AggregateModel
	Name                 string               `gorm:"type:varchar(200);not null"`
	Slug                 string               `gorm:"type:varchar(48);not null;uniqueIndex"`
	OwnerID              uuid.UUID            `gorm:"type:uuid;not null;index"`
	Timezone             string               `gorm:"type:varchar(64);not null;default:'UTC'"`
	Currency             valueobject.Currency `gorm:"type:varchar(3);not null"`
	Locale               string               `gorm:"type:varchar(16);not null"`
	Phone                string               `gorm:"type:varchar(32)"`
	Email                string               `gorm:"type:varchar(254)"`
	Address              JSON[valueobject.Address]
	Plan                 organization.Plan   `gorm:"type:varchar(20);not null;default:'free'"`
	Status               organization.Status `gorm:"type:varchar(20);not null;default:'active'"`
	InvoicePrefix        string              `gorm:"type:varchar(10);not null"`
	QuotePrefix          string              `gorm:"type:varchar(10);not null"`
	DefaultTaxRate       decimal.Decimal     `gorm:"type:decimal(7,4);not null;default:0"`
	PaymentTermsDays     int                 `gorm:"not null"`
	QuoteValidDays       int                 `gorm:"not null;default:30"`
	StripeAccountID      string              `gorm:"type:varchar(64);index"`
	StripeChargesEnabled bool                `gorm:"not null;default:false"`
	StripePayoutsEnabled bool                `gorm:"not null;default:false"`
	StripeCustomerID     string              `gorm:"type:varchar(64);index"`
	ApplicationFeeBps    int                 `gorm:"not null;default:0"`
}

func (OrganizationModel) TableName() string { return "organizations" }

func (m *OrganizationModel) ToDomain() *organization.Organization {
	return &organization.Organization{
		BaseAggregateRoot: m.toAggregate(),
		Name:              m.Name,
		Slug:              m.Slug,
		OwnerID:           m.OwnerID,
		Timezone:          m.Timezone,
		Currency:          m.Currency,
		Locale:            m.Locale,
		Phone:             m.Phone,
		Email:             m.Email,
		Address:           m.Address.V,
		Plan:              m.Plan,
		Status:            m.Status,
		Invoicing: organization.InvoiceSettings{
			InvoicePrefix:    m.InvoicePrefix,
			QuotePrefix:      m.QuotePrefix,
			DefaultTaxRate:   m.DefaultTaxRate,
			PaymentTermsDays: m.PaymentTermsDays,
			QuoteValidDays:   m.QuoteValidDays,
		},
		StripeAccountID:      m.StripeAccountID,
		StripeChargesEnabled: m.StripeChargesEnabled,
		StripePayoutsEnabled: m.StripePayoutsEnabled,
		StripeCustomerID:     m.StripeCustomerID,
		ApplicationFeeBps:    m.ApplicationFeeBps,
	}
}

func OrganizationModelFromDomain(o *organization.Organization) *OrganizationModel {
	m := &OrganizationModel{
		Name:                 o.Name,
		Slug:                 o.Slug,
		OwnerID:              o.OwnerID,
		Timezone:             o.Timezone,
		Currency:             o.Currency,
		Locale:               o.Locale,
		Phone:                o.Phone,
		Email:                o.Email,
		Address:              NewJSON(o.Address),
		Plan:                 o.Plan,
		Status:               o.Status,
		InvoicePrefix:        o.Invoicing.InvoicePrefix,
		QuotePrefix:          o.Invoicing.QuotePrefix,
		DefaultTaxRate:       o.Invoicing.DefaultTaxRate,
		PaymentTermsDays:     o.Invoicing.PaymentTermsDays,
		QuoteValidDays:       o.Invoicing.QuoteValidDays,
		StripeAccountID:      o.StripeAccountID,
		StripeChargesEnabled: o.StripeChargesEnabled,
		StripePayoutsEnabled: o.StripePayoutsEnabled,
		StripeCustomerID:     o.StripeCustomerID,
		ApplicationFeeBps:    o.ApplicationFeeBps,
	}
	m.fromAggregate(o.BaseAggregateRoot)
	return m
}

// MemberModel maps organization.Member
type MemberModel struct {
	BaseModel
	OrgID    uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_members_org_user,priority:1"`
	UserID   uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_members_org_user,priority:2;index"`
	Role     organization.Role         `gorm:"type:varchar(20);not null"`
	Status   organization.MemberStatus `gorm:"type:varchar(20);not null;default:'active'"`
	Color    string                    `gorm:"type:varchar(16)"`
	JoinedAt time.Time                 `gorm:"not null"`
}

func (MemberModel) TableName() string { return "members" }

func (m *MemberModel) ToDomain() *organization.Member {
	return &organization.Member{
		BaseEntity: m.toEntity(),
		OrgID:      m.OrgID,
		UserID:     m.UserID,
		Role:       m.Role,
		Status:     m.Status,
		Color:      m.Color,
		JoinedAt:   m.JoinedAt,
	}
}

func MemberModelFromDomain(mem *organization.Member) *MemberModel {
	m := &MemberModel{
		OrgID:    mem.OrgID,
		UserID:   mem.UserID,
		Role:     mem.Role,
		Status:   mem.Status,
		Color:    mem.Color,
		JoinedAt: mem.JoinedAt,
	}
	m.fromEntity(mem.BaseEntity)
	return m
}

// MemberViewRow is the members-join-users projection
type MemberViewRow struct {
	MemberModel
	Email string
	Name  string
	Phone string
}

func (r *MemberViewRow) ToDomain() organization.MemberView {
	return organization.MemberView{
		Member: *r.MemberModel.ToDomain(),
		Email:  r.Email,
		Name:   r.Name,
		Phone:  r.Phone,
	}
}

// InvitationModel maps organization.Invitation
type InvitationModel struct {
	BaseModel
	OrgID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	Email      string            `gorm:"type:varchar(254);not null"`
	Role       organization.Role `gorm:"type:varchar(20);not null"`
	TokenHash  string            `gorm:"type:varchar(64);not null;uniqueIndex"`
	InvitedBy  uuid.UUID         `gorm:"type:uuid;not null"`
	ExpiresAt  time.Time         `gorm:"not null"`
	AcceptedAt *time.Time
	RevokedAt  *time.Time
}

func (InvitationModel) TableName() string { return "invitations" }

func (m *InvitationModel) ToDomain() *organization.Invitation {
	return &organization.Invitation{
		BaseEntity: m.toEntity(),
		OrgID:      m.OrgID,
		Email:      m.Email,
		Role:       m.Role,
		TokenHash:  m.TokenHash,
		InvitedBy:  m.InvitedBy,
		ExpiresAt:  m.ExpiresAt,
		AcceptedAt: m.AcceptedAt,
		RevokedAt:  m.RevokedAt,
	}
}

func InvitationModelFromDomain(i *organization.Invitation) *InvitationModel {
	m := &InvitationModel{
		OrgID:      i.OrgID,
		Email:      i.Email,
		Role:       i.Role,
		TokenHash:  i.TokenHash,
		InvitedBy:  i.InvitedBy,
		ExpiresAt:  i.ExpiresAt.UTC(),
		AcceptedAt: i.AcceptedAt,
		RevokedAt:  i.RevokedAt,
	}
	m.fromEntity(i.BaseEntity)
	return m
}

// APIKeyModel maps organization.APIKey
type APIKeyModel struct {
	BaseModel
	OrgID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Name       string    `gorm:"type:varchar(100);not null"`
	LookupID   string    `gorm:"type:varchar(16);not null;uniqueIndex"`
	KeyHash    string    `gorm:"type:varchar(64);not null"`
	Scopes     JSON[[]string]
	CreatedBy  uuid.UUID `gorm:"type:uuid;not null"`
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
}

func (APIKeyModel) TableName() string { return "api_keys" }

func (m *APIKeyModel) ToDomain() *organization.APIKey {
	return &organization.APIKey{
		BaseEntity: m.toEntity(),
		OrgID:      m.OrgID,
		Name:       m.Name,
		LookupID:   m.LookupID,
		KeyHash:    m.KeyHash,
		Scopes:     m.Scopes.V,
		CreatedBy:  m.CreatedBy,
		LastUsedAt: m.LastUsedAt,
		ExpiresAt:  m.ExpiresAt,
		RevokedAt:  m.RevokedAt,
	}
}

func APIKeyModelFromDomain(k *organization.APIKey) *APIKeyModel {
	m := &APIKeyModel{
		OrgID:      k.OrgID,
		Name:       k.Name,
		LookupID:   k.LookupID,
		KeyHash:    k.KeyHash,
		Scopes:     NewJSON(k.Scopes),
		CreatedBy:  k.CreatedBy,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  utcPtr(k.ExpiresAt),
		RevokedAt:  k.RevokedAt,
	}
	m.fromEntity(k.BaseEntity)
	return m
}

// SequenceModel is a per-organization document counter
type SequenceModel struct {
	OrgID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(32);primaryKey"`
	Value     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SequenceModel) TableName() string { return "document_sequences" }
