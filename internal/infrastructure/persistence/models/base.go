package models

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel maps shared.BaseEntity
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (m *BaseModel) fromEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

func (m *BaseModel) toEntity() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

// AggregateModel adds the optimistic-lock version
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

func (m *AggregateModel) fromAggregate(a shared.BaseAggregateRoot) {
	m.fromEntity(a.BaseEntity)
	m.Version = a.Version
}

// toAggregate rebuilds the aggregate root and marks it as stored
func (m *AggregateModel) toAggregate() shared.BaseAggregateRoot {
	a := shared.BaseAggregateRoot{BaseEntity: m.toEntity(), Version: m.Version}
	a.MarkStored()
	return a
}

// OrgAggregateModel is an aggregate scoped to one organization
type OrgAggregateModel struct {
	AggregateModel
	OrgID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid"`
}

func (m *OrgAggregateModel) fromOrgAggregate(a shared.OrgAggregateRoot) {
	m.fromAggregate(a.BaseAggregateRoot)
	m.OrgID = a.OrgID
	m.CreatedBy = a.CreatedBy
}

func (m *OrgAggregateModel) toOrgAggregate() shared.OrgAggregateRoot {
	return shared.OrgAggregateRoot{
		BaseAggregateRoot: m.toAggregate(),
		OrgID:             m.OrgID,
		CreatedBy:         m.CreatedBy,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
