package models

import (
	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
)

// CustomerModel maps crm.Customer
type CustomerModel struct {
	OrgAggregateModel
	Name     string `gorm:"type:varchar(200);not null"`
	Email    string `gorm:"type:varchar(254);index"`
	Phone    string `gorm:"type:varchar(32)"`
	Company  string `gorm:"type:varchar(200)"`
	Address  JSON[valueobject.Address]
	Notes    string `gorm:"type:text"`
	Tags     JSON[[]string]
	Archived bool `gorm:"not null;default:false"`
}

func (CustomerModel) TableName() string { return "customers" }

func (m *CustomerModel) ToDomain() *crm.Customer {
	return &crm.Customer{
		OrgAggregateRoot: m.toOrgAggregate(),
		Name:             m.Name,
		Email:            m.Email,
		Phone:            m.Phone,
		Company:          m.Company,
		Address:          m.Address.V,
		Notes:            m.Notes,
		Tags:             m.Tags.V,
		Archived:         m.Archived,
	}
}

func CustomerModelFromDomain(c *crm.Customer) *CustomerModel {
	m := &CustomerModel{
		Name:     c.Name,
		Email:    c.Email,
		Phone:    c.Phone,
		Company:  c.Company,
		Address:  NewJSON(c.Address),
		Notes:    c.Notes,
		Tags:     NewJSON(c.Tags),
		Archived: c.Archived,
	}
	m.fromOrgAggregate(c.OrgAggregateRoot)
	return m
}
