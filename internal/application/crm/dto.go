package crm

import (
	"time"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// CustomerRequest is the body for creating or replacing a customer
type CustomerRequest struct {
	Name    string              `json:"name" binding:"required,min=1,max=200"`
	Email   string              `json:"email" binding:"omitempty,email,max=254"`
	Phone   string              `json:"phone" binding:"max=50"`
	Company string              `json:"company" binding:"max=200"`
	Address valueobject.Address `json:"address"`
	Notes   string              `json:"notes" binding:"max=5000"`
	Tags    []string            `json:"tags" binding:"max=20"`
}

func (r CustomerRequest) details() crm.CustomerDetails {
	return crm.CustomerDetails{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Company: r.Company,
		Address: r.Address,
		Notes:   r.Notes,
		Tags:    r.Tags,
	}
}

// CustomerListFilter narrows GET /customers
type CustomerListFilter struct {
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Search          string `form:"search"`
	Tag             string `form:"tag"`
	OrderBy         string `form:"order_by"`
	OrderDir        string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	IncludeArchived bool   `form:"include_archived"`
}

// CustomerResponse represents a customer in API responses
type CustomerResponse struct {
	ID        uuid.UUID           `json:"id"`
	Name      string              `json:"name"`
	Email     string              `json:"email,omitempty"`
	Phone     string              `json:"phone,omitempty"`
	Company   string              `json:"company,omitempty"`
	Address   valueobject.Address `json:"address"`
	Notes     string              `json:"notes,omitempty"`
	Tags      []string            `json:"tags"`
	Archived  bool                `json:"archived"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Version   int                 `json:"version"`
}

// ToCustomerResponse converts a domain customer to its API view
func ToCustomerResponse(c *crm.Customer) CustomerResponse {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return CustomerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Company:   c.Company,
		Address:   c.Address,
		Notes:     c.Notes,
		Tags:      tags,
		Archived:  c.Archived,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Version:   c.Version,
	}
}
