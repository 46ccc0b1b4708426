package crm

import (
	"strings"
	"testing"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCustomer(t *testing.T) {
	orgID := uuid.New()

	c, err := NewCustomer(orgID, CustomerDetails{
		Name:    "  Dana Homeowner ",
		Email:   "Dana@Example.com",
		Phone:   "+15550001234",
		Address: valueobject.Address{Line1: "9 Elm", City: "Austin", Country: "us"},
		Tags:    []string{"VIP", "vip", " ", "residential"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Dana Homeowner", c.Name)
	assert.Equal(t, "dana@example.com", c.Email)
	assert.Equal(t, []string{"vip", "residential"}, c.Tags)
	assert.Equal(t, "US", c.Address.Country)
	assert.Equal(t, orgID, c.OrgID)

	events := c.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeCustomerCreated, events[0].EventType())

	payload, err := shared.EventPayload(events[0])
	require.NoError(t, err)
	assert.Equal(t, "Dana Homeowner", payload["name"])
	assert.Equal(t, orgID.String(), payload["org_id"])
}

func TestNewCustomer_Validation(t *testing.T) {
	tests := []struct {
		name string
		d    CustomerDetails
	}{
		{"missing name", CustomerDetails{}},
		{"bad email", CustomerDetails{Name: "A", Email: "a@"}},
		{"partial address", CustomerDetails{Name: "A", Address: valueobject.Address{Line1: "1 Main"}}},
		{"huge notes", CustomerDetails{Name: "A", Notes: strings.Repeat("x", 5001)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCustomer(uuid.New(), tt.d)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

func TestCustomer_UpdateAndArchive(t *testing.T) {
	c, err := NewCustomer(uuid.New(), CustomerDetails{Name: "Dana"})
	require.NoError(t, err)
	c.ClearDomainEvents()

	require.NoError(t, c.Update(CustomerDetails{Name: "Dana R", Company: "Dana LLC"}))
	assert.Equal(t, "Dana LLC", c.Company)
	assert.Equal(t, 2, c.GetVersion())
	require.Len(t, c.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeCustomerUpdated, c.GetDomainEvents()[0].EventType())

	assert.Error(t, c.Update(CustomerDetails{}))
	c.Archive()
	assert.True(t, c.Archived)
}
