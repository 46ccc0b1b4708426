package shared

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"tech@example.com", true},
		{"first.last+jobs@sub.example.co", true},
		{"  padded@example.com  ", true},
		{"", false},
		{"   ", false},
		{"no-at-sign.example.com", false},
		{"two@@example.com", false},
		{"missing-domain@", false},
		{"@missing-local.com", false},
		{"spaces in@example.com", false},
		{strings.Repeat("a", 250) + "@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateEmail(tt.email))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "owner@example.com", NormalizeEmail("  Owner@Example.COM "))
}

func TestDomainError_Is(t *testing.T) {
	err := NewDomainError("NOT_FOUND", "job not found")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrInvalidState)

	de, ok := AsDomainError(err)
	assert.True(t, ok)
	assert.Equal(t, "job not found", de.Message)
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2}, 21, 2, 10)
	assert.Equal(t, 3, p.TotalPages)

	empty := NewPaginated([]int{}, 0, 1, 0)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{Page: 0, PageSize: 500}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.PageSize)
	assert.NotNil(t, f.Filters)
	assert.Equal(t, 0, f.Offset())
}
