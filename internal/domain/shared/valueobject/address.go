package valueobject

import (
	"errors"
	"strings"
)

// Address is a postal service location for customers and jobs
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Validate checks field lengths and that a non-empty address has a street line and city
func (a Address) Validate() error {
	if a.IsEmpty() {
		return nil
	}
	if strings.TrimSpace(a.Line1) == "" {
		return errors.New("address line1 is required")
	}
	if strings.TrimSpace(a.City) == "" {
		return errors.New("address city is required")
	}
	for _, f := range []string{a.Line1, a.Line2, a.City, a.Region, a.PostalCode} {
		if len(f) > 200 {
			return errors.New("address fields cannot exceed 200 characters")
		}
	}
	if a.Country != "" && len(a.Country) != 2 {
		return errors.New("address country must be an ISO 3166-1 alpha-2 code")
	}
	return nil
}

// IsEmpty reports whether no address field is set
func (a Address) IsEmpty() bool {
	return a.Line1 == "" && a.Line2 == "" && a.City == "" && a.Region == "" && a.PostalCode == "" && a.Country == ""
}

// Normalize trims whitespace and uppercases the country code
func (a Address) Normalize() Address {
	return Address{
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		Region:     strings.TrimSpace(a.Region),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
}

// String renders a single-line address for SMS and notifications
func (a Address) String() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.Region, a.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
