package shared

import "github.com/google/uuid"

// ParseOptionalID parses an optional id taken from a query string.
// An empty value yields nil; anything else must be a UUID.
func ParseOptionalID(field, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, InvalidInput(field + " must be a UUID")
	}
	return &id, nil
}
