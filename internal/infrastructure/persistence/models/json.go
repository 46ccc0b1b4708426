package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON stores V as a JSON document. Postgres columns are jsonb; sqlite keeps text.
type JSON[V any] struct {
	V V
}

// NewJSON wraps v
func NewJSON[V any](v V) JSON[V] {
	return JSON[V]{V: v}
}

// Value implements driver.Valuer
func (j JSON[V]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (j *JSON[V]) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		var zero V
		j.V = zero
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("models: cannot scan %T into JSON", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &j.V)
}

// GormDataType keeps the column type portable across dialects
func (JSON[V]) GormDataType() string {
	return "json"
}
