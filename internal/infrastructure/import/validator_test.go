package csvimport

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(line int, data map[string]string) *Row {
	return &Row{Line: line, Data: data}
}

func TestFieldRuleBuilder(t *testing.T) {
	rule := Field("email").Required().Email().MaxLength(254).Unique().Build()
	assert.Equal(t, FieldRule{Column: "email", Required: true, Email: true, MaxLength: 254, Unique: true}, rule)
}

func TestValidator_ValidateRow(t *testing.T) {
	v := NewValidator(
		Field("name").Required().MaxLength(5).Build(),
		Field("email").Email().Build(),
		Field("kind").OneOf("residential", "commercial").Build(),
		Field("zip").Custom(func(s string) error {
			if len(s) != 5 {
				return errors.New("zip must have 5 digits")
			}
			return nil
		}).Build(),
	)
	assert.Equal(t, []string{"name"}, v.RequiredColumns())
	assert.Equal(t, []string{"name", "email", "kind", "zip"}, v.Columns())

	tests := []struct {
		name string
		data map[string]string
		code string
	}{
		{"valid", map[string]string{"name": "Rosa", "email": "rosa@example.com", "kind": "Commercial", "zip": "10001"}, ""},
		{"optional cells may be blank", map[string]string{"name": "Rosa"}, ""},
		{"required", map[string]string{"email": "rosa@example.com"}, CodeRequired},
		{"too long counts runes", map[string]string{"name": "Zoë Ann"}, CodeTooLong},
		{"email", map[string]string{"name": "Rosa", "email": "rosa@"}, CodeInvalidFormat},
		{"one of", map[string]string{"name": "Rosa", "kind": "industrial"}, CodeInvalidValue},
		{"custom", map[string]string{"name": "Rosa", "zip": "123"}, CodeInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.ValidateRow(row(2, tt.data))
			if tt.code == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, 2, errs[0].Line)
		})
	}
}

func TestValidator_Unique(t *testing.T) {
	v := NewValidator(Field("email").Email().Unique().Build())

	assert.Empty(t, v.ValidateRow(row(2, map[string]string{"email": "rosa@example.com"})))
	assert.Empty(t, v.ValidateRow(row(3, map[string]string{"email": ""})))
	assert.Empty(t, v.ValidateRow(row(4, map[string]string{"email": ""})), "blank cells are not duplicates")

	errs := v.ValidateRow(row(5, map[string]string{"email": "ROSA@example.com"}))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeDuplicateInFile, errs[0].Code)
	assert.True(t, strings.Contains(errs[0].Message, "line 2"))
}

func TestErrors(t *testing.T) {
	errs := NewErrors(2)
	errs.Add(RowError{Line: 2, Column: "name", Code: CodeRequired, Message: "name is required"})
	errs.Add(RowError{Line: 2, Column: "email", Code: CodeInvalidFormat, Message: "invalid email address"})
	errs.Add(RowError{Line: 7, Code: CodeInvalidValue, Message: "bad address"})

	assert.Len(t, errs.Items(), 2)
	assert.Equal(t, 3, errs.Total())
	assert.True(t, errs.Truncated())
	assert.Equal(t, 2, errs.Rows())
	assert.True(t, errs.HasLine(7))
	assert.False(t, errs.HasLine(3))
	assert.Equal(t, "line 2, column name: name is required", errs.Items()[0].Error())
	assert.Equal(t, "line 7: bad address", RowError{Line: 7, Message: "bad address"}.Error())
}
