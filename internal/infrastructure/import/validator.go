package csvimport

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldRule describes the checks applied to one column
type FieldRule struct {
	Column    string
	Required  bool
	Email     bool
	MaxLength int
	Unique    bool
	OneOf     []string
	Custom    func(value string) error
}

// FieldRuleBuilder builds a FieldRule fluently
type FieldRuleBuilder struct {
	rule FieldRule
}

// Field starts a rule for column
func Field(column string) *FieldRuleBuilder {
	return &FieldRuleBuilder{rule: FieldRule{Column: column}}
}

// Required rejects blank cells
func (b *FieldRuleBuilder) Required() *FieldRuleBuilder {
	b.rule.Required = true
	return b
}

// Email requires a valid address when the cell is set
func (b *FieldRuleBuilder) Email() *FieldRuleBuilder {
	b.rule.Email = true
	return b
}

// MaxLength caps the cell length in characters
func (b *FieldRuleBuilder) MaxLength(n int) *FieldRuleBuilder {
	b.rule.MaxLength = n
	return b
}

// Unique rejects a value already seen earlier in the file (case-insensitive)
func (b *FieldRuleBuilder) Unique() *FieldRuleBuilder {
	b.rule.Unique = true
	return b
}

// OneOf restricts the cell to the given values (case-insensitive)
func (b *FieldRuleBuilder) OneOf(values ...string) *FieldRuleBuilder {
	b.rule.OneOf = values
	return b
}

// Custom adds a check whose error message is reported as INVALID_VALUE
func (b *FieldRuleBuilder) Custom(fn func(value string) error) *FieldRuleBuilder {
	b.rule.Custom = fn
	return b
}

// Build returns the rule
func (b *FieldRuleBuilder) Build() FieldRule {
	return b.rule
}

// Validator applies rules to rows and remembers values of unique columns
type Validator struct {
	rules []FieldRule
	seen  map[string]map[string]int
}

// NewValidator creates a Validator for rules
func NewValidator(rules ...FieldRule) *Validator {
	v := &Validator{rules: rules, seen: make(map[string]map[string]int)}
	for _, r := range rules {
		if r.Unique {
			v.seen[r.Column] = make(map[string]int)
		}
	}
	return v
}

// Columns lists the columns the rules know about
func (v *Validator) Columns() []string {
	cols := make([]string, len(v.rules))
	for i, r := range v.rules {
		cols[i] = r.Column
	}
	return cols
}

// RequiredColumns lists the columns whose rule is Required
func (v *Validator) RequiredColumns() []string {
	var cols []string
	for _, r := range v.rules {
		if r.Required {
			cols = append(cols, r.Column)
		}
	}
	return cols
}

// ValidateRow checks row against every rule
func (v *Validator) ValidateRow(row *Row) []RowError {
	var errs []RowError
	for _, rule := range v.rules {
		if err, ok := v.check(rule, row); !ok {
			errs = append(errs, err)
		}
	}
	return errs
}

func (v *Validator) check(rule FieldRule, row *Row) (RowError, bool) {
	value := row.Get(rule.Column)
	fail := func(code, msg string) (RowError, bool) {
		return RowError{Line: row.Line, Column: rule.Column, Code: code, Message: msg, Value: value}, false
	}
	if value == "" {
		if rule.Required {
			return fail(CodeRequired, rule.Column+" is required")
		}
		return RowError{}, true
	}
	if rule.MaxLength > 0 && utf8.RuneCountInString(value) > rule.MaxLength {
		return fail(CodeTooLong, fmt.Sprintf("%s cannot exceed %d characters", rule.Column, rule.MaxLength))
	}
	if rule.Email && validate.Var(value, "email") != nil {
		return fail(CodeInvalidFormat, "invalid email address")
	}
	if len(rule.OneOf) > 0 && !slices.ContainsFunc(rule.OneOf, func(s string) bool { return strings.EqualFold(s, value) }) {
		return fail(CodeInvalidValue, fmt.Sprintf("%s must be one of %s", rule.Column, strings.Join(rule.OneOf, ", ")))
	}
	if rule.Custom != nil {
		if err := rule.Custom(value); err != nil {
			return fail(CodeInvalidValue, err.Error())
		}
	}
	if rule.Unique {
		key := strings.ToLower(value)
		if first, dup := v.seen[rule.Column][key]; dup {
			return fail(CodeDuplicateInFile, fmt.Sprintf("%s duplicates line %d", rule.Column, first))
		}
		v.seen[rule.Column][key] = row.Line
	}
	return RowError{}, true
}
