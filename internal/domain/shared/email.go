package shared

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MaxEmailLength is the RFC 5321 limit on a forward path
const MaxEmailLength = 254

var (
	emailValidate     *validator.Validate
	emailValidateOnce sync.Once
)

// ValidateEmail reports whether s is a syntactically valid email address
func ValidateEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > MaxEmailLength {
		return false
	}
	emailValidateOnce.Do(func() {
		emailValidate = validator.New()
	})
	return emailValidate.Var(s, "required,email") == nil
}

// NormalizeEmail lowercases and trims an address for storage and lookup
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
