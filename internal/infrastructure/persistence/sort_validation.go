package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed != "" && allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// orderClause renders a whitelisted ORDER BY expression, qualified by table when set
func orderClause(table, field, dir string, allowed map[string]bool, defaultField string) string {
	col := ValidateSortField(field, allowed, defaultField)
	if table != "" {
		col = table + "." + col
	}
	return col + " " + ValidateSortOrder(dir)
}

// CustomerSortFields contains allowed sort fields for customers
var CustomerSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"email":      true,
	"company":    true,
}

// JobSortFields contains allowed sort fields for jobs
var JobSortFields = map[string]bool{
	"created_at":      true,
	"updated_at":      true,
	"scheduled_start": true,
	"scheduled_end":   true,
	"status":          true,
	"priority":        true,
	"title":           true,
}

// QuoteSortFields contains allowed sort fields for quotes
var QuoteSortFields = map[string]bool{
	"created_at":  true,
	"updated_at":  true,
	"number":      true,
	"status":      true,
	"total":       true,
	"valid_until": true,
}

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"created_at":  true,
	"updated_at":  true,
	"number":      true,
	"status":      true,
	"total":       true,
	"due_date":    true,
	"amount_paid": true,
}

// PaymentSortFields contains allowed sort fields for payments
var PaymentSortFields = map[string]bool{
	"created_at":  true,
	"amount":      true,
	"status":      true,
	"received_at": true,
}

// MemberSortFields contains allowed sort fields for memberships
var MemberSortFields = map[string]bool{
	"joined_at": true,
	"role":      true,
	"status":    true,
}

// RuleSortFields contains allowed sort fields for automation rules
var RuleSortFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"name":           true,
	"last_triggered": true,
}

// RunSortFields contains allowed sort fields for automation runs
var RunSortFields = map[string]bool{
	"started_at":  true,
	"finished_at": true,
	"status":      true,
}
