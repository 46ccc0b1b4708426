package csvimport

import (
	"errors"
	"fmt"
)

// Row error codes
const (
	CodeRequired        = "REQUIRED"
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeTooLong         = "TOO_LONG"
	CodeInvalidValue    = "INVALID_VALUE"
	CodeDuplicateInFile = "DUPLICATE_IN_FILE"
	CodeDuplicateExists = "ALREADY_EXISTS"
)

// File-level failures; the whole import is rejected
var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidEncoding = errors.New("file is not UTF-8 encoded")
	ErrMissingHeader   = errors.New("file has no header row")
	ErrInvalidHeader   = errors.New("invalid header row")
	ErrMalformed       = errors.New("malformed CSV")
	ErrNoDataRows      = errors.New("file has no data rows")
	ErrTooManyRows     = errors.New("file has too many rows")
)

// RowError describes why one row was rejected
type RowError struct {
	Line    int    `json:"line"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("line %d, column %s: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Errors collects row errors up to a limit while counting all of them
type Errors struct {
	items []RowError
	limit int
	total int
	lines map[int]bool
}

// NewErrors creates a collection keeping at most limit errors (default 100)
func NewErrors(limit int) *Errors {
	if limit <= 0 {
		limit = 100
	}
	return &Errors{limit: limit, lines: make(map[int]bool)}
}

// Add records an error
func (e *Errors) Add(err RowError) {
	e.total++
	e.lines[err.Line] = true
	if len(e.items) < e.limit {
		e.items = append(e.items, err)
	}
}

// Items returns the kept errors
func (e *Errors) Items() []RowError {
	return e.items
}

// Total counts every error, kept or not
func (e *Errors) Total() int {
	return e.total
}

// Truncated reports whether errors were dropped because of the limit
func (e *Errors) Truncated() bool {
	return e.total > len(e.items)
}

// Rows counts the distinct lines with at least one error
func (e *Errors) Rows() int {
	return len(e.lines)
}

// HasLine reports whether line has an error
func (e *Errors) HasLine(line int) bool {
	return e.lines[line]
}
