// Package csvimport reads spreadsheet exports into header-keyed rows and
// checks them against per-column rules before anything is persisted.
package csvimport

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Parser reads a CSV document with a header row
type Parser struct {
	reader    *csv.Reader
	headers   []string
	index     map[string]int
	rows      int
	maxRows   int
	trimSpace bool
}

// ParserOption configures a Parser
type ParserOption func(*Parser, *csv.Reader)

// WithDelimiter sets the field delimiter (default is comma)
func WithDelimiter(d rune) ParserOption {
	return func(_ *Parser, r *csv.Reader) { r.Comma = d }
}

// WithMaxRows caps the number of data rows; zero means unlimited
func WithMaxRows(n int) ParserOption {
	return func(p *Parser, _ *csv.Reader) { p.maxRows = n }
}

// WithTrimSpace controls trimming of header and cell whitespace (default on)
func WithTrimSpace(trim bool) ParserOption {
	return func(p *Parser, r *csv.Reader) {
		p.trimSpace = trim
		r.TrimLeadingSpace = trim
	}
}

// NewParser strips a UTF-8 or UTF-16 byte order mark, rejects non UTF-8
// content and reads the header row. Header names are lower-cased and spaces
// become underscores, so "Postal Code" matches the postal_code column.
func NewParser(r io.Reader, opts ...ParserOption) (*Parser, error) {
	buf := bufio.NewReader(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))
	head, err := buf.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(strings.TrimSpace(string(head))) == 0 {
		return nil, ErrEmptyFile
	}
	if (errors.Is(err, io.EOF) && !utf8.Valid(head)) || !validPrefix(head) {
		return nil, ErrInvalidEncoding
	}

	cr := csv.NewReader(buf)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	p := &Parser{reader: cr, index: make(map[string]int), trimSpace: true}
	for _, opt := range opts {
		opt(p, cr)
	}
	if err := p.readHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// validPrefix allows a multi-byte sequence cut off by the peek window
func validPrefix(b []byte) bool {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return true
		}
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}

func (p *Parser) readHeader() error {
	record, err := p.reader.Read()
	if errors.Is(err, io.EOF) {
		return ErrMissingHeader
	}
	if err != nil {
		return readError(err)
	}
	for i, h := range record {
		name := NormalizeHeader(h)
		if name == "" {
			continue
		}
		if _, dup := p.index[name]; dup {
			return fmt.Errorf("%w: column %q appears twice", ErrInvalidHeader, name)
		}
		p.index[name] = i
		p.headers = append(p.headers, name)
	}
	if len(p.headers) == 0 {
		return ErrMissingHeader
	}
	return nil
}

// NormalizeHeader lower-cases a header and joins its words with underscores
func NormalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}

// Headers returns the normalized header names in file order
func (p *Parser) Headers() []string {
	return p.headers
}

// HasHeader reports whether the file carries the named column
func (p *Parser) HasHeader(name string) bool {
	_, ok := p.index[name]
	return ok
}

// MissingHeaders returns the required columns the file lacks
func (p *Parser) MissingHeaders(required ...string) []string {
	var missing []string
	for _, h := range required {
		if !p.HasHeader(h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// Row is one data record keyed by header name
type Row struct {
	Line int
	Data map[string]string
}

// Get returns the cell for a column, or "" when the column is absent
func (r *Row) Get(column string) string {
	return r.Data[column]
}

// IsEmpty reports whether every cell is blank
func (r *Row) IsEmpty() bool {
	for _, v := range r.Data {
		if v != "" {
			return false
		}
	}
	return true
}

// Next returns the next data row or io.EOF. Row.Line is the line in the
// file where the record starts; blank lines are skipped.
func (p *Parser) Next() (*Row, error) {
	record, err := p.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, readError(err)
	}
	line, _ := p.reader.FieldPos(0)
	row := &Row{Line: line, Data: make(map[string]string, len(p.headers))}
	for name, i := range p.index {
		var v string
		if i < len(record) {
			v = record[i]
		}
		if p.trimSpace {
			v = strings.TrimSpace(v)
		}
		row.Data[name] = v
	}
	return row, nil
}

// All reads the remaining rows, skipping blank ones
func (p *Parser) All() ([]*Row, error) {
	var rows []*Row
	for {
		row, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if row.IsEmpty() {
			continue
		}
		p.rows++
		if p.maxRows > 0 && p.rows > p.maxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrTooManyRows, p.maxRows)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoDataRows
	}
	return rows, nil
}

// readError marks CSV syntax errors as ErrMalformed and passes I/O errors through
func readError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fmt.Errorf("read file: %w", err)
}
