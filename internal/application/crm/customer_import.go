package crm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	csvimport "github.com/crewdesk/backend/internal/infrastructure/import"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxImportRows caps the data rows accepted in one customer import
const MaxImportRows = 2000

// ImportOptions controls how a customer import treats its rows
type ImportOptions struct {
	// DryRun validates without creating anything
	DryRun bool
	// SkipExisting skips rows whose email already belongs to a customer
	// instead of rejecting them
	SkipExisting bool
}

// ImportResult summarizes a customer import. Nothing is created unless
// every row is valid.
type ImportResult struct {
	TotalRows   int                  `json:"total_rows"`
	Created     int                  `json:"created"`
	Skipped     int                  `json:"skipped"`
	ErrorRows   int                  `json:"error_rows"`
	Errors      []csvimport.RowError `json:"errors"`
	TotalErrors int                  `json:"total_errors"`
	Truncated   bool                 `json:"truncated,omitempty"`
	DryRun      bool                 `json:"dry_run"`
}

// CustomerImportService creates customers in bulk from CSV exports
type CustomerImportService struct {
	customerRepo crm.CustomerRepository
	emails       crm.CustomerEmailIndex
	tx           shared.TxRunner
	logger       *zap.Logger
}

// NewCustomerImportService creates a new CustomerImportService
func NewCustomerImportService(customerRepo crm.CustomerRepository, emails crm.CustomerEmailIndex, tx shared.TxRunner, logger *zap.Logger) *CustomerImportService {
	return &CustomerImportService{
		customerRepo: customerRepo,
		emails:       emails,
		tx:           tx,
		logger:       logger,
	}
}

func customerImportRules() *csvimport.Validator {
	return csvimport.NewValidator(
		csvimport.Field("name").Required().MaxLength(200).Build(),
		csvimport.Field("email").Email().MaxLength(254).Unique().Build(),
		csvimport.Field("phone").MaxLength(50).Build(),
		csvimport.Field("company").MaxLength(200).Build(),
		csvimport.Field("address_line1").MaxLength(200).Build(),
		csvimport.Field("address_line2").MaxLength(200).Build(),
		csvimport.Field("city").MaxLength(200).Build(),
		csvimport.Field("region").MaxLength(200).Build(),
		csvimport.Field("postal_code").MaxLength(200).Build(),
		csvimport.Field("country").MaxLength(2).Build(),
		csvimport.Field("notes").MaxLength(5000).Build(),
		csvimport.Field("tags").Build(),
	)
}

type importRow struct {
	line    int
	details crm.CustomerDetails
}

// Import reads a CSV with a header row and creates one customer per data
// row in a single transaction. Columns: name (required), email, phone,
// company, address_line1, address_line2, city, region, postal_code, country,
// notes, tags (separated by ";"). Unknown columns are ignored.
func (s *CustomerImportService) Import(ctx context.Context, orgID, userID uuid.UUID, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	parser, err := csvimport.NewParser(r, csvimport.WithMaxRows(MaxImportRows))
	if err != nil {
		return nil, fileError(err)
	}
	rules := customerImportRules()
	if missing := parser.MissingHeaders(rules.RequiredColumns()...); len(missing) > 0 {
		return nil, shared.InvalidInput("Missing required column: " + strings.Join(missing, ", "))
	}
	rows, err := parser.All()
	if err != nil {
		return nil, fileError(err)
	}

	result := &ImportResult{TotalRows: len(rows), DryRun: opts.DryRun}
	errs := csvimport.NewErrors(100)
	valid := make([]importRow, 0, len(rows))
	for _, row := range rows {
		rowErrs := rules.ValidateRow(row)
		for _, e := range rowErrs {
			errs.Add(e)
		}
		if len(rowErrs) > 0 {
			continue
		}
		details := rowDetails(row)
		// Domain rules the column checks cannot see, such as a street without a city
		if _, err := crm.NewCustomer(orgID, details); err != nil {
			errs.Add(csvimport.RowError{Line: row.Line, Code: csvimport.CodeInvalidValue, Message: err.Error()})
			continue
		}
		valid = append(valid, importRow{line: row.Line, details: details})
	}

	valid, err = s.dropExisting(ctx, orgID, valid, opts.SkipExisting, result, errs)
	if err != nil {
		return nil, err
	}

	result.Errors = errs.Items()
	if result.Errors == nil {
		result.Errors = []csvimport.RowError{}
	}
	result.TotalErrors = errs.Total()
	result.Truncated = errs.Truncated()
	result.ErrorRows = errs.Rows()
	if result.ErrorRows > 0 || opts.DryRun || len(valid) == 0 {
		return result, nil
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, row := range valid {
			customer, err := crm.NewCustomer(orgID, row.details)
			if err != nil {
				return err
			}
			customer.SetCreatedBy(userID)
			if err := s.customerRepo.Save(ctx, customer); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Created = len(valid)
	s.logger.Info("Customers imported",
		zap.String("org_id", orgID.String()),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// dropExisting removes rows whose email is already taken, either skipping
// them or reporting them as errors
func (s *CustomerImportService) dropExisting(ctx context.Context, orgID uuid.UUID, rows []importRow, skip bool, result *ImportResult, errs *csvimport.Errors) ([]importRow, error) {
	var emails []string
	for _, row := range rows {
		if row.details.Email != "" {
			emails = append(emails, shared.NormalizeEmail(row.details.Email))
		}
	}
	if len(emails) == 0 {
		return rows, nil
	}
	taken, err := s.emails.ExistingEmails(ctx, orgID, emails)
	if err != nil {
		return nil, err
	}
	kept := rows[:0]
	for _, row := range rows {
		email := shared.NormalizeEmail(row.details.Email)
		if !taken[email] {
			kept = append(kept, row)
			continue
		}
		if skip {
			result.Skipped++
			continue
		}
		errs.Add(csvimport.RowError{
			Line:    row.line,
			Column:  "email",
			Code:    csvimport.CodeDuplicateExists,
			Message: "a customer with this email already exists",
			Value:   row.details.Email,
		})
	}
	return kept, nil
}

var fileErrors = []error{
	csvimport.ErrEmptyFile,
	csvimport.ErrInvalidEncoding,
	csvimport.ErrMissingHeader,
	csvimport.ErrInvalidHeader,
	csvimport.ErrMalformed,
	csvimport.ErrNoDataRows,
	csvimport.ErrTooManyRows,
}

// fileError reports problems with the document as invalid input; read
// failures keep their chain so callers can detect oversized bodies
func fileError(err error) error {
	for _, known := range fileErrors {
		if errors.Is(err, known) {
			return shared.InvalidInput("Invalid import file: " + err.Error())
		}
	}
	return err
}

func rowDetails(row *csvimport.Row) crm.CustomerDetails {
	var tags []string
	if raw := row.Get("tags"); raw != "" {
		tags = strings.Split(raw, ";")
	}
	return crm.CustomerDetails{
		Name:    row.Get("name"),
		Email:   row.Get("email"),
		Phone:   row.Get("phone"),
		Company: row.Get("company"),
		Address: valueobject.Address{
			Line1:      row.Get("address_line1"),
			Line2:      row.Get("address_line2"),
			City:       row.Get("city"),
			Region:     row.Get("region"),
			PostalCode: row.Get("postal_code"),
			Country:    strings.ToUpper(row.Get("country")),
		},
		Notes: row.Get("notes"),
		Tags:  tags,
	}
}
