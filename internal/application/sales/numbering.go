package sales

import (
	"context"
	"errors"
	"time"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/sales"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// documents holds what quotes and invoices share: the organization's
// defaults, the customer check and per-org numbering
type documents struct {
	orgRepo      organization.OrganizationRepository
	customerRepo crm.CustomerRepository
	seqRepo      organization.SequenceRepository
	tx           shared.TxRunner
	now          func() time.Time
}

func (d *documents) org(ctx context.Context, orgID uuid.UUID) (*organization.Organization, error) {
	return d.orgRepo.FindByID(ctx, orgID)
}

func (d *documents) requireCustomer(ctx context.Context, orgID, customerID uuid.UUID) error {
	c, err := d.customerRepo.FindByID(ctx, orgID, customerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.InvalidInput("Customer does not exist")
		}
		return err
	}
	if c.Archived {
		return shared.InvalidInput("Customer is archived")
	}
	return nil
}

// nextNumber must run inside the transaction that saves the document so a
// rolled back save does not burn a number
func (d *documents) nextNumber(ctx context.Context, orgID uuid.UUID, sequence, prefix string) (string, error) {
	n, err := d.seqRepo.Next(ctx, orgID, sequence)
	if err != nil {
		return "", err
	}
	return sales.FormatNumber(prefix, n), nil
}

// dueDate returns the organization's payment terms counted from now, at end of day in its timezone
func dueDate(org *organization.Organization, now time.Time) time.Time {
	local := now.In(org.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, org.Location()).AddDate(0, 0, org.Invoicing.PaymentTermsDays)
}
