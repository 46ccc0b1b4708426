package crm

import (
	"context"

	"github.com/crewdesk/backend/internal/domain/crm"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomerService handles customer records
type CustomerService struct {
	customerRepo crm.CustomerRepository
	logger       *zap.Logger
}

// NewCustomerService creates a new CustomerService
func NewCustomerService(customerRepo crm.CustomerRepository, logger *zap.Logger) *CustomerService {
	return &CustomerService{
		customerRepo: customerRepo,
		logger:       logger,
	}
}

// Create creates a customer
func (s *CustomerService) Create(ctx context.Context, orgID, createdBy uuid.UUID, req CustomerRequest) (*CustomerResponse, error) {
	customer, err := crm.NewCustomer(orgID, req.details())
	if err != nil {
		return nil, err
	}
	customer.SetCreatedBy(createdBy)
	if err := s.customerRepo.Save(ctx, customer); err != nil {
		return nil, err
	}
	s.logger.Info("Customer created",
		zap.String("org_id", orgID.String()),
		zap.String("customer_id", customer.ID.String()))
	response := ToCustomerResponse(customer)
	return &response, nil
}

// GetByID retrieves a customer
func (s *CustomerService) GetByID(ctx context.Context, orgID, id uuid.UUID) (*CustomerResponse, error) {
	customer, err := s.customerRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	response := ToCustomerResponse(customer)
	return &response, nil
}

// List retrieves customers with filtering and pagination
func (s *CustomerService) List(ctx context.Context, orgID uuid.UUID, filter CustomerListFilter) (*shared.Paginated[CustomerResponse], error) {
	f := crm.CustomerFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   filter.Search,
		}.Normalize(),
		Tag:             filter.Tag,
		IncludeArchived: filter.IncludeArchived,
	}
	customers, total, err := s.customerRepo.List(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	items := make([]CustomerResponse, len(customers))
	for i, c := range customers {
		items[i] = ToCustomerResponse(c)
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// Update replaces a customer's editable fields
func (s *CustomerService) Update(ctx context.Context, orgID, id uuid.UUID, req CustomerRequest) (*CustomerResponse, error) {
	customer, err := s.customerRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := customer.Update(req.details()); err != nil {
		return nil, err
	}
	if err := s.customerRepo.Save(ctx, customer); err != nil {
		return nil, err
	}
	response := ToCustomerResponse(customer)
	return &response, nil
}

// Delete archives a customer. Jobs, quotes and invoices keep their reference.
func (s *CustomerService) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	customer, err := s.customerRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if customer.Archived {
		return nil
	}
	customer.Archive()
	if err := s.customerRepo.Save(ctx, customer); err != nil {
		return err
	}
	s.logger.Info("Customer archived",
		zap.String("org_id", orgID.String()),
		zap.String("customer_id", id.String()))
	return nil
}
