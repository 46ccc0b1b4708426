package event

import (
	"context"
	"errors"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxService exposes an organization's undeliverable events and lets
// operators push them back into the delivery queue
type OutboxService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(repo shared.OutboxRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{
		repo:   repo,
		logger: logger,
	}
}

// OutboxEntryDTO represents an outbox entry data transfer object
type OutboxEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	OrgID         uuid.UUID  `json:"org_id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OutboxFilter represents filter for querying outbox entries
type OutboxFilter struct {
	Page     int `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// OutboxStatsDTO represents outbox statistics
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// GetDeadLetterEntries pages through the org's dead-lettered events
func (s *OutboxService) GetDeadLetterEntries(ctx context.Context, orgID uuid.UUID, filter OutboxFilter) (*shared.Paginated[OutboxEntryDTO], error) {
	f := shared.Filter{Page: filter.Page, PageSize: filter.PageSize}.Normalize()

	entries, total, err := s.repo.FindDead(ctx, orgID, f.Page, f.PageSize)
	if err != nil {
		s.logger.Error("Failed to find dead letter entries", zap.Error(err), zap.String("org_id", orgID.String()))
		return nil, err
	}

	items := make([]OutboxEntryDTO, len(entries))
	for i, entry := range entries {
		items[i] = toOutboxEntryDTO(entry)
	}
	page := shared.NewPaginated(items, total, f.Page, f.PageSize)
	return &page, nil
}

// GetEntry retrieves a single outbox entry owned by the org
func (s *OutboxService) GetEntry(ctx context.Context, orgID, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryDeadEntry resets a dead letter entry for redelivery
func (s *OutboxService) RetryDeadEntry(ctx context.Context, orgID, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if err := entry.ResetForRetry(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", id.String()))
		return nil, err
	}

	s.logger.Info("Dead letter entry reset for retry",
		zap.String("org_id", orgID.String()),
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType),
	)

	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryAllDeadEntries resets every dead letter entry of the org
func (s *OutboxService) RetryAllDeadEntries(ctx context.Context, orgID uuid.UUID) (int64, error) {
	const pageSize = 100
	var count int64

	// Reset entries drop out of the DEAD set, so the first page is always the next batch.
	for {
		entries, _, err := s.repo.FindDead(ctx, orgID, 1, pageSize)
		if err != nil {
			s.logger.Error("Failed to find dead letter entries", zap.Error(err))
			return count, err
		}
		if len(entries) == 0 {
			break
		}

		progressed := false
		for _, entry := range entries {
			if err := entry.ResetForRetry(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", entry.ID.String()))
				continue
			}
			progressed = true
			count++
		}

		if !progressed || len(entries) < pageSize {
			break
		}
	}

	s.logger.Info("Retried dead letter entries",
		zap.String("org_id", orgID.String()),
		zap.Int64("count", count))

	return count, nil
}

// GetStats returns outbox statistics for the org
func (s *OutboxService) GetStats(ctx context.Context, orgID uuid.UUID) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx, orgID)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, err
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	return &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

// find loads an entry and hides entries of other orgs behind NOT_FOUND
func (s *OutboxService) find(ctx context.Context, orgID, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("Outbox entry")
		}
		s.logger.Error("Failed to find outbox entry", zap.Error(err), zap.String("id", id.String()))
		return nil, err
	}
	if entry == nil || entry.OrgID != orgID {
		return nil, shared.NotFound("Outbox entry")
	}
	return entry, nil
}

func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:            entry.ID,
		OrgID:         entry.OrgID,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		Status:        string(entry.Status),
		RetryCount:    entry.RetryCount,
		MaxRetries:    entry.MaxRetries,
		LastError:     entry.LastError,
		NextRetryAt:   entry.NextRetryAt,
		ProcessedAt:   entry.ProcessedAt,
		OccurredAt:    entry.OccurredAt,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}
