package event

import (
	"context"
	"sync"
	"time"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	// StaleAfter is how long an entry may sit in PROCESSING before it is requeued
	StaleAfter time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     2 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
		StaleAfter:       5 * time.Minute,
	}
}

// ProcessorConfigFrom maps the outbox section of the service config
func ProcessorConfigFrom(cfg config.EventConfig) OutboxProcessorConfig {
	out := DefaultOutboxProcessorConfig()
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	if cfg.PollInterval > 0 {
		out.PollInterval = cfg.PollInterval
	}
	out.CleanupEnabled = cfg.CleanupEnabled
	if cfg.CleanupRetention > 0 {
		out.CleanupRetention = cfg.CleanupRetention
	}
	return out
}

// OutcomeRecorder receives one call per delivered or failed entry
type OutcomeRecorder interface {
	OutboxEvent(eventType, status string)
}

type staleRequeuer interface {
	RequeueStale(ctx context.Context, before time.Time) (int64, error)
}

// OutboxProcessor polls the outbox and publishes entries to the event bus
type OutboxProcessor struct {
	repo     shared.OutboxRepository
	eventBus shared.EventPublisher
	config   OutboxProcessorConfig
	logger   *zap.Logger
	recorder OutcomeRecorder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor; recorder may be nil
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	eventBus shared.EventPublisher,
	cfg OutboxProcessorConfig,
	logger *zap.Logger,
	recorder OutcomeRecorder,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:     repo,
		eventBus: eventBus,
		config:   cfg,
		logger:   logger,
		recorder: recorder,
	}
}

// Start launches the poll loop and, when enabled, the cleanup loop
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop cancels the loops and waits for the in-flight batch
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch delivers one batch of pending entries followed by one batch
// of entries due for retry. It returns the number of entries claimed.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) int {
	claimed := 0

	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending outbox entries", zap.Error(err))
		return claimed
	}
	claimed += p.processEntries(ctx, pending)

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable outbox entries", zap.Error(err))
		return claimed
	}
	return claimed + p.processEntries(ctx, retryable)
}

func (p *OutboxProcessor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) int {
	if len(entries) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to claim outbox entries", zap.Error(err))
		return 0
	}
	for _, entry := range claimed {
		p.processEntry(ctx, entry)
	}
	return len(claimed)
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("org_id", entry.OrgID.String()),
	)

	if err := p.eventBus.Publish(ctx, entry.ToEvent()); err != nil {
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			log.Warn("outbox entry moved to dead letter",
				zap.String("aggregate_type", entry.AggregateType),
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.Int("retry_count", entry.RetryCount),
				zap.String("last_error", entry.LastError),
			)
		} else {
			log.Warn("outbox delivery failed", zap.Int("retry_count", entry.RetryCount), zap.Error(err))
		}
		p.record(entry)
		if updateErr := p.repo.Update(ctx, entry); updateErr != nil {
			log.Error("failed to update outbox entry", zap.Error(updateErr))
		}
		return
	}

	entry.MarkSent()
	p.record(entry)
	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("failed to mark outbox entry sent", zap.Error(err))
		return
	}
	log.Debug("outbox entry delivered")
}

func (p *OutboxProcessor) record(entry *shared.OutboxEntry) {
	if p.recorder != nil {
		p.recorder.OutboxEvent(entry.EventType, string(entry.Status))
	}
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(ctx)
		}
	}
}

// Cleanup deletes delivered entries past retention and requeues stale claims
func (p *OutboxProcessor) Cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to clean up outbox entries", zap.Error(err))
	} else if deleted > 0 {
		p.logger.Info("cleaned up outbox entries", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}

	if rq, ok := p.repo.(staleRequeuer); ok && p.config.StaleAfter > 0 {
		n, err := rq.RequeueStale(ctx, time.Now().Add(-p.config.StaleAfter))
		if err != nil {
			p.logger.Error("failed to requeue stale outbox entries", zap.Error(err))
		} else if n > 0 {
			p.logger.Warn("requeued stale outbox entries", zap.Int64("count", n))
		}
	}
}
