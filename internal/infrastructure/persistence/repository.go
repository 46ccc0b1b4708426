package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crewdesk/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// outboxAware is embedded by repositories whose aggregates raise domain events
type outboxAware struct {
	outboxSaver shared.OutboxEventSaver
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (o *outboxAware) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	o.outboxSaver = saver
}

// translateError maps driver errors onto domain errors
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists
	default:
		return err
	}
}

// saveAggregate writes model under optimistic locking. A new aggregate is
// inserted; a loaded one is updated only if the stored version still matches.
// children runs inside the same transaction, before the aggregate's events are
// appended to the outbox.
func saveAggregate(
	ctx context.Context,
	db *gorm.DB,
	saver shared.OutboxEventSaver,
	agg shared.AggregateRoot,
	build func() any,
	children func(tx *gorm.DB) error,
) error {
	loaded := agg.StoredVersion()
	if agg.GetVersion() <= loaded {
		agg.IncrementVersion()
	}
	model := build()
	events := agg.GetDomainEvents()

	err := conn(ctx, db).Transaction(func(tx *gorm.DB) error {
		if loaded == 0 {
			if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
				return translateError(err)
			}
		} else {
			res := tx.Model(model).
				Omit(clause.Associations).
				Where("version = ?", loaded).
				Select("*").
				Updates(model)
			if res.Error != nil {
				return translateError(res.Error)
			}
			if res.RowsAffected == 0 {
				return shared.ErrConcurrencyConflict
			}
		}

		if children != nil {
			if err := children(tx); err != nil {
				return err
			}
		}

		if saver != nil && len(events) > 0 {
			if err := saver.SaveEvents(ctx, tx, events...); err != nil {
				return fmt.Errorf("failed to save events to outbox: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	agg.MarkStored()
	agg.ClearDomainEvents()
	return nil
}

// upsert saves a plain entity keyed by its primary key
func upsert(ctx context.Context, db *gorm.DB, model any) error {
	return translateError(conn(ctx, db).Save(model).Error)
}

// paginate counts the filtered query and loads one page into dest, preloading
// the named associations on the page only
func paginate(query *gorm.DB, filter shared.Filter, order string, dest any, preloads ...string) (int64, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	page := query.Order(order).Offset(filter.Offset()).Limit(filter.PageSize)
	for _, p := range preloads {
		page = page.Preload(p)
	}
	return total, page.Find(dest).Error
}

// likeClause matches LOWER(col) against a substring; both dialects honour the escape
const likeClause = " LIKE ? ESCAPE '\\'"

// likePattern builds a lower-cased substring pattern for likeClause
func likePattern(search string) string {
	return "%" + escapeLike(strings.ToLower(strings.TrimSpace(search))) + "%"
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

type txKey struct{}

// conn returns the transaction bound to ctx by TxManager, or db
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// TxManager runs several repository calls in one database transaction by
// carrying the transaction in the context
type TxManager struct {
	db *gorm.DB
}

// NewTxManager creates a TxManager
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx runs fn in a transaction. Nested calls join the outer transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

var _ shared.TxRunner = (*TxManager)(nil)
