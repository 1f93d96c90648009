package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	"gorm.io/gorm"
)

// ErrDuplicateEvent signals that an event with this ID is already in
// the log. Redeliveries from the stream hit this path; callers treat it
// as already-ingested, not as a failure.
var ErrDuplicateEvent = errors.New("click event already ingested")

// ClickEventRepository defines the data access contract for raw click
// events. Events are append-only; the only mutation is flipping the
// processed flag once reconciliation has folded an event into the
// link's rollup snapshot.
type ClickEventRepository interface {
	Create(ctx context.Context, event *model.ClickEvent) error
	MarkProcessed(ctx context.Context, linkID string, upTo time.Time) (int64, error)
	DeleteProcessedBefore(ctx context.Context, horizon time.Time) (int64, error)
	DeleteByLink(ctx context.Context, linkID string) (int64, error)
}

type clickEventRepository struct {
	db *gorm.DB
}

// NewClickEventRepository returns a GORM-backed ClickEventRepository.
func NewClickEventRepository(db *gorm.DB) ClickEventRepository {
	return &clickEventRepository{db: db}
}

func (r *clickEventRepository) Create(ctx context.Context, event *model.ClickEvent) error {
	err := r.db.WithContext(ctx).Create(event).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEvent
	}
	return err
}

func (r *clickEventRepository) MarkProcessed(ctx context.Context, linkID string, upTo time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.ClickEvent{}).
		Where("link_id = ? AND processed = ? AND timestamp <= ?", linkID, false, upTo).
		Update("processed", true)
	return result.RowsAffected, result.Error
}

// DeleteProcessedBefore is the retention sweep: raw events already folded
// into the rollups are dropped past the configured horizon.
func (r *clickEventRepository) DeleteProcessedBefore(ctx context.Context, horizon time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed = ? AND timestamp < ?", true, horizon).
		Delete(&model.ClickEvent{})
	return result.RowsAffected, result.Error
}

// DeleteByLink removes the event log for a hard-deleted link.
func (r *clickEventRepository) DeleteByLink(ctx context.Context, linkID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Delete(&model.ClickEvent{})
	return result.RowsAffected, result.Error
}
