package repository

import (
	"context"

	"github.com/hoplink/hoplink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository is the owner usage ledger. Writes are absolute
// recomputed values keyed by (owner, kind), which makes repeated
// reconciliation idempotent by construction.
type UsageRepository interface {
	Set(ctx context.Context, usage model.OwnerUsage) error
	Get(ctx context.Context, ownerID string, kind model.OwnerKind) (*model.OwnerUsage, error)
	ResetMonthly(ctx context.Context) error
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository returns a GORM-backed UsageRepository.
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Set(ctx context.Context, usage model.OwnerUsage) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_clicks", "month_clicks", "link_count", "updated_at",
			}),
		}).
		Create(&usage).Error
}

func (r *usageRepository) Get(ctx context.Context, ownerID string, kind model.OwnerKind) (*model.OwnerUsage, error) {
	var usage model.OwnerUsage
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND kind = ?", ownerID, kind).
		First(&usage).Error
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *usageRepository) ResetMonthly(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&model.OwnerUsage{}).
		Where("month_clicks <> ?", 0).
		Update("month_clicks", 0).Error
}
