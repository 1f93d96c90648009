package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist
	// or has been soft-deleted.
	ErrLinkNotFound = errors.New("link not found")
	// ErrIdentifierTaken signals a code/alias collision in the shared
	// identifier namespace.
	ErrIdentifierTaken = errors.New("identifier already taken")
)

// LinkRepository defines the data access contract for short links.
//
// GetByIdentifier is the PolicyStore read path: it matches the canonical
// code or a custom alias, treats both as one namespace, and hides
// soft-deleted rows. UpdateCounters is the only write path for the rollup
// snapshot; the reconciliation worker is its sole caller for a given link.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	GetByIdentifier(ctx context.Context, identifier string) (*model.Link, error)
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	GetByID(ctx context.Context, id string) (*model.Link, error)
	List(ctx context.Context, limit, offset int) ([]model.Link, error)
	Update(ctx context.Context, link *model.Link) error
	UpdateCounters(ctx context.Context, linkID string, counters model.RollupCounters) error
	UpdateLastResolved(ctx context.Context, linkID string, at time.Time) error
	SoftDelete(ctx context.Context, code string) error
	HardDelete(ctx context.Context, code string) error
	Identifiers(ctx context.Context) ([]string, error)
	IDsAfter(ctx context.Context, afterID string, limit int) ([]string, error)
	ResetMonthly(ctx context.Context) error
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

// identifierLockSQL serializes writers of one identifier for the
// duration of the transaction, which closes the cross-column race a
// unique index alone cannot: a new alias colliding with an existing
// code and vice versa.
const identifierLockSQL = `SELECT pg_advisory_xact_lock(hashtext(?))`

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	// Namespace integrity is a write-time concern: a new code or alias
	// must not collide with any existing code or alias. The advisory
	// lock serializes concurrent claims of the same identifier; the
	// unique indexes on code and alias are the backstop.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		identifiers := []string{link.Code}
		if link.Alias != nil && *link.Alias != "" {
			identifiers = append(identifiers, *link.Alias)
		}
		for _, identifier := range identifiers {
			if err := tx.Exec(identifierLockSQL, identifier).Error; err != nil {
				return err
			}
			if err := ensureIdentifierFree(tx, identifier, ""); err != nil {
				return err
			}
		}
		return translateIdentifierError(tx.Create(link).Error)
	})
}

func ensureIdentifierFree(tx *gorm.DB, identifier, excludeID string) error {
	var count int64
	q := tx.Model(&model.Link{}).
		Where("code = ? OR alias = ?", identifier, identifier)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrIdentifierTaken
	}
	return nil
}

// translateIdentifierError maps a unique violation on code or alias to
// the namespace sentinel.
func translateIdentifierError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrIdentifierTaken
	}
	return err
}

func (r *linkRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.Link, error) {
	var link model.Link
	err := r.db.WithContext(ctx).
		Where("(code = ? OR alias = ?) AND deleted = ?", identifier, identifier, false).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	err := r.db.WithContext(ctx).
		Where("code = ? AND deleted = ?", code, false).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*model.Link, error) {
	var link model.Link
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) List(ctx context.Context, limit, offset int) ([]model.Link, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var result []model.Link
	if err := r.db.WithContext(ctx).
		Where("deleted = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func (r *linkRepository) Update(ctx context.Context, link *model.Link) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if link.Alias != nil && *link.Alias != "" {
			if err := tx.Exec(identifierLockSQL, *link.Alias).Error; err != nil {
				return err
			}
			if err := ensureIdentifierFree(tx, *link.Alias, link.ID); err != nil {
				return err
			}
		}

		result := tx.Model(&model.Link{}).
			Where("id = ?", link.ID).
			Updates(map[string]interface{}{
				"alias":           link.Alias,
				"destination":     link.Destination,
				"active":          link.Active,
				"expires_at":      link.ExpiresAt,
				"click_limit":     link.ClickLimit,
				"password_hash":   link.PasswordHash,
				"devices":         link.Devices,
				"schedule":        link.Schedule,
				"geo_mode":        link.GeoMode,
				"geo_countries":   link.GeoCountries,
				"tracking_params": link.TrackingParams,
				"folder_id":       link.FolderID,
			})
		if result.Error != nil {
			return translateIdentifierError(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrLinkNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Where("id = ?", link.ID).First(link).Error
}

func (r *linkRepository) UpdateCounters(ctx context.Context, linkID string, counters model.RollupCounters) error {
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("id = ?", linkID).
		Updates(map[string]interface{}{
			"rollup_total":           counters.Total,
			"rollup_unique_visitors": counters.Unique,
			"rollup_today":           counters.Today,
			"rollup_week":            counters.Week,
			"rollup_month":           counters.Month,
			"rollup_last_updated":    counters.LastUpdated,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) UpdateLastResolved(ctx context.Context, linkID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("id = ?", linkID).
		Update("last_resolved_at", at).Error
}

func (r *linkRepository) SoftDelete(ctx context.Context, code string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("code = ? AND deleted = ?", code, false).
		Update("deleted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// HardDelete erases the row outright. Only the explicit hard-delete path
// of the management API uses this; everything else goes through SoftDelete.
func (r *linkRepository) HardDelete(ctx context.Context, code string) error {
	result := r.db.WithContext(ctx).
		Where("code = ?", code).
		Delete(&model.Link{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// Identifiers returns every live code and alias; used to seed the
// negative-lookup filter at startup.
func (r *linkRepository) Identifiers(ctx context.Context) ([]string, error) {
	var rows []struct {
		Code  string
		Alias *string
	}
	if err := r.db.WithContext(ctx).Model(&model.Link{}).
		Where("deleted = ?", false).
		Select("code", "alias").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Code)
		if row.Alias != nil && *row.Alias != "" {
			out = append(out, *row.Alias)
		}
	}
	return out, nil
}

// IDsAfter pages through live link IDs in primary-key order so the full
// sweep can bound its per-batch database load.
func (r *linkRepository) IDsAfter(ctx context.Context, afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Link{}).
		Where("id > ? AND deleted = ?", afterID, false).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ResetMonthly zeroes every month counter; run once per calendar-month
// rollover, after which reconciliation repopulates the rolling window.
func (r *linkRepository) ResetMonthly(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("rollup_month <> ?", 0).
		Update("rollup_month", 0).Error
}
