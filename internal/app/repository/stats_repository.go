package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LinkStats is one recomputation of a link's counters from the raw event
// log, non-bot events only. The three windows are "timestamp >= window
// start" at evaluation time rather than incrementally maintained.
type LinkStats struct {
	Total  int64
	Unique int64
	Today  int64
	Week   int64
	Month  int64
}

// OwnerStats is the recomputed usage of one owning entity, summed over
// the rollups of its live links.
type OwnerStats struct {
	TotalClicks int64
	MonthClicks int64
	LinkCount   int64
}

// StatsRepository runs the reconciliation aggregates. These are single
// full scans per link on the raw click log, so they live on the pgx pool
// rather than going through GORM.
type StatsRepository interface {
	LinkStats(ctx context.Context, linkID string, now time.Time) (LinkStats, error)
	OwnerStats(ctx context.Context, ownerColumn, ownerID string) (OwnerStats, error)
}

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository returns a pgx-backed StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool) StatsRepository {
	return &statsRepository{pool: pool}
}

const linkStatsQuery = `
SELECT
	COUNT(*),
	COUNT(DISTINCT visitor_hash),
	COUNT(*) FILTER (WHERE timestamp >= $2),
	COUNT(*) FILTER (WHERE timestamp >= $3),
	COUNT(*) FILTER (WHERE timestamp >= $4)
FROM click_events
WHERE link_id = $1 AND bot = FALSE`

func (r *statsRepository) LinkStats(ctx context.Context, linkID string, now time.Time) (LinkStats, error) {
	var stats LinkStats
	err := r.pool.QueryRow(ctx, linkStatsQuery,
		linkID,
		StartOfDay(now),
		StartOfWeek(now),
		StartOfMonth(now),
	).Scan(&stats.Total, &stats.Unique, &stats.Today, &stats.Week, &stats.Month)
	return stats, err
}

// Owner columns accepted by OwnerStats. The column name is interpolated,
// so it must come from this fixed set, never from request input.
const (
	OwnerColumnUser   = "owner_user_id"
	OwnerColumnTeam   = "owner_team_id"
	OwnerColumnDomain = "domain_id"
)

func (r *statsRepository) OwnerStats(ctx context.Context, ownerColumn, ownerID string) (OwnerStats, error) {
	switch ownerColumn {
	case OwnerColumnUser, OwnerColumnTeam, OwnerColumnDomain:
	default:
		return OwnerStats{}, ErrLinkNotFound
	}

	var stats OwnerStats
	query := ownerStatsQueryFor(ownerColumn)
	err := r.pool.QueryRow(ctx, query, ownerID).
		Scan(&stats.TotalClicks, &stats.MonthClicks, &stats.LinkCount)
	return stats, err
}

func ownerStatsQueryFor(column string) string {
	// column is validated against the fixed set above.
	return `
SELECT
	COALESCE(SUM(rollup_total), 0),
	COALESCE(SUM(rollup_month), 0),
	COUNT(*)
FROM links
WHERE ` + column + ` = $1 AND deleted = FALSE`
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek truncates t to the preceding Monday, UTC midnight.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// StartOfMonth truncates t to the first of the month, UTC midnight.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
