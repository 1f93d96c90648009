package model

import "time"

// OwnerKind distinguishes the entities that accumulate usage from links.
type OwnerKind string

const (
	OwnerUser   OwnerKind = "user"
	OwnerTeam   OwnerKind = "team"
	OwnerDomain OwnerKind = "domain"
)

// OwnerUsage is one row of the usage ledger. Reconciliation writes
// absolute recomputed values, never deltas, so repeated runs cannot
// compound drift.
type OwnerUsage struct {
	OwnerID     string    `gorm:"primaryKey;size:36"`
	Kind        OwnerKind `gorm:"primaryKey;size:8"`
	TotalClicks int64     `gorm:"not null;default:0"`
	MonthClicks int64     `gorm:"not null;default:0"`
	LinkCount   int64     `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}
