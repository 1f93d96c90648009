package model

import "time"

// GeoMode selects how a link's country list is interpreted.
type GeoMode string

const (
	GeoModeNone  GeoMode = ""
	GeoModeAllow GeoMode = "allow"
	GeoModeBlock GeoMode = "block"
)

// TimeWindow is one slot of a time-of-week schedule. Start and End are
// "HH:MM" clock times; both boundaries are inclusive. Overlapping windows
// on the same day are each sufficient on their own.
type TimeWindow struct {
	Day   time.Weekday `json:"day"`
	Start string       `json:"start"`
	End   string       `json:"end"`
}

// RollupCounters is the denormalized click snapshot cached on a link.
// It is rebuilt from the raw click log by reconciliation and must never
// be treated as the source of truth.
type RollupCounters struct {
	Total       int64      `gorm:"not null;default:0" json:"total"`
	Unique      int64      `gorm:"column:unique_visitors;not null;default:0" json:"unique"`
	Today       int64      `gorm:"not null;default:0" json:"today"`
	Week        int64      `gorm:"not null;default:0" json:"week"`
	Month       int64      `gorm:"not null;default:0" json:"month"`
	LastUpdated *time.Time `json:"last_updated"`
}

// Link is the core short-link entity stored in Postgres. The short code
// and the optional custom alias share one identifier namespace; the
// repository rejects collisions at write time.
//
// A link is owned by exactly one of a user or a team. The folder is an
// orthogonal grouping and does not affect resolution.
type Link struct {
	ID          string  `gorm:"primaryKey;size:36"`
	Code        string  `gorm:"uniqueIndex;size:32;not null"`
	Alias       *string `gorm:"uniqueIndex;size:64"`
	Destination string  `gorm:"type:text;not null"`

	OwnerUserID *string `gorm:"index;size:36"`
	OwnerTeamID *string `gorm:"index;size:36"`
	DomainID    *string `gorm:"index;size:36"`
	FolderID    *string `gorm:"index;size:36"`

	Active  bool `gorm:"not null;default:true"`
	Deleted bool `gorm:"not null;default:false;index"`

	// Restriction set. Each restriction is an explicit optional case;
	// the evaluator applies them in a fixed short-circuit order.
	ExpiresAt    *time.Time   `gorm:"index"`
	ClickLimit   *int64       ``
	PasswordHash *string      `gorm:"size:80"`
	Devices      []Device     `gorm:"serializer:json;type:text"`
	Schedule     []TimeWindow `gorm:"serializer:json;type:text"`
	GeoMode      GeoMode      `gorm:"size:8"`
	GeoCountries []string     `gorm:"serializer:json;type:text"`

	// TrackingParams are merged into the destination query string on
	// every redirect, overwriting same-named parameters.
	TrackingParams map[string]string `gorm:"serializer:json;type:text"`

	Rollup RollupCounters `gorm:"embedded;embeddedPrefix:rollup_"`

	LastResolvedAt *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Identifier returns the name the link resolves under: the custom alias
// when present, the canonical short code otherwise.
func (l *Link) Identifier() string {
	if l.Alias != nil && *l.Alias != "" {
		return *l.Alias
	}
	return l.Code
}

// PasswordProtected reports whether resolution requires a password.
func (l *Link) PasswordProtected() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}
