package model

import "time"

// ClickEvent is the immutable record of one allowed resolution. Once
// written only the Processed flag changes; a retention sweep deletes
// processed events past the configured horizon.
//
// VisitorHash is a salted SHA-256 digest of the caller's IP and
// user agent. Raw IPs are never stored.
type ClickEvent struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	LinkID       string    `gorm:"index:idx_click_events_link_id;size:36;not null" json:"link_id"`
	VisitorHash  string    `gorm:"size:64;index" json:"visitor_hash"`
	Device       Device    `gorm:"size:16" json:"device"`
	ReferrerHost string    `gorm:"size:255" json:"referrer_host"`
	Country      string    `gorm:"size:2" json:"country"`
	Source       string    `gorm:"size:16" json:"source"`
	Bot          bool      `gorm:"not null;default:false" json:"bot"`
	Processed    bool      `gorm:"not null;default:false;index" json:"processed"`
	Timestamp    time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.recorded"
	ClickConsumerName   = "click-ingester"
	ClickStreamMaxBytes = 1024 * 1024 * 256 // 256MB
)

// Click sources.
const (
	SourceLink = "link"
	SourceQR   = "qr"
)
