package model

import "time"

// Device classifies the requesting client.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
	DeviceTablet  Device = "tablet"
	DeviceBot     Device = "bot"
	DeviceUnknown Device = "unknown"
)

// RequestContext carries everything the decision pipeline may read about
// one resolution request. Evaluation uses no clock other than Now, so
// identical (policy, context) pairs always produce identical outcomes.
type RequestContext struct {
	Now          time.Time
	Password     string
	Device       Device
	Bot          bool
	Country      string
	SkipTracking bool
	Source       string

	// Raw request metadata consumed only by event recording.
	IP        string
	UserAgent string
	Referrer  string
}
