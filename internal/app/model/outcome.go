package model

// OutcomeKind enumerates the possible results of resolving an identifier.
type OutcomeKind int

const (
	OutcomeNotFound OutcomeKind = iota
	OutcomeDenied
	OutcomeRequiresPassword
	OutcomeRedirect
)

// DenyReason names why a resolution was refused.
type DenyReason string

const (
	ReasonDisabled         DenyReason = "disabled"
	ReasonExpired          DenyReason = "expired"
	ReasonLimitReached     DenyReason = "limit_reached"
	ReasonDeviceNotAllowed DenyReason = "device_not_allowed"
	ReasonTimeRestricted   DenyReason = "time_restricted"
	ReasonGeoRestricted    DenyReason = "geo_restricted"
	ReasonInternalError    DenyReason = "internal_error"
)

// Outcome is the transient decision for one resolution attempt. It is
// produced per request and never persisted.
type Outcome struct {
	Kind           OutcomeKind
	DestinationURL string
	Reason         DenyReason
}

func Redirect(destination string) Outcome {
	return Outcome{Kind: OutcomeRedirect, DestinationURL: destination}
}

func Denied(reason DenyReason) Outcome {
	return Outcome{Kind: OutcomeDenied, Reason: reason}
}

func RequiresPassword() Outcome {
	return Outcome{Kind: OutcomeRequiresPassword}
}

func NotFound() Outcome {
	return Outcome{Kind: OutcomeNotFound}
}
