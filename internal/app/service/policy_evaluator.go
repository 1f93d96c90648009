package service

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	"golang.org/x/crypto/bcrypt"
)

// Evaluate applies a link's restriction chain to one request context and
// returns the outcome. The chain is fixed-order and short-circuiting,
// cheapest checks first; the first failing restriction wins. Evaluation
// is pure: no clock reads beyond ctx.Now, no stores, no randomness.
func Evaluate(link *model.Link, rctx model.RequestContext) model.Outcome {
	if !link.Active {
		return model.Denied(model.ReasonDisabled)
	}

	if link.ExpiresAt != nil && rctx.Now.After(*link.ExpiresAt) {
		return model.Denied(model.ReasonExpired)
	}

	// The rollup total is a reconciled snapshot, not a live count; the
	// limit check is deliberately bounded by reconciliation freshness.
	if link.ClickLimit != nil && link.Rollup.Total >= *link.ClickLimit {
		return model.Denied(model.ReasonLimitReached)
	}

	if len(link.Devices) > 0 && !deviceAllowed(link.Devices, rctx.Device) {
		return model.Denied(model.ReasonDeviceNotAllowed)
	}

	if len(link.Schedule) > 0 && !withinSchedule(link.Schedule, rctx.Now) {
		return model.Denied(model.ReasonTimeRestricted)
	}

	if link.GeoMode != model.GeoModeNone && len(link.GeoCountries) > 0 &&
		!geoAllowed(link.GeoMode, link.GeoCountries, rctx.Country) {
		return model.Denied(model.ReasonGeoRestricted)
	}

	if link.PasswordProtected() {
		if rctx.Password == "" || !passwordMatches(*link.PasswordHash, rctx.Password) {
			return model.RequiresPassword()
		}
	}

	return model.Redirect(BuildDestination(link.Destination, link.TrackingParams))
}

func deviceAllowed(allowed []model.Device, device model.Device) bool {
	for _, d := range allowed {
		if d == device {
			return true
		}
	}
	return false
}

// withinSchedule reports whether now falls inside any configured window.
// Windows are inclusive of both boundaries; any match passes.
func withinSchedule(windows []model.TimeWindow, now time.Time) bool {
	day := now.Weekday()
	minute := now.Hour()*60 + now.Minute()

	for _, w := range windows {
		if w.Day != day {
			continue
		}
		start, okStart := parseClock(w.Start)
		end, okEnd := parseClock(w.End)
		if !okStart || !okEnd {
			continue
		}
		if minute >= start && minute <= end {
			return true
		}
	}
	return false
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func geoAllowed(mode model.GeoMode, countries []string, country string) bool {
	listed := false
	for _, c := range countries {
		if strings.EqualFold(c, country) {
			listed = true
			break
		}
	}
	switch mode {
	case model.GeoModeAllow:
		return listed
	case model.GeoModeBlock:
		return !listed
	default:
		return true
	}
}

func passwordMatches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// BuildDestination merges the configured tracking parameters into the
// destination URL. Existing query parameters survive unless a tracking
// parameter of the same name overwrites them.
func BuildDestination(destination string, params map[string]string) string {
	if len(params) == 0 {
		return destination
	}

	u, err := url.Parse(destination)
	if err != nil {
		return destination
	}

	q := u.Query()
	for name, value := range params {
		q.Set(name, value)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
