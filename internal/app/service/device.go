package service

import (
	"strings"

	"github.com/hoplink/hoplink/internal/app/model"
)

var botMarkers = []string{
	"bot", "crawler", "spider", "slurp", "curl/", "wget/",
	"python-requests", "go-http-client", "headless",
}

// ClassifyDevice derives a coarse device class and bot flag from the
// User-Agent header. This is a cheap heuristic, not fingerprinting; bot
// traffic is recorded but excluded from the reconciled counters.
func ClassifyDevice(userAgent string) (model.Device, bool) {
	if userAgent == "" {
		return model.DeviceUnknown, false
	}
	ua := strings.ToLower(userAgent)

	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return model.DeviceBot, true
		}
	}

	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return model.DeviceTablet, false
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		return model.DeviceMobile, false
	case strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") ||
		strings.Contains(ua, "x11") || strings.Contains(ua, "linux"):
		return model.DeviceDesktop, false
	default:
		return model.DeviceUnknown, false
	}
}
