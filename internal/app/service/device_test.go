package service

import (
	"testing"

	"github.com/hoplink/hoplink/internal/app/model"
)

func TestClassifyDevice(t *testing.T) {
	cases := []struct {
		name string
		ua   string
		want model.Device
		bot  bool
	}{
		{"empty", "", model.DeviceUnknown, false},
		{"linux desktop", "Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/130.0", model.DeviceDesktop, false},
		{"mac desktop", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15", model.DeviceDesktop, false},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", model.DeviceMobile, false},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", model.DeviceMobile, false},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Safari/605.1.15", model.DeviceTablet, false},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", model.DeviceBot, true},
		{"curl", "curl/8.5.0", model.DeviceBot, true},
		{"go client", "Go-http-client/2.0", model.DeviceBot, true},
		{"opaque", "SomethingEntirelyNew/1.0", model.DeviceUnknown, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			device, bot := ClassifyDevice(tc.ua)
			if device != tc.want || bot != tc.bot {
				t.Fatalf("ClassifyDevice(%q) = (%v, %v), want (%v, %v)",
					tc.ua, device, bot, tc.want, tc.bot)
			}
		})
	}
}
