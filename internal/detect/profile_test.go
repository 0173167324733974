package detect

import "testing"

// TestParseUserAgent tests user-agent profiling across browser, mobile
// and tool agents
func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Profile
	}{
		{
			name: "desktop chrome",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: Profile{
				BrowserFamily:  "Chrome",
				BrowserVersion: "120.0.0.0",
				OSFamily:       "Windows",
				OSVersion:      "10.0",
			},
		},
		{
			name: "desktop firefox on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: Profile{
				BrowserFamily:  "Firefox",
				BrowserVersion: "121.0",
				OSFamily:       "Linux",
			},
		},
		{
			name: "iphone safari",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			want: Profile{
				BrowserFamily:  "Safari",
				BrowserVersion: "17.2",
				OSFamily:       "iOS",
				OSVersion:      "17.2",
				DeviceFamily:   "iPhone",
				DeviceBrand:    "Apple",
				DeviceModel:    "iPhone",
				IsMobile:       true,
			},
		},
		{
			name: "android chrome",
			ua:   "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Mobile Safari/537.36",
			want: Profile{
				BrowserFamily:  "Chrome",
				BrowserVersion: "120.0.6099.43",
				OSFamily:       "Android",
				OSVersion:      "11",
				DeviceFamily:   "Generic Smartphone",
				DeviceModel:    "Pixel 5",
				IsMobile:       true,
			},
		},
		{
			name: "curl",
			ua:   "curl/7.68.0",
			want: Profile{
				BrowserFamily:  "curl",
				BrowserVersion: "7.68.0",
				IsBotByName:    true,
			},
		},
		{
			name: "python urllib",
			ua:   "Python-urllib/3.8",
			want: Profile{
				BrowserFamily:  "Python-urllib",
				BrowserVersion: "3.8",
				IsBotByName:    true,
			},
		},
		{
			name: "wget",
			ua:   "Wget/1.20.3 (linux-gnu)",
			want: Profile{
				BrowserFamily:  "Wget",
				BrowserVersion: "1.20.3",
				OSFamily:       "Linux",
				IsBotByName:    true,
			},
		},
		{
			name: "named bot product token",
			ua:   "ExampleBot/2.4 (+https://example.com/bot)",
			want: Profile{
				BrowserFamily:  "ExampleBot",
				BrowserVersion: "2.4",
				IsBotByName:    true,
			},
		},
		{
			name: "empty",
			ua:   "",
			want: Profile{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseUserAgent(tc.ua)
			if got != tc.want {
				t.Errorf("ParseUserAgent(%q) = %+v, want %+v", tc.ua, got, tc.want)
			}
		})
	}
}

// TestParseUserAgentBotIndicatorsCaseSensitive tests that bot-name
// matching does not fire on lowercase coincidences
func TestParseUserAgentBotIndicatorsCaseSensitive(t *testing.T) {
	// "Googlebot" carries a lowercase "bot"; the name check stays quiet
	// and the catalog is what identifies it.
	p := ParseUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	if p.BrowserFamily != "Googlebot" {
		t.Errorf("BrowserFamily = %q, want %q", p.BrowserFamily, "Googlebot")
	}
	if p.IsBotByName {
		t.Error("IsBotByName = true, want false for lowercase bot substring")
	}
}
