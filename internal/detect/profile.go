package detect

import (
	"regexp"
	"strings"
)

// Profile is the parsed view of a user-agent string. Parsing is a pure
// function of the input: malformed or empty input yields empty fields,
// never an error.
type Profile struct {
	BrowserFamily  string `json:"browser_family"`
	BrowserVersion string `json:"browser_version"`

	OSFamily  string `json:"os_family"`
	OSVersion string `json:"os_version"`

	DeviceFamily string `json:"device_family"`
	DeviceBrand  string `json:"device_brand"`
	DeviceModel  string `json:"device_model"`

	IsMobile    bool `json:"is_mobile"`
	IsBotByName bool `json:"is_bot_by_name"`
}

// Operating systems that indicate mobile devices.
var mobileOS = map[string]bool{
	"iOS":           true,
	"Android":       true,
	"Windows Phone": true,
	"BlackBerry":    true,
}

// Browser family substrings that indicate automation. The test is
// case-sensitive on purpose: "curl" matches, a brand name that merely
// contains "bot" in lowercase does not (the catalog handles those).
var botIndicators = []string{
	"Bot", "Spider", "Crawler", "Robot",
	"Apache-HttpClient", "Python-urllib", "curl", "Wget",
}

// productTokenRe matches "name/version" product tokens such as
// "curl/7.68.0" or "Googlebot/2.1".
var productTokenRe = regexp.MustCompile(`([A-Za-z][A-Za-z0-9._+-]*)/([0-9][0-9A-Za-z.+-]*)`)

// Boilerplate tokens that never identify the actual client.
var boilerplateTokens = map[string]bool{
	"Mozilla":     true,
	"AppleWebKit": true,
	"Gecko":       true,
	"KHTML":       true,
	"Safari":      true, // Chrome and Android UAs carry a trailing Safari token
	"Mobile":      true,
	"Version":     true,
}

// ParseUserAgent derives a Profile from a raw user-agent string.
func ParseUserAgent(ua string) Profile {
	p := Profile{}
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return p
	}

	p.BrowserFamily, p.BrowserVersion = parseBrowser(ua)
	p.OSFamily, p.OSVersion = parseOS(ua)
	p.DeviceFamily, p.DeviceBrand, p.DeviceModel = parseDevice(ua)

	p.IsMobile = mobileOS[p.OSFamily]
	for _, indicator := range botIndicators {
		if strings.Contains(p.BrowserFamily, indicator) {
			p.IsBotByName = true
			break
		}
	}

	return p
}

func parseBrowser(ua string) (family, version string) {
	lower := strings.ToLower(ua)

	// Well-known browsers first. Order matters: Edge and Opera embed
	// "chrome", Chrome embeds "safari".
	switch {
	case strings.Contains(lower, "edg/") || strings.Contains(lower, "edge/"):
		return "Edge", versionAfter(lower, ua, "edg/", "edge/")
	case strings.Contains(lower, "opr/") || strings.Contains(lower, "opera"):
		return "Opera", versionAfter(lower, ua, "opr/", "opera/")
	case strings.Contains(lower, "chrome/"):
		return "Chrome", versionAfter(lower, ua, "chrome/")
	case strings.Contains(lower, "firefox/"):
		return "Firefox", versionAfter(lower, ua, "firefox/")
	case strings.Contains(lower, "safari/") && strings.Contains(lower, "version/"):
		return "Safari", versionAfter(lower, ua, "version/")
	}

	// Everything else: take the most specific product token. Tools and
	// crawlers identify themselves this way ("curl/7.68.0",
	// "Python-urllib/3.8", "Mozilla/5.0 (compatible; Googlebot/2.1; ...)").
	matches := productTokenRe.FindAllStringSubmatch(ua, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if !boilerplateTokens[matches[i][1]] {
			return matches[i][1], matches[i][2]
		}
	}
	if len(matches) > 0 {
		return matches[0][1], matches[0][2]
	}

	// No product token at all; the leading word is the best we have.
	if fields := strings.Fields(ua); len(fields) > 0 {
		return fields[0], ""
	}
	return "", ""
}

// versionAfter returns the version substring following the first of the
// given lowercase markers found in the UA.
func versionAfter(lower, ua string, markers ...string) string {
	for _, m := range markers {
		idx := strings.Index(lower, m)
		if idx < 0 {
			continue
		}
		rest := ua[idx+len(m):]
		end := strings.IndexFunc(rest, func(r rune) bool {
			return !(r == '.' || (r >= '0' && r <= '9'))
		})
		if end < 0 {
			return rest
		}
		return rest[:end]
	}
	return ""
}

func parseOS(ua string) (family, version string) {
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "windows phone"):
		return "Windows Phone", versionAfter(lower, ua, "windows phone ")
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") || strings.Contains(lower, "ipod"):
		return "iOS", iosVersion(ua)
	case strings.Contains(lower, "android"):
		return "Android", versionAfter(lower, ua, "android ")
	case strings.Contains(lower, "blackberry") || strings.Contains(lower, "bb10"):
		return "BlackBerry", ""
	case strings.Contains(lower, "windows nt"):
		return "Windows", versionAfter(lower, ua, "windows nt ")
	case strings.Contains(lower, "mac os x"):
		return "Mac OS X", iosVersion(ua)
	case strings.Contains(lower, "linux"):
		return "Linux", ""
	}
	return "", ""
}

var iosVersionRe = regexp.MustCompile(`OS X? ?(\d+)[_.](\d+)(?:[_.](\d+))?`)

func iosVersion(ua string) string {
	m := iosVersionRe.FindStringSubmatch(ua)
	if m == nil {
		return ""
	}
	v := m[1] + "." + m[2]
	if m[3] != "" {
		v += "." + m[3]
	}
	return v
}

func parseDevice(ua string) (family, brand, model string) {
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "iphone"):
		return "iPhone", "Apple", "iPhone"
	case strings.Contains(lower, "ipad"):
		return "iPad", "Apple", "iPad"
	case strings.Contains(lower, "android"):
		return "Generic Smartphone", "", androidModel(ua)
	case strings.Contains(lower, "mac os x"):
		return "Mac", "Apple", "Mac"
	}
	return "", "", ""
}

// androidModel pulls the device model out of the parenthesized platform
// block, e.g. "(Linux; Android 11; Pixel 5)" -> "Pixel 5".
func androidModel(ua string) string {
	open := strings.Index(ua, "(")
	close := strings.Index(ua, ")")
	if open < 0 || close < open {
		return ""
	}
	parts := strings.Split(ua[open+1:close], ";")
	last := strings.TrimSpace(parts[len(parts)-1])
	if strings.HasPrefix(strings.ToLower(last), "android") || strings.EqualFold(last, "linux") {
		return ""
	}
	// Strip a trailing build identifier ("Pixel 5 Build/RQ3A").
	if idx := strings.Index(last, " Build/"); idx > 0 {
		last = last[:idx]
	}
	return last
}
