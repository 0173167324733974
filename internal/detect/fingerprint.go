package detect

import "net/http"

// browserHeaders is the set a real browser sends on navigation. Their
// collective absence is a strong automation signal.
var browserHeaders = []string{
	"Accept-Language",
	"Accept-Encoding",
	"Sec-Fetch-Dest",
	"Sec-Fetch-Mode",
	"Sec-Fetch-Site",
	"Sec-Ch-Ua",
}

// contribution is one signal's input to the aggregated verdict.
// Confidence merges into the verdict via max(), never additively.
type contribution struct {
	confidence float64
	method     string
	flagsBot   bool
}

// analyzeFingerprint inspects request headers for browser-characteristic
// traits. Structured machine-to-machine calls are exempt from the
// browser-header check; the mobile consistency check always applies.
func analyzeFingerprint(headers http.Header, profile Profile) []contribution {
	var out []contribution

	isAPICall := headers.Get("Content-Type") == "application/json"
	if !isAPICall {
		missing := 0
		for _, h := range browserHeaders {
			if headers.Get(h) == "" {
				missing++
			}
		}
		if missing >= 5 {
			out = append(out, contribution{confidence: 0.7, method: "browser_fingerprint", flagsBot: true})
		}
	}

	// A UA claiming a mobile OS while client hints say otherwise.
	if profile.IsMobile {
		if v := headers.Get("Sec-Ch-Ua-Mobile"); v != "" && v != "?1" {
			out = append(out, contribution{confidence: 0.8, method: "mobile_mismatch"})
		}
	}

	return out
}
