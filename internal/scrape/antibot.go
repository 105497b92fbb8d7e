package scrape

import (
	"bytes"
	"strings"
)

// challengeMarkers are body substrings that identify an interstitial
// challenge page rather than real content. Matching is case-insensitive.
var challengeMarkers = []string{
	"just a moment...",
	"cloudflare",
	"captcha",
	"security check",
	"cf-browser-verification",
}

// isChallenge reports whether the body looks like an anti-bot challenge.
func isChallenge(body []byte) bool {
	lower := strings.ToLower(string(bytes.ToValidUTF8(body, nil)))
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
