package adapter

import "strings"

// blockMarkers are lowercase substrings whose presence marks a challenge or
// anti-bot interstitial rather than a listing page. Keyword heuristics only:
// a false negative just surfaces later as an empty extraction, a false
// positive aborts one source for one run.
var blockMarkers = []string{
	"captcha",
	"are you a robot",
	"unusual traffic",
	"attention required",
	"access denied",
	"request blocked",
	"cf-challenge",
	"challenge-form",
	"verify you are human",
	"_incapsula_",
	"perimeterx",
}

// Blocked reports whether a rendered page is an anti-bot challenge.
func Blocked(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
