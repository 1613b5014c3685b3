package attribution

import (
	"regexp"
	"strings"
)

// Canonical labels produced by the classifier.
const (
	LabelFacebookAds = "Sales from FB ADS"
	LabelInstagram   = "Sales from Instagram"
	LabelDirect      = "Direct"
	LabelOrganic     = "Organic Search"
	LabelUnknown     = "Unknown"
)

// Ad platforms surface ad-set IDs as opaque 15-18 digit numeric UTM values.
// These patterns reclaim them into the FB ADS bucket.
var (
	adSetIDExact    = regexp.MustCompile(`^[0-9]{15,18}$`)
	adSetIDToken    = regexp.MustCompile(`(?:utm:|origin:)?\s*\b[0-9]{15,18}\b`)
	adSetIDAnywhere = regexp.MustCompile(`[0-9]{15,18}`)
	adSetID0138     = regexp.MustCompile(`[0-9]{10,}0138`)
)

// rule is one (predicate, label) pair. Rules are evaluated top to bottom;
// the order is load-bearing: Instagram traffic can also match the FB ADS
// heuristics (shared ad platform) and must win.
type rule struct {
	match func(lower string) bool
	label string
}

var classifierRules = []rule{
	{
		match: func(s string) bool { return strings.Contains(s, "instagram") },
		label: LabelInstagram,
	},
	{
		match: func(s string) bool { return adSetIDExact.MatchString(strings.TrimSpace(s)) },
		label: LabelFacebookAds,
	},
	{
		match: func(s string) bool {
			if !strings.Contains(s, "0138") {
				return false
			}
			return strings.Contains(s, "paid") || adSetID0138.MatchString(s)
		},
		label: LabelFacebookAds,
	},
	{
		match: func(s string) bool {
			if strings.Contains(s, "utm_medium:paid") {
				return true
			}
			return strings.Contains(s, "utm: ") && strings.Contains(s, "paid")
		},
		label: LabelFacebookAds,
	},
	{
		match: func(s string) bool {
			for _, marker := range []string{
				"facebook", "fb ads", "facebook ads",
				"utm_medium:cpc", "utm_medium:social", "utm_medium:facebook",
			} {
				if strings.Contains(s, marker) {
					return true
				}
			}
			return false
		},
		label: LabelFacebookAds,
	},
	{
		match: func(s string) bool { return adSetIDToken.MatchString(s) },
		label: LabelFacebookAds,
	},
	{
		match: func(s string) bool { return adSetIDAnywhere.MatchString(s) },
		label: LabelFacebookAds,
	},
}

// Normalize maps a raw origin label to its canonical display label. It is a
// pure function: matching is case-insensitive and the input is returned
// unchanged when no rule applies.
func Normalize(raw string) string {
	lower := strings.ToLower(raw)
	for _, r := range classifierRules {
		if r.match(lower) {
			return r.label
		}
	}
	return raw
}
