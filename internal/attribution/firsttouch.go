package attribution

import (
	"net/url"
	"strings"
)

// searchEngineFragments identify organic-search referrer hosts.
var searchEngineFragments = []string{
	"google", "bing", "yahoo", "duckduckgo", "yandex", "baidu",
}

// DeriveOrigin computes a first-touch origin label from a landing page's
// query parameters, the document referrer and the storefront host. The same
// rule runs for the browser-facing touch recorder and the order-time
// server-side fallback so the two cannot drift.
//
// First match wins: UTM parameters, then an external referrer (organic
// search or referral), then direct.
func DeriveOrigin(query url.Values, referrer, siteHost string) string {
	if src := strings.TrimSpace(query.Get("utm_source")); src != "" {
		label := "UTM: " + src
		if med := strings.TrimSpace(query.Get("utm_medium")); med != "" {
			label += " / " + med
		}
		return label
	}

	if host := externalReferrerHost(referrer, siteHost); host != "" {
		if isSearchEngine(host) {
			return LabelOrganic
		}
		return "Referral: " + host
	}

	return LabelDirect
}

// externalReferrerHost returns the referrer host when it names a different
// site than ours, empty otherwise. Hosts are compared with a leading www.
// stripped.
func externalReferrerHost(referrer, siteHost string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return ""
	}
	host := stripWWW(strings.ToLower(u.Host))
	if host == "" || host == stripWWW(strings.ToLower(siteHost)) {
		return ""
	}
	return host
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

func isSearchEngine(host string) bool {
	for _, fragment := range searchEngineFragments {
		if strings.Contains(host, fragment) {
			return true
		}
	}
	return false
}
