package pinboard

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// primaryDomain is the canonical Pinterest hostname the scraper expects.
	primaryDomain = "pinterest.com"
	// shortLinkDomain is Pinterest's dedicated URL shortener.
	shortLinkDomain = "pin.it"
)

var (
	regionalSubdomainRe = regexp.MustCompile(`^[a-z]{2}\.pinterest\.com$`)
	countryTLDRe        = regexp.MustCompile(`^pinterest\.[a-z]{2,}$`)
	pinPathRe           = regexp.MustCompile(`/pin/(\d+)/?`)
	shortenerAPIRe      = regexp.MustCompile(`url_shortener/([^/]+)/redirect`)
)

// IsPinterestURL reports whether a URL points at a Pinterest content page.
// It matches the primary domain, the pin.it shortener, regional subdomains
// (nl.pinterest.com) and country TLD variants (pinterest.co.uk). Malformed
// input is never an error, just a non-match.
func IsPinterestURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return false
	}

	return hostname == primaryDomain ||
		hostname == "www."+primaryDomain ||
		hostname == shortLinkDomain ||
		strings.HasSuffix(hostname, "."+primaryDomain) ||
		regionalSubdomainRe.MatchString(hostname) ||
		countryTLDRe.MatchString(hostname)
}

// NormalizePinURL rewrites any recognized pin page URL to the canonical
// form https://pinterest.com/pin/<id>/. It is pure and idempotent: input
// without a numeric pin id passes through unchanged, as do the
// api.pinterest.com shortener-redirect URLs that cannot be normalized
// without another network hop.
func NormalizePinURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if strings.EqualFold(parsed.Hostname(), "api."+primaryDomain) && strings.Contains(raw, "url_shortener") {
		return raw
	}

	if m := pinPathRe.FindStringSubmatch(parsed.Path); m != nil {
		return fmt.Sprintf("https://%s/pin/%s/", primaryDomain, m[1])
	}

	return raw
}

// ExtractPinID returns the numeric pin id embedded in a pin page URL. For
// pin.it links, where the real id is not knowable without resolution, the
// opaque short path segment stands in. Returns "" when neither is present.
func ExtractPinID(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	if strings.EqualFold(parsed.Hostname(), shortLinkDomain) {
		return strings.Trim(parsed.Path, "/")
	}

	if m := pinPathRe.FindStringSubmatch(parsed.Path); m != nil {
		return m[1]
	}

	return ""
}

// isShortenerRedirectURL reports whether a URL is an intermediate
// api.pinterest.com shortener redirect that needs one more resolution hop.
func isShortenerRedirectURL(raw string) bool {
	return shortenerAPIRe.MatchString(raw) || strings.Contains(raw, "api."+primaryDomain)
}

// containsPinPath reports whether a URL carries the canonical /pin/ marker.
func containsPinPath(raw string) bool {
	return strings.Contains(raw, "/pin/")
}
