package pinboard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultUserAgent is a realistic browser identity; pin.it rejects requests
// with an empty or default Go user agent.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// ResolverConfig contains redirect resolver configuration
type ResolverConfig struct {
	HTTPTimeout time.Duration
	UserAgent   string
}

// DefaultResolverConfig returns default resolver configuration
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		HTTPTimeout: 15 * time.Second,
		UserAgent:   defaultUserAgent,
	}
}

// Resolver expands pin.it short links to full pin page URLs. It tries a
// fixed sequence of strategies and never fails the caller: when every
// strategy is exhausted the input comes back unchanged.
type Resolver struct {
	follow    *http.Client // follows redirects automatically
	manual    *http.Client // surfaces the Location header instead
	userAgent string
	shortHost string
}

// NewResolver creates a new Resolver instance
func NewResolver(config ResolverConfig) *Resolver {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	transport := otelhttp.NewTransport(http.DefaultTransport)

	return &Resolver{
		follow: &http.Client{
			Timeout:   config.HTTPTimeout,
			Transport: transport,
		},
		manual: &http.Client{
			Timeout:   config.HTTPTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: config.UserAgent,
		shortHost: shortLinkDomain,
	}
}

// resolveAttempt is one named expansion strategy. ok is true only when the
// attempt produced a usable URL; a network error is a non-result, not a
// failure of the whole expansion.
type resolveAttempt struct {
	name string
	run  func(ctx context.Context, raw string, trace *[]string) (string, bool)
}

// Expand resolves a short-link URL to its destination. Non-shortener input
// passes through untouched with no network call. The returned trace
// records what each strategy saw, for submission diagnostics.
func (r *Resolver) Expand(ctx context.Context, raw string) (string, []string) {
	parsed, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(parsed.Hostname(), r.shortHost) {
		return raw, nil
	}

	var trace []string
	attempts := []resolveAttempt{
		{name: "follow", run: r.expandByFollowing},
		{name: "location-header", run: r.expandByLocationHeader},
	}

	for _, attempt := range attempts {
		if resolved, ok := attempt.run(ctx, raw, &trace); ok {
			trace = append(trace, fmt.Sprintf("%s: resolved to %s", attempt.name, resolved))
			return resolved, trace
		}
	}

	trace = append(trace, "all expansion strategies exhausted, returning input unchanged")
	return raw, trace
}

// expandByFollowing issues a GET with automatic redirect following. A
// changed final URL containing the /pin/ marker wins outright. A final URL
// matching the shortener's API redirect pattern gets one more follow hop.
// Any other changed URL is returned best-effort.
func (r *Resolver) expandByFollowing(ctx context.Context, raw string, trace *[]string) (string, bool) {
	final, err := r.finalURL(ctx, r.follow, raw)
	if err != nil {
		*trace = append(*trace, fmt.Sprintf("follow: request failed: %v", err))
		return "", false
	}

	if final == raw {
		*trace = append(*trace, "follow: URL did not change")
		return "", false
	}

	if containsPinPath(final) {
		return final, true
	}

	if shortenerAPIRe.MatchString(final) {
		*trace = append(*trace, fmt.Sprintf("follow: got intermediate API redirect %s", final))
		second, err := r.finalURL(ctx, r.follow, final)
		if err == nil && second != final && containsPinPath(second) {
			return second, true
		}
		if err != nil {
			*trace = append(*trace, fmt.Sprintf("follow: API redirect hop failed: %v", err))
		}
	}

	// Changed but not recognizably a pin page; some destination may still
	// be meaningful downstream.
	*trace = append(*trace, fmt.Sprintf("follow: returning non-canonical destination %s", final))
	return final, true
}

// expandByLocationHeader retries with manual redirect handling and reads
// the Location header directly. An intermediate API redirect in Location
// gets one automatic-follow hop; otherwise the raw header value is
// returned as-is.
func (r *Resolver) expandByLocationHeader(ctx context.Context, raw string, trace *[]string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		*trace = append(*trace, fmt.Sprintf("location-header: bad request: %v", err))
		return "", false
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.manual.Do(req)
	if err != nil {
		*trace = append(*trace, fmt.Sprintf("location-header: request failed: %v", err))
		return "", false
	}
	resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		*trace = append(*trace, "location-header: no Location header present")
		return "", false
	}

	if isShortenerRedirectURL(location) {
		*trace = append(*trace, fmt.Sprintf("location-header: got intermediate API redirect %s", location))
		final, err := r.finalURL(ctx, r.follow, location)
		if err == nil && containsPinPath(final) {
			return final, true
		}
		if err != nil {
			*trace = append(*trace, fmt.Sprintf("location-header: API redirect hop failed: %v", err))
		}
	}

	return location, true
}

// finalURL issues a GET with the given client and returns the URL of the
// response actually served, after any redirects the client followed.
func (r *Resolver) finalURL(ctx context.Context, client *http.Client, raw string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return resp.Request.URL.String(), nil
}
