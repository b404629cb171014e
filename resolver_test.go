package pinboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

// testResolver points the resolver's short-link hostname at a local test
// server so expansion strategies can be exercised without real network.
func testResolver(t *testing.T, shortURL string) *Resolver {
	t.Helper()

	parsed, err := url.Parse(shortURL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}

	r := NewResolver(DefaultResolverConfig())
	r.shortHost = parsed.Hostname()
	return r
}

func TestExpandPassesThroughNonShortLinks(t *testing.T) {
	r := NewResolver(DefaultResolverConfig())

	urls := []string{
		"https://pinterest.com/pin/123456/",
		"https://example.com/page",
		"not a url",
	}

	for _, u := range urls {
		resolved, trace := r.Expand(context.Background(), u)
		if resolved != u {
			t.Errorf("Expand(%q) = %q, want input unchanged", u, resolved)
		}
		if len(trace) != 0 {
			t.Errorf("Expand(%q) trace = %v, want empty", u, trace)
		}
	}
}

func TestExpandFollowsRedirectToPinPage(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/pin/123456789/", http.StatusFound)
	}))
	defer short.Close()

	r := testResolver(t, short.URL)

	resolved, trace := r.Expand(context.Background(), short.URL+"/abc123")
	want := target.URL + "/pin/123456789/"
	if resolved != want {
		t.Errorf("Expand() = %q, want %q", resolved, want)
	}
	if len(trace) == 0 || !strings.HasPrefix(trace[len(trace)-1], "follow: resolved to ") {
		t.Errorf("expected follow resolution in trace, got %v", trace)
	}
}

func TestExpandReturnsInputWhenNothingResolves(t *testing.T) {
	// No redirect and no Location header: both strategies come up empty.
	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer short.Close()

	r := testResolver(t, short.URL)

	input := short.URL + "/abc123"
	resolved, trace := r.Expand(context.Background(), input)
	if resolved != input {
		t.Errorf("Expand() = %q, want input %q unchanged", resolved, input)
	}

	last := trace[len(trace)-1]
	if !strings.Contains(last, "exhausted") {
		t.Errorf("expected exhaustion note in trace, got %v", trace)
	}
}

func TestExpandResolvesIntermediateAPIRedirect(t *testing.T) {
	pins := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer pins.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, pins.URL+"/pin/777/", http.StatusFound)
	}))
	defer api.Close()

	// The short server serves 200 on the first request so the follow
	// strategy sees no change, then answers the manual client's request
	// with a redirect into the shortener API.
	var requests int64
	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&requests, 1) == 1 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Location", api.URL+"/url_shortener/abc123/redirect/")
		w.WriteHeader(http.StatusFound)
	}))
	defer short.Close()

	r := testResolver(t, short.URL)

	resolved, trace := r.Expand(context.Background(), short.URL+"/abc123")
	want := pins.URL + "/pin/777/"
	if resolved != want {
		t.Errorf("Expand() = %q, want %q", resolved, want)
	}

	joined := strings.Join(trace, "; ")
	if !strings.Contains(joined, "intermediate API redirect") {
		t.Errorf("expected intermediate redirect note in trace, got %v", trace)
	}
	if !strings.Contains(joined, "location-header: resolved to ") {
		t.Errorf("expected location-header resolution in trace, got %v", trace)
	}
}

func TestExpandReturnsNonCanonicalDestination(t *testing.T) {
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer elsewhere.Close()

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, elsewhere.URL+"/somewhere", http.StatusFound)
	}))
	defer short.Close()

	r := testResolver(t, short.URL)

	resolved, _ := r.Expand(context.Background(), short.URL+"/abc123")
	want := elsewhere.URL + "/somewhere"
	if resolved != want {
		t.Errorf("Expand() = %q, want best-effort destination %q", resolved, want)
	}
}

func TestExpandSendsConfiguredUserAgent(t *testing.T) {
	var gotUA string
	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer short.Close()

	cfg := DefaultResolverConfig()
	cfg.UserAgent = "pinboard-test/1.0"
	r := NewResolver(cfg)

	parsed, _ := url.Parse(short.URL)
	r.shortHost = parsed.Hostname()

	r.Expand(context.Background(), short.URL+"/abc123")
	if gotUA != "pinboard-test/1.0" {
		t.Errorf("User-Agent = %q, want configured value", gotUA)
	}
}
