package pinboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
)

// ExtractorConfig contains content extractor configuration
type ExtractorConfig struct {
	ScrapeEndpoint     string        // Base URL of the remote scraping service
	HTTPTimeout        time.Duration
	UserAgent          string
	EnablePageFallback bool // Probe the pin page's OpenGraph tags when the scraper fails
}

// DefaultExtractorConfig returns default extractor configuration
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		ScrapeEndpoint:     "https://pinterest-downloader.fly.dev",
		HTTPTimeout:        30 * time.Second,
		UserAgent:          defaultUserAgent,
		EnablePageFallback: true,
	}
}

// ExtractionResult is the outcome of a pin extraction. Exactly one shape is
// populated, and Success always agrees with the payload: use the
// constructors below rather than building one by hand.
type ExtractionResult struct {
	Success     bool   `json:"success"`
	ImageURL    string `json:"image_url,omitempty"`    // remote asset URL (metadata shape)
	ImageData   []byte `json:"-"`                      // raw asset bytes (binary shape)
	ContentType string `json:"content_type,omitempty"` // declared type of ImageData
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HasImage reports whether the result carries any image reference at all.
func (r ExtractionResult) HasImage() bool {
	return r.Success && (len(r.ImageData) > 0 || r.ImageURL != "")
}

func imageResult(data []byte, contentType, title string) ExtractionResult {
	return ExtractionResult{Success: true, ImageData: data, ContentType: contentType, Title: title}
}

func metadataResult(imageURL, title, description string) ExtractionResult {
	return ExtractionResult{Success: true, ImageURL: imageURL, Title: title, Description: description}
}

func failureResult(format string, args ...interface{}) ExtractionResult {
	return ExtractionResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Alternate field names the scraping service has been observed using, in
// probe order. The service's JSON shape is not stable across pins.
var (
	imageURLFields    = []string{"imageUrl", "image_url", "url", "media_url", "image"}
	titleFields       = []string{"title", "name", "pin_title"}
	descriptionFields = []string{"description", "desc", "pin_description"}
)

// Extractor resolves, normalizes and scrapes a pin URL into an
// ExtractionResult. Every failure mode becomes a result value; nothing
// below the orchestrator raises.
type Extractor struct {
	config   ExtractorConfig
	client   *http.Client
	resolver *Resolver
}

// NewExtractor creates a new Extractor instance
func NewExtractor(config ExtractorConfig, resolver *Resolver) *Extractor {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	return &Extractor{
		config: config,
		client: &http.Client{
			Timeout:   config.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		resolver: resolver,
	}
}

// Extract runs the full pipeline for one URL: expand short links,
// normalize to the canonical pin form, then ask the scraping service for
// the asset. The returned trace carries the resolver's expansion
// diagnostics for the submission response.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (ExtractionResult, []string) {
	expanded, trace := e.resolver.Expand(ctx, rawURL)
	normalized := NormalizePinURL(expanded)

	log.Printf("Extracting pin: original=%s expanded=%s normalized=%s", rawURL, expanded, normalized)

	result := e.scrape(ctx, normalized, rawURL)
	if result.Success {
		return result, trace
	}

	// The scraping service is best-effort; the pin page itself often still
	// exposes the asset through OpenGraph tags.
	if e.config.EnablePageFallback {
		if fallback, ok := e.fetchPageMetadata(ctx, normalized); ok {
			trace = append(trace, fmt.Sprintf("scrape failed (%s), recovered via page metadata", result.Error))
			return fallback, trace
		}
	}

	return result, trace
}

// scrape POSTs the normalized URL to the scraping service and interprets
// the response by its declared content type: image/* bodies are the asset
// itself, anything else is treated as JSON metadata with unstable field
// names.
func (e *Extractor) scrape(ctx context.Context, normalizedURL, originalURL string) ExtractionResult {
	payload, err := json.Marshal(map[string]string{"url": normalizedURL})
	if err != nil {
		return failureResult("failed to encode scrape request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.ScrapeEndpoint+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return failureResult("failed to create scrape request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		extractionFailures.WithLabelValues("scrape_network").Inc()
		return failureResult("scrape request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		extractionFailures.WithLabelValues("scrape_status").Inc()
		return failureResult("scraper returned %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			extractionFailures.WithLabelValues("scrape_network").Inc()
			return failureResult("failed to read image body: %v", err)
		}
		return imageResult(data, contentType, fmt.Sprintf("Pinterest Pin from %s", originalURL))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		extractionFailures.WithLabelValues("scrape_network").Inc()
		return failureResult("failed to read scraper response: %v", err)
	}

	return decodeScrapePayload(body, contentType)
}

// decodeScrapePayload interprets a non-binary scraper response. Unknown
// shapes become diagnostic failures that name what was actually observed,
// never a crash.
func decodeScrapePayload(body []byte, contentType string) ExtractionResult {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		extractionFailures.WithLabelValues("bad_payload").Inc()
		return failureResult("expected image or JSON response, got %q: %s", contentType, truncate(string(body), 200))
	}

	imageURL := firstString(data, imageURLFields...)
	if imageURL == "" {
		extractionFailures.WithLabelValues("no_image_field").Inc()
		return failureResult("no image URL found in scraper response; available fields: %s", strings.Join(sortedKeys(data), ", "))
	}

	return metadataResult(
		imageURL,
		firstString(data, titleFields...),
		firstString(data, descriptionFields...),
	)
}

// fetchPageMetadata fetches the pin page itself and probes its OpenGraph
// meta tags. Used only as a fallback after a scrape failure; a page
// without og:image is a miss, preserving the original failure.
func (e *Extractor) fetchPageMetadata(ctx context.Context, pageURL string) (ExtractionResult, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ExtractionResult{}, false
	}
	req.Header.Set("User-Agent", e.config.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return ExtractionResult{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ExtractionResult{}, false
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return ExtractionResult{}, false
	}

	og := extractOpenGraph(doc)
	if og["og:image"] == "" {
		return ExtractionResult{}, false
	}

	return metadataResult(og["og:image"], og["og:title"], og["og:description"]), true
}

// extractOpenGraph walks an HTML document collecting og:* meta properties.
func extractOpenGraph(n *html.Node) map[string]string {
	og := map[string]string{}

	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var property, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "property":
					property = strings.ToLower(attr.Val)
				case "content":
					content = attr.Val
				}
			}
			if strings.HasPrefix(property, "og:") && content != "" && og[property] == "" {
				og[property] = content
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)

	return og
}

// firstString probes keys in order and returns the first non-empty string value.
func firstString(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func sortedKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
