package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config contains asset store configuration
type Config struct {
	Endpoint        string // Optional: custom endpoint for MinIO or DigitalOcean Spaces
	Region          string // AWS region or DO region (e.g., "us-east-1" or "sfo3")
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	UsePathStyle    bool   // Use path-style addressing (required for MinIO)
	PublicBaseURL   string // Optional: CDN or public host the bucket is served from
	HTTPTimeout     time.Duration
}

// DefaultConfig returns default asset store configuration
func DefaultConfig() Config {
	return Config{
		Region:      "us-east-1",
		HTTPTimeout: 30 * time.Second,
	}
}

// AssetSource is the input to Store: either a remote URL to fetch or the
// raw bytes already in hand, with an optional declared content type.
type AssetSource struct {
	URL         string
	Data        []byte
	ContentType string
}

// StoreResult reports the outcome of one asset store. Failures carry a
// human-readable reason; nothing here panics past the boundary.
type StoreResult struct {
	Success     bool
	PublicURL   string
	Key         string
	ContentType string
	Size        int64
	Data        []byte // bytes actually uploaded, for metadata capture by the caller
	Error       string
}

// S3Store persists pin assets to S3-compatible object storage under
// deterministic owner-scoped keys, so re-storing the same pin overwrites
// instead of accumulating duplicates.
type S3Store struct {
	client     *s3.Client
	httpClient *http.Client
	bucket     string
	config     Config
}

// New creates a new S3Store instance
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("S3 credentials are required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client: client,
		httpClient: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// Store fetches the asset if needed and uploads it under
// <ownerID>/<pinID><ext>. The key is a pure function of its inputs, so a
// retry overwrites the earlier object rather than duplicating it.
func (s *S3Store) Store(ctx context.Context, src AssetSource, ownerID, pinID string) StoreResult {
	data := src.Data
	contentType := src.ContentType

	if len(data) == 0 {
		if src.URL == "" {
			return storeFailure("no asset source provided")
		}
		fetched, fetchedType, err := s.fetch(ctx, src.URL)
		if err != nil {
			return storeFailure("failed to download image: %v", err)
		}
		data = fetched
		if contentType == "" {
			contentType = fetchedType
		}
	}

	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := objectKey(ownerID, pinID, fileExtension(src.URL, contentType))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Printf("Failed to upload asset %s: %v", key, err)
		return storeFailure("storage upload failed: %v", err)
	}

	return StoreResult{
		Success:     true,
		PublicURL:   s.PublicURL(key),
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
}

// PublicURL returns the stable public locator for a stored key.
func (s *S3Store) PublicURL(key string) string {
	if s.config.PublicBaseURL != "" {
		return strings.TrimRight(s.config.PublicBaseURL, "/") + "/" + key
	}
	if s.config.Endpoint != "" {
		return strings.TrimRight(s.config.Endpoint, "/") + "/" + s.bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.config.Region, key)
}

// Delete removes a stored asset; missing objects are not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}

// fetch downloads asset bytes from a remote URL.
func (s *S3Store) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func storeFailure(format string, args ...interface{}) StoreResult {
	return StoreResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// objectKey derives the deterministic, owner-scoped storage key.
func objectKey(ownerID, pinID, ext string) string {
	return ownerID + "/" + pinID + ext
}

var urlExtensionRe = regexp.MustCompile(`\.([a-zA-Z0-9]+)$`)

// fileExtension derives a file extension, preferring a trailing .<ext> on
// the source URL's path, then the declared content type, then .jpg.
func fileExtension(srcURL, contentType string) string {
	if srcURL != "" {
		if parsed, err := url.Parse(srcURL); err == nil {
			if m := urlExtensionRe.FindStringSubmatch(parsed.Path); m != nil {
				return "." + m[1]
			}
		}
	}

	return extensionFromContentType(contentType)
}

// extensionFromContentType maps a declared media type to a file extension.
func extensionFromContentType(contentType string) string {
	contentType = strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".jpg"
	}
}
