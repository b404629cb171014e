package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/zombar/pinboard"
	"github.com/zombar/pinboard/api"
	"github.com/zombar/pinboard/db"
	"github.com/zombar/pinboard/storage"
	"github.com/zombar/pinboard/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("pinboard service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("pinboard-api")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultScrapeEndpoint := getEnv("SCRAPE_ENDPOINT", pinboard.DefaultExtractorConfig().ScrapeEndpoint)

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	scrapeEndpoint := flag.String("scrape-endpoint", defaultScrapeEndpoint, "Remote scraping service base URL")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	disablePageFallback := flag.Bool("disable-page-fallback", false, "Disable OpenGraph page fallback on extraction failure")
	flag.Parse()

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "pinboard")
	dbPassword := getEnv("DB_PASSWORD", "pinboard_dev_pass")
	dbName := getEnv("DB_NAME", "pinboard")

	dbConfig := db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	// S3 asset storage configuration (required)
	storageConfig := storage.DefaultConfig()
	storageConfig.Endpoint = getEnv("S3_ENDPOINT", "")
	storageConfig.Region = getEnv("S3_REGION", storageConfig.Region)
	storageConfig.Bucket = getEnv("S3_BUCKET", "")
	storageConfig.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", "")
	storageConfig.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", "")
	storageConfig.PublicBaseURL = getEnv("S3_PUBLIC_BASE_URL", "")
	storageConfig.UsePathStyle = storageConfig.Endpoint != ""

	extractorConfig := pinboard.DefaultExtractorConfig()
	extractorConfig.ScrapeEndpoint = *scrapeEndpoint
	extractorConfig.EnablePageFallback = !*disablePageFallback

	config := api.Config{
		Addr:            ":" + *port,
		DBConfig:        dbConfig,
		StorageConfig:   storageConfig,
		ExtractorConfig: extractorConfig,
		ResolverConfig:  pinboard.DefaultResolverConfig(),
		CORSEnabled:     !*disableCORS,
	}

	// Create server
	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Initialize pin metrics updater
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			server.UpdatePinMetrics()
		}
	}()
	logger.Info("pin metrics initialized")

	// Start server in a goroutine
	go func() {
		logger.Info("pinboard service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"s3_bucket", storageConfig.Bucket,
			"scrape_endpoint", *scrapeEndpoint,
			"page_fallback_enabled", !*disablePageFallback,
		)

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
