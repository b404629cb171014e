package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombar/pinboard"
	"github.com/zombar/pinboard/db"
	"github.com/zombar/pinboard/models"
	"github.com/zombar/pinboard/storage"
)

// pinStore is the slice of the persistence layer the server uses.
type pinStore interface {
	GetPinByID(id string) (*models.Pin, error)
	GetPinBySlug(slug string) (*models.Pin, error)
	ListPinsByUser(userID string, limit, offset int) ([]*models.Pin, error)
	DeletePin(id string) error
	Count() (int, error)
	CountByUser(userID string) (int, error)
	Close() error
}

// submitter runs one URL submission end to end.
type submitter interface {
	Submit(ctx context.Context, userID string, req pinboard.SubmitRequest) pinboard.SubmitResult
}

// Server represents the API server
type Server struct {
	db          pinStore
	ingestor    submitter
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
}

// Config contains server configuration
type Config struct {
	Addr            string
	DBConfig        db.Config
	StorageConfig   storage.Config
	ExtractorConfig pinboard.ExtractorConfig
	ResolverConfig  pinboard.ResolverConfig
	CORSEnabled     bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		StorageConfig:   storage.DefaultConfig(),
		ExtractorConfig: pinboard.DefaultExtractorConfig(),
		ResolverConfig:  pinboard.DefaultResolverConfig(),
		CORSEnabled:     true,
	}
}

// NewServer creates a new API server
func NewServer(config Config) (*Server, error) {
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	assets, err := storage.New(context.Background(), config.StorageConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize asset storage: %w", err)
	}

	resolver := pinboard.NewResolver(config.ResolverConfig)
	extractor := pinboard.NewExtractor(config.ExtractorConfig, resolver)
	ingestor := pinboard.NewIngestor(database, assets, extractor)

	s := &Server{
		db:          database,
		ingestor:    ingestor,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // Allow time for extraction and asset transfer
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/pins", s.handlePins)
	s.mux.HandleFunc("/api/pins/", s.handlePin) // Handles /api/pins/{id} and /api/pins/slug/{slug}
}

// Start starts the API server
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// UpdatePinMetrics refreshes the stored-pin gauge from the database.
func (s *Server) UpdatePinMetrics() {
	count, err := s.db.Count()
	if err != nil {
		log.Printf("Failed to count pins for metrics: %v", err)
		return
	}
	pinboard.SetPinsStored(count)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Logging (skip health and metrics to reduce noise)
		start := time.Now()
		quiet := r.URL.Path == "/health" || r.URL.Path == "/metrics"
		if !quiet {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}

		next.ServeHTTP(w, r)

		if !quiet {
			log.Printf("%s %s - completed in %v", r.Method, r.URL.Path, time.Since(start))
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.db.Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"pins":   count,
		"time":   time.Now(),
	})
}

// handlePins dispatches collection-level operations
func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreatePin(w, r)
	case http.MethodGet:
		s.handleListPins(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCreatePin accepts a URL submission and runs the ingestion workflow
func (s *Server) handleCreatePin(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}

	var req pinboard.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := s.ingestor.Submit(r.Context(), userID, req)
	if !result.Success {
		respondError(w, result.Status, result.Message)
		return
	}

	respondJSON(w, result.Status, result)
}

// handleListPins lists a user's pins with pagination
func (s *Server) handleListPins(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		fmt.Sscanf(offsetStr, "%d", &offset)
	}

	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	pins, err := s.db.ListPinsByUser(userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	total, _ := s.db.CountByUser(userID)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"pins":   pins,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handlePin handles item-level GET/DELETE plus slug lookup
func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/pins/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if strings.HasPrefix(path, "slug/") {
		slug := strings.TrimPrefix(path, "slug/")
		if r.Method == http.MethodGet {
			s.handleGetPinBySlug(w, r, slug)
		} else {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetPin(w, r, path)
	case http.MethodDelete:
		s.handleDeletePin(w, r, path)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetPin retrieves a pin by id
func (s *Server) handleGetPin(w http.ResponseWriter, r *http.Request, id string) {
	pin, err := s.db.GetPinByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if pin == nil {
		respondError(w, http.StatusNotFound, "pin not found")
		return
	}

	respondJSON(w, http.StatusOK, pin)
}

// handleGetPinBySlug retrieves a pin by its slug
func (s *Server) handleGetPinBySlug(w http.ResponseWriter, r *http.Request, slug string) {
	if slug == "" {
		respondError(w, http.StatusBadRequest, "slug is required")
		return
	}

	pin, err := s.db.GetPinBySlug(slug)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if pin == nil {
		respondError(w, http.StatusNotFound, "pin not found")
		return
	}

	respondJSON(w, http.StatusOK, pin)
}

// handleDeletePin deletes a pin by id
func (s *Server) handleDeletePin(w http.ResponseWriter, r *http.Request, id string) {
	err := s.db.DeletePin(id)
	if err != nil {
		if strings.Contains(err.Error(), "no pin found") {
			respondError(w, http.StatusNotFound, "pin not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete pin")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "pin deleted successfully",
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
