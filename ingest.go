package pinboard

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/pinboard/models"
	"github.com/zombar/pinboard/slug"
	"github.com/zombar/pinboard/storage"
)

// SubmitRequest is the user-facing submission payload.
type SubmitRequest struct {
	SourceURL string `json:"source_url"`
	Note      string `json:"note,omitempty"`
}

// SubmitResult is the outcome of one submission. Status is an HTTP-style
// code for the API boundary; Debug carries the resolver's expansion trace.
type SubmitResult struct {
	Success bool   `json:"success"`
	Status  int    `json:"-"`
	PinID   string `json:"pin_id,omitempty"`
	Message string `json:"message,omitempty"`
	Debug   string `json:"debug,omitempty"`
}

// PinStore is the slice of the persistence layer the orchestrator needs.
type PinStore interface {
	InsertPin(pin *models.Pin) error
	UpdatePinImage(id, imageURL string, width, height int, exifData *models.EXIFData) error
}

// AssetStore persists asset bytes (or a remote asset URL) under an
// owner-scoped key and returns a stable public locator.
type AssetStore interface {
	Store(ctx context.Context, src storage.AssetSource, ownerID, pinID string) storage.StoreResult
}

// Ingestor composes classification, extraction and storage into the
// submit-time workflow. Everything past validation degrades: a submission
// only fails outright when the URL is unusable or the base record cannot
// be inserted.
type Ingestor struct {
	db        PinStore
	assets    AssetStore
	extractor *Extractor
}

// NewIngestor creates a new Ingestor instance
func NewIngestor(db PinStore, assets AssetStore, extractor *Extractor) *Ingestor {
	return &Ingestor{
		db:        db,
		assets:    assets,
		extractor: extractor,
	}
}

// Submit runs one submission end to end. The stages are strictly
// sequential: the asset store runs after record creation because the
// storage key embeds the generated pin id.
func (ing *Ingestor) Submit(ctx context.Context, userID string, req SubmitRequest) SubmitResult {
	if strings.TrimSpace(req.SourceURL) == "" {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return SubmitResult{Success: false, Status: http.StatusBadRequest, Message: "URL is required"}
	}

	parsed, err := url.Parse(req.SourceURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return SubmitResult{Success: false, Status: http.StatusBadRequest, Message: "Invalid URL format"}
	}

	pin := &models.Pin{
		ID:        uuid.New().String(),
		UserID:    userID,
		SourceURL: req.SourceURL,
		Note:      req.Note,
	}

	if !IsPinterestURL(req.SourceURL) {
		return ing.persistPlainLink(pin, "plain_link", "")
	}

	result, trace := ing.extractor.Extract(ctx, req.SourceURL)
	debug := strings.Join(trace, "; ")

	if !result.HasImage() {
		if !result.Success {
			log.Printf("Extraction failed for %s, saving as plain link: %s", req.SourceURL, result.Error)
		}
		return ing.persistPlainLink(pin, "plain_link", debug)
	}

	pin.Title = result.Title
	pin.Description = result.Description
	pin.Slug = slug.GenerateWithFallback(result.Title, ExtractPinID(req.SourceURL))

	// Insert first: the storage key embeds the pin id, and an imageless
	// record is still a valid outcome if anything after this fails.
	if err := ing.db.InsertPin(pin); err != nil {
		submissionsTotal.WithLabelValues("error").Inc()
		log.Printf("Failed to insert pin for %s: %v", req.SourceURL, err)
		return SubmitResult{Success: false, Status: http.StatusInternalServerError, Message: "Failed to create pin", Debug: debug}
	}

	src := storage.AssetSource{
		URL:         result.ImageURL,
		Data:        result.ImageData,
		ContentType: result.ContentType,
	}

	start := time.Now()
	stored := ing.assets.Store(ctx, src, userID, pin.ID)
	if !stored.Success {
		// Degrade silently to an imageless pin; the record already exists.
		log.Printf("Asset store failed for pin %s: %s", pin.ID, stored.Error)
		submissionsTotal.WithLabelValues("pin").Inc()
		return SubmitResult{Success: true, Status: http.StatusCreated, PinID: pin.ID, Message: "Pin saved without image", Debug: debug}
	}
	ObserveAssetUpload(time.Since(start).Seconds())

	width, height := 0, 0
	if w, h, err := getImageDimensions(stored.Data); err == nil {
		width, height = w, h
	}
	exifData := extractEXIF(stored.Data)

	if err := ing.db.UpdatePinImage(pin.ID, stored.PublicURL, width, height, exifData); err != nil {
		// The pin exists and the asset is stored; a failed patch just
		// leaves the record imageless.
		log.Printf("Failed to update pin %s with image %s: %v", pin.ID, stored.PublicURL, err)
	}

	submissionsTotal.WithLabelValues("pin").Inc()
	return SubmitResult{Success: true, Status: http.StatusCreated, PinID: pin.ID, Message: "Pin saved", Debug: debug}
}

// persistPlainLink records a submission without any image: unsupported
// URLs and failed extractions both land here.
func (ing *Ingestor) persistPlainLink(pin *models.Pin, outcome, debug string) SubmitResult {
	if err := ing.db.InsertPin(pin); err != nil {
		submissionsTotal.WithLabelValues("error").Inc()
		log.Printf("Failed to insert pin for %s: %v", pin.SourceURL, err)
		return SubmitResult{Success: false, Status: http.StatusInternalServerError, Message: "Failed to create pin", Debug: debug}
	}

	submissionsTotal.WithLabelValues(outcome).Inc()
	return SubmitResult{Success: true, Status: http.StatusCreated, PinID: pin.ID, Message: "Link saved", Debug: debug}
}
