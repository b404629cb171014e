package pinboard

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zombar/pinboard/models"
	"github.com/zombar/pinboard/storage"
)

type fakePinStore struct {
	inserted  []*models.Pin
	insertErr error

	patchedID     string
	patchedURL    string
	patchedWidth  int
	patchedHeight int
	patchedEXIF   *models.EXIFData
	patchErr      error
	patchCalls    int
}

func (f *fakePinStore) InsertPin(pin *models.Pin) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, pin)
	return nil
}

func (f *fakePinStore) UpdatePinImage(id, imageURL string, width, height int, exifData *models.EXIFData) error {
	f.patchCalls++
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patchedID = id
	f.patchedURL = imageURL
	f.patchedWidth = width
	f.patchedHeight = height
	f.patchedEXIF = exifData
	return nil
}

type fakeAssetStore struct {
	result   storage.StoreResult
	gotSrc   storage.AssetSource
	gotOwner string
	gotPin   string
	calls    int
}

func (f *fakeAssetStore) Store(ctx context.Context, src storage.AssetSource, ownerID, pinID string) storage.StoreResult {
	f.calls++
	f.gotSrc = src
	f.gotOwner = ownerID
	f.gotPin = pinID
	return f.result
}

// encodePNG produces a small valid PNG for dimension checks.
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestIngestor(db *fakePinStore, assets *fakeAssetStore, scrapeHandler http.HandlerFunc) (*Ingestor, *httptest.Server) {
	srv := httptest.NewServer(scrapeHandler)

	cfg := DefaultExtractorConfig()
	cfg.ScrapeEndpoint = srv.URL
	cfg.EnablePageFallback = false
	extractor := NewExtractor(cfg, NewResolver(DefaultResolverConfig()))

	return NewIngestor(db, assets, extractor), srv
}

func TestSubmitRejectsEmptyURL(t *testing.T) {
	db := &fakePinStore{}
	assets := &fakeAssetStore{}
	ing, srv := newTestIngestor(db, assets, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	for _, u := range []string{"", "   "} {
		result := ing.Submit(context.Background(), "user-1", SubmitRequest{SourceURL: u})
		if result.Success {
			t.Errorf("Submit(%q) succeeded, want rejection", u)
		}
		if result.Status != http.StatusBadRequest {
			t.Errorf("Submit(%q) status = %d, want 400", u, result.Status)
		}
	}

	if len(db.inserted) != 0 {
		t.Errorf("rejected submissions must not persist, got %d inserts", len(db.inserted))
	}
}

func TestSubmitRejectsMalformedURL(t *testing.T) {
	db := &fakePinStore{}
	assets := &fakeAssetStore{}
	ing, srv := newTestIngestor(db, assets, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	for _, u := range []string{"not-a-url", "example.com/no-scheme", "https://"} {
		result := ing.Submit(context.Background(), "user-1", SubmitRequest{SourceURL: u})
		if result.Success {
			t.Errorf("Submit(%q) succeeded, want rejection", u)
		}
		if result.Status != http.StatusBadRequest {
			t.Errorf("Submit(%q) status = %d, want 400", u, result.Status)
		}
	}
}

func TestSubmitUnsupportedURLSavesPlainLink(t *testing.T) {
	db := &fakePinStore{}
	assets := &fakeAssetStore{}
	ing, srv := newTestIngestor(db, assets, func(w http.ResponseWriter, r *http.Request) {
		t.Error("scraper must not be called for unsupported URLs")
	})
	defer srv.Close()

	result := ing.Submit(context.Background(), "user-1", SubmitRequest{
		SourceURL: "https://example.com/article",
		Note:      "read later",
	})

	if !result.Success || result.Status != http.StatusCreated {
		t.Fatalf("Submit() = %+v, want 201 success", result)
	}
	if len(db.inserted) != 1 {
		t.Fatalf("inserts = %d, want 1", len(db.inserted))
	}

	pin := db.inserted[0]
	if pin.SourceURL != "https://example.com/article" {
		t.Errorf("SourceURL = %q", pin.SourceURL)
	}
	if pin.Note != "read later" {
		t.Errorf("Note = %q", pin.Note)
	}
	if pin.UserID != "user-1" {
		t.Errorf("UserID = %q", pin.UserID)
	}
	if pin.Image != "" {
		t.Errorf("Image = %q, want empty for plain links", pin.Image)
	}
	if pin.ID == "" {
		t.Error("pin must get a generated id")
	}
	if assets.calls != 0 {
		t.Errorf("asset store calls = %d, want 0", assets.calls)
	}
}

func TestSubmitExtractionFailureFallsBackToPlainLink(t *testing.T) {
	db := &fakePinStore{}
	assets := &fakeAssetStore{}
	ing, srv := newTestIngestor(db, assets, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	result := ing.Submit(context.Background(), "user-1", SubmitRequest{
		SourceURL: "https://pinterest.com/pin/123456/",
	})

	if !result.Success || result.Status != http.StatusCreated {
		t.Fatalf("Submit() = %+v, want degraded 201 success", result)
	}
	if len(db.inserted) != 1 {
		t.Fatalf("inserts = %d, want 1", len(db.inserted))
	}
	if db.inserted[0].Image != "" {
		t.Error("degraded pin must have no image")
	}
	if assets.calls != 0 {
		t.Errorf("asset store calls = %d, want 0", assets.calls)
	}
}

func TestSubmitStoresImagePin(t *testing.T) {
	imageBytes := encodePNG(t, 4, 3)

	db := &fakePinStore{}
	assets := &fakeAssetStore{}
	ing, srv := newTestIngestor(db, assets, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(imageBytes)
	})
	defer srv.Close()

	assets.result = storage.StoreResult{
		Success:     true,
		PublicURL:   "https://cdn.example.com/user-1/pin.png",
		Key:         "user-1/pin.png",
		ContentType: "image/png",
		Size:        int64(len(imageBytes)),
		Data:        imageBytes,
	}

	result := ing.Submit(context.Background(), "user-1", SubmitRequest{
		SourceURL: "https://pinterest.com/pin/123456/",
	})

	if !result.Success || result.Status != http.StatusCreated {
		t.Fatalf("Submit() = %+v, want 201 success", result)
	}
	if result.Message != "Pin saved" {
		t.Errorf("Message = %q", result.Message)
	}

	if len(db.inserted) != 1 {
		t.Fatalf("inserts = %d, want 1", len(db.inserted))
	}
	pin := db.inserted[0]
	if result.PinID != pin.ID {
		t.Errorf("result PinID = %q, inserted id = %q", result.PinID, pin.ID)
	}
	if pin.Slug == "" {
		t.Error("image pin must get a slug")
	}

	// The asset store runs after insertion with the generated pin id.
	if assets.calls != 1 {
		t.Fatalf("asset store calls = %d, want 1", assets.calls)
	}
	if assets.gotOwner != "user-1" || assets.gotPin != pin.ID {
		t.Errorf("asset scoped to %s/%s, want user-1/%s", assets.gotOwner, assets.gotPin, pin.ID)
	}
	if string(assets.gotSrc.Data) != string(imageBytes) {
		t.Error("asset source bytes do not match extraction")
	}

	// The stored asset's public URL and decoded dimensions get patched in.
	if db.patchCalls != 1 {
		t.Fatalf("patch calls = %d, want 1", db.patchCalls)
	}
	if db.patchedID != pin.ID {
		t.Errorf("patched id = %q, want %q", db.patchedID, pin.ID)
	}
	if db.patchedURL != assets.result.PublicURL {
		t.Errorf("patched URL = %q, want %q", db.patchedURL, assets.result.PublicURL)
	}
	if db.patchedWidth != 4 || db.patchedHeight != 3 {
		t.Errorf("patched dimensions = %dx%d, want 4x3", db.patchedWidth, db.patchedHeight)
	}
}

func TestSubmitInsertFailureIsFatal(t *testing.T) {
	db := &fakePinStore{insertErr: errors.New("connection refused")}
	assets := &fakeAssetStore{}
	ing, srv := newTestIngestor(db, assets, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89})
	})
	defer srv.Close()

	result := ing.Submit(context.Background(), "user-1", SubmitRequest{
		SourceURL: "https://pinterest.com/pin/123456/",
	})

	if result.Success {
		t.Fatal("insert failure must fail the submission")
	}
	if result.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", result.Status)
	}
	if assets.calls != 0 {
		t.Errorf("asset store calls = %d, want 0 after failed insert", assets.calls)
	}
}

func TestSubmitStoreFailureDegradesToImagelessPin(t *testing.T) {
	db := &fakePinStore{}
	assets := &fakeAssetStore{result: storage.StoreResult{Success: false, Error: "bucket unreachable"}}
	ing, srv := newTestIngestor(db, assets, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50})
	})
	defer srv.Close()

	result := ing.Submit(context.Background(), "user-1", SubmitRequest{
		SourceURL: "https://pinterest.com/pin/123456/",
	})

	if !result.Success || result.Status != http.StatusCreated {
		t.Fatalf("Submit() = %+v, want degraded 201 success", result)
	}
	if !strings.Contains(result.Message, "without image") {
		t.Errorf("Message = %q, want degraded wording", result.Message)
	}
	if db.patchCalls != 0 {
		t.Errorf("patch calls = %d, want 0 when store fails", db.patchCalls)
	}
}

func TestSubmitPatchFailureIsSwallowed(t *testing.T) {
	imageBytes := encodePNG(t, 1, 1)

	db := &fakePinStore{patchErr: errors.New("row vanished")}
	assets := &fakeAssetStore{result: storage.StoreResult{
		Success:   true,
		PublicURL: "https://cdn.example.com/user-1/x.png",
		Data:      imageBytes,
	}}
	ing, srv := newTestIngestor(db, assets, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(imageBytes)
	})
	defer srv.Close()

	result := ing.Submit(context.Background(), "user-1", SubmitRequest{
		SourceURL: "https://pinterest.com/pin/123456/",
	})

	if !result.Success || result.Status != http.StatusCreated {
		t.Fatalf("Submit() = %+v, want success despite failed patch", result)
	}
}
