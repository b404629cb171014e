package pinboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// submissionsTotal counts submissions by final outcome: "pin" (full
	// extraction), "plain_link" (degraded fallback), "rejected"
	// (validation), "error" (persistence).
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinboard_submissions_total",
		Help: "Link submissions by outcome",
	}, []string{"outcome"})

	// extractionFailures counts extractor failures by cause.
	extractionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinboard_extraction_failures_total",
		Help: "Pin extraction failures by reason",
	}, []string{"reason"})

	// assetUploadDuration observes end-to-end asset store latency
	// (fetch plus upload) for successful stores.
	assetUploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pinboard_asset_upload_duration_seconds",
		Help:    "Time to fetch and persist a pin asset",
		Buckets: prometheus.DefBuckets,
	})

	// pinsStored is refreshed periodically from the database.
	pinsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pinboard_pins_stored",
		Help: "Total pin records currently stored",
	})
)

// SetPinsStored updates the stored-pin gauge; called from the metrics
// updater loop in the API server.
func SetPinsStored(n int) {
	pinsStored.Set(float64(n))
}

// ObserveAssetUpload records one successful asset store duration in seconds.
func ObserveAssetUpload(seconds float64) {
	assetUploadDuration.Observe(seconds)
}
