package pinboard

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"

	"github.com/zombar/pinboard/models"
)

// getImageDimensions decodes just the header of an image and returns its
// pixel dimensions. Supports jpeg, png, gif and webp; anything else is an
// error, which callers treat as "dimensions unknown".
func getImageDimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// extractEXIF pulls EXIF metadata out of image bytes. Returns nil when the
// image carries no EXIF block (most re-encoded Pinterest assets don't).
func extractEXIF(data []byte) *models.EXIFData {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	out := &models.EXIFData{
		DateTime:         exifString(x, exif.DateTime),
		DateTimeOriginal: exifString(x, exif.DateTimeOriginal),
		Make:             exifString(x, exif.Make),
		Model:            exifString(x, exif.Model),
		Copyright:        exifString(x, exif.Copyright),
		Artist:           exifString(x, exif.Artist),
		Software:         exifString(x, exif.Software),
		ImageDescription: exifString(x, exif.ImageDescription),
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			out.Orientation = v
		}
	}

	if lat, long, err := x.LatLong(); err == nil {
		out.GPS = &models.GPSData{Latitude: lat, Longitude: long}
	}

	return out
}

// exifString reads a single EXIF field as a string, "" when absent.
func exifString(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}
