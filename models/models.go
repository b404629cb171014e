package models

import "time"

// Pin represents a saved link, with or without an extracted image.
type Pin struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SourceURL   string    `json:"source_url"`
	Note        string    `json:"note,omitempty"`
	Image       string    `json:"image,omitempty"` // public URL of the stored asset
	Slug        string    `json:"slug,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageWidth  int       `json:"image_width,omitempty"`
	ImageHeight int       `json:"image_height,omitempty"`
	EXIF        *EXIFData `json:"exif,omitempty"` // EXIF metadata from the stored image
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EXIFData contains EXIF metadata extracted from an image
type EXIFData struct {
	DateTime         string   `json:"date_time,omitempty"`          // When photo was taken (EXIF DateTime)
	DateTimeOriginal string   `json:"date_time_original,omitempty"` // Original date/time (EXIF DateTimeOriginal)
	Make             string   `json:"make,omitempty"`               // Camera manufacturer
	Model            string   `json:"model,omitempty"`              // Camera model
	Copyright        string   `json:"copyright,omitempty"`          // Copyright notice
	Artist           string   `json:"artist,omitempty"`             // Photographer/creator name
	Software         string   `json:"software,omitempty"`           // Software used to process image
	ImageDescription string   `json:"image_description,omitempty"`  // Embedded image description
	Orientation      int      `json:"orientation,omitempty"`        // Image orientation (1-8)
	GPS              *GPSData `json:"gps,omitempty"`                // GPS location data
}

// GPSData contains GPS coordinates from EXIF
type GPSData struct {
	Latitude  float64 `json:"latitude"`           // GPS latitude in decimal degrees
	Longitude float64 `json:"longitude"`          // GPS longitude in decimal degrees
	Altitude  float64 `json:"altitude,omitempty"` // GPS altitude in meters
}
