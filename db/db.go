package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/zombar/pinboard/models"
)

// DB wraps the database connection and provides pin record access
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// InsertPin creates the base pin record. The image columns stay empty
// here; asset transfer happens after the record exists so the storage key
// can embed the id.
func (db *DB) InsertPin(pin *models.Pin) error {
	now := time.Now()
	pin.CreatedAt = now
	pin.UpdatedAt = now

	query := `
		INSERT INTO pins (id, user_id, source_url, note, image, slug, title, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := db.conn.Exec(
		query,
		pin.ID,
		pin.UserID,
		pin.SourceURL,
		nullable(pin.Note),
		nullable(pin.Image),
		nullable(pin.Slug),
		nullable(pin.Title),
		nullable(pin.Description),
		pin.CreatedAt,
		pin.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pin: %w", err)
	}

	return nil
}

// UpdatePinImage patches a pin with its stored asset URL and captured
// image metadata, the second phase of the two-phase create.
func (db *DB) UpdatePinImage(id, imageURL string, width, height int, exifData *models.EXIFData) error {
	var exifJSON interface{}
	if exifData != nil {
		data, err := json.Marshal(exifData)
		if err != nil {
			return fmt.Errorf("failed to marshal EXIF: %w", err)
		}
		exifJSON = string(data)
	}

	result, err := db.conn.Exec(
		"UPDATE pins SET image = $1, image_width = $2, image_height = $3, exif = $4, updated_at = $5 WHERE id = $6",
		imageURL,
		width,
		height,
		exifJSON,
		time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update pin image: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no pin found with id: %s", id)
	}

	return nil
}

const pinColumns = "id, user_id, source_url, note, image, slug, title, description, image_width, image_height, exif, created_at, updated_at"

// GetPinByID retrieves a pin by its id
func (db *DB) GetPinByID(id string) (*models.Pin, error) {
	row := db.conn.QueryRow("SELECT "+pinColumns+" FROM pins WHERE id = $1", id)
	return scanPin(row)
}

// GetPinBySlug retrieves a pin by its slug
func (db *DB) GetPinBySlug(slug string) (*models.Pin, error) {
	row := db.conn.QueryRow("SELECT "+pinColumns+" FROM pins WHERE slug = $1 LIMIT 1", slug)
	return scanPin(row)
}

// ListPinsByUser returns a user's pins, newest first, with pagination
func (db *DB) ListPinsByUser(userID string, limit, offset int) ([]*models.Pin, error) {
	rows, err := db.conn.Query(
		"SELECT "+pinColumns+" FROM pins WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	var results []*models.Pin
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, pin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// DeletePin deletes a pin by id
func (db *DB) DeletePin(id string) error {
	result, err := db.conn.Exec("DELETE FROM pins WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no pin found with id: %s", id)
	}

	return nil
}

// Count returns the total number of pin records
func (db *DB) Count() (int, error) {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM pins").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pins: %w", err)
	}
	return count, nil
}

// CountByUser returns the number of pins owned by a user
func (db *DB) CountByUser(userID string) (int, error) {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM pins WHERE user_id = $1", userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pins: %w", err)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPin(row scanner) (*models.Pin, error) {
	var (
		pin         models.Pin
		note        sql.NullString
		image       sql.NullString
		slugVal     sql.NullString
		title       sql.NullString
		description sql.NullString
		width       sql.NullInt64
		height      sql.NullInt64
		exifJSON    sql.NullString
	)

	err := row.Scan(
		&pin.ID,
		&pin.UserID,
		&pin.SourceURL,
		&note,
		&image,
		&slugVal,
		&title,
		&description,
		&width,
		&height,
		&exifJSON,
		&pin.CreatedAt,
		&pin.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pin: %w", err)
	}

	pin.Note = note.String
	pin.Image = image.String
	pin.Slug = slugVal.String
	pin.Title = title.String
	pin.Description = description.String
	pin.ImageWidth = int(width.Int64)
	pin.ImageHeight = int(height.Int64)

	if exifJSON.Valid && exifJSON.String != "" && exifJSON.String != "null" {
		var exifData models.EXIFData
		if err := json.Unmarshal([]byte(exifJSON.String), &exifData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal EXIF: %w", err)
		}
		pin.EXIF = &exifData
	}

	return &pin, nil
}

// nullable maps "" to NULL so optional columns stay clean.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
