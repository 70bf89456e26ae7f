package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	errs "mapfetch/pkg/errors"
	"mapfetch/pkg/logger"
)

// ImageRecord is one fetched asset. Records are created only after the
// binary has been durably and atomically written, and are never mutated
// or deleted afterwards.
type ImageRecord struct {
	ID           string
	LocationName string
	Longitude    float64
	Latitude     float64

	// CapturedAt is an RFC 3339 UTC timestamp, or the empty string when
	// the source timestamp was absent or unparseable
	CapturedAt string

	// FilePath is the relative path of the stored binary asset
	FilePath string

	// ImageURL is the resolved source URL, retained for auditability
	ImageURL string
}

// Validate checks the invariants a record must satisfy before it may be
// appended to the catalog.
func (r *ImageRecord) Validate() error {
	if r.ID == "" {
		return errs.New(errs.ErrorTypeValidation, "image record requires an id")
	}
	if r.FilePath == "" {
		return errs.Newf(errs.ErrorTypeValidation, "image record %s requires a file path", r.ID)
	}
	if r.ImageURL == "" {
		return errs.Newf(errs.ErrorTypeValidation, "image record %s requires a source URL", r.ID)
	}
	return nil
}

var header = []string{
	"id", "location_name", "longitude", "latitude",
	"captured_at", "file_path", "image_url",
}

// Catalog is the deduplicating ledger of fetched image records, keyed by
// image id.
type Catalog struct {
	path    string
	records []ImageRecord
	ids     map[string]bool
	dirty   bool
	logger  logger.Logger
	mu      sync.RWMutex
}

// NewCatalog creates a catalog backed by the CSV file at path and loads
// any existing records. A missing or empty file yields an empty catalog.
func NewCatalog(path string, log logger.Logger) (*Catalog, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	c := &Catalog{
		path:   path,
		ids:    make(map[string]bool),
		logger: log,
	}

	if err := c.load(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Catalog) load() error {
	file, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	for _, row := range records[1:] {
		rec := ImageRecord{
			ID:           field(row, "id"),
			LocationName: field(row, "location_name"),
			CapturedAt:   field(row, "captured_at"),
			FilePath:     field(row, "file_path"),
			ImageURL:     field(row, "image_url"),
		}
		rec.Longitude, _ = strconv.ParseFloat(field(row, "longitude"), 64)
		rec.Latitude, _ = strconv.ParseFloat(field(row, "latitude"), 64)

		if rec.ID == "" {
			c.logger.WarnWithFields("skipping catalog row without id", map[string]interface{}{
				"row": strings.Join(row, ","),
			})
			continue
		}
		if c.ids[rec.ID] {
			c.logger.WarnWithFields("skipping duplicate catalog row", map[string]interface{}{
				"id": rec.ID,
			})
			continue
		}

		c.records = append(c.records, rec)
		c.ids[rec.ID] = true
	}

	return nil
}

// Has reports whether an image id is already catalogued. This is checked
// before any network fetch is attempted for a candidate.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids[id]
}

// Append adds a validated record and claims its id. Appending an id that
// is already present is a defect in the caller's dedup discipline and is
// rejected.
func (c *Catalog) Append(rec ImageRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ids[rec.ID] {
		return errs.Newf(errs.ErrorTypeValidation, "duplicate image id %s", rec.ID)
	}

	c.records = append(c.records, rec)
	c.ids[rec.ID] = true
	c.dirty = true

	return nil
}

// Len returns the number of catalogued records
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Dirty reports whether records were appended since the last save
func (c *Catalog) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Save persists the full catalog snapshot with a write-temp-then-rename
// publish. The write is skipped entirely when no records were appended
// since load or the previous save.
func (c *Catalog) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		c.logger.Debug("catalog unchanged, skipping save")
		return nil
	}

	tempPath := c.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary catalog file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write catalog header: %w", err)
	}
	for _, rec := range c.records {
		row := []string{
			rec.ID,
			rec.LocationName,
			strconv.FormatFloat(rec.Longitude, 'g', -1, 64),
			strconv.FormatFloat(rec.Latitude, 'g', -1, 64),
			rec.CapturedAt,
			rec.FilePath,
			rec.ImageURL,
		}
		if err := writer.Write(row); err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write catalog row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to flush catalog file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync catalog file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close catalog file: %w", err)
	}

	if err := os.Rename(tempPath, c.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace catalog file: %w", err)
	}

	c.dirty = false
	return nil
}
