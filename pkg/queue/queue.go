package queue

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	errs "mapfetch/pkg/errors"
	"mapfetch/pkg/logger"
)

// Task is a bounding box work item: a geographic rectangle plus a target
// image count to fetch.
type Task struct {
	LocationName string
	MinLon       float64
	MinLat       float64
	MaxLon       float64
	MaxLat       float64
	Limit        int
	Downloaded   bool

	// DateAdded is carried through from the queue file untouched so
	// external editors do not lose it
	DateAdded string
}

// Validate checks the geographic bounds ordering
func (t *Task) Validate() error {
	if t.MinLon >= t.MaxLon {
		return errs.Newf(errs.ErrorTypeValidation,
			"invalid bounding box for %q: min_lon %g must be less than max_lon %g",
			t.LocationName, t.MinLon, t.MaxLon)
	}
	if t.MinLat >= t.MaxLat {
		return errs.Newf(errs.ErrorTypeValidation,
			"invalid bounding box for %q: min_lat %g must be less than max_lat %g",
			t.LocationName, t.MinLat, t.MaxLat)
	}
	return nil
}

// MarkCompleted sets the completion flag. The flag only ever transitions
// from false to true; this system never resets it.
func (t *Task) MarkCompleted() {
	t.Downloaded = true
}

// header is the full column set written on save
var header = []string{
	"location_name", "min_lon", "min_lat", "max_lon", "max_lat",
	"limit", "downloaded", "date_added",
}

// rowRef remembers the position of every source row so that rows with
// unparseable numerics survive a save at their original place
type rowRef struct {
	taskIndex int      // index into the task slice, or -1
	raw       []string // kept verbatim for rows that failed to parse
}

// Store loads and saves the ordered work queue from a CSV file
type Store struct {
	path         string
	defaultLimit int
	logger       logger.Logger

	layout []rowRef
	cols   map[string]int
}

// NewStore creates a work queue store backed by the CSV file at path.
// defaultLimit is used for rows whose limit column is absent or
// unparseable.
func NewStore(path string, defaultLimit int, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		path:         path,
		defaultLimit: defaultLimit,
		logger:       log,
	}
}

// Load reads the ordered task sequence. A missing or empty backing file
// yields an empty sequence. Rows with unparseable numeric bounds are
// skipped with a warning but preserved verbatim for the next save; rows
// with an unparseable limit fall back to the default.
func (s *Store) Load() ([]Task, error) {
	s.layout = nil
	s.cols = nil

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Task{}, nil
		}
		return nil, fmt.Errorf("failed to open queue file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	if len(records) == 0 {
		return []Task{}, nil
	}

	s.cols = columnIndex(records[0])

	var tasks []Task
	for _, row := range records[1:] {
		task, err := s.parseRow(row)
		if err != nil {
			s.logger.WarnWithFields("skipping malformed queue row", map[string]interface{}{
				"row":   strings.Join(row, ","),
				"error": err.Error(),
			})
			s.layout = append(s.layout, rowRef{taskIndex: -1, raw: row})
			continue
		}
		s.layout = append(s.layout, rowRef{taskIndex: len(tasks)})
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// columnIndex maps header names to their positions
func columnIndex(headerRow []string) map[string]int {
	cols := make(map[string]int, len(headerRow))
	for i, name := range headerRow {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return cols
}

// field returns the named column of a row, or "" when absent
func (s *Store) field(row []string, name string) string {
	idx, ok := s.cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (s *Store) parseRow(row []string) (Task, error) {
	task := Task{
		LocationName: s.field(row, "location_name"),
		DateAdded:    s.field(row, "date_added"),
	}

	bounds := []struct {
		name string
		dst  *float64
	}{
		{"min_lon", &task.MinLon},
		{"min_lat", &task.MinLat},
		{"max_lon", &task.MaxLon},
		{"max_lat", &task.MaxLat},
	}
	for _, b := range bounds {
		raw := s.field(row, b.name)
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Task{}, fmt.Errorf("column %s: %q is not a number", b.name, raw)
		}
		*b.dst = val
	}

	// Defensive limit parsing: bad values fall back to the default
	task.Limit = s.defaultLimit
	if raw := s.field(row, "limit"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val > 0 {
			task.Limit = val
		} else {
			s.logger.WarnWithFields("invalid limit, using default", map[string]interface{}{
				"location": task.LocationName,
				"limit":    raw,
				"default":  s.defaultLimit,
			})
		}
	}

	task.Downloaded = strings.EqualFold(s.field(row, "downloaded"), "yes")

	return task, nil
}

// Save rewrites the entire ordered sequence to the backing file using a
// write-temp-then-rename publish. It is always a full snapshot so the
// completion flags are durable even when no task produced new assets.
func (s *Store) Save(tasks []Task) error {
	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary queue file: %w", err)
	}

	writer := csv.NewWriter(file)

	write := func(row []string) {
		if err == nil {
			err = writer.Write(row)
		}
	}

	err = nil
	write(header)

	// Tasks the caller never saw keep their original rows
	written := make(map[int]bool, len(tasks))
	if len(s.layout) > 0 {
		for _, ref := range s.layout {
			if ref.taskIndex < 0 {
				write(padRow(ref.raw, len(header)))
				continue
			}
			if ref.taskIndex < len(tasks) {
				write(taskRow(tasks[ref.taskIndex]))
				written[ref.taskIndex] = true
			}
		}
	}
	for i, task := range tasks {
		if !written[i] {
			write(taskRow(task))
		}
	}

	writer.Flush()
	if err == nil {
		err = writer.Error()
	}
	if err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write queue file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync queue file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close queue file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace queue file: %w", err)
	}

	return nil
}

func taskRow(t Task) []string {
	downloaded := "no"
	if t.Downloaded {
		downloaded = "yes"
	}
	return []string{
		t.LocationName,
		strconv.FormatFloat(t.MinLon, 'g', -1, 64),
		strconv.FormatFloat(t.MinLat, 'g', -1, 64),
		strconv.FormatFloat(t.MaxLon, 'g', -1, 64),
		strconv.FormatFloat(t.MaxLat, 'g', -1, 64),
		strconv.Itoa(t.Limit),
		downloaded,
		t.DateAdded,
	}
}

func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}
