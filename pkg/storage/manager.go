package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	imageExt   = ".jpg"
	partSuffix = ".part"
)

// Manager handles atomic image persistence and duplicate detection.
// Assets are published with a write-then-rename pattern so a partial file
// is never visible under its final name.
type Manager struct {
	outputDir     string
	downloadedIDs map[string]bool
	mu            sync.RWMutex
}

// NewManager creates a new storage manager rooted at outputDir
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir:     outputDir,
		downloadedIDs: make(map[string]bool),
	}

	// Scan existing files for duplicate detection
	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles scans the output directory for already downloaded assets
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, imageExt) {
			continue
		}
		id := strings.TrimSuffix(name, imageExt)
		m.downloadedIDs[id] = true
	}

	return nil
}

// ImagePath returns the deterministic asset path for an image id
func (m *Manager) ImagePath(id string) string {
	return filepath.Join(m.outputDir, id+imageExt)
}

// IsDownloaded checks if an asset with the given id already exists
func (m *Manager) IsDownloaded(id string) bool {
	m.mu.RLock()
	known := m.downloadedIDs[id]
	m.mu.RUnlock()

	if known {
		return true
	}

	// Double-check file existence
	if _, err := os.Stat(m.ImagePath(id)); err == nil {
		m.mu.Lock()
		m.downloadedIDs[id] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// SaveImage streams an asset to disk and atomically publishes it under its
// final name. If the final path already exists the write is skipped
// entirely and the existing path returned. On a failure while consuming
// the stream the partial file stays at the .part name so it can never be
// mistaken for a complete asset.
func (m *Manager) SaveImage(r io.Reader, id string) (string, error) {
	filename := m.ImagePath(id)

	// Pre-existing final path means already downloaded
	if _, err := os.Stat(filename); err == nil {
		m.mu.Lock()
		m.downloadedIDs[id] = true
		m.mu.Unlock()
		return filename, nil
	}

	partFile := filename + partSuffix
	out, err := os.Create(partFile)
	if err != nil {
		return "", fmt.Errorf("failed to create partial file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		return "", fmt.Errorf("failed to save image data: %w", err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to close partial file: %w", closeErr)
	}

	// Atomic publish
	if err := os.Rename(partFile, filename); err != nil {
		return "", fmt.Errorf("failed to publish image file: %w", err)
	}

	m.mu.Lock()
	m.downloadedIDs[id] = true
	m.mu.Unlock()

	return filename, nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// GetDownloadedCount returns the number of known downloaded assets
func (m *Manager) GetDownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.downloadedIDs)
}
