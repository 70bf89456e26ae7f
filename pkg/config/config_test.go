package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	// Test default values
	if config.RateLimit.RequestsPerMinute != 60 {
		t.Errorf("Expected default requests per minute to be 60, got %d", config.RateLimit.RequestsPerMinute)
	}

	if config.RateLimit.MaxRetries != 5 {
		t.Errorf("Expected default max retries to be 5, got %d", config.RateLimit.MaxRetries)
	}

	if config.RateLimit.RetryDelay != 1*time.Second {
		t.Errorf("Expected default retry delay to be 1s, got %v", config.RateLimit.RetryDelay)
	}

	if config.Mapillary.ConnectTimeout != 10*time.Second {
		t.Errorf("Expected default connect timeout to be 10s, got %v", config.Mapillary.ConnectTimeout)
	}

	if config.Mapillary.RequestTimeout != 60*time.Second {
		t.Errorf("Expected default request timeout to be 60s, got %v", config.Mapillary.RequestTimeout)
	}

	if config.Queue.File != filepath.Join("data", "bounding_boxes.csv") {
		t.Errorf("Unexpected default queue file: %s", config.Queue.File)
	}

	if !config.Queue.MarkEmptyComplete {
		t.Error("Expected empty boxes to be marked complete by default")
	}

	if config.Download.ConcurrentDownloads != 1 {
		t.Errorf("Expected default concurrent downloads to be 1, got %d", config.Download.ConcurrentDownloads)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MAPFETCH_ACCESS_TOKEN", "env-token")
	t.Setenv("MAPFETCH_REQUESTS_PER_MINUTE", "30")
	t.Setenv("MAPFETCH_QUEUE_FILE", "/tmp/boxes.csv")
	t.Setenv("MAPFETCH_IMAGES_DIR", "/tmp/images")
	t.Setenv("MAPFETCH_CONCURRENT_DOWNLOADS", "5")
	t.Setenv("MAPFETCH_MARK_EMPTY_COMPLETE", "false")
	t.Setenv("MAPFETCH_LOG_LEVEL", "debug")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.Mapillary.AccessToken != "env-token" {
		t.Errorf("Expected access token env-token, got %s", config.Mapillary.AccessToken)
	}
	if config.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("Expected requests per minute to be 30, got %d", config.RateLimit.RequestsPerMinute)
	}
	if config.Queue.File != "/tmp/boxes.csv" {
		t.Errorf("Expected queue file /tmp/boxes.csv, got %s", config.Queue.File)
	}
	if config.Download.ImagesDirectory != "/tmp/images" {
		t.Errorf("Expected images dir /tmp/images, got %s", config.Download.ImagesDirectory)
	}
	if config.Download.ConcurrentDownloads != 5 {
		t.Errorf("Expected concurrent downloads to be 5, got %d", config.Download.ConcurrentDownloads)
	}
	if config.Queue.MarkEmptyComplete {
		t.Error("Expected mark_empty_complete to be disabled")
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", config.Logging.Level)
	}
}

func TestLoadFromEnvCompatibilityToken(t *testing.T) {
	t.Setenv("MAPILLARY_TOKEN", "legacy-token")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}
	if config.Mapillary.AccessToken != "legacy-token" {
		t.Errorf("Expected MAPILLARY_TOKEN to be honored, got %s", config.Mapillary.AccessToken)
	}

	// The MAPFETCH_ name wins when both are set
	t.Setenv("MAPFETCH_ACCESS_TOKEN", "primary-token")
	config = DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}
	if config.Mapillary.AccessToken != "primary-token" {
		t.Errorf("Expected MAPFETCH_ACCESS_TOKEN to win, got %s", config.Mapillary.AccessToken)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Mapillary.AccessToken = "token"
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing access token",
			mutate:    func(c *Config) { c.Mapillary.AccessToken = "" },
			wantError: true,
		},
		{
			name:      "missing queue file",
			mutate:    func(c *Config) { c.Queue.File = "" },
			wantError: true,
		},
		{
			name:      "missing catalog file",
			mutate:    func(c *Config) { c.Catalog.File = "" },
			wantError: true,
		},
		{
			name:      "zero concurrent downloads",
			mutate:    func(c *Config) { c.Download.ConcurrentDownloads = 0 },
			wantError: true,
		},
		{
			name:      "too many concurrent downloads",
			mutate:    func(c *Config) { c.Download.ConcurrentDownloads = 50 },
			wantError: true,
		},
		{
			name:      "negative rate limit",
			mutate:    func(c *Config) { c.RateLimit.RequestsPerMinute = -1 },
			wantError: true,
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Logging.Level = "loud" },
			wantError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			if test.wantError && err == nil {
				t.Error("Expected validation error")
			}
			if !test.wantError && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := DefaultConfig()
	original.Mapillary.AccessToken = "file-token"
	original.RateLimit.RequestsPerMinute = 45
	original.Queue.MarkEmptyComplete = false

	if err := original.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded := DefaultConfig()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Mapillary.AccessToken != "file-token" {
		t.Errorf("Expected access token file-token, got %s", loaded.Mapillary.AccessToken)
	}
	if loaded.RateLimit.RequestsPerMinute != 45 {
		t.Errorf("Expected requests per minute 45, got %d", loaded.RateLimit.RequestsPerMinute)
	}
	if loaded.Queue.MarkEmptyComplete {
		t.Error("Expected mark_empty_complete false after reload")
	}
}

func TestLoadFromFileMissingIsNotAnError(t *testing.T) {
	config := DefaultConfig()
	// Empty path with no config file in standard locations is fine
	if err := config.LoadFromFile(""); err != nil {
		t.Errorf("Expected missing config file to be tolerated: %v", err)
	}

	// An explicitly named file that doesn't exist is an error
	if err := config.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for explicitly named missing file")
	}
}

func TestLoadFromFileMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mapillary: [broken"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()

	config.MergeCommandLineFlags(map[string]interface{}{
		"access-token":         "flag-token",
		"queue-file":           "custom.csv",
		"concurrent-downloads": 4,
		"requests-per-minute":  15,
		"mark-empty-complete":  false,
		"log-level":            "warn",
	})

	if config.Mapillary.AccessToken != "flag-token" {
		t.Errorf("Expected access token flag-token, got %s", config.Mapillary.AccessToken)
	}
	if config.Queue.File != "custom.csv" {
		t.Errorf("Expected queue file custom.csv, got %s", config.Queue.File)
	}
	if config.Download.ConcurrentDownloads != 4 {
		t.Errorf("Expected concurrent downloads 4, got %d", config.Download.ConcurrentDownloads)
	}
	if config.RateLimit.RequestsPerMinute != 15 {
		t.Errorf("Expected requests per minute 15, got %d", config.RateLimit.RequestsPerMinute)
	}
	if config.Queue.MarkEmptyComplete {
		t.Error("Expected mark_empty_complete false")
	}
	if config.Logging.Level != "warn" {
		t.Errorf("Expected log level warn, got %s", config.Logging.Level)
	}

	// Empty and zero values are ignored
	config.MergeCommandLineFlags(map[string]interface{}{
		"access-token":         "",
		"concurrent-downloads": 0,
	})
	if config.Mapillary.AccessToken != "flag-token" {
		t.Error("Expected empty flag value to be ignored")
	}
	if config.Download.ConcurrentDownloads != 4 {
		t.Error("Expected zero flag value to be ignored")
	}
}

func TestLoadLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	fileCfg := DefaultConfig()
	fileCfg.Mapillary.AccessToken = "file-token"
	fileCfg.RateLimit.RequestsPerMinute = 45
	if err := fileCfg.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	// Environment overrides the file, flags override the environment
	t.Setenv("MAPFETCH_ACCESS_TOKEN", "env-token")

	cfg, err := Load(path, map[string]interface{}{
		"requests-per-minute": 15,
	})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Mapillary.AccessToken != "env-token" {
		t.Errorf("Expected env to override file, got %s", cfg.Mapillary.AccessToken)
	}
	if cfg.RateLimit.RequestsPerMinute != 15 {
		t.Errorf("Expected flag to override file, got %d", cfg.RateLimit.RequestsPerMinute)
	}
}
