package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the Mapillary fetch engine
type Config struct {
	// Mapillary API settings
	Mapillary MapillaryConfig `yaml:"mapillary" json:"mapillary"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Work queue settings
	Queue QueueConfig `yaml:"queue" json:"queue"`

	// Asset catalog settings
	Catalog CatalogConfig `yaml:"catalog" json:"catalog"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// MapillaryConfig holds Mapillary Graph API configuration
type MapillaryConfig struct {
	AccessToken    string        `yaml:"access_token" json:"access_token"`
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// RateLimitConfig holds rate limiting and retry configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// QueueConfig holds work queue configuration
type QueueConfig struct {
	File string `yaml:"file" json:"file"`

	// DefaultTaskLimit is used when a task row carries no usable limit
	DefaultTaskLimit int `yaml:"default_task_limit" json:"default_task_limit"`

	// MarkEmptyComplete controls whether a task that produced zero new
	// records is still marked downloaded. The reference behavior is true.
	MarkEmptyComplete bool `yaml:"mark_empty_complete" json:"mark_empty_complete"`
}

// CatalogConfig holds asset catalog configuration
type CatalogConfig struct {
	File string `yaml:"file" json:"file"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ImagesDirectory     string        `yaml:"images_directory" json:"images_directory"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	PauseBetweenItems   time.Duration `yaml:"pause_between_items" json:"pause_between_items"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mapillary: MapillaryConfig{
			BaseURL:        "https://graph.mapillary.com",
			ConnectTimeout: 10 * time.Second,
			RequestTimeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			MaxRetries:        5,
			RetryDelay:        1 * time.Second,
		},
		Queue: QueueConfig{
			File:              filepath.Join("data", "bounding_boxes.csv"),
			DefaultTaskLimit:  100,
			MarkEmptyComplete: true,
		},
		Catalog: CatalogConfig{
			File: filepath.Join("data", "images_metadata.csv"),
		},
		Download: DownloadConfig{
			ImagesDirectory:     filepath.Join("data", "images"),
			ConcurrentDownloads: 1,
			PauseBetweenItems:   200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Token: MAPFETCH_ACCESS_TOKEN wins, MAPILLARY_TOKEN kept for
	// compatibility with existing .env files
	if token := os.Getenv("MAPFETCH_ACCESS_TOKEN"); token != "" {
		c.Mapillary.AccessToken = token
	} else if token := os.Getenv("MAPILLARY_TOKEN"); token != "" {
		c.Mapillary.AccessToken = token
	}

	if baseURL := os.Getenv("MAPFETCH_BASE_URL"); baseURL != "" {
		c.Mapillary.BaseURL = baseURL
	}

	if rpm := os.Getenv("MAPFETCH_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	if queueFile := os.Getenv("MAPFETCH_QUEUE_FILE"); queueFile != "" {
		c.Queue.File = queueFile
	}
	if catalogFile := os.Getenv("MAPFETCH_CATALOG_FILE"); catalogFile != "" {
		c.Catalog.File = catalogFile
	}
	if imagesDir := os.Getenv("MAPFETCH_IMAGES_DIR"); imagesDir != "" {
		c.Download.ImagesDirectory = imagesDir
	}

	if concurrent := os.Getenv("MAPFETCH_CONCURRENT_DOWNLOADS"); concurrent != "" {
		if val, err := strconv.Atoi(concurrent); err == nil && val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}

	if markEmpty := os.Getenv("MAPFETCH_MARK_EMPTY_COMPLETE"); markEmpty != "" {
		c.Queue.MarkEmptyComplete = strings.ToLower(markEmpty) == "true"
	}

	if logLevel := os.Getenv("MAPFETCH_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	// Check in order of precedence
	locations := []string{
		".mapfetch.yaml",
		".mapfetch.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "mapfetch", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "mapfetch", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".mapfetch.yaml"),
		filepath.Join(os.Getenv("HOME"), ".mapfetch.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Mapillary.AccessToken == "" {
		errs = append(errs, errors.New("Mapillary access token is required"))
	}
	if c.Mapillary.BaseURL == "" {
		errs = append(errs, errors.New("Mapillary base URL is required"))
	}
	if c.Mapillary.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect timeout must be positive"))
	}
	if c.Mapillary.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Queue.File == "" {
		errs = append(errs, errors.New("queue file is required"))
	}
	if c.Queue.DefaultTaskLimit <= 0 {
		errs = append(errs, errors.New("default task limit must be positive"))
	}
	if c.Catalog.File == "" {
		errs = append(errs, errors.New("catalog file is required"))
	}

	if c.Download.ImagesDirectory == "" {
		errs = append(errs, errors.New("images directory is required"))
	}
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "access-token":
			if v, ok := value.(string); ok && v != "" {
				c.Mapillary.AccessToken = v
			}
		case "queue-file":
			if v, ok := value.(string); ok && v != "" {
				c.Queue.File = v
			}
		case "catalog-file":
			if v, ok := value.(string); ok && v != "" {
				c.Catalog.File = v
			}
		case "images-dir":
			if v, ok := value.(string); ok && v != "" {
				c.Download.ImagesDirectory = v
			}
		case "concurrent-downloads":
			if v, ok := value.(int); ok && v > 0 {
				c.Download.ConcurrentDownloads = v
			}
		case "requests-per-minute":
			if v, ok := value.(int); ok && v > 0 {
				c.RateLimit.RequestsPerMinute = v
			}
		case "mark-empty-complete":
			if v, ok := value.(bool); ok {
				c.Queue.MarkEmptyComplete = v
			}
		case "log-level":
			if v, ok := value.(string); ok && v != "" {
				c.Logging.Level = v
			}
		}
	}
}

// Load creates a configuration by layering defaults, an optional YAML
// file, a .env file, process environment, and command line flags, in
// that order of increasing precedence.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Load .env if present; missing file is fine
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, err
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	cfg.MergeCommandLineFlags(flags)

	return cfg, nil
}
