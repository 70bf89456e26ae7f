package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"mapfetch/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage mapfetch configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (MAPFETCH_*)
  - A .env file in the working directory
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.mapfetch.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration including values from all sources.

The access token is masked for security.`,
	Run: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".mapfetch.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintln(os.Stderr, "Configuration file already exists:", configPath)
		fmt.Fprintln(os.Stderr, "\nTo overwrite, first remove the existing file:")
		fmt.Fprintf(os.Stderr, "  rm %s\n", configPath)
		os.Exit(1)
	}

	exampleConfig := `# Mapfetch Configuration File
#
# This file contains all available configuration options.
# You can also use environment variables prefixed with MAPFETCH_
# For example: MAPFETCH_ACCESS_TOKEN, MAPFETCH_QUEUE_FILE

# Mapillary Graph API settings
mapillary:
  # Access token (required)
  # Prefer 'mapfetch auth login' or the MAPFETCH_ACCESS_TOKEN env var
  # over putting the token in this file
  access_token: ""

  # API base URL
  base_url: "https://graph.mapillary.com"

  # Timeout for establishing a connection
  connect_timeout: 10s

  # Timeout for the whole request, headers and body included
  request_timeout: 60s

# Rate limiting and retry configuration
rate_limit:
  # Requests per minute
  requests_per_minute: 60

  # Total attempts per request, including the first
  max_retries: 5

  # Initial backoff delay; doubles on each retry
  retry_delay: 1s

# Work queue settings
queue:
  # Bounding box queue CSV
  file: "data/bounding_boxes.csv"

  # Limit used for rows whose limit column is absent or unparseable
  default_task_limit: 100

  # Mark boxes that produced zero new images as done
  mark_empty_complete: true

# Asset catalog settings
catalog:
  # Image catalog CSV
  file: "data/images_metadata.csv"

# Download settings
download:
  # Directory for downloaded images
  images_directory: "data/images"

  # Number of concurrent downloads
  # Range: 1-10
  concurrent_downloads: 1

  # Pause after each successful download
  pause_between_items: 200ms

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log file path (optional)
  # Leave empty to log to the console only
  file: ""
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to create configuration file:", err)
		os.Exit(1)
	}

	fmt.Println("Configuration file created:", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your Mapillary access token with 'mapfetch auth login'")
	fmt.Println("2. Add bounding boxes with 'mapfetch queue add'")
	fmt.Println("3. Start downloading with 'mapfetch fetch'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// Mask the token for display
	displayCfg := *cfg
	if displayCfg.Mapillary.AccessToken != "" {
		if len(displayCfg.Mapillary.AccessToken) > 8 {
			token := displayCfg.Mapillary.AccessToken
			displayCfg.Mapillary.AccessToken = token[:4] + "..." + token[len(token)-4:]
		} else {
			displayCfg.Mapillary.AccessToken = "***"
		}
	}

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to format configuration:", err)
		os.Exit(1)
	}

	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (MAPFETCH_*)")
	fmt.Println("3. .env file in the working directory")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (not specified)")
	}
	fmt.Println("5. Default values")
}
