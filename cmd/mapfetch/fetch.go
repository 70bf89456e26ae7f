package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mapfetch/pkg/auth"
	"mapfetch/pkg/config"
	"mapfetch/pkg/fetcher"
	"mapfetch/pkg/logger"
)

var (
	// Fetch command flags
	accessToken       string
	profileName       string
	queueFile         string
	catalogFile       string
	imagesDir         string
	concurrent        int
	rateLimit         int
	markEmptyComplete bool
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Process the bounding box queue and download imagery",
	Long: `Process every unfinished bounding box in the work queue.

For each box the tool lists candidate images from the Mapillary Graph
API, skips everything already present in the catalog, downloads the
rest up to the box's limit, and marks the box done. Boxes whose listing
call fails are left pending so the next run retries them.

A Mapillary access token is required, from one of:
  - Stored credentials (use 'mapfetch auth login' to store)
  - MAPFETCH_ACCESS_TOKEN or MAPILLARY_TOKEN environment variables
  - The configuration file or the --access-token flag`,
	Example: `  # Process the default queue (data/bounding_boxes.csv)
  mapfetch fetch

  # Use a specific queue and output directory
  mapfetch fetch --queue-file boxes.csv --images-dir ./images

  # Slow down for a constrained API quota
  mapfetch fetch --rate-limit 30 --concurrent 1

  # Keep empty boxes pending so a later run retries them
  mapfetch fetch --mark-empty-complete=false`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runFetch(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&accessToken, "access-token", "", "Mapillary access token (overrides stored credentials)")
	fetchCmd.Flags().StringVarP(&profileName, "profile", "p", "", "use a specific stored credential profile")
	fetchCmd.Flags().StringVar(&queueFile, "queue-file", "", "bounding box queue CSV (default: data/bounding_boxes.csv)")
	fetchCmd.Flags().StringVar(&catalogFile, "catalog-file", "", "image catalog CSV (default: data/images_metadata.csv)")
	fetchCmd.Flags().StringVarP(&imagesDir, "images-dir", "o", "", "output directory for images (default: data/images)")
	fetchCmd.Flags().IntVar(&concurrent, "concurrent", 1, "number of concurrent downloads")
	fetchCmd.Flags().IntVar(&rateLimit, "rate-limit", 60, "requests per minute")
	fetchCmd.Flags().BoolVar(&markEmptyComplete, "mark-empty-complete", true, "mark boxes with zero new images as done")
}

func runFetch(cmd *cobra.Command, args []string) {
	// Build flags map from command line
	flags := make(map[string]interface{})
	if accessToken != "" {
		flags["access-token"] = accessToken
	}
	if queueFile != "" {
		flags["queue-file"] = queueFile
	}
	if catalogFile != "" {
		flags["catalog-file"] = catalogFile
	}
	if imagesDir != "" {
		flags["images-dir"] = imagesDir
	}
	if concurrent != 1 {
		flags["concurrent-downloads"] = concurrent
	}
	if rateLimit != 60 {
		flags["requests-per-minute"] = rateLimit
	}
	if cmd.Flags().Changed("mark-empty-complete") {
		flags["mark-empty-complete"] = markEmptyComplete
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	// Load configuration
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Initialize(&cfg.Logging)
	logger.WithField("version", version).Info("mapfetch starting")

	// Fill in the token from stored credentials when config and
	// environment provided none
	if cfg.Mapillary.AccessToken == "" || profileName != "" {
		resolveStoredToken(cfg)
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		fmt.Fprintln(os.Stderr, "Invalid configuration:", err)
		fmt.Fprintln(os.Stderr, "\nTo store an access token securely, run:")
		fmt.Fprintln(os.Stderr, "  mapfetch auth login")
		fmt.Fprintln(os.Stderr, "\nOr set it in the environment:")
		fmt.Fprintln(os.Stderr, "  export MAPFETCH_ACCESS_TOKEN=your_token")
		os.Exit(1)
	}

	f, err := fetcher.New(cfg)
	if err != nil {
		logger.WithError(err).Error("initialization failed")
		fmt.Fprintln(os.Stderr, "Failed to initialize:", err)
		os.Exit(1)
	}

	summary, err := f.Run()
	if err != nil {
		logger.WithError(err).Error("run failed")
		fmt.Fprintln(os.Stderr, "Run failed:", err)
		os.Exit(1)
	}

	logger.WithFields(map[string]interface{}{
		"tasks_processed":    summary.TasksProcessed,
		"tasks_completed":    summary.TasksCompleted,
		"tasks_left_pending": summary.TasksLeftPending,
		"new_records":        summary.NewRecords,
	}).Info("run finished")

	fmt.Printf("Processed %d boxes: %d completed, %d left pending, %d skipped as invalid\n",
		summary.TasksProcessed, summary.TasksCompleted, summary.TasksLeftPending, summary.TasksInvalid)
	fmt.Printf("Downloaded %d new images (%d candidates skipped)\n",
		summary.NewRecords, summary.CandidatesSkipped)
}

// resolveStoredToken fills cfg from the credential manager. Failures are
// not fatal here; Validate reports the missing token with guidance.
func resolveStoredToken(cfg *config.Config) {
	manager, err := auth.NewManager()
	if err != nil {
		logger.WithError(err).Debug("credential manager unavailable")
		return
	}

	var profile *auth.Profile
	if profileName != "" {
		profile, err = manager.Retrieve(profileName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Profile not found: %s\n", profileName)
			fmt.Fprintln(os.Stderr, "Use 'mapfetch auth status' to see stored profiles")
			os.Exit(1)
		}
	} else {
		profile, err = manager.RetrieveDefault()
		if err != nil {
			logger.Debug("no stored credentials found")
			return
		}
	}

	cfg.Mapillary.AccessToken = profile.AccessToken
	logger.WithField("profile", profile.Name).Info("using stored credentials")
}
