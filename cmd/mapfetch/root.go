package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mapfetch",
	Short: "A resumable bulk downloader for Mapillary street-level imagery",
	Long: `Mapfetch downloads geotagged street-level imagery from the Mapillary
Graph API, one bounding box at a time.

Work is driven by a CSV queue of bounding boxes. Every downloaded image
is recorded in a CSV catalog alongside its capture metadata, and both
files survive interruption: rerunning the tool picks up exactly where
the previous run stopped, skipping boxes already marked done and images
already on disk.

Features:
  - Resumable runs driven by two plain CSV ledgers
  - Secure access token storage using the system keychain
  - Rate limiting and automatic retry with exponential backoff
  - Atomic image writes, so a crash never leaves a truncated file`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .mapfetch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`Mapfetch {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
