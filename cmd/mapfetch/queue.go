package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"mapfetch/pkg/config"
	"mapfetch/pkg/queue"
)

var (
	// Queue command flags
	addLimit     int
	addQueueFile string
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the bounding box work queue",
	Long: `Manage the CSV work queue that drives fetching.

Each row in the queue is a named bounding box with a target image count
and a completion flag. Rows can also be added or edited by hand; the
file is plain CSV.`,
}

// queueAddCmd represents the queue add command
var queueAddCmd = &cobra.Command{
	Use:   "add <name> <min_lon> <min_lat> <max_lon> <max_lat>",
	Short: "Add a bounding box to the work queue",
	Long: `Add a bounding box to the end of the work queue.

Coordinates are decimal degrees, longitude before latitude, minimums
before maximums. The box is validated before it is written.`,
	Example: `  # A block of central Amsterdam, up to 250 images
  mapfetch queue add amsterdam-center 4.88 52.36 4.91 52.38 --limit 250`,
	Args: cobra.ExactArgs(5),
	Run:  runQueueAdd,
}

// queueListCmd represents the queue list command
var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the work queue",
	Long:  `Show every bounding box in the work queue with its completion state.`,
	Run:   runQueueList,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)

	queueAddCmd.Flags().IntVar(&addLimit, "limit", 0, "maximum images to fetch for this box (default: configured default)")
	queueCmd.PersistentFlags().StringVar(&addQueueFile, "queue-file", "", "bounding box queue CSV (default: data/bounding_boxes.csv)")
}

func loadQueueStore() (*queue.Store, []queue.Task, *config.Config) {
	flags := make(map[string]interface{})
	if addQueueFile != "" {
		flags["queue-file"] = addQueueFile
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	store := queue.NewStore(cfg.Queue.File, cfg.Queue.DefaultTaskLimit, nil)
	tasks, err := store.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load work queue:", err)
		os.Exit(1)
	}

	return store, tasks, cfg
}

func runQueueAdd(cmd *cobra.Command, args []string) {
	coords := make([]float64, 4)
	for i, arg := range args[1:] {
		val, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid coordinate %q: %v\n", arg, err)
			os.Exit(1)
		}
		coords[i] = val
	}

	store, tasks, cfg := loadQueueStore()

	limit := addLimit
	if limit <= 0 {
		limit = cfg.Queue.DefaultTaskLimit
	}

	task := queue.Task{
		LocationName: args[0],
		MinLon:       coords[0],
		MinLat:       coords[1],
		MaxLon:       coords[2],
		MaxLat:       coords[3],
		Limit:        limit,
		DateAdded:    time.Now().Format("2006-01-02"),
	}

	if err := task.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	tasks = append(tasks, task)
	if err := store.Save(tasks); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to save work queue:", err)
		os.Exit(1)
	}

	fmt.Printf("Added %q (%g,%g,%g,%g), limit %d\n",
		task.LocationName, task.MinLon, task.MinLat, task.MaxLon, task.MaxLat, task.Limit)
}

func runQueueList(cmd *cobra.Command, args []string) {
	_, tasks, cfg := loadQueueStore()

	if len(tasks) == 0 {
		fmt.Printf("Work queue is empty (%s)\n", cfg.Queue.File)
		fmt.Println("Use 'mapfetch queue add' to add a bounding box.")
		return
	}

	pending := 0
	for _, task := range tasks {
		state := "done"
		if !task.Downloaded {
			state = "pending"
			pending++
		}
		fmt.Printf("%-8s %-24s %g,%g,%g,%g  limit %d\n",
			state, task.LocationName, task.MinLon, task.MinLat, task.MaxLon, task.MaxLat, task.Limit)
	}
	fmt.Printf("\n%d boxes, %d pending\n", len(tasks), pending)
}
