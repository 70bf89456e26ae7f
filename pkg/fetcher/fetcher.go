package fetcher

import (
	"fmt"
	"os"
	"time"

	"mapfetch/internal/downloader"
	"mapfetch/pkg/catalog"
	"mapfetch/pkg/config"
	errs "mapfetch/pkg/errors"
	"mapfetch/pkg/logger"
	"mapfetch/pkg/mapillary"
	"mapfetch/pkg/queue"
	"mapfetch/pkg/ratelimit"
	"mapfetch/pkg/storage"
)

// TaskState tracks a bounding box task through a run
type TaskState int

const (
	TaskPending TaskState = iota
	TaskInProgress
	TaskCompletedSuccess
	TaskCompletedNoNew
	TaskCompletedAPIError
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInProgress:
		return "in_progress"
	case TaskCompletedSuccess:
		return "completed_success"
	case TaskCompletedNoNew:
		return "completed_no_new"
	case TaskCompletedAPIError:
		return "completed_api_error"
	default:
		return "unknown"
	}
}

// Summary reports what a run accomplished
type Summary struct {
	TasksProcessed    int
	TasksCompleted    int
	TasksLeftPending  int
	TasksInvalid      int
	NewRecords        int
	CandidatesSkipped int
}

// Fetcher drives the per-bbox, per-image retrieval protocol. It is the
// only writer of the work queue and the asset catalog.
type Fetcher struct {
	client  ImageAPI
	queue   *queue.Store
	catalog *catalog.Catalog
	store   *storage.Manager
	limiter ratelimit.Limiter
	config  *config.Config
	logger  logger.Logger
}

// New creates a Fetcher wired to the real Mapillary client and the
// configured ledgers.
func New(cfg *config.Config) (*Fetcher, error) {
	log := logger.GetLogger()

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	client := mapillary.NewClient(cfg.Mapillary, cfg.RateLimit, limiter, log)

	store, err := storage.NewManager(cfg.Download.ImagesDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	cat, err := catalog.NewCatalog(cfg.Catalog.File, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	return &Fetcher{
		client:  client,
		queue:   queue.NewStore(cfg.Queue.File, cfg.Queue.DefaultTaskLimit, log),
		catalog: cat,
		store:   store,
		limiter: limiter,
		config:  cfg,
		logger:  log,
	}, nil
}

// NewWithComponents creates a Fetcher with explicit collaborators
func NewWithComponents(
	client ImageAPI,
	queueStore *queue.Store,
	cat *catalog.Catalog,
	store *storage.Manager,
	cfg *config.Config,
	log logger.Logger,
) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		client:  client,
		queue:   queueStore,
		catalog: cat,
		store:   store,
		config:  cfg,
		logger:  log,
	}
}

// Run loads both ledgers, processes every unfinished task in order, and
// persists both ledgers. The queue is always rewritten at end of run so
// completion flags are durable even when nothing new was fetched.
//
// A missing queue file is a configuration error: the run fails before
// either ledger is touched rather than completing over an empty queue
// and writing a header-only file in its place.
func (f *Fetcher) Run() (*Summary, error) {
	if _, err := os.Stat(f.config.Queue.File); err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.Error{
				Type:    errs.ErrorTypeConfig,
				Message: fmt.Sprintf("queue file does not exist: %s", f.config.Queue.File),
			}
		}
		return nil, &errs.Error{
			Type:    errs.ErrorTypeConfig,
			Message: fmt.Sprintf("queue file is not accessible: %v", err),
		}
	}

	tasks, err := f.queue.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load work queue: %w", err)
	}

	f.logger.InfoWithFields("starting run", map[string]interface{}{
		"tasks":      len(tasks),
		"catalogued": f.catalog.Len(),
	})

	summary := &Summary{}

	for i := range tasks {
		task := &tasks[i]

		if task.Downloaded {
			f.logger.DebugWithFields("task already completed, skipping", map[string]interface{}{
				"location": task.LocationName,
			})
			continue
		}

		state := TaskPending

		if err := task.Validate(); err != nil {
			// Left untouched: neither completed nor progressed
			f.logger.WarnWithFields("skipping invalid task", map[string]interface{}{
				"location": task.LocationName,
				"state":    state.String(),
				"error":    err.Error(),
			})
			summary.TasksInvalid++
			continue
		}

		state = TaskInProgress
		f.logger.DebugWithFields("task started", map[string]interface{}{
			"location": task.LocationName,
			"state":    state.String(),
		})

		summary.TasksProcessed++
		var newCount, skipped int
		state, newCount, skipped = f.processTask(task)
		summary.NewRecords += newCount
		summary.CandidatesSkipped += skipped

		switch state {
		case TaskCompletedSuccess:
			task.MarkCompleted()
			summary.TasksCompleted++
		case TaskCompletedNoNew:
			// The reference behavior marks a task complete even when it
			// produced nothing new; kept configurable.
			if f.config.Queue.MarkEmptyComplete {
				task.MarkCompleted()
				summary.TasksCompleted++
			} else {
				summary.TasksLeftPending++
			}
		case TaskCompletedAPIError:
			// Listing failure is infrastructure-level: the task stays
			// pending and is retried on the next run.
			summary.TasksLeftPending++
		}

		f.logger.InfoWithFields("task finished", map[string]interface{}{
			"location":    task.LocationName,
			"state":       state.String(),
			"new_records": newCount,
			"skipped":     skipped,
		})

		// Persist progress after every task. Catalog first: a crash
		// between the saves then leaves the catalog ahead of the queue,
		// which dedup makes safe.
		if err := f.catalog.Save(); err != nil {
			return summary, fmt.Errorf("failed to save catalog: %w", err)
		}
		if err := f.queue.Save(tasks); err != nil {
			return summary, fmt.Errorf("failed to save work queue: %w", err)
		}
	}

	// Final full rewrite regardless of what happened above
	if err := f.catalog.Save(); err != nil {
		return summary, fmt.Errorf("failed to save catalog: %w", err)
	}
	if err := f.queue.Save(tasks); err != nil {
		return summary, fmt.Errorf("failed to save work queue: %w", err)
	}

	f.logger.InfoWithFields("run finished", map[string]interface{}{
		"tasks_processed": summary.TasksProcessed,
		"tasks_completed": summary.TasksCompleted,
		"new_records":     summary.NewRecords,
		"skipped":         summary.CandidatesSkipped,
	})

	return summary, nil
}

// processTask runs the retrieval protocol for one bounding box task and
// returns the resulting state plus counts of new records and skipped
// candidates.
func (f *Fetcher) processTask(task *queue.Task) (TaskState, int, int) {
	taskLog := f.logger.WithField("location", task.LocationName)

	bbox := mapillary.BoundingBox{
		MinLon: task.MinLon,
		MinLat: task.MinLat,
		MaxLon: task.MaxLon,
		MaxLat: task.MaxLat,
	}

	candidates, err := f.client.ListImages(bbox, mapillary.ListingFields, task.Limit)
	if err != nil {
		taskLog.WithError(err).Error("candidate listing failed, task stays pending")
		return TaskCompletedAPIError, 0, 0
	}

	taskLog.InfoWithFields("listed candidates", map[string]interface{}{
		"location":   task.LocationName,
		"candidates": len(candidates),
		"requested":  task.Limit,
	})

	jobs, skipped := f.resolveCandidates(task, candidates)
	if len(jobs) == 0 {
		return TaskCompletedNoNew, 0, skipped
	}

	newCount, failed := f.downloadJobs(task, jobs)
	skipped += failed

	if newCount == 0 {
		return TaskCompletedNoNew, 0, skipped
	}
	return TaskCompletedSuccess, newCount, skipped
}

// resolveCandidates walks the listing and produces download jobs for the
// candidates that pass dedup, geometry, and thumbnail resolution. Every
// skip is reported with the task name and candidate id.
func (f *Fetcher) resolveCandidates(task *queue.Task, candidates []mapillary.Candidate) ([]downloader.Job, int) {
	var jobs []downloader.Job
	skipped := 0

	// Ids claimed within this task so overlapping listings never yield
	// two jobs for the same image
	claimed := make(map[string]bool)

	for i := range candidates {
		if len(jobs) >= task.Limit {
			break
		}
		c := &candidates[i]

		fields := map[string]interface{}{
			"location": task.LocationName,
			"image_id": c.ID,
		}

		if c.ID == "" {
			f.logger.WarnWithFields("candidate without id, skipping", fields)
			skipped++
			continue
		}

		if f.catalog.Has(c.ID) || claimed[c.ID] {
			f.logger.DebugWithFields("candidate already catalogued, skipping", fields)
			continue
		}

		lon, lat, ok := c.Coordinates()
		if !ok {
			f.logger.WarnWithFields("candidate has no resolvable coordinates, skipping", fields)
			skipped++
			continue
		}

		url, err := f.client.ResolveThumbnailURL(c.ID)
		if err != nil {
			f.logger.WithFields(fields).WithError(err).Warn("thumbnail resolution failed, skipping candidate")
			skipped++
			continue
		}
		if url == "" {
			f.logger.WarnWithFields("candidate has no thumbnail URL, skipping", fields)
			skipped++
			continue
		}

		claimed[c.ID] = true
		jobs = append(jobs, downloader.Job{
			ImageID:      c.ID,
			URL:          url,
			LocationName: task.LocationName,
			Longitude:    lon,
			Latitude:     lat,
			CapturedAt:   c.CapturedAtUTC(),
		})
	}

	return jobs, skipped
}

// downloadJobs runs the download phase through the worker pool and
// appends a catalog record for every asset that was atomically written.
// Catalog mutation stays on this goroutine.
func (f *Fetcher) downloadJobs(task *queue.Task, jobs []downloader.Job) (int, int) {
	numWorkers := f.config.Download.ConcurrentDownloads
	if numWorkers <= 0 {
		numWorkers = 1
	}

	pool := downloader.NewPool(numWorkers, f.client, f.store, f.limiter, f.logger)
	pool.Start()

	go func() {
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				return
			}
		}
		pool.Stop()
	}()

	newCount := 0
	failed := 0

	for result := range pool.Results() {
		fields := map[string]interface{}{
			"location": task.LocationName,
			"image_id": result.Job.ImageID,
		}

		if !result.Success {
			f.logger.WithFields(fields).WithError(result.Error).Warn("candidate download failed, skipping")
			logger.LogDownload(task.LocationName, result.Job.ImageID, false, result.Error)
			failed++
			continue
		}

		rec := catalog.ImageRecord{
			ID:           result.Job.ImageID,
			LocationName: result.Job.LocationName,
			Longitude:    result.Job.Longitude,
			Latitude:     result.Job.Latitude,
			CapturedAt:   result.Job.CapturedAt,
			FilePath:     result.FilePath,
			ImageURL:     result.Job.URL,
		}
		if err := f.catalog.Append(rec); err != nil {
			f.logger.WithFields(fields).WithError(err).Warn("record rejected by catalog, skipping")
			failed++
			continue
		}

		newCount++
		logger.LogDownload(task.LocationName, result.Job.ImageID, true, nil)
		f.logger.InfoWithFields("image fetched", map[string]interface{}{
			"location": task.LocationName,
			"image_id": result.Job.ImageID,
			"path":     result.FilePath,
		})

		// Courtesy pause between successful downloads
		if f.config.Download.PauseBetweenItems > 0 {
			time.Sleep(f.config.Download.PauseBetweenItems)
		}
	}

	return newCount, failed
}
