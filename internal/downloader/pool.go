package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"mapfetch/pkg/logger"
	"mapfetch/pkg/ratelimit"
)

// Job is a single candidate download: the resolved source URL plus the
// metadata needed to build a catalog record once the asset is on disk.
type Job struct {
	ImageID      string
	URL          string
	LocationName string
	Longitude    float64
	Latitude     float64
	CapturedAt   string
}

// Result is the outcome of a download job
type Result struct {
	Job      Job
	FilePath string
	Success  bool
	Error    error
	Duration time.Duration
}

// ByteFetcher fetches raw bytes from a resolved URL
type ByteFetcher interface {
	FetchBytes(url string) (io.ReadCloser, error)
}

// AssetStore persists downloaded assets
type AssetStore interface {
	IsDownloaded(id string) bool
	ImagePath(id string) string
	SaveImage(r io.Reader, id string) (string, error)
}

// Pool manages concurrent candidate downloads. Catalog mutation stays
// with the consumer of Results; ids must be claimed before submission so
// no two jobs ever share an id.
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     ByteFetcher
	store       AssetStore
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewPool creates a download pool with the given number of workers
func NewPool(
	numWorkers int,
	fetcher ByteFetcher,
	store AssetStore,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.GetLogger()
	}

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		store:       store,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (p *Pool) Start() {
	p.logger.DebugWithFields("starting download pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the job queue, waits for workers to drain it, and closes
// the result queue.
func (p *Pool) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()
}

// Submit adds a new download job to the queue
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("download pool is shutting down")
	default:
	}

	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("download pool is shutting down")
	}
}

// Results returns the result channel for consuming download outcomes
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.processJob(job, id)

		select {
		case p.resultQueue <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if p.store.IsDownloaded(job.ImageID) {
		result.Success = true
		result.FilePath = p.store.ImagePath(job.ImageID)
		result.Duration = time.Since(start)
		return result
	}

	if p.rateLimiter != nil {
		p.rateLimiter.Wait()
	}

	body, err := p.fetcher.FetchBytes(job.URL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)

		p.logger.ErrorWithFields("worker failed to download image", map[string]interface{}{
			"worker_id": workerID,
			"image_id":  job.ImageID,
			"error":     err.Error(),
		})
		return result
	}

	path, err := p.store.SaveImage(body, job.ImageID)
	body.Close()
	if err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)

		p.logger.ErrorWithFields("worker failed to save image", map[string]interface{}{
			"worker_id": workerID,
			"image_id":  job.ImageID,
			"error":     err.Error(),
		})
		return result
	}

	result.Success = true
	result.FilePath = path
	result.Duration = time.Since(start)

	p.logger.DebugWithFields("worker completed download", map[string]interface{}{
		"worker_id": workerID,
		"image_id":  job.ImageID,
		"duration":  result.Duration,
	})

	return result
}
