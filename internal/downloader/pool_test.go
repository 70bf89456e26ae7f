package downloader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mapfetch/pkg/ratelimit"
)

// mockFetcher is a mock implementation of the byte fetcher
type mockFetcher struct {
	fetchDelay   time.Duration
	fetchError   error
	fetchCounter int32
}

func (m *mockFetcher) FetchBytes(url string) (io.ReadCloser, error) {
	atomic.AddInt32(&m.fetchCounter, 1)
	if m.fetchDelay > 0 {
		time.Sleep(m.fetchDelay)
	}
	if m.fetchError != nil {
		return nil, m.fetchError
	}
	return io.NopCloser(bytes.NewReader([]byte("mock image data"))), nil
}

func (m *mockFetcher) FetchCount() int {
	return int(atomic.LoadInt32(&m.fetchCounter))
}

// mockStore is a mock implementation of the asset store
type mockStore struct {
	saved     map[string]bool
	saveError error
	mu        sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{saved: make(map[string]bool)}
}

func (m *mockStore) IsDownloaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[id]
}

func (m *mockStore) ImagePath(id string) string {
	return filepath.Join("images", id+".jpg")
}

func (m *mockStore) SaveImage(r io.Reader, id string) (string, error) {
	if m.saveError != nil {
		return "", m.saveError
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[id] = true
	return m.ImagePath(id), nil
}

func (m *mockStore) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func collectResults(pool *Pool) (<-chan []Result, func()) {
	done := make(chan []Result, 1)
	go func() {
		var results []Result
		for result := range pool.Results() {
			results = append(results, result)
		}
		done <- results
	}()
	return done, func() { pool.Stop() }
}

func TestPoolBasicFunctionality(t *testing.T) {
	fetcher := &mockFetcher{fetchDelay: 10 * time.Millisecond}
	store := newMockStore()
	limiter := ratelimit.NewTokenBucket(100, time.Second)

	pool := NewPool(3, fetcher, store, limiter, nil)
	pool.Start()

	done, stop := collectResults(pool)

	numJobs := 10
	for i := 0; i < numJobs; i++ {
		job := Job{
			ImageID:      fmt.Sprintf("img%d", i),
			URL:          fmt.Sprintf("https://cdn.example.com/img%d", i),
			LocationName: "amsterdam",
		}
		if err := pool.Submit(job); err != nil {
			t.Errorf("Failed to submit job %d: %v", i, err)
		}
	}

	stop()
	results := <-done

	if len(results) != numJobs {
		t.Errorf("Expected %d results, got %d", numJobs, len(results))
	}

	successCount := 0
	for _, result := range results {
		if result.Success {
			successCount++
			if result.FilePath == "" {
				t.Error("Expected a file path on a successful result")
			}
		}
	}
	if successCount != numJobs {
		t.Errorf("Expected %d successful downloads, got %d", numJobs, successCount)
	}

	if fetcher.FetchCount() != numJobs {
		t.Errorf("Expected %d fetch calls, got %d", numJobs, fetcher.FetchCount())
	}
	if store.SavedCount() != numJobs {
		t.Errorf("Expected %d saved images, got %d", numJobs, store.SavedCount())
	}
}

func TestPoolSkipsAlreadyDownloaded(t *testing.T) {
	fetcher := &mockFetcher{}
	store := newMockStore()
	store.saved["img0"] = true

	pool := NewPool(1, fetcher, store, nil, nil)
	pool.Start()

	done, stop := collectResults(pool)

	if err := pool.Submit(Job{ImageID: "img0", URL: "https://cdn.example.com/img0"}); err != nil {
		t.Fatalf("Failed to submit job: %v", err)
	}
	if err := pool.Submit(Job{ImageID: "img1", URL: "https://cdn.example.com/img1"}); err != nil {
		t.Fatalf("Failed to submit job: %v", err)
	}

	stop()
	results := <-done

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, result := range results {
		if !result.Success {
			t.Errorf("Expected job %s to succeed: %v", result.Job.ImageID, result.Error)
		}
	}

	// The pre-existing asset must not trigger a network fetch
	if fetcher.FetchCount() != 1 {
		t.Errorf("Expected 1 fetch call, got %d", fetcher.FetchCount())
	}
}

func TestPoolReportsFetchErrors(t *testing.T) {
	fetcher := &mockFetcher{fetchError: errors.New("connection refused")}
	store := newMockStore()

	pool := NewPool(2, fetcher, store, nil, nil)
	pool.Start()

	done, stop := collectResults(pool)

	for i := 0; i < 3; i++ {
		if err := pool.Submit(Job{ImageID: fmt.Sprintf("img%d", i), URL: "https://cdn.example.com/x"}); err != nil {
			t.Fatalf("Failed to submit job: %v", err)
		}
	}

	stop()
	results := <-done

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for _, result := range results {
		if result.Success {
			t.Error("Expected all downloads to fail")
		}
		if result.Error == nil {
			t.Error("Expected an error on a failed result")
		}
	}
	if store.SavedCount() != 0 {
		t.Errorf("Expected no saved images, got %d", store.SavedCount())
	}
}

func TestPoolReportsSaveErrors(t *testing.T) {
	fetcher := &mockFetcher{}
	store := newMockStore()
	store.saveError = errors.New("disk full")

	pool := NewPool(1, fetcher, store, nil, nil)
	pool.Start()

	done, stop := collectResults(pool)

	if err := pool.Submit(Job{ImageID: "img0", URL: "https://cdn.example.com/img0"}); err != nil {
		t.Fatalf("Failed to submit job: %v", err)
	}

	stop()
	results := <-done

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Success {
		t.Error("Expected the download to fail when the save fails")
	}
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewPool(1, &mockFetcher{}, newMockStore(), nil, nil)
	pool.Start()

	done, stop := collectResults(pool)
	stop()
	<-done

	if err := pool.Submit(Job{ImageID: "late"}); err == nil {
		t.Error("Expected submit after shutdown to fail")
	}
}
