package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mapfetch/pkg/logger"
)

func writeQueueFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bounding_boxes.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write queue file: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope.csv"), 100, logger.NewTestLogger())

	tasks, err := store.Load()
	if err != nil {
		t.Fatalf("Expected missing file to yield empty queue, got error: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected 0 tasks, got %d", len(tasks))
	}
}

func TestLoadParsesTasks(t *testing.T) {
	path := writeQueueFile(t, `location_name,min_lon,min_lat,max_lon,max_lat,limit,downloaded,date_added
amsterdam,4.88,52.36,4.91,52.38,250,no,2024-03-01
helsinki,24.93,60.16,24.96,60.18,50,YES,2024-03-02
`)
	store := NewStore(path, 100, logger.NewTestLogger())

	tasks, err := store.Load()
	if err != nil {
		t.Fatalf("Failed to load queue: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(tasks))
	}

	first := tasks[0]
	if first.LocationName != "amsterdam" {
		t.Errorf("Expected location amsterdam, got %s", first.LocationName)
	}
	if first.MinLon != 4.88 || first.MaxLat != 52.38 {
		t.Errorf("Unexpected bounds: %+v", first)
	}
	if first.Limit != 250 {
		t.Errorf("Expected limit 250, got %d", first.Limit)
	}
	if first.Downloaded {
		t.Error("Expected first task to be pending")
	}
	if first.DateAdded != "2024-03-01" {
		t.Errorf("Expected date_added to be carried through, got %q", first.DateAdded)
	}

	// Completion flag matching is case-insensitive
	if !tasks[1].Downloaded {
		t.Error("Expected second task to be completed (downloaded=YES)")
	}
}

func TestLoadInvalidLimitFallsBackToDefault(t *testing.T) {
	path := writeQueueFile(t, `location_name,min_lon,min_lat,max_lon,max_lat,limit,downloaded,date_added
oslo,10.72,59.90,10.78,59.93,not-a-number,no,
bergen,5.30,60.38,5.35,60.40,,no,
`)
	log := logger.NewTestLogger()
	store := NewStore(path, 42, log)

	tasks, err := store.Load()
	if err != nil {
		t.Fatalf("Failed to load queue: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Limit != 42 {
		t.Errorf("Expected unparseable limit to fall back to 42, got %d", tasks[0].Limit)
	}
	if tasks[1].Limit != 42 {
		t.Errorf("Expected empty limit to fall back to 42, got %d", tasks[1].Limit)
	}
	if !log.HasMessage("invalid limit") {
		t.Error("Expected a warning about the invalid limit")
	}
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	path := writeQueueFile(t, `location_name,min_lon,min_lat,max_lon,max_lat,limit,downloaded,date_added
good,4.88,52.36,4.91,52.38,10,no,
broken,not-a-lon,52.36,4.91,52.38,10,no,
also-good,24.93,60.16,24.96,60.18,10,no,
`)
	log := logger.NewTestLogger()
	store := NewStore(path, 100, log)

	tasks, err := store.Load()
	if err != nil {
		t.Fatalf("Failed to load queue: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 parseable tasks, got %d", len(tasks))
	}
	if tasks[0].LocationName != "good" || tasks[1].LocationName != "also-good" {
		t.Errorf("Unexpected task order: %s, %s", tasks[0].LocationName, tasks[1].LocationName)
	}
	if !log.HasMessage("malformed queue row") {
		t.Error("Expected a warning about the malformed row")
	}
}

func TestSavePreservesMalformedRows(t *testing.T) {
	path := writeQueueFile(t, `location_name,min_lon,min_lat,max_lon,max_lat,limit,downloaded,date_added
good,4.88,52.36,4.91,52.38,10,no,
broken,not-a-lon,52.36,4.91,52.38,10,no,
also-good,24.93,60.16,24.96,60.18,10,no,
`)
	store := NewStore(path, 100, logger.NewTestLogger())

	tasks, err := store.Load()
	if err != nil {
		t.Fatalf("Failed to load queue: %v", err)
	}

	tasks[0].MarkCompleted()
	if err := store.Save(tasks); err != nil {
		t.Fatalf("Failed to save queue: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read queue file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header plus 3 rows, got %d lines", len(lines))
	}

	// The broken row survives at its original position, byte content intact
	if !strings.HasPrefix(lines[2], "broken,not-a-lon") {
		t.Errorf("Expected malformed row preserved at position 2, got %q", lines[2])
	}
	if !strings.Contains(lines[1], "yes") {
		t.Errorf("Expected first task to be marked completed, got %q", lines[1])
	}
}

func TestCompletionSurvivesSaveAndReload(t *testing.T) {
	path := writeQueueFile(t, `location_name,min_lon,min_lat,max_lon,max_lat,limit,downloaded,date_added
amsterdam,4.88,52.36,4.91,52.38,250,no,2024-03-01
helsinki,24.93,60.16,24.96,60.18,50,no,
`)
	store := NewStore(path, 100, logger.NewTestLogger())

	tasks, err := store.Load()
	if err != nil {
		t.Fatalf("Failed to load queue: %v", err)
	}

	tasks[0].MarkCompleted()
	if err := store.Save(tasks); err != nil {
		t.Fatalf("Failed to save queue: %v", err)
	}

	// Reload through a fresh store
	store2 := NewStore(path, 100, logger.NewTestLogger())
	reloaded, err := store2.Load()
	if err != nil {
		t.Fatalf("Failed to reload queue: %v", err)
	}
	if len(reloaded) != 2 {
		t.Fatalf("Expected 2 tasks after reload, got %d", len(reloaded))
	}
	if !reloaded[0].Downloaded {
		t.Error("Expected completion flag to survive save and reload")
	}
	if reloaded[1].Downloaded {
		t.Error("Expected second task to still be pending")
	}
	if reloaded[0].DateAdded != "2024-03-01" {
		t.Errorf("Expected date_added to survive the rewrite, got %q", reloaded[0].DateAdded)
	}
}

func TestSaveAppendsNewTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.csv")
	store := NewStore(path, 100, logger.NewTestLogger())

	tasks, err := store.Load()
	if err != nil {
		t.Fatalf("Failed to load missing queue: %v", err)
	}

	tasks = append(tasks, Task{
		LocationName: "tokyo",
		MinLon:       139.69,
		MinLat:       35.67,
		MaxLon:       139.71,
		MaxLat:       35.69,
		Limit:        25,
	})
	if err := store.Save(tasks); err != nil {
		t.Fatalf("Failed to save queue: %v", err)
	}

	reloaded, err := NewStore(path, 100, logger.NewTestLogger()).Load()
	if err != nil {
		t.Fatalf("Failed to reload queue: %v", err)
	}
	if len(reloaded) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(reloaded))
	}
	if reloaded[0].LocationName != "tokyo" || reloaded[0].Limit != 25 {
		t.Errorf("Unexpected task: %+v", reloaded[0])
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{
			name: "valid box",
			task: Task{LocationName: "ok", MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2},
		},
		{
			name:    "inverted longitude",
			task:    Task{LocationName: "bad", MinLon: 2, MinLat: 1, MaxLon: 1, MaxLat: 2},
			wantErr: true,
		},
		{
			name:    "inverted latitude",
			task:    Task{LocationName: "bad", MinLon: 1, MinLat: 2, MaxLon: 2, MaxLat: 1},
			wantErr: true,
		},
		{
			name:    "degenerate box",
			task:    Task{LocationName: "bad", MinLon: 1, MinLat: 1, MaxLon: 1, MaxLat: 2},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.task.Validate()
			if test.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !test.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}
