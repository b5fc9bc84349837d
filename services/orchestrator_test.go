package services

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osmsync/types"
)

// testPipeline wires an orchestrator whose import and tile-generation
// commands are small shell scripts, against a local extract server.
func testPipeline(t *testing.T, importScript, tileGenScript string) (JobRegistry, *Orchestrator, *httptest.Server) {
	t.Helper()

	payload := strings.Repeat("x", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	cfg := OrchestratorConfig{
		DownloadsDir:       filepath.Join(dir, "downloads"),
		CurrentExtractPath: filepath.Join(dir, "current.osm.pbf"),
		TilePackagePath:    filepath.Join(dir, "world.mbtiles"),
		ImportCommand:      "sh",
		ImportArgs:         []string{"-c", importScript},
		TileGenCommand:     "sh",
		TileGenArgs:        []string{"-c", tileGenScript},
	}

	registry := NewJobRegistry(NewMemoryStore(), nil)
	orchestrator := NewOrchestrator(registry, NewDownloader(), cfg)
	return registry, orchestrator, server
}

// waitForTerminal polls until the job leaves the non-terminal states,
// recording every observed progress value along the way.
func waitForTerminal(t *testing.T, registry JobRegistry, jobID string, timeout time.Duration) (types.JobView, []int) {
	t.Helper()

	var observed []int
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		view, ok := registry.Get(jobID)
		require.True(t, ok)
		observed = append(observed, view.Progress)
		if view.Status.IsTerminal() {
			return view, observed
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %v", jobID, timeout)
	return types.JobView{}, nil
}

func TestRunSyncHappyPath(t *testing.T) {
	registry, orchestrator, server := testPipeline(t,
		"echo processing nodes; echo processing ways; echo processing relations",
		"echo generating tiles",
	)

	preset := types.Preset{ID: "custom", Name: "Test extract", SourceURL: server.URL + "/test.osm.pbf"}
	job, err := orchestrator.StartSync(preset)
	require.NoError(t, err)

	view, observed := waitForTerminal(t, registry, job.ID, 5*time.Second)
	assert.Equal(t, types.JobStatusCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)
	assert.Empty(t, view.Error)
	require.NotNil(t, view.CompletedAt)

	// Progress never went backwards at any observation point.
	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, observed[i], observed[i-1])
	}

	// Subprocess output landed in the job log.
	logText := strings.Join(view.Log, "\n")
	assert.Contains(t, logText, "processing ways")
	assert.Contains(t, logText, "generating tiles")
	assert.Contains(t, logText, "Download complete")

	// Terminal job frees the single-flight slot.
	_, err = registry.Create("Next", "https://example.com/next.osm.pbf")
	require.NoError(t, err)
}

func TestRunSyncImportFailure(t *testing.T) {
	registry, orchestrator, server := testPipeline(t,
		"echo starting import; exit 1",
		"echo never reached",
	)

	preset := types.Preset{ID: "custom", Name: "Test extract", SourceURL: server.URL + "/test.osm.pbf"}
	job, err := orchestrator.StartSync(preset)
	require.NoError(t, err)

	view, _ := waitForTerminal(t, registry, job.ID, 5*time.Second)
	assert.Equal(t, types.JobStatusFailed, view.Status)
	assert.Contains(t, view.Error, "exited with code 1")
	require.NotNil(t, view.CompletedAt)

	// Tile generation never started.
	logText := strings.Join(view.Log, "\n")
	assert.NotContains(t, logText, "never reached")

	// The failed job no longer blocks new syncs.
	_, err = registry.Create("Next", "https://example.com/next.osm.pbf")
	require.NoError(t, err)
}

func TestRunSyncTileGenerationFailure(t *testing.T) {
	registry, orchestrator, server := testPipeline(t,
		"echo import ok",
		"exit 3",
	)

	preset := types.Preset{ID: "custom", Name: "Test extract", SourceURL: server.URL + "/test.osm.pbf"}
	job, err := orchestrator.StartSync(preset)
	require.NoError(t, err)

	view, _ := waitForTerminal(t, registry, job.ID, 5*time.Second)
	assert.Equal(t, types.JobStatusFailed, view.Status)
	assert.Contains(t, view.Error, "exited with code 3")
}

func TestRunSyncDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := OrchestratorConfig{
		DownloadsDir:       filepath.Join(dir, "downloads"),
		CurrentExtractPath: filepath.Join(dir, "current.osm.pbf"),
		TilePackagePath:    filepath.Join(dir, "world.mbtiles"),
		ImportCommand:      "sh",
		ImportArgs:         []string{"-c", "echo never reached"},
		TileGenCommand:     "sh",
		TileGenArgs:        []string{"-c", "echo never reached"},
	}
	registry := NewJobRegistry(NewMemoryStore(), nil)
	orchestrator := NewOrchestrator(registry, NewDownloader(), cfg)

	job, err := orchestrator.StartSync(types.Preset{Name: "Broken", SourceURL: server.URL + "/gone.osm.pbf"})
	require.NoError(t, err)

	view, _ := waitForTerminal(t, registry, job.ID, 5*time.Second)
	assert.Equal(t, types.JobStatusFailed, view.Status)
	assert.Contains(t, view.Error, "unexpected status")
}

func TestCancelDuringImport(t *testing.T) {
	registry, orchestrator, server := testPipeline(t,
		"echo import started; sleep 30",
		"echo never reached",
	)

	preset := types.Preset{ID: "custom", Name: "Test extract", SourceURL: server.URL + "/test.osm.pbf"}
	job, err := orchestrator.StartSync(preset)
	require.NoError(t, err)

	// Wait until the import subprocess is running.
	deadline := time.Now().Add(5 * time.Second)
	for {
		view, ok := registry.Get(job.ID)
		require.True(t, ok)
		if view.Status == types.JobStatusImporting && strings.Contains(strings.Join(view.Log, "\n"), "import started") {
			break
		}
		require.True(t, time.Now().Before(deadline), "import never started")
		time.Sleep(5 * time.Millisecond)
	}

	view, ok := registry.Cancel(job.ID)
	require.True(t, ok)
	assert.Equal(t, types.JobStatusCancelled, view.Status)
	assert.Equal(t, "Job cancelled by user", view.Message)
	require.NotNil(t, view.CompletedAt)

	// Give the orchestrator goroutine time to observe the kill; the
	// cancelled status must survive the stage error path.
	time.Sleep(200 * time.Millisecond)
	view, ok = registry.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, types.JobStatusCancelled, view.Status)
	assert.Empty(t, view.Error)

	// Slot is free for the next sync.
	_, err = registry.Create("Next", "https://example.com/next.osm.pbf")
	require.NoError(t, err)
}

func TestStartSyncConflict(t *testing.T) {
	registry, orchestrator, server := testPipeline(t,
		"sleep 30",
		"echo never reached",
	)

	first, err := orchestrator.StartSync(types.Preset{Name: "Texas", SourceURL: server.URL + "/texas.osm.pbf"})
	require.NoError(t, err)

	_, err = orchestrator.StartSync(types.Preset{Name: "California", SourceURL: server.URL + "/california.osm.pbf"})
	require.Error(t, err)
	conflict, ok := err.(*ConflictError)
	require.True(t, ok)
	assert.Equal(t, first.ID, conflict.ActiveJobID)

	registry.Cancel(first.ID)
}
