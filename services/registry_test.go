package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osmsync/types"
)

func TestCreateEnforcesSingleFlight(t *testing.T) {
	registry := NewJobRegistry(NewMemoryStore(), nil)

	first, err := registry.Create("Texas", "https://example.com/texas.osm.pbf")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, types.JobStatusInitializing, first.Status)
	assert.Equal(t, 0, first.Progress)

	second, err := registry.Create("California", "https://example.com/california.osm.pbf")
	require.Error(t, err)
	assert.Nil(t, second)

	conflict, ok := err.(*ConflictError)
	require.True(t, ok, "expected *ConflictError, got %T", err)
	assert.Equal(t, first.ID, conflict.ActiveJobID)

	// The failed create must not have touched the registry.
	assert.Len(t, registry.List(), 1)
}

func TestCreateAllowedAfterTerminalStates(t *testing.T) {
	tests := []struct {
		name     string
		finish   func(r JobRegistry, id string)
		expected types.JobStatus
	}{
		{
			name:     "after completion",
			finish:   func(r JobRegistry, id string) { r.Complete(id, "done") },
			expected: types.JobStatusCompleted,
		},
		{
			name:     "after failure",
			finish:   func(r JobRegistry, id string) { r.Fail(id, "import exited with code 1") },
			expected: types.JobStatusFailed,
		},
		{
			name:     "after cancellation",
			finish:   func(r JobRegistry, id string) { r.Cancel(id) },
			expected: types.JobStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewJobRegistry(NewMemoryStore(), nil)
			job, err := registry.Create("Texas", "https://example.com/texas.osm.pbf")
			require.NoError(t, err)

			tt.finish(registry, job.ID)
			view, ok := registry.Get(job.ID)
			require.True(t, ok)
			assert.Equal(t, tt.expected, view.Status)
			require.NotNil(t, view.CompletedAt)

			next, err := registry.Create("Germany", "https://example.com/germany.osm.pbf")
			require.NoError(t, err)
			assert.NotEqual(t, job.ID, next.ID)
		})
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	registry := NewJobRegistry(NewMemoryStore(), nil)
	job, err := registry.Create("Texas", "https://example.com/texas.osm.pbf")
	require.NoError(t, err)

	registry.SetProgress(job.ID, 15)
	registry.SetProgress(job.ID, 10) // regression, ignored
	view, _ := registry.Get(job.ID)
	assert.Equal(t, 15, view.Progress)

	registry.SetProgress(job.ID, 150) // clamped
	view, _ = registry.Get(job.ID)
	assert.Equal(t, 100, view.Progress)

	registry.SetProgress(job.ID, -5)
	view, _ = registry.Get(job.ID)
	assert.Equal(t, 100, view.Progress)
}

func TestTerminalStateIsSticky(t *testing.T) {
	registry := NewJobRegistry(NewMemoryStore(), nil)
	job, err := registry.Create("Texas", "https://example.com/texas.osm.pbf")
	require.NoError(t, err)

	view, ok := registry.Cancel(job.ID)
	require.True(t, ok)
	assert.Equal(t, types.JobStatusCancelled, view.Status)
	require.NotNil(t, view.CompletedAt)
	firstCompleted := *view.CompletedAt

	// A late stage failure must not overwrite the cancellation.
	registry.Fail(job.ID, "tool exited with code 137")
	registry.SetStatus(job.ID, types.JobStatusImporting, "late transition")
	registry.SetProgress(job.ID, 99)

	view, ok = registry.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, types.JobStatusCancelled, view.Status)
	assert.Equal(t, "Job cancelled by user", view.Message)
	assert.Empty(t, view.Error)
	assert.Equal(t, firstCompleted, *view.CompletedAt)
}

func TestCancelIsIdempotent(t *testing.T) {
	registry := NewJobRegistry(NewMemoryStore(), nil)
	job, err := registry.Create("Texas", "https://example.com/texas.osm.pbf")
	require.NoError(t, err)

	first, ok := registry.Cancel(job.ID)
	require.True(t, ok)
	time.Sleep(10 * time.Millisecond)
	second, ok := registry.Cancel(job.ID)
	require.True(t, ok)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Message, second.Message)
	assert.Equal(t, *first.CompletedAt, *second.CompletedAt)
	assert.Equal(t, len(first.Log), len(second.Log))
}

func TestCancelUnknownJob(t *testing.T) {
	registry := NewJobRegistry(NewMemoryStore(), nil)
	_, ok := registry.Cancel("no-such-job")
	assert.False(t, ok)
}

func TestLogProjectionKeepsMostRecentLines(t *testing.T) {
	registry := NewJobRegistry(NewMemoryStore(), nil)
	job, err := registry.Create("Texas", "https://example.com/texas.osm.pbf")
	require.NoError(t, err)

	for i := 0; i < 120; i++ {
		registry.AppendLog(job.ID, fmt.Sprintf("line %03d", i))
	}

	view, ok := registry.Get(job.ID)
	require.True(t, ok)
	require.Len(t, view.Log, types.MaxLogLines)

	// Most recent lines, original order preserved.
	assert.Contains(t, view.Log[0], "line 070")
	assert.Contains(t, view.Log[len(view.Log)-1], "line 119")
	for i := 1; i < len(view.Log); i++ {
		assert.Less(t, view.Log[i-1], view.Log[i])
	}
}

func TestFindActive(t *testing.T) {
	registry := NewJobRegistry(NewMemoryStore(), nil)
	assert.Nil(t, registry.FindActive())

	job, err := registry.Create("Texas", "https://example.com/texas.osm.pbf")
	require.NoError(t, err)
	registry.SetStatus(job.ID, types.JobStatusImporting, "Importing extract into spatial database")
	registry.SetProgress(job.ID, 42)

	active := registry.FindActive()
	require.NotNil(t, active)
	assert.Equal(t, job.ID, active.ID)
	assert.Equal(t, "Texas", active.PresetName)
	assert.Equal(t, types.JobStatusImporting, active.Status)
	assert.Equal(t, 42, active.Progress)

	registry.Complete(job.ID, "done")
	assert.Nil(t, registry.FindActive())
}

// fakeStore records saves and serves a canned history.
type fakeStore struct {
	history []*types.SyncJob
	saved   map[string]types.JobStatus
}

func newFakeStore(history ...*types.SyncJob) *fakeStore {
	return &fakeStore{history: history, saved: make(map[string]types.JobStatus)}
}

func (s *fakeStore) Save(job *types.SyncJob) error {
	s.saved[job.ID] = job.Status
	return nil
}

func (s *fakeStore) LoadAll() ([]*types.SyncJob, error) {
	return s.history, nil
}

func TestRestartMarksInterruptedJobsFailed(t *testing.T) {
	interrupted := &types.SyncJob{
		ID:          "job-1",
		PresetName:  "Texas",
		DownloadURL: "https://example.com/texas.osm.pbf",
		Status:      types.JobStatusImporting,
		Progress:    45,
		StartedAt:   time.Now().Add(-time.Hour),
	}
	store := newFakeStore(interrupted)

	registry := NewJobRegistry(store, nil)
	view, ok := registry.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, types.JobStatusFailed, view.Status)
	assert.Equal(t, "interrupted by server restart", view.Error)
	require.NotNil(t, view.CompletedAt)
	assert.Equal(t, types.JobStatusFailed, store.saved["job-1"])

	// The interrupted job no longer blocks new syncs.
	_, err := registry.Create("Germany", "https://example.com/germany.osm.pbf")
	require.NoError(t, err)
}
