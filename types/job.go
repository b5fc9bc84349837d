package types

import (
	"context"
	"os/exec"
	"time"
)

// JobStatus represents the current status of a sync job
type JobStatus string

const (
	JobStatusInitializing    JobStatus = "initializing"
	JobStatusDownloading     JobStatus = "downloading"
	JobStatusImporting       JobStatus = "importing"
	JobStatusGeneratingTiles JobStatus = "generating_tiles"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
	JobStatusCancelled       JobStatus = "cancelled"
)

// IsTerminal reports whether the status is one of the three end states.
// A terminal job never changes again and frees the single-flight slot.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// SyncJob tracks one attempt to run the full sync pipeline
// (download -> import -> tile generation). Mutable fields are only
// written through the registry so that reads stay consistent and
// terminal states stay sticky.
type SyncJob struct {
	ID          string     `json:"id"`
	PresetName  string     `json:"presetName"`
	DownloadURL string     `json:"downloadUrl"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	Log         []string   `json:"log"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Process is the currently running external command, kept only so a
	// cancellation request can signal it. Nil while downloading or
	// between stages.
	Process *exec.Cmd `json:"-"`

	// Cancel aborts the job's context, which stops an in-flight download
	// and kills any spawned subprocess.
	Cancel context.CancelFunc `json:"-"`
}

// MaxLogLines is how many log lines a status projection returns.
const MaxLogLines = 50

// JobView is the client-facing projection of a SyncJob: everything
// except the process handle, with the log truncated to the most
// recent MaxLogLines entries.
type JobView struct {
	ID          string     `json:"id"`
	PresetName  string     `json:"presetName"`
	DownloadURL string     `json:"downloadUrl"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	Log         []string   `json:"log"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ActiveJobSummary is the condensed form of a running job embedded in
// the aggregate system status.
type ActiveJobSummary struct {
	ID         string    `json:"id"`
	PresetName string    `json:"presetName"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
}
