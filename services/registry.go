package services

import (
	"errors"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"osmsync/types"
	"osmsync/websocket"
)

// ErrJobNotFound is returned when a job id is unknown to the registry.
var ErrJobNotFound = errors.New("job not found")

// ConflictError means a sync was requested while another job was still
// running. It carries the blocking job's id so the caller can poll it
// instead of retrying blindly.
type ConflictError struct {
	ActiveJobID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a sync job is already running: %s", e.ActiveJobID)
}

// JobRegistry is the single source of truth for sync jobs. It enforces
// that at most one non-terminal job exists at a time and funnels every
// job mutation through one lock so terminal states are sticky: once a
// job is completed, failed or cancelled, nothing changes it again.
type JobRegistry interface {
	Create(presetName, downloadURL string) (*types.SyncJob, error)
	Get(id string) (types.JobView, bool)
	FindActive() *types.ActiveJobSummary
	List() []types.JobView

	SetStatus(id string, status types.JobStatus, message string)
	SetProgress(id string, progress int)
	AppendLog(id, line string)
	SetProcess(id string, cmd *exec.Cmd)
	SetCancelFunc(id string, cancel func())
	Fail(id, errMsg string)
	Complete(id, message string)
	Cancel(id string) (types.JobView, bool)
}

// jobRegistry implements JobRegistry with a plain map and RWMutex.
type jobRegistry struct {
	jobs  map[string]*types.SyncJob
	order []string
	mu    sync.RWMutex
	store JobStore
	hub   websocket.Hub
}

// NewJobRegistry creates a registry backed by the given store. Jobs found
// in the store at startup are loaded as history; any of them still marked
// non-terminal lost their driving goroutine in the restart and are moved
// to failed.
func NewJobRegistry(store JobStore, hub websocket.Hub) JobRegistry {
	if store == nil {
		store = NewMemoryStore()
	}
	r := &jobRegistry{
		jobs:  make(map[string]*types.SyncJob),
		store: store,
		hub:   hub,
	}

	loaded, err := store.LoadAll()
	if err != nil {
		log.Printf("Warning: could not load job history: %v", err)
		return r
	}
	for _, job := range loaded {
		if !job.Status.IsTerminal() {
			now := time.Now()
			job.Status = types.JobStatusFailed
			job.Error = "interrupted by server restart"
			job.Message = "Job interrupted by server restart"
			job.CompletedAt = &now
			if err := store.Save(job); err != nil {
				log.Printf("Warning: could not persist job %s: %v", job.ID, err)
			}
		}
		r.jobs[job.ID] = job
		r.order = append(r.order, job.ID)
	}
	return r
}

// Create allocates a new job, enforcing the single-flight invariant. The
// scan and insert happen under one lock acquisition so two concurrent
// requests cannot both pass the check.
func (r *jobRegistry) Create(presetName, downloadURL string) (*types.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		if job := r.jobs[id]; job != nil && !job.Status.IsTerminal() {
			return nil, &ConflictError{ActiveJobID: job.ID}
		}
	}

	job := &types.SyncJob{
		ID:          uuid.New().String(),
		PresetName:  presetName,
		DownloadURL: downloadURL,
		Status:      types.JobStatusInitializing,
		Progress:    0,
		Message:     "Initializing sync job",
		StartedAt:   time.Now(),
	}
	job.Log = append(job.Log, logLine("Sync job created for "+presetName))

	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.persist(job)
	return job, nil
}

// Get returns the client-facing projection of a job.
func (r *jobRegistry) Get(id string) (types.JobView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return types.JobView{}, false
	}
	return viewOf(job), true
}

// FindActive returns a condensed summary of the running job, if any.
func (r *jobRegistry) FindActive() *types.ActiveJobSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if job := r.jobs[id]; job != nil && !job.Status.IsTerminal() {
			return &types.ActiveJobSummary{
				ID:         job.ID,
				PresetName: job.PresetName,
				Status:     job.Status,
				Progress:   job.Progress,
				Message:    job.Message,
			}
		}
	}
	return nil
}

// List returns projections of all jobs in creation order.
func (r *jobRegistry) List() []types.JobView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]types.JobView, 0, len(r.order))
	for _, id := range r.order {
		if job := r.jobs[id]; job != nil {
			views = append(views, viewOf(job))
		}
	}
	return views
}

// SetStatus advances a job to a new non-terminal stage.
func (r *jobRegistry) SetStatus(id string, status types.JobStatus, message string) {
	r.update(id, func(job *types.SyncJob) {
		job.Status = status
		job.Message = message
		job.Log = append(job.Log, logLine(message))
	})
	r.broadcast(id, "status")
}

// SetProgress moves a job's progress forward. Values below the current
// progress or outside 0-100 are ignored, which keeps the observable
// progress sequence monotonic.
func (r *jobRegistry) SetProgress(id string, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	r.update(id, func(job *types.SyncJob) {
		if progress > job.Progress {
			job.Progress = progress
		}
	})
	r.broadcast(id, "progress")
}

// AppendLog adds a timestamped line to the job log and makes it the
// current message.
func (r *jobRegistry) AppendLog(id, line string) {
	r.update(id, func(job *types.SyncJob) {
		job.Log = append(job.Log, logLine(line))
		job.Message = line
	})
	r.broadcast(id, "progress")
}

// SetProcess records (or clears) the subprocess handle used for
// cancellation signaling.
func (r *jobRegistry) SetProcess(id string, cmd *exec.Cmd) {
	r.update(id, func(job *types.SyncJob) {
		job.Process = cmd
	})
}

// SetCancelFunc records the context cancel covering the whole job.
func (r *jobRegistry) SetCancelFunc(id string, cancel func()) {
	r.update(id, func(job *types.SyncJob) {
		job.Cancel = cancel
	})
}

// Fail moves a job to the failed terminal state. A no-op if the job is
// already terminal, so a cancellation is never overwritten.
func (r *jobRegistry) Fail(id, errMsg string) {
	r.update(id, func(job *types.SyncJob) {
		now := time.Now()
		job.Status = types.JobStatusFailed
		job.Error = errMsg
		job.Message = "Sync failed: " + errMsg
		job.CompletedAt = &now
		job.Process = nil
		job.Log = append(job.Log, logLine("Sync failed: "+errMsg))
	})
	r.broadcast(id, "error")
}

// Complete moves a job to the completed terminal state at 100%.
func (r *jobRegistry) Complete(id, message string) {
	r.update(id, func(job *types.SyncJob) {
		now := time.Now()
		job.Status = types.JobStatusCompleted
		job.Progress = 100
		job.Message = message
		job.CompletedAt = &now
		job.Process = nil
		job.Log = append(job.Log, logLine(message))
	})
	r.broadcast(id, "complete")
}

// Cancel aborts a job. The tracked subprocess receives SIGTERM and the
// job context is cancelled, which also stops an in-flight download.
// Cancelling a terminal job is a no-op that reports the existing state.
func (r *jobRegistry) Cancel(id string) (types.JobView, bool) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return types.JobView{}, false
	}
	if job.Status.IsTerminal() {
		view := viewOf(job)
		r.mu.Unlock()
		return view, true
	}

	if job.Process != nil && job.Process.Process != nil {
		if err := job.Process.Process.Signal(syscall.SIGTERM); err != nil {
			log.Printf("Warning: could not signal process for job %s: %v", id, err)
		}
	}
	cancel := job.Cancel

	now := time.Now()
	job.Status = types.JobStatusCancelled
	job.Message = "Job cancelled by user"
	job.CompletedAt = &now
	job.Process = nil
	job.Log = append(job.Log, logLine("Job cancelled by user"))
	view := viewOf(job)
	r.persist(job)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.broadcast(id, "status")
	return view, true
}

// update applies fn to a live job under the write lock. Unknown ids and
// terminal jobs are ignored.
func (r *jobRegistry) update(id string, fn func(*types.SyncJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return
	}
	fn(job)
	r.persist(job)
}

// persist mirrors the job into the store. Must be called with the write
// lock held. Store failures are logged, never fatal: the in-memory map
// stays authoritative.
func (r *jobRegistry) persist(job *types.SyncJob) {
	if err := r.store.Save(job); err != nil {
		log.Printf("Warning: could not persist job %s: %v", job.ID, err)
	}
}

func (r *jobRegistry) broadcast(id, msgType string) {
	if r.hub == nil {
		return
	}
	r.mu.RLock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.RUnlock()
		return
	}
	status, progress, message := string(job.Status), job.Progress, job.Message
	r.mu.RUnlock()

	r.hub.BroadcastProgress(id, msgType, status, message, progress)
}

// viewOf builds the client projection: no process handle, log truncated
// to the most recent MaxLogLines entries without reordering.
func viewOf(job *types.SyncJob) types.JobView {
	logs := job.Log
	if len(logs) > types.MaxLogLines {
		logs = logs[len(logs)-types.MaxLogLines:]
	}
	logCopy := make([]string, len(logs))
	copy(logCopy, logs)

	return types.JobView{
		ID:          job.ID,
		PresetName:  job.PresetName,
		DownloadURL: job.DownloadURL,
		Status:      job.Status,
		Progress:    job.Progress,
		Message:     job.Message,
		Log:         logCopy,
		Error:       job.Error,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

func logLine(msg string) string {
	return time.Now().Format(time.RFC3339) + ": " + msg
}
