package services

import "osmsync/types"

// JobStore persists job snapshots so history can survive a process
// restart. The registry's in-memory map stays authoritative while the
// process runs; the store only mirrors it.
type JobStore interface {
	// Save writes the current snapshot of a job. Called on every state
	// transition; implementations must upsert by job id.
	Save(job *types.SyncJob) error
	// LoadAll returns every previously saved job.
	LoadAll() ([]*types.SyncJob, error)
}

// memoryStore is the default store: no durability, matching the original
// in-memory-only registry behavior.
type memoryStore struct{}

// NewMemoryStore returns a store that keeps nothing beyond the registry's
// own map.
func NewMemoryStore() JobStore {
	return memoryStore{}
}

func (memoryStore) Save(*types.SyncJob) error { return nil }

func (memoryStore) LoadAll() ([]*types.SyncJob, error) { return nil, nil }
