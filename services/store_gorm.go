package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"osmsync/types"
)

// SyncJobRecord is the database row backing a SyncJob snapshot. The
// process handle and cancel func are runtime-only and never persisted.
type SyncJobRecord struct {
	ID          string `gorm:"primaryKey"`
	PresetName  string
	DownloadURL string
	Status      string `gorm:"index"`
	Progress    int
	Message     string
	Log         string `gorm:"type:text"`
	Error       string `gorm:"type:text"`
	StartedAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// TableName keeps the table name stable regardless of struct renames.
func (SyncJobRecord) TableName() string { return "sync_jobs" }

type gormStore struct {
	db *gorm.DB
}

// NewGormStore opens a Postgres-backed job store and migrates its schema.
func NewGormStore(dsn string) (JobStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect job store: %w", err)
	}
	if err := db.AutoMigrate(&SyncJobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate job store: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) Save(job *types.SyncJob) error {
	rec := SyncJobRecord{
		ID:          job.ID,
		PresetName:  job.PresetName,
		DownloadURL: job.DownloadURL,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Message:     job.Message,
		Log:         strings.Join(job.Log, "\n"),
		Error:       job.Error,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	return s.db.Save(&rec).Error
}

func (s *gormStore) LoadAll() ([]*types.SyncJob, error) {
	var recs []SyncJobRecord
	if err := s.db.Order("started_at asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	jobs := make([]*types.SyncJob, 0, len(recs))
	for _, rec := range recs {
		job := &types.SyncJob{
			ID:          rec.ID,
			PresetName:  rec.PresetName,
			DownloadURL: rec.DownloadURL,
			Status:      types.JobStatus(rec.Status),
			Progress:    rec.Progress,
			Message:     rec.Message,
			Error:       rec.Error,
			StartedAt:   rec.StartedAt,
			CompletedAt: rec.CompletedAt,
		}
		if rec.Log != "" {
			job.Log = strings.Split(rec.Log, "\n")
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
