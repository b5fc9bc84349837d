package types

import "time"

// ProgressMessage represents a WebSocket progress update message
type ProgressMessage struct {
	JobID     string    `json:"jobId"`
	Type      string    `json:"type"` // "progress", "status", "complete", "error"
	Status    string    `json:"status"`
	Progress  int       `json:"progress"` // 0-100
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
