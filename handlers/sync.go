package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"osmsync/services"
	"osmsync/types"
	"osmsync/websocket"
)

// SyncHandler handles the offline-map sync endpoints
type SyncHandler struct {
	registry     services.JobRegistry
	orchestrator *services.Orchestrator
	status       *services.StatusService
	hub          websocket.Hub
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(registry services.JobRegistry, orchestrator *services.Orchestrator, status *services.StatusService, hub websocket.Hub) *SyncHandler {
	return &SyncHandler{
		registry:     registry,
		orchestrator: orchestrator,
		status:       status,
		hub:          hub,
	}
}

// ListPresets returns the catalog of known extracts
func (h *SyncHandler) ListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, services.AllPresets())
}

// SystemStatus returns the aggregate system + active-job status
func (h *SyncHandler) SystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Snapshot())
}

// StartSync begins a sync for a preset id or a custom URL
func (h *SyncHandler) StartSync(c *gin.Context) {
	var req types.StartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
		})
		return
	}

	var preset types.Preset
	switch {
	case req.PresetID != "":
		p, ok := services.LookupPreset(req.PresetID)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unknown preset: " + req.PresetID,
			})
			return
		}
		preset = p
	case req.CustomURL != "":
		preset = services.CustomPreset(req.CustomURL)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "presetId or customUrl is required",
		})
		return
	}

	job, err := h.orchestrator.StartSync(preset)
	if err != nil {
		var conflict *services.ConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error":       "a sync job is already running",
				"activeJobId": conflict.ActiveJobID,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "could not start sync",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":   job.ID,
		"status":  job.Status,
		"message": "Sync started for " + preset.Name,
	})
}

// GetJob returns the status projection of one job
func (h *SyncHandler) GetJob(c *gin.Context) {
	jobID := c.Param("jobId")
	view, ok := h.registry.Get(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}
	c.JSON(http.StatusOK, view)
}

// CancelJob cancels a job. Cancelling an already-terminal job reports
// its existing state rather than erroring.
func (h *SyncHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("jobId")
	view, ok := h.registry.Cancel(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "job " + string(view.Status),
		"jobId":   view.ID,
	})
}

// WatchJob upgrades to a WebSocket streaming progress for one job
func (h *SyncHandler) WatchJob(c *gin.Context) {
	jobID := c.Param("jobId")
	if _, ok := h.registry.Get(jobID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	h.upgrade(c, jobID)
}

// WatchAll upgrades to a WebSocket streaming progress for all jobs
func (h *SyncHandler) WatchAll(c *gin.Context) {
	h.upgrade(c, "all")
}

func (h *SyncHandler) upgrade(c *gin.Context, jobID string) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, jobID)
	h.hub.RegisterClient(client)
	client.StartPumps()
}
