package cmd

import (
	"log"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"osmsync/config"
	"osmsync/handlers"
	"osmsync/middleware"
	"osmsync/services"
	"osmsync/websocket"
)

// StartWebServer starts the web server
func StartWebServer(port int) {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize services
	hub := websocket.NewHub()
	go hub.Run()

	var store services.JobStore = services.NewMemoryStore()
	if dsn := config.GetDatabaseURL(); dsn != "" {
		gormStore, err := services.NewGormStore(dsn)
		if err != nil {
			log.Printf("Warning: durable job store unavailable, falling back to memory: %v", err)
		} else {
			store = gormStore
		}
	}

	registry := services.NewJobRegistry(store, hub)
	orchestrator := services.NewOrchestrator(registry, services.NewDownloader(), services.DefaultOrchestratorConfig())
	statusService := services.NewStatusService(registry)

	// Initialize handlers
	syncHandler := handlers.NewSyncHandler(registry, orchestrator, statusService, hub)
	healthHandler := handlers.NewHealthHandler()

	r := NewRouter(syncHandler, healthHandler)

	// Start server
	portStr := strconv.Itoa(port)
	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		portStr = serverPort
	}

	log.Printf("osmsync server starting on port %s", portStr)
	if err := r.Run(":" + portStr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// NewRouter builds the gin engine with middleware and all routes. Split
// out of StartWebServer so tests can drive the full route table with
// httptest.
func NewRouter(syncHandler *handlers.SyncHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Apply middleware
	r.Use(middleware.CORS())
	r.Use(middleware.Logging())
	r.Use(middleware.Security())

	// Health check endpoint
	r.GET("/health", healthHandler.HealthCheck)

	// API routes group
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Auth(config.GetAPIKey()))
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		// Offline-map sync endpoints
		osmGroup := apiGroup.Group("/osm")
		{
			osmGroup.GET("/presets", syncHandler.ListPresets)
			osmGroup.GET("/status", syncHandler.SystemStatus)

			osmGroup.POST("/sync/start", syncHandler.StartSync)
			osmGroup.GET("/sync/:jobId", syncHandler.GetJob)
			osmGroup.DELETE("/sync/:jobId", syncHandler.CancelJob)
		}

		// WebSocket endpoints for real-time progress
		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/sync/:jobId", syncHandler.WatchJob)
			wsGroup.GET("/sync", syncHandler.WatchAll)
		}
	}

	return r
}
