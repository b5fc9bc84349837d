package services

import (
	"net"
	"net/http"
	"os"
	"time"

	"osmsync/config"
	"osmsync/types"
)

// StatusService assembles the aggregate system status. Every probe is
// independent: a dead geocoder must not hide a healthy tile server, so
// probe failures degrade their own field and nothing else.
type StatusService struct {
	registry JobRegistry
	client   *http.Client

	datastoreAddr   string
	tileServerURL   string
	geocoderURL     string
	extractPath     string
	tilePackagePath string
}

// NewStatusService builds a status service from the environment.
func NewStatusService(registry JobRegistry) *StatusService {
	return &StatusService{
		registry:        registry,
		client:          &http.Client{Timeout: 3 * time.Second},
		datastoreAddr:   config.GetDatastoreAddr(),
		tileServerURL:   config.GetTileServerURL(),
		geocoderURL:     config.GetGeocoderURL(),
		extractPath:     config.GetCurrentExtractPath(),
		tilePackagePath: config.GetTilePackagePath(),
	}
}

// NewStatusServiceWith builds a status service with explicit endpoints.
func NewStatusServiceWith(registry JobRegistry, datastoreAddr, tileServerURL, geocoderURL, extractPath, tilePackagePath string) *StatusService {
	return &StatusService{
		registry:        registry,
		client:          &http.Client{Timeout: 3 * time.Second},
		datastoreAddr:   datastoreAddr,
		tileServerURL:   tileServerURL,
		geocoderURL:     geocoderURL,
		extractPath:     extractPath,
		tilePackagePath: tilePackagePath,
	}
}

// Snapshot runs all probes and returns the aggregate status.
func (s *StatusService) Snapshot() types.SystemStatus {
	return types.SystemStatus{
		Datastore:          s.probeTCP(s.datastoreAddr),
		TileServer:         s.probeHTTP(s.tileServerURL),
		Geocoder:           s.probeHTTP(s.geocoderURL),
		ExtractPresent:     fileExists(s.extractPath),
		TilePackagePresent: fileExists(s.tilePackagePath),
		ActiveJob:          s.registry.FindActive(),
	}
}

func (s *StatusService) probeTCP(addr string) types.ProbeResult {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return types.ProbeUnavailable
	}
	conn.Close()
	return types.ProbeOK
}

// probeHTTP considers any well-formed response short of a server error
// as reachable; auth challenges still prove the service is up.
func (s *StatusService) probeHTTP(url string) types.ProbeResult {
	resp, err := s.client.Get(url)
	if err != nil {
		return types.ProbeUnavailable
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return types.ProbeUnavailable
	}
	return types.ProbeOK
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
