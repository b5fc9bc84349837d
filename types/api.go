package types

// StartSyncRequest is the body of POST /api/osm/sync/start. Exactly one
// of PresetID or CustomURL must be supplied.
type StartSyncRequest struct {
	PresetID  string `json:"presetId"`
	CustomURL string `json:"customUrl"`
}

// ProbeResult is the outcome of one independent system probe.
type ProbeResult string

const (
	ProbeOK          ProbeResult = "ok"
	ProbeUnavailable ProbeResult = "unavailable"
)

// SystemStatus is the aggregate status returned by GET /api/osm/status.
// Every probe is independent; one failing never hides the others.
type SystemStatus struct {
	Datastore          ProbeResult       `json:"datastore"`
	TileServer         ProbeResult       `json:"tileServer"`
	Geocoder           ProbeResult       `json:"geocoder"`
	ExtractPresent     bool              `json:"extractPresent"`
	TilePackagePresent bool              `json:"tilePackagePresent"`
	ActiveJob          *ActiveJobSummary `json:"activeJob,omitempty"`
}
