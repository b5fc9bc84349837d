package types

// Preset describes a known geographic extract that can be synced.
// Presets are defined at process start and never change.
type Preset struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	SourceURL        string `json:"sourceUrl"`
	ApproxSize       string `json:"approxSize"`
	ApproxDiskSpace  string `json:"approxDiskSpace"`
	ApproxImportTime string `json:"approxImportTime"`
	Description      string `json:"description"`
}
