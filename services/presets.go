package services

import "osmsync/types"

// presetCatalog is the static table of known extracts. Sizes and import
// times are rough figures for a mid-range homelab box; they exist so the
// frontend can warn the user before a 20 GB download starts.
var presetCatalog = []types.Preset{
	{
		ID:               "texas",
		Name:             "Texas",
		SourceURL:        "https://download.geofabrik.de/north-america/us/texas-latest.osm.pbf",
		ApproxSize:       "1.2 GB",
		ApproxDiskSpace:  "8 GB",
		ApproxImportTime: "30-60 min",
		Description:      "Texas state extract",
	},
	{
		ID:               "california",
		Name:             "California",
		SourceURL:        "https://download.geofabrik.de/north-america/us/california-latest.osm.pbf",
		ApproxSize:       "1.1 GB",
		ApproxDiskSpace:  "8 GB",
		ApproxImportTime: "30-60 min",
		Description:      "California state extract",
	},
	{
		ID:               "us-south",
		Name:             "US South",
		SourceURL:        "https://download.geofabrik.de/north-america/us-south-latest.osm.pbf",
		ApproxSize:       "4.5 GB",
		ApproxDiskSpace:  "30 GB",
		ApproxImportTime: "2-4 hours",
		Description:      "Southern United States region",
	},
	{
		ID:               "us-west",
		Name:             "US West",
		SourceURL:        "https://download.geofabrik.de/north-america/us-west-latest.osm.pbf",
		ApproxSize:       "2.9 GB",
		ApproxDiskSpace:  "20 GB",
		ApproxImportTime: "1-3 hours",
		Description:      "Western United States region",
	},
	{
		ID:               "north-america",
		Name:             "North America",
		SourceURL:        "https://download.geofabrik.de/north-america-latest.osm.pbf",
		ApproxSize:       "15 GB",
		ApproxDiskSpace:  "100 GB",
		ApproxImportTime: "8-24 hours",
		Description:      "Full North America continent extract",
	},
	{
		ID:               "germany",
		Name:             "Germany",
		SourceURL:        "https://download.geofabrik.de/europe/germany-latest.osm.pbf",
		ApproxSize:       "4.0 GB",
		ApproxDiskSpace:  "28 GB",
		ApproxImportTime: "2-4 hours",
		Description:      "Germany country extract",
	},
	{
		ID:               "great-britain",
		Name:             "Great Britain",
		SourceURL:        "https://download.geofabrik.de/europe/great-britain-latest.osm.pbf",
		ApproxSize:       "1.8 GB",
		ApproxDiskSpace:  "12 GB",
		ApproxImportTime: "1-2 hours",
		Description:      "Great Britain extract",
	},
}

// AllPresets returns the preset catalog.
func AllPresets() []types.Preset {
	out := make([]types.Preset, len(presetCatalog))
	copy(out, presetCatalog)
	return out
}

// LookupPreset finds a preset by id.
func LookupPreset(id string) (types.Preset, bool) {
	for _, p := range presetCatalog {
		if p.ID == id {
			return p, true
		}
	}
	return types.Preset{}, false
}

// CustomPreset wraps a free-form download URL into a synthetic preset so
// the rest of the pipeline does not care where the URL came from.
func CustomPreset(url string) types.Preset {
	return types.Preset{
		ID:          "custom",
		Name:        "Custom extract",
		SourceURL:   url,
		Description: "User-supplied extract URL",
	}
}
