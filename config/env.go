package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Load reads a .env file from the working directory if one exists.
// Missing files are fine; real deployments set the environment directly.
func Load() {
	_ = godotenv.Load()
}

// getEnv retrieves an environment variable with a fallback value if not set
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// GetDataDir returns the root directory for map data artifacts.
func GetDataDir() string {
	if dir := os.Getenv("OSM_DATA_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(".", "osm-data")
}

// GetDownloadsDir returns the directory downloaded extracts are written to.
func GetDownloadsDir() string {
	return getEnv("OSM_DOWNLOADS_DIR", filepath.Join(GetDataDir(), "downloads"))
}

// GetCurrentExtractPath returns the canonical alias for the most recently
// synced extract. The import and tile-generation tools read this path.
func GetCurrentExtractPath() string {
	return getEnv("OSM_CURRENT_EXTRACT", filepath.Join(GetDataDir(), "current.osm.pbf"))
}

// GetTilePackagePath returns the canonical path of the generated tile package.
func GetTilePackagePath() string {
	return getEnv("OSM_TILE_PACKAGE", filepath.Join(GetDataDir(), "world.mbtiles"))
}

// GetImportCommand returns the external command that loads an extract into
// the spatial database.
func GetImportCommand() string {
	return getEnv("OSM_IMPORT_CMD", "osm2pgsql")
}

// GetTileGenCommand returns the external command that builds the tile
// package from an extract.
func GetTileGenCommand() string {
	return getEnv("OSM_TILEGEN_CMD", "tilemaker")
}

// GetDatastoreAddr returns the host:port of the spatial database, used by
// the aggregate status probe.
func GetDatastoreAddr() string {
	return getEnv("OSM_DB_ADDR", "localhost:5432")
}

// GetDatabaseURL returns the Postgres DSN for the durable job store.
// Empty means jobs are tracked in memory only.
func GetDatabaseURL() string {
	return os.Getenv("OSM_DATABASE_URL")
}

// GetTileServerURL returns the base URL of the tile server.
func GetTileServerURL() string {
	return getEnv("OSM_TILESERVER_URL", "http://localhost:8081")
}

// GetGeocoderURL returns the base URL of the geocoder.
func GetGeocoderURL() string {
	return getEnv("OSM_GEOCODER_URL", "http://localhost:8088")
}

// GetTileServerRestartCommand returns the shell command used to restart the
// tile server after a successful sync. Empty disables the restart.
func GetTileServerRestartCommand() string {
	return os.Getenv("OSM_TILESERVER_RESTART_CMD")
}

// GetAPIKey returns the shared key clients must present on /api routes.
// Empty disables authentication (local development).
func GetAPIKey() string {
	return os.Getenv("OSM_API_KEY")
}
