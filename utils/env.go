package utils

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

func init() {
	// Optional: deployment images ship binary paths and feature flags in
	// a .env file next to the server binary.
	_ = godotenv.Load(".env")
}

func envOr(key, def string) string {
	if val := os.Getenv(key); len(strings.TrimSpace(val)) > 0 {
		return strings.TrimSpace(val)
	}
	return def
}

func envFlag(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// SnowpackBin returns the Snowpack binary path configured for this server.
func SnowpackBin() string {
	return envOr("SNOWPACK_BIN", "snowpack")
}

// MeteoIOBin returns the MeteoIO timeseries binary path.
func MeteoIOBin() string {
	return envOr("METEOIO_BIN", "meteoio_timeseries")
}

// Alpine3DBin returns the Alpine3D binary path.
func Alpine3DBin() string {
	return envOr("ALPINE3D_BIN", "alpine3d")
}

// SetupBin returns the setup pipeline binary invoked by Run.
func SetupBin() string {
	return envOr("A3D_SETUP_BIN", "a3dshell-setup")
}

// ImisAvailable reports whether the IMIS station database is reachable.
// Without it Snowpack preprocessing cannot run and is skipped.
func ImisAvailable() bool {
	return envFlag("A3D_IMIS_AVAILABLE")
}

// RunA3DEnabled reports whether direct Alpine3D launches are enabled.
// Off by default; only local deployments turn it on.
func RunA3DEnabled() bool {
	return envFlag("A3D_ENABLE_RUN_TAB")
}

// MemcacheAddr returns the optional memcached address used to cache
// boundary polygon fetches, or empty when no cache is configured.
func MemcacheAddr() string {
	return envOr("A3D_MEMCACHE_ADDR", "")
}
