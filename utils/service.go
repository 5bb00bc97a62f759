package utils

import (
	"net/http"
	"strings"
)

// DataDir holds templates and the land-cover catalog. ConfigDir holds the
// saved simulation configs, drawn ROI shapefiles and user DEMs. Both are
// overridable from the command line.
var DataDir = "./data"
var ConfigDir = "./config"

const ISOFormat = "2006-01-02T15:04:05.000Z"

// ParseRemoteAddr prefers the forwarded client address when the server
// sits behind a proxy.
func ParseRemoteAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); len(fwd) > 0 {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}
