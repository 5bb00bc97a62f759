// Package boundary validates simulation locations against the Swiss
// national boundary. The reference polygon comes from the swisstopo
// identify service, with a simplified builtin polygon and finally plain
// bounding-box extents as fallbacks when the service is unreachable.
package boundary

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	geos "github.com/twpayne/go-geos"

	"github.com/nci/gomemcache/memcache"
)

const identifyURL = "https://api3.geo.admin.ch/rest/services/api/MapServer/identify?geometry=2660000,1185000&geometryType=esriGeometryPoint&layers=all:ch.swisstopo.swissboundaries3d-land-flaeche.fill&returnGeometry=true&sr=2056"

const boundaryTTL = time.Hour

const requestTimeout = 5 * time.Second

// Hard-coded LV95 extents of Switzerland, the last-resort check when no
// boundary polygon can be constructed.
const (
	SwissMinEast  = 2485000.0
	SwissMaxEast  = 2834000.0
	SwissMinNorth = 1075000.0
	SwissMaxNorth = 1296000.0
)

// fallbackRing is a generalised Swiss boundary in LV95, used when the
// swisstopo fetch fails. Good enough for validation, not for cartography.
var fallbackRing = [][]float64{
	{2485000, 1075000}, // SW corner
	{2485000, 1110000},
	{2490000, 1145000}, // West (Geneva area)
	{2495000, 1185000},
	{2510000, 1230000},
	{2525000, 1265000}, // NW
	{2570000, 1295000}, // North
	{2630000, 1296000},
	{2720000, 1295000}, // NE (Rhine valley)
	{2795000, 1280000},
	{2834000, 1255000}, // East (Grisons)
	{2830000, 1220000},
	{2815000, 1185000},
	{2785000, 1150000}, // SE
	{2750000, 1110000},
	{2715000, 1085000}, // Ticino
	{2680000, 1080000},
	{2630000, 1085000},
	{2580000, 1095000},
	{2530000, 1085000},
	{2490000, 1078000}, // South
	{2485000, 1075000}, // Close polygon
}

type identifyResponse struct {
	Results []struct {
		Geometry struct {
			Rings [][][]float64 `json:"rings"`
		} `json:"geometry"`
	} `json:"results"`
}

// Result is the outcome of a boundary check.
type Result struct {
	Valid    bool   `json:"valid"`
	Message  string `json:"message"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Validator caches the Swiss boundary polygon and answers containment
// queries against it.
type Validator struct {
	client *http.Client
	mc     *memcache.Client

	mu        sync.Mutex
	polygon   *geos.Geom
	degraded  bool
	fetchedAt time.Time
}

// NewValidator builds a Validator. When memcacheAddr is non-empty the raw
// swisstopo responses are additionally cached in memcached so restarting
// servers do not hammer the upstream service.
func NewValidator(memcacheAddr string) *Validator {
	v := &Validator{
		client: &http.Client{Timeout: requestTimeout},
	}
	if len(memcacheAddr) > 0 {
		v.mc = memcache.New(memcacheAddr)
	}
	return v
}

func (v *Validator) fetchBoundaryBody() ([]byte, error) {
	var hash string
	if v.mc != nil {
		buff := md5.Sum([]byte(identifyURL))
		hash = hex.EncodeToString(buff[:])
		if cached, err := v.mc.Get(hash); err == nil {
			return cached.Value, nil
		}
	}

	resp, err := v.client.Get(identifyURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("swisstopo identify returned status %d", resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if v.mc != nil {
		// don't care about errors; memcache may not necessarily retain this anyway
		v.mc.Set(&memcache.Item{Key: hash, Value: body})
	}
	return body, nil
}

func (v *Validator) fetchBoundaryRing() ([][]float64, error) {
	body, err := v.fetchBoundaryBody()
	if err != nil {
		return nil, err
	}

	var parsed identifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("swisstopo identify response unparsable: %v", err)
	}
	for _, result := range parsed.Results {
		if len(result.Geometry.Rings) > 0 && len(result.Geometry.Rings[0]) >= 4 {
			return result.Geometry.Rings[0], nil
		}
	}
	return nil, fmt.Errorf("swisstopo identify response carries no rings")
}

func polygonFromRing(ring [][]float64) (*geos.Geom, error) {
	if len(ring) < 3 {
		return nil, fmt.Errorf("boundary ring needs at least 3 vertices, got %d", len(ring))
	}
	coords := make([][][]float64, 1)
	coords[0] = make([][]float64, 0, len(ring)+1)
	for _, c := range ring {
		if len(c) < 2 {
			return nil, fmt.Errorf("malformed boundary vertex %v", c)
		}
		coords[0] = append(coords[0], []float64{c[0], c[1]})
	}
	first, last := coords[0][0], coords[0][len(coords[0])-1]
	if first[0] != last[0] || first[1] != last[1] {
		coords[0] = append(coords[0], []float64{first[0], first[1]})
	}
	return geos.NewPolygon(coords), nil
}

// boundaryPolygon returns the cached boundary polygon, refreshing it when
// the TTL has lapsed. The second return is true when even the fallback
// polygon could not be built and callers must use bounding-box extents.
func (v *Validator) boundaryPolygon() (*geos.Geom, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.polygon != nil && time.Since(v.fetchedAt) < boundaryTTL {
		return v.polygon, v.degraded
	}
	if v.degraded && time.Since(v.fetchedAt) < boundaryTTL {
		return nil, true
	}

	ring, err := v.fetchBoundaryRing()
	if err != nil {
		ring = fallbackRing
	}

	polygon, perr := polygonFromRing(ring)
	if perr != nil {
		polygon, perr = polygonFromRing(fallbackRing)
	}

	v.fetchedAt = time.Now()
	if perr != nil || polygon == nil {
		v.polygon = nil
		v.degraded = true
		return nil, true
	}
	// The retired polygon is not destroyed here: in-flight checks may
	// still be using it outside the lock. The finalizer reclaims it.
	v.polygon = polygon
	v.degraded = false
	return v.polygon, false
}
