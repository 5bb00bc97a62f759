package utils

import (
	"fmt"

	"github.com/lukeroth/gdal"
)

// EPSG codes used throughout the service. Inputs drawn on web maps arrive
// in WGS84, everything downstream of the collector is Swiss LV95.
const (
	EPSGWGS84 = 4326
	EPSGLV95  = 2056
)

// TransformCoords reprojects the point arrays in place from srcEPSG to
// dstEPSG. xs holds eastings/longitudes, ys northings/latitudes.
func TransformCoords(srcEPSG, dstEPSG int, xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("coordinate arrays differ in length: %d vs %d", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil
	}

	src := gdal.CreateSpatialReference("")
	if err := src.FromEPSG(srcEPSG); err != nil {
		return fmt.Errorf("unknown source EPSG %d: %v", srcEPSG, err)
	}
	dst := gdal.CreateSpatialReference("")
	if err := dst.FromEPSG(dstEPSG); err != nil {
		return fmt.Errorf("unknown target EPSG %d: %v", dstEPSG, err)
	}

	transform := gdal.CreateCoordinateTransform(src, dst)
	defer transform.Destroy()

	zs := make([]float64, len(xs))
	transform.Transform(len(xs), xs, ys, zs)
	return nil
}

// RingToLV95 reprojects a GeoJSON polygon ring (lon/lat pairs) to LV95.
// The returned ring is closed.
func RingToLV95(ring [][]float64) ([][]float64, error) {
	if len(ring) < 3 {
		return nil, fmt.Errorf("polygon ring needs at least 3 vertices, got %d", len(ring))
	}

	xs := make([]float64, len(ring))
	ys := make([]float64, len(ring))
	for i, coord := range ring {
		if len(coord) < 2 {
			return nil, fmt.Errorf("malformed coordinate at vertex %d", i)
		}
		xs[i] = coord[0]
		ys[i] = coord[1]
	}

	if err := TransformCoords(EPSGWGS84, EPSGLV95, xs, ys); err != nil {
		return nil, err
	}

	out := make([][]float64, len(ring))
	for i := range ring {
		out[i] = []float64{xs[i], ys[i]}
	}
	if out[0][0] != out[len(out)-1][0] || out[0][1] != out[len(out)-1][1] {
		out = append(out, []float64{out[0][0], out[0][1]})
	}
	return out, nil
}
