package boundary

import (
	"encoding/json"
	"fmt"
	"strings"

	geos "github.com/twpayne/go-geos"
)

func boxRing(minX, minY, maxX, maxY float64) [][]float64 {
	return [][]float64{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}
}

// CheckPoint validates a center point (LV95) and, when roiSize > 0, the
// square ROI of that edge length around it.
func (v *Validator) CheckPoint(x, y, roiSize float64) Result {
	polygon, degraded := v.boundaryPolygon()

	if degraded {
		if !(SwissMinEast <= x && x <= SwissMaxEast && SwissMinNorth <= y && y <= SwissMaxNorth) {
			return Result{Valid: false, Degraded: true,
				Message: fmt.Sprintf("Point (%.0f, %.0f) appears outside Swiss boundaries", x, y)}
		}
		if roiSize > 0 {
			half := roiSize / 2
			if !(SwissMinEast <= x-half && x+half <= SwissMaxEast &&
				SwissMinNorth <= y-half && y+half <= SwissMaxNorth) {
				return Result{Valid: false, Degraded: true,
					Message: "ROI extends outside Swiss boundaries. Reduce ROI size or move center point."}
			}
		}
		return Result{Valid: true, Degraded: true, Message: "Within Swiss boundaries"}
	}

	point := geos.NewPoint([]float64{x, y})
	defer point.Destroy()
	if !polygon.Contains(point) {
		return Result{Valid: false,
			Message: fmt.Sprintf("Point (%.0f, %.0f) is outside Switzerland", x, y)}
	}

	if roiSize > 0 {
		half := roiSize / 2
		roiBox := geos.NewPolygon([][][]float64{boxRing(x-half, y-half, x+half, y+half)})
		defer roiBox.Destroy()
		if !polygon.Contains(roiBox) {
			return Result{Valid: false,
				Message: "ROI extends outside Switzerland. Reduce ROI size or move center point."}
		}
	}

	return Result{Valid: true, Message: "Within Switzerland"}
}

// CheckRing validates a drawn ROI ring already reprojected to LV95.
// Malformed rings are an error, not an invalid result: the caller must not
// treat them as a recoverable boundary failure.
func (v *Validator) CheckRing(ring [][]float64) (Result, error) {
	geom, err := polygonFromRing(ring)
	if err != nil {
		return Result{}, err
	}
	defer geom.Destroy()

	polygon, degraded := v.boundaryPolygon()

	if degraded {
		bounds := geom.Bounds()
		if bounds.MinX < SwissMinEast || bounds.MaxX > SwissMaxEast {
			return Result{Valid: false, Degraded: true,
				Message: "Drawn ROI extends outside Swiss boundaries (East-West). Please redraw within Switzerland."}, nil
		}
		if bounds.MinY < SwissMinNorth || bounds.MaxY > SwissMaxNorth {
			return Result{Valid: false, Degraded: true,
				Message: "Drawn ROI extends outside Swiss boundaries (North-South). Please redraw within Switzerland."}, nil
		}
		return Result{Valid: true, Degraded: true,
			Message: "ROI within Swiss boundaries (bounding box check)"}, nil
	}

	if !polygon.Contains(geom) {
		if polygon.Intersects(geom) {
			return Result{Valid: false,
				Message: "Drawn ROI crosses Swiss border. Part of the ROI is outside Switzerland. Please redraw within Swiss borders."}, nil
		}
		return Result{Valid: false,
			Message: "Drawn ROI is completely outside Switzerland. Please redraw within Swiss borders."}, nil
	}

	return Result{Valid: true, Message: "ROI within Switzerland (boundary polygon check)"}, nil
}

// PolygonRing extracts the outer ring of a GeoJSON Polygon geometry.
func PolygonRing(geomJSON []byte) ([][]float64, error) {
	var geom struct {
		Type        string          `json:"type"`
		Coordinates [][][]float64   `json:"coordinates"`
		Geometries  json.RawMessage `json:"geometries"`
	}
	if err := json.Unmarshal(geomJSON, &geom); err != nil {
		return nil, fmt.Errorf("unparsable GeoJSON geometry: %v", err)
	}
	if !strings.EqualFold(geom.Type, "Polygon") {
		return nil, fmt.Errorf("expected a Polygon geometry, got %q", geom.Type)
	}
	if len(geom.Coordinates) == 0 || len(geom.Coordinates[0]) < 3 {
		return nil, fmt.Errorf("polygon has no usable outer ring")
	}
	return geom.Coordinates[0], nil
}
