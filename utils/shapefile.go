package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lukeroth/gdal"
)

// WriteROIShapefile persists a polygon ring (LV95 coordinates) as an ESRI
// shapefile with a single feature, the format the setup pipeline expects
// for ROI_SHAPEFILE.
func WriteROIShapefile(shpPath string, ring [][]float64) error {
	if len(ring) < 4 {
		return fmt.Errorf("ROI ring needs at least 4 vertices including closure, got %d", len(ring))
	}

	if err := os.MkdirAll(filepath.Dir(shpPath), 0755); err != nil {
		return fmt.Errorf("Error creating shapefile directory: %v", err)
	}

	driver := gdal.OGRDriverByName("ESRI Shapefile")
	ds, ok := driver.Create(shpPath, nil)
	if !ok {
		return fmt.Errorf("Error creating shapefile %s", shpPath)
	}
	defer ds.Destroy()

	srs := gdal.CreateSpatialReference("")
	if err := srs.FromEPSG(EPSGLV95); err != nil {
		return fmt.Errorf("unknown EPSG %d: %v", EPSGLV95, err)
	}

	layer := ds.CreateLayer("roi", srs, gdal.GT_Polygon, nil)

	idField := gdal.CreateFieldDefinition("id", gdal.FT_Integer)
	defer idField.Destroy()
	if err := layer.CreateField(idField, false); err != nil {
		return fmt.Errorf("Error creating shapefile field: %v", err)
	}

	linearRing := gdal.Create(gdal.GT_LinearRing)
	for _, coord := range ring {
		linearRing.AddPoint2D(coord[0], coord[1])
	}

	polygon := gdal.Create(gdal.GT_Polygon)
	if err := polygon.AddGeometryDirectly(linearRing); err != nil {
		return fmt.Errorf("Error building ROI polygon: %v", err)
	}

	feature := layer.Definition().Create()
	defer feature.Destroy()
	feature.SetFieldInteger(0, 1)
	if err := feature.SetGeometry(polygon); err != nil {
		return fmt.Errorf("Error setting ROI geometry: %v", err)
	}
	if err := layer.Create(feature); err != nil {
		return fmt.Errorf("Error writing ROI feature: %v", err)
	}

	return nil
}
