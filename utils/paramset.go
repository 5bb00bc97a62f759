package utils

import (
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SimTimeFormat is the timestamp layout used in config files and the
// ParameterSet date fields.
const SimTimeFormat = "2006-01-02T15:04:05"

// defaultROISize is the ROI edge length in metres used when no explicit
// size applies.
const defaultROISize = 1000

// Land-use source identifiers accepted by LUS_SOURCE.
const (
	LusSourceTLM      = "tlm"
	LusSourceBFS      = "bfs"
	LusSourceConstant = "constant"
)

// DEM acquisition modes.
const (
	DemModeSwisstopo    = "swisstopo"
	DemModeUserProvided = "user_provided"
)

// POI is a named point of interest in LV95 coordinates with altitude.
type POI struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// ParameterSet holds every user-settable parameter of a simulation setup.
// It is the single document exchanged with clients and rendered into the
// sectioned config file.
type ParameterSet struct {
	SimulationName string `json:"simulation_name"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`

	East     float64 `json:"east"`
	North    float64 `json:"north"`
	Altitude float64 `json:"altitude"`

	UseShapefileROI bool    `json:"use_shapefile_roi"`
	ROIShapefile    string  `json:"roi_shapefile"`
	ROISize         float64 `json:"roi_size"`
	BufferSize      float64 `json:"buffer_size"`

	DemMode     string `json:"dem_mode"`
	UserDemPath string `json:"user_dem_path"`
	TargetEPSG  int    `json:"target_epsg"`

	OutCoordSys   string  `json:"out_coord_sys"`
	GSD           float64 `json:"gsd"`
	GSDRef        float64 `json:"gsd_ref"`
	DemAddFmtList string  `json:"dem_add_fmt_list"`
	MeshFmt       string  `json:"mesh_fmt"`

	MaskDemToPolygon bool `json:"mask_dem_to_polygon"`
	MaskLusToPolygon bool `json:"mask_lus_to_polygon"`

	PlotHorizon bool `json:"plot_horizon"`

	UseGroundEye bool   `json:"use_groundeye"`
	LusSource    string `json:"lus_source"`
	LusConstant  int    `json:"lus_constant"`
	DoPVP3D      bool   `json:"do_pvp_3d"`
	PVP3DFmt     string `json:"pvp_3d_fmt"`
	SPBinPath    string `json:"sp_bin_path"`

	POIs []POI `json:"pois,omitempty"`

	// Binary overrides are never written to config files. Empty means
	// use the environment-supplied default.
	SnowpackBin string `json:"snowpack_bin,omitempty"`
	MeteoIOBin  string `json:"meteoio_bin,omitempty"`
	Alpine3DBin string `json:"alpine3d_bin,omitempty"`
}

// NewParameterSet returns a ParameterSet populated with the documented
// defaults. Unmarshalling a client payload over the result leaves any
// omitted field at its default.
func NewParameterSet() *ParameterSet {
	return &ParameterSet{
		StartDate:        "2023-10-01T00:00:00",
		EndDate:          "2023-10-31T23:59:59",
		ROISize:          defaultROISize,
		BufferSize:       50000,
		DemMode:          DemModeSwisstopo,
		TargetEPSG:       2056,
		OutCoordSys:      "CH1903+",
		GSD:              10.0,
		GSDRef:           2.0,
		MeshFmt:          "vtu",
		MaskDemToPolygon: true,
		MaskLusToPolygon: true,
		LusSource:        LusSourceTLM,
		LusConstant:      11500,
		PVP3DFmt:         "vtu",
		SPBinPath:        "snowpack",
	}
}

// Normalise trims free-text fields and applies the dependent rules:
// masking the DEM to the ROI polygon requires the land-use mask too, so the
// DEM mask is forced off whenever the land-use mask is off, and the ROI
// size reverts to its default when a shapefile ROI is selected (the size is
// not part of shapefile-mode configs).
func (p *ParameterSet) Normalise() {
	p.SimulationName = strings.TrimSpace(p.SimulationName)
	p.ROIShapefile = strings.TrimSpace(p.ROIShapefile)
	p.UserDemPath = strings.TrimSpace(p.UserDemPath)
	if !p.MaskLusToPolygon {
		p.MaskDemToPolygon = false
	}
	if p.UseShapefileROI {
		p.ROISize = defaultROISize
	}
}

// SpatialDigest fingerprints the spatial selection. A boundary validation
// result is only trusted while the digest it was computed for still matches.
func (p *ParameterSet) SpatialDigest() string {
	src := fmt.Sprintf("%s|%s|%s|%t|%s",
		FormatFloat(p.East), FormatFloat(p.North), FormatFloat(p.ROISize),
		p.UseShapefileROI, p.ROIShapefile)
	return fmt.Sprintf("%x", md5.Sum([]byte(src)))
}

// ParseSimTime parses a config timestamp.
func ParseSimTime(val string) (time.Time, error) {
	return time.Parse(SimTimeFormat, strings.TrimSpace(val))
}

// FormatFloat renders a float the way config files expect, with no
// exponent and no trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatBool renders a bool as the lowercase literal used in config files.
func FormatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
