package utils

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// builtinConfigTemplate is the compiled-in copy of data/templates/A3D_Config.tpl.
// Keep the two in sync byte for byte: serialised configs must not depend on
// whether the template directory is deployed.
const builtinConfigTemplate = `# A3Dshell Configuration

[GENERAL]
SIMULATION_NAME = {{.SimulationName}}
START_DATE = {{.StartDate}}
END_DATE = {{.EndDate}}

[INPUT]
EAST_epsg2056 = {{.East}}
NORTH_epsg2056 = {{.North}}
altLV95 = {{.Altitude}}
USE_SHP_ROI = {{.UseShpROI}}
{{if .UseShapefile}}ROI_SHAPEFILE = {{.ROIShapefile}}{{else}}ROI = {{.ROISize}}{{end}}
BUFFERSIZE = {{.BufferSize}}
{{if .UserDem}}DEM_MODE = user_provided
USER_DEM_PATH = {{.UserDemPath}}
TARGET_EPSG = {{.TargetEPSG}}
{{end}}
[OUTPUT]
OUT_COORDSYS = {{.OutCoordSys}}
GSD = {{.GSD}}
GSD_ref = {{.GSDRef}}
DEM_ADDFMTLIST ={{.DemAddFmtList}}
MESH_FMT = {{.MeshFmt}}
MASK_DEM_TO_POLYGON = {{.MaskDem}}
MASK_LUS_TO_POLYGON = {{.MaskLus}}

[MAPS]
PLOT_HORIZON = {{.PlotHorizon}}

[A3D]
USE_GROUNDEYE = {{.UseGroundEye}}
LUS_SOURCE = {{.LusSource}}
{{if .HasLusConstant}}LUS_PREVAH_CST = {{.LusConstant}}
{{end}}DO_PVP_3D = {{.DoPVP3D}}
PVP_3D_FMT = {{.PVP3DFmt}}
SP_BIN_PATH = {{.SPBinPath}}
{{if .HasPOIs}}
[POIS]
{{range poi := .POIs}}{{poi.Name}} = {{poi.Coords}}
{{end}}{{end}}`

type configPOIEntry struct {
	Name   string
	Coords string
}

// configDoc is the fully formatted view of a ParameterSet handed to the
// config template. Numbers are pre-formatted so template rendering stays
// deterministic.
type configDoc struct {
	SimulationName string
	StartDate      string
	EndDate        string

	East      string
	North     string
	Altitude  string
	UseShpROI string

	UseShapefile bool
	ROIShapefile string
	ROISize      string
	BufferSize   string

	UserDem     bool
	UserDemPath string
	TargetEPSG  string

	OutCoordSys   string
	GSD           string
	GSDRef        string
	DemAddFmtList string
	MeshFmt       string
	MaskDem       string
	MaskLus       string

	PlotHorizon string

	UseGroundEye   string
	LusSource      string
	HasLusConstant bool
	LusConstant    string
	DoPVP3D        string
	PVP3DFmt       string
	SPBinPath      string

	HasPOIs bool
	POIs    []configPOIEntry
}

// SerialiseConfig renders a ParameterSet into the sectioned config format.
// Equal parameter sets always yield byte-identical output.
func SerialiseConfig(p *ParameterSet, templateRoot string) ([]byte, error) {
	tpl, err := lookupTemplate(templateRoot, ConfigTemplateName, builtinConfigTemplate)
	if err != nil {
		return nil, err
	}

	// The DEM mask is only effective when the land-use mask is on.
	maskDem := p.MaskDemToPolygon && p.MaskLusToPolygon

	addFmt := strings.TrimSpace(p.DemAddFmtList)
	if len(addFmt) > 0 {
		addFmt = " " + addFmt
	}

	doc := &configDoc{
		SimulationName: p.SimulationName,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,

		East:      FormatFloat(p.East),
		North:     FormatFloat(p.North),
		Altitude:  FormatFloat(p.Altitude),
		UseShpROI: FormatBool(p.UseShapefileROI),

		UseShapefile: p.UseShapefileROI,
		ROIShapefile: p.ROIShapefile,
		ROISize:      FormatFloat(p.ROISize),
		BufferSize:   FormatFloat(p.BufferSize),

		UserDem:     p.DemMode == DemModeUserProvided,
		UserDemPath: p.UserDemPath,
		TargetEPSG:  strconv.Itoa(p.TargetEPSG),

		OutCoordSys:   p.OutCoordSys,
		GSD:           FormatFloat(p.GSD),
		GSDRef:        FormatFloat(p.GSDRef),
		DemAddFmtList: addFmt,
		MeshFmt:       p.MeshFmt,
		MaskDem:       FormatBool(maskDem),
		MaskLus:       FormatBool(p.MaskLusToPolygon),

		PlotHorizon: FormatBool(p.PlotHorizon),

		UseGroundEye:   FormatBool(p.UseGroundEye),
		LusSource:      p.LusSource,
		HasLusConstant: p.LusSource == LusSourceConstant,
		LusConstant:    strconv.Itoa(p.LusConstant),
		DoPVP3D:        FormatBool(p.DoPVP3D),
		PVP3DFmt:       p.PVP3DFmt,
		SPBinPath:      p.SPBinPath,

		HasPOIs: len(p.POIs) > 0,
	}

	for _, poi := range p.POIs {
		doc.POIs = append(doc.POIs, configPOIEntry{
			Name: poi.Name,
			Coords: fmt.Sprintf("%s,%s,%s",
				FormatFloat(poi.X), FormatFloat(poi.Y), FormatFloat(poi.Z)),
		})
	}

	var buf bytes.Buffer
	if err := ExecuteWriteTemplate(&buf, tpl, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserialiseConfig parses a sectioned config file into a ParameterSet.
// Missing keys fall back to the documented defaults and individually
// malformed values are replaced by their field default; only structurally
// unparsable input is an error.
func DeserialiseConfig(src []byte) (*ParameterSet, error) {
	cfg, err := ini.Load(src)
	if err != nil {
		return nil, fmt.Errorf("unparsable config: %v", err)
	}

	p := NewParameterSet()

	gen := cfg.Section("GENERAL")
	p.SimulationName = gen.Key("SIMULATION_NAME").MustString("")
	if raw := gen.Key("START_DATE").String(); len(raw) > 0 {
		if t, terr := ParseSimTime(raw); terr == nil {
			p.StartDate = t.Format(SimTimeFormat)
		}
	}
	if raw := gen.Key("END_DATE").String(); len(raw) > 0 {
		if t, terr := ParseSimTime(raw); terr == nil {
			p.EndDate = t.Format(SimTimeFormat)
		}
	}

	in := cfg.Section("INPUT")
	p.East = in.Key("EAST_epsg2056").MustFloat64(0)
	p.North = in.Key("NORTH_epsg2056").MustFloat64(0)
	p.Altitude = in.Key("altLV95").MustFloat64(0)
	p.UseShapefileROI = in.Key("USE_SHP_ROI").MustBool(false)
	p.ROIShapefile = in.Key("ROI_SHAPEFILE").MustString("")
	p.ROISize = in.Key("ROI").MustFloat64(1000)
	p.BufferSize = in.Key("BUFFERSIZE").MustFloat64(50000)
	p.DemMode = in.Key("DEM_MODE").In(DemModeSwisstopo, []string{DemModeSwisstopo, DemModeUserProvided})
	p.UserDemPath = in.Key("USER_DEM_PATH").MustString("")
	p.TargetEPSG = in.Key("TARGET_EPSG").MustInt(2056)

	out := cfg.Section("OUTPUT")
	p.OutCoordSys = out.Key("OUT_COORDSYS").MustString("CH1903+")
	p.GSD = out.Key("GSD").MustFloat64(10.0)
	p.GSDRef = out.Key("GSD_ref").MustFloat64(2.0)
	p.DemAddFmtList = out.Key("DEM_ADDFMTLIST").MustString("")
	p.MeshFmt = out.Key("MESH_FMT").MustString("vtu")
	p.MaskDemToPolygon = out.Key("MASK_DEM_TO_POLYGON").MustBool(true)
	p.MaskLusToPolygon = out.Key("MASK_LUS_TO_POLYGON").MustBool(true)

	p.PlotHorizon = cfg.Section("MAPS").Key("PLOT_HORIZON").MustBool(false)

	a3d := cfg.Section("A3D")
	p.UseGroundEye = a3d.Key("USE_GROUNDEYE").MustBool(false)
	if a3d.HasKey("LUS_SOURCE") {
		p.LusSource = a3d.Key("LUS_SOURCE").In(LusSourceTLM,
			[]string{LusSourceTLM, LusSourceBFS, LusSourceConstant})
	} else if a3d.HasKey("USE_LUS_TLM") {
		// Legacy flag from older config files.
		if a3d.Key("USE_LUS_TLM").MustBool(false) {
			p.LusSource = LusSourceTLM
		} else {
			p.LusSource = LusSourceConstant
		}
	}
	p.LusConstant = a3d.Key("LUS_PREVAH_CST").MustInt(11500)
	p.DoPVP3D = a3d.Key("DO_PVP_3D").MustBool(false)
	p.PVP3DFmt = a3d.Key("PVP_3D_FMT").MustString("vtu")
	p.SPBinPath = a3d.Key("SP_BIN_PATH").MustString("snowpack")

	for _, key := range cfg.Section("POIS").Keys() {
		parts := strings.Split(key.Value(), ",")
		if len(parts) != 3 {
			continue
		}
		x, xerr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		y, yerr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		z, zerr := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if xerr != nil || yerr != nil || zerr != nil {
			continue
		}
		p.POIs = append(p.POIs, POI{Name: key.Name(), X: x, Y: y, Z: z})
	}

	p.Normalise()
	return p, nil
}
