package utils

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func testParameterSet() *ParameterSet {
	p := NewParameterSet()
	p.SimulationName = "dischma_oct23"
	p.StartDate = "2023-10-01T00:00:00"
	p.EndDate = "2023-10-31T23:59:59"
	p.East = 645000
	p.North = 115000
	p.Altitude = 1500
	p.ROISize = 1000
	return p
}

func TestSerialiseConfigDeterministic(t *testing.T) {
	p := testParameterSet()

	out1, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}
	out2, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}

	if !bytes.Equal(out1, out2) {
		t.Errorf("serialisation is not deterministic:\n%s\n----\n%s", out1, out2)
	}
}

func TestSerialiseConfigLayout(t *testing.T) {
	p := testParameterSet()

	out, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}
	content := string(out)

	for _, want := range []string{
		"[GENERAL]",
		"SIMULATION_NAME = dischma_oct23",
		"START_DATE = 2023-10-01T00:00:00",
		"END_DATE = 2023-10-31T23:59:59",
		"[INPUT]",
		"EAST_epsg2056 = 645000",
		"NORTH_epsg2056 = 115000",
		"altLV95 = 1500",
		"USE_SHP_ROI = false",
		"ROI = 1000",
		"BUFFERSIZE = 50000",
		"[OUTPUT]",
		"OUT_COORDSYS = CH1903+",
		"GSD = 10",
		"GSD_ref = 2",
		"MESH_FMT = vtu",
		"MASK_DEM_TO_POLYGON = true",
		"MASK_LUS_TO_POLYGON = true",
		"[MAPS]",
		"PLOT_HORIZON = false",
		"[A3D]",
		"USE_GROUNDEYE = false",
		"LUS_SOURCE = tlm",
		"DO_PVP_3D = false",
		"SP_BIN_PATH = snowpack",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("serialised config is missing %q:\n%s", want, content)
		}
	}

	for _, unwanted := range []string{"ROI_SHAPEFILE", "LUS_PREVAH_CST", "[POIS]", "DEM_MODE"} {
		if strings.Contains(content, unwanted) {
			t.Errorf("serialised config unexpectedly contains %q:\n%s", unwanted, content)
		}
	}
}

func TestSerialiseConfigShapefileROI(t *testing.T) {
	p := testParameterSet()
	p.UseShapefileROI = true
	p.ROIShapefile = "shapefiles/dischma.shp"

	out, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}
	content := string(out)

	if !strings.Contains(content, "ROI_SHAPEFILE = shapefiles/dischma.shp") {
		t.Errorf("shapefile mode must write ROI_SHAPEFILE:\n%s", content)
	}
	if strings.Contains(content, "\nROI = ") {
		t.Errorf("shapefile mode must not write the ROI key:\n%s", content)
	}
	if !strings.Contains(content, "USE_SHP_ROI = true") {
		t.Errorf("shapefile mode must set USE_SHP_ROI:\n%s", content)
	}
}

func TestSerialiseConfigConstantLus(t *testing.T) {
	p := testParameterSet()
	p.LusSource = LusSourceConstant
	p.LusConstant = 11500

	out, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}
	if !strings.Contains(string(out), "LUS_PREVAH_CST = 11500") {
		t.Errorf("constant mode must write LUS_PREVAH_CST:\n%s", out)
	}
}

func TestSerialiseConfigPOIs(t *testing.T) {
	p := testParameterSet()
	p.POIs = []POI{
		{Name: "station_a", X: 645100, Y: 115100, Z: 1600},
		{Name: "station_b", X: 645200, Y: 115200, Z: 1700},
	}

	out, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}
	content := string(out)

	if !strings.Contains(content, "[POIS]") {
		t.Fatalf("missing [POIS] section:\n%s", content)
	}
	iA := strings.Index(content, "station_a = 645100,115100,1600")
	iB := strings.Index(content, "station_b = 645200,115200,1700")
	if iA < 0 || iB < 0 {
		t.Fatalf("missing POI lines:\n%s", content)
	}
	if iA > iB {
		t.Errorf("POIs must serialise in insertion order:\n%s", content)
	}
}

func TestSerialiseConfigMaskDependency(t *testing.T) {
	p := testParameterSet()
	p.MaskDemToPolygon = true
	p.MaskLusToPolygon = false

	out, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}
	if !strings.Contains(string(out), "MASK_DEM_TO_POLYGON = false") {
		t.Errorf("DEM mask must be forced off when LUS mask is off:\n%s", out)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	p := testParameterSet()
	p.POIs = []POI{{Name: "ridge", X: 645300, Y: 115300, Z: 2500}}
	p.LusSource = LusSourceConstant
	p.LusConstant = 11400
	p.Normalise()

	out, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}

	got, err := DeserialiseConfig(out)
	if err != nil {
		t.Fatalf("DeserialiseConfig() error: %v", err)
	}

	if !reflect.DeepEqual(p, got) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", p, got)
	}
}

func TestConfigRoundTripShapefileROI(t *testing.T) {
	p := testParameterSet()
	p.UseShapefileROI = true
	p.ROIShapefile = "shapefiles/dischma.shp"
	p.ROISize = 2500 // reverts to the default on Normalise; not serialised
	p.Normalise()

	out, err := SerialiseConfig(p, "../data/templates")
	if err != nil {
		t.Fatalf("SerialiseConfig() error: %v", err)
	}

	got, err := DeserialiseConfig(out)
	if err != nil {
		t.Fatalf("DeserialiseConfig() error: %v", err)
	}

	if !reflect.DeepEqual(p, got) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", p, got)
	}
}

func TestDeserialiseConfigDefaults(t *testing.T) {
	src := `[GENERAL]
SIMULATION_NAME = minimal
`
	p, err := DeserialiseConfig([]byte(src))
	if err != nil {
		t.Fatalf("DeserialiseConfig() error: %v", err)
	}

	if p.SimulationName != "minimal" {
		t.Errorf("expected simulation name 'minimal', got %q", p.SimulationName)
	}
	if p.ROISize != 1000 {
		t.Errorf("expected default ROI 1000, got %v", p.ROISize)
	}
	if p.BufferSize != 50000 {
		t.Errorf("expected default buffer 50000, got %v", p.BufferSize)
	}
	if p.OutCoordSys != "CH1903+" {
		t.Errorf("expected default coord sys CH1903+, got %q", p.OutCoordSys)
	}
	if p.LusSource != LusSourceTLM {
		t.Errorf("expected default lus source tlm, got %q", p.LusSource)
	}
	if p.LusConstant != 11500 {
		t.Errorf("expected default lus constant 11500, got %v", p.LusConstant)
	}
}

func TestDeserialiseConfigBadValues(t *testing.T) {
	src := `[GENERAL]
SIMULATION_NAME = damaged
START_DATE = not-a-date

[INPUT]
ROI = not-a-number

[OUTPUT]
GSD = wat
`
	p, err := DeserialiseConfig([]byte(src))
	if err != nil {
		t.Fatalf("bad field values must not be structural errors: %v", err)
	}

	if p.StartDate != "2023-10-01T00:00:00" {
		t.Errorf("bad date must fall back to default, got %q", p.StartDate)
	}
	if p.ROISize != 1000 {
		t.Errorf("bad ROI must fall back to default, got %v", p.ROISize)
	}
	if p.GSD != 10.0 {
		t.Errorf("bad GSD must fall back to default, got %v", p.GSD)
	}
}

func TestDeserialiseConfigMalformed(t *testing.T) {
	if _, err := DeserialiseConfig([]byte("[GENERAL\nno closing bracket")); err == nil {
		t.Errorf("structurally malformed config must yield an error")
	}
}

func TestDeserialiseConfigLegacyLusKey(t *testing.T) {
	cases := []struct {
		name string
		a3d  string
		want string
	}{
		{"legacy true", "USE_LUS_TLM = true", LusSourceTLM},
		{"legacy false", "USE_LUS_TLM = false", LusSourceConstant},
		{"new wins over legacy", "LUS_SOURCE = bfs\nUSE_LUS_TLM = false", LusSourceBFS},
		{"neither", "", LusSourceTLM},
		{"invalid value", "LUS_SOURCE = volcano", LusSourceTLM},
	}

	for _, c := range cases {
		src := "[A3D]\n" + c.a3d + "\n"
		p, err := DeserialiseConfig([]byte(src))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
			continue
		}
		if p.LusSource != c.want {
			t.Errorf("%s: expected lus source %q, got %q", c.name, c.want, p.LusSource)
		}
	}
}

func TestDeserialiseConfigInlineComments(t *testing.T) {
	src := `[INPUT]
ROI = 2000 # metres
`
	p, err := DeserialiseConfig([]byte(src))
	if err != nil {
		t.Fatalf("DeserialiseConfig() error: %v", err)
	}
	if p.ROISize != 2000 {
		t.Errorf("inline comment must be stripped, got ROI %v", p.ROISize)
	}
}

func TestDeserialiseConfigPOIs(t *testing.T) {
	src := `[POIS]
ridge = 2645300,1115300,2500
broken = 1,2
station = 2645400,1115400,1800
`
	p, err := DeserialiseConfig([]byte(src))
	if err != nil {
		t.Fatalf("DeserialiseConfig() error: %v", err)
	}

	want := []POI{
		{Name: "ridge", X: 2645300, Y: 1115300, Z: 2500},
		{Name: "station", X: 2645400, Y: 1115400, Z: 1800},
	}
	if !reflect.DeepEqual(p.POIs, want) {
		t.Errorf("expected POIs %+v, got %+v", want, p.POIs)
	}
}
