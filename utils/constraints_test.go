package utils

import (
	"strings"
	"testing"
)

func saneParameterSet() *ParameterSet {
	p := NewParameterSet()
	p.SimulationName = "sane_run"
	p.East = 2645000
	p.North = 1115000
	p.Altitude = 1500
	return p
}

func TestCheckParamsPasses(t *testing.T) {
	msgs, err := CheckParams(saneParameterSet())
	if err != nil {
		t.Fatalf("CheckParams() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("sane parameter set must pass, got failures: %v", msgs)
	}
}

func TestCheckParamsFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ParameterSet)
		keyword string
	}{
		{"empty name", func(p *ParameterSet) { p.SimulationName = "" }, "name"},
		{"name with space", func(p *ParameterSet) { p.SimulationName = "my run" }, "name"},
		{"end before start", func(p *ParameterSet) {
			p.StartDate = "2023-10-31T00:00:00"
			p.EndDate = "2023-10-01T00:00:00"
		}, "End date"},
		{"bad date", func(p *ParameterSet) { p.StartDate = "31/10/2023" }, "dates"},
		{"roi too small", func(p *ParameterSet) { p.ROISize = 50 }, "ROI size"},
		{"roi too large", func(p *ParameterSet) { p.ROISize = 80000 }, "ROI size"},
		{"gsd below ref", func(p *ParameterSet) { p.GSD = 1; p.GSDRef = 2 }, "GSD"},
		{"shapefile mode without path", func(p *ParameterSet) { p.UseShapefileROI = true }, "shapefile"},
		{"bad lus source", func(p *ParameterSet) { p.LusSource = "volcano" }, "Land-use"},
		{"user dem without path", func(p *ParameterSet) { p.DemMode = DemModeUserProvided }, "DEM"},
	}

	for _, c := range cases {
		p := saneParameterSet()
		c.mutate(p)

		msgs, err := CheckParams(p)
		if err != nil {
			t.Errorf("%s: CheckParams() error: %v", c.name, err)
			continue
		}
		if len(msgs) == 0 {
			t.Errorf("%s: expected a failure message", c.name)
			continue
		}
		found := false
		for _, msg := range msgs {
			if strings.Contains(strings.ToLower(msg), strings.ToLower(c.keyword)) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s: no message mentioning %q in %v", c.name, c.keyword, msgs)
		}
	}
}

func TestCheckParamsShapefileSkipsROISize(t *testing.T) {
	p := saneParameterSet()
	p.UseShapefileROI = true
	p.ROIShapefile = "shapefiles/basin.shp"
	p.ROISize = 7 // ignored in shapefile mode

	msgs, err := CheckParams(p)
	if err != nil {
		t.Fatalf("CheckParams() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("ROI size must not be checked in shapefile mode, got: %v", msgs)
	}
}
