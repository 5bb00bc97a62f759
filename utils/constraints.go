package utils

import (
	"fmt"
	"regexp"
	"strings"

	goeval "github.com/edisonguo/govaluate"
)

// sanityRule pairs a pre-parsed constraint expression with the message
// reported to the client when the expression evaluates to false.
type sanityRule struct {
	expr    *goeval.EvaluableExpression
	message string
}

// sanityRuleSpecs are the checks every parameter set must pass before it is
// saved or run. Expressions are evaluated over the flattened parameter map
// built by flattenParams.
var sanityRuleSpecs = []struct {
	Expression string
	Message    string
}{
	{"name_ok == 1", "Simulation name is required and must not contain spaces"},
	{"dates_ok == 1", "Start and end dates must be valid timestamps"},
	{"end_unix >= start_unix", "End date must not be before start date"},
	{"gsd >= gsd_ref", "GSD must be greater than or equal to GSD_ref"},
	{"use_shp == 1 || (roi >= 100 && roi <= 50000)", "ROI size must be between 100 m and 50000 m"},
	{"use_shp == 0 || shapefile_ok == 1", "A shapefile path is required when the shapefile ROI mode is selected"},
	{"lus_ok == 1", "Land-use source must be one of tlm, bfs or constant"},
	{"user_dem == 0 || dem_path_ok == 1", "A DEM file path is required for user-provided DEM mode"},
}

var sanityRules []*sanityRule

var simNameRE = regexp.MustCompile(`^[^\s]+$`)

func init() {
	for _, spec := range sanityRuleSpecs {
		expr, err := goeval.NewEvaluableExpression(spec.Expression)
		if err != nil {
			panic(fmt.Sprintf("invalid sanity rule %q: %v", spec.Expression, err))
		}
		sanityRules = append(sanityRules, &sanityRule{expr: expr, message: spec.Message})
	}
}

func boolParam(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// flattenParams projects a ParameterSet onto the variable space of the
// sanity rules.
func flattenParams(p *ParameterSet) map[string]interface{} {
	startUnix := float64(0)
	endUnix := float64(0)
	datesOK := true
	if t, err := ParseSimTime(p.StartDate); err == nil {
		startUnix = float64(t.Unix())
	} else {
		datesOK = false
	}
	if t, err := ParseSimTime(p.EndDate); err == nil {
		endUnix = float64(t.Unix())
	} else {
		datesOK = false
	}

	lusOK := p.LusSource == LusSourceTLM || p.LusSource == LusSourceBFS ||
		p.LusSource == LusSourceConstant

	return map[string]interface{}{
		"name_ok":      boolParam(len(p.SimulationName) > 0 && simNameRE.MatchString(p.SimulationName)),
		"dates_ok":     boolParam(datesOK),
		"start_unix":   startUnix,
		"end_unix":     endUnix,
		"gsd":          p.GSD,
		"gsd_ref":      p.GSDRef,
		"roi":          p.ROISize,
		"use_shp":      boolParam(p.UseShapefileROI),
		"shapefile_ok": boolParam(len(strings.TrimSpace(p.ROIShapefile)) > 0),
		"lus_ok":       boolParam(lusOK),
		"user_dem":     boolParam(p.DemMode == DemModeUserProvided),
		"dem_path_ok":  boolParam(len(strings.TrimSpace(p.UserDemPath)) > 0),
	}
}

// CheckParams runs every sanity rule against the parameter set and returns
// the messages of the failed ones. An empty result means the set is sane.
func CheckParams(p *ParameterSet) ([]string, error) {
	params := flattenParams(p)

	var failed []string
	for _, rule := range sanityRules {
		res, err := rule.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("sanity rule evaluation error: %v", err)
		}
		ok, isBool := res.(bool)
		if !isBool {
			return nil, fmt.Errorf("sanity rule %q did not evaluate to bool", rule.expr.String())
		}
		if !ok {
			failed = append(failed, rule.message)
		}
	}
	return failed, nil
}
