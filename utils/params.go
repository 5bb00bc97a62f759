package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// A3DParams contains the serialised version of the query parameters of an
// A3Dshell request. Fields are nil when absent from the request.
type A3DParams struct {
	Request      *string  `json:"request,omitempty"`
	Name         *string  `json:"name,omitempty"`
	Easting      *float64 `json:"easting,omitempty"`
	Northing     *float64 `json:"northing,omitempty"`
	ROI          *float64 `json:"roi,omitempty"`
	LogLevel     *string  `json:"log_level,omitempty"`
	SkipSnowpack *bool    `json:"skip_snowpack,omitempty"`
	WorkingDir   *string  `json:"working_dir,omitempty"`
	SearchDir    *string  `json:"search_dir,omitempty"`
}

// A3DRegexpMap maps request parameters to regular expressions for doing
// validation when parsing.
// --- These regexp do not avoid every case of
// --- invalid code but filter most of the malformed
// --- cases. Error free JSON deserialisation into types
// --- also validates correct values.
var A3DRegexpMap = map[string]string{
	"request":       `^ListConfigs$|^GetConfig$|^SaveConfig$|^Validate$|^SaveROI$|^Height$|^Landcover$|^ListShapefiles$|^ListDEMs$|^Run$|^RunA3D$`,
	"name":          `^[A-Za-z0-9][A-Za-z0-9_\-\.]*$`,
	"easting":       `^[-+]?[0-9]*\.?[0-9]+$`,
	"northing":      `^[-+]?[0-9]*\.?[0-9]+$`,
	"roi":           `^[0-9]*\.?[0-9]+$`,
	"log_level":     `^INFO$|^DEBUG$|^WARNING$|^ERROR$`,
	"skip_snowpack": `^true$|^false$`,
	"dir":           `^[A-Za-z0-9_\-\./]+$`,
}

func CompileA3DRegexMap() map[string]*regexp.Regexp {
	REMap := make(map[string]*regexp.Regexp)
	for key, re := range A3DRegexpMap {
		REMap[key] = regexp.MustCompile(re)
	}

	return REMap
}

// safeRelDir reports whether a user-supplied directory stays inside the
// served tree. Absolute paths and parent traversal are rejected.
func safeRelDir(dir string) bool {
	if strings.HasPrefix(dir, "/") {
		return false
	}
	for _, part := range strings.Split(dir, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// A3DParamsChecker checks and marshals the content of the query parameters
// of an A3Dshell request into an A3DParams struct.
func A3DParamsChecker(params map[string][]string, compREMap map[string]*regexp.Regexp) (A3DParams, error) {
	jsonFields := []string{}

	if request, requestOK := params["request"]; requestOK {
		if !compREMap["request"].MatchString(request[0]) {
			return A3DParams{}, fmt.Errorf("unknown request: %v", request[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"request":"%s"`, request[0]))
	}

	if name, nameOK := params["name"]; nameOK {
		if !compREMap["name"].MatchString(name[0]) {
			return A3DParams{}, fmt.Errorf("invalid config name: %v", name[0])
		}
		jsonFields = append(jsonFields, fmt.Sprintf(`"name":"%s"`, name[0]))
	}

	if easting, eastingOK := params["easting"]; eastingOK {
		if compREMap["easting"].MatchString(easting[0]) {
			jsonFields = append(jsonFields, fmt.Sprintf(`"easting":%s`, easting[0]))
		}
	}

	if northing, northingOK := params["northing"]; northingOK {
		if compREMap["northing"].MatchString(northing[0]) {
			jsonFields = append(jsonFields, fmt.Sprintf(`"northing":%s`, northing[0]))
		}
	}

	if roi, roiOK := params["roi"]; roiOK {
		if compREMap["roi"].MatchString(roi[0]) {
			jsonFields = append(jsonFields, fmt.Sprintf(`"roi":%s`, roi[0]))
		}
	}

	if logLevel, logLevelOK := params["log_level"]; logLevelOK {
		if compREMap["log_level"].MatchString(logLevel[0]) {
			jsonFields = append(jsonFields, fmt.Sprintf(`"log_level":"%s"`, logLevel[0]))
		}
	}

	if skip, skipOK := params["skip_snowpack"]; skipOK {
		if compREMap["skip_snowpack"].MatchString(skip[0]) {
			jsonFields = append(jsonFields, fmt.Sprintf(`"skip_snowpack":%s`, skip[0]))
		}
	}

	if workingDir, workingDirOK := params["working_dir"]; workingDirOK {
		if compREMap["dir"].MatchString(workingDir[0]) && safeRelDir(workingDir[0]) {
			jsonFields = append(jsonFields, fmt.Sprintf(`"working_dir":"%s"`, workingDir[0]))
		}
	}

	if searchDir, searchDirOK := params["search_dir"]; searchDirOK {
		if compREMap["dir"].MatchString(searchDir[0]) && safeRelDir(searchDir[0]) {
			jsonFields = append(jsonFields, fmt.Sprintf(`"search_dir":"%s"`, searchDir[0]))
		}
	}

	jsonParams := fmt.Sprintf("{%s}", strings.Join(jsonFields, ","))

	var a3dParams A3DParams
	err := json.Unmarshal([]byte(jsonParams), &a3dParams)
	if err != nil {
		return a3dParams, fmt.Errorf("a3d parameters error: %v", err)
	}

	return a3dParams, nil
}
