package main

/* a3dshell is a web service for authoring Alpine3D simulation setups.
   It collects simulation parameters, validates locations against the
   Swiss national boundary, persists setups as sectioned config files
   and launches the setup pipeline and Alpine3D binaries on demand.
   The numerical models themselves (MeteoIO, Snowpack, Alpine3D) are
   external executables configured through server environment
   variables. */

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/frischwood/a3dshell/boundary"
	"github.com/frischwood/a3dshell/metrics"
	"github.com/frischwood/a3dshell/runner"
	"github.com/frischwood/a3dshell/utils"

	reuseport "github.com/kavu/go_reuseport"
	geo "github.com/nci/geometry"
)

var (
	port            = flag.Int("p", 8080, "Server listening port.")
	serverDataDir   = flag.String("data_dir", utils.DataDir, "Server data directory.")
	serverConfigDir = flag.String("conf_dir", utils.ConfigDir, "Simulation config directory.")
	serverLogDir    = flag.String("log_dir", "", "Server log directory. '-' logs to stdout.")
	verbose         = flag.Bool("v", false, "Verbose mode for more server outputs.")
)

var reA3DMap map[string]*regexp.Regexp

var (
	Error *log.Logger
	Info  *log.Logger
)

var metricsLogger metrics.Logger

var validator *boundary.Validator
var landCover *utils.LandCoverCatalog
var fileResolver *utils.RuntimeFileResolver

// init initialises the loggers, checks required data files are in place
// and prepares the boundary validator. This is the first function to be
// called in main.
func init() {
	Error = log.New(os.Stderr, "A3D: ", log.Ldate|log.Ltime|log.Lshortfile)
	Info = log.New(os.Stdout, "A3D: ", log.Ldate|log.Ltime|log.Lshortfile)

	flag.Parse()

	utils.DataDir = *serverDataDir
	utils.ConfigDir = *serverConfigDir

	catalog, err := utils.SharedLandCoverCatalog(filepath.Join(utils.DataDir, "landcover.yaml"))
	if err != nil {
		Error.Printf("Error in loading land-cover catalog: %v\n", err)
		panic(err)
	}
	landCover = catalog

	if err := os.MkdirAll(utils.ConfigDir, 0755); err != nil {
		Error.Printf("Error in creating config directory: %v\n", err)
		panic(err)
	}

	reA3DMap = utils.CompileA3DRegexMap()

	fileResolver = utils.NewRuntimeFileResolver(utils.ConfigDir)

	validator = boundary.NewValidator(utils.MemcacheAddr())

	if len(*serverLogDir) > 0 {
		if *serverLogDir == "-" {
			metricsLogger = metrics.NewStdoutLogger()
		} else {
			maxLogFileSize := int64(0)
			if val, ok := os.LookupEnv("A3D_MAX_LOG_FILE_SIZE"); ok {
				valInt, e := strconv.ParseInt(val, 10, 64)
				if e == nil {
					maxLogFileSize = valInt
				} else {
					Error.Printf("invalid A3D_MAX_LOG_FILE_SIZE: %v", e)
				}
			}

			maxLogFiles := -1
			if val, ok := os.LookupEnv("A3D_MAX_LOG_FILES"); ok {
				valInt, e := strconv.ParseInt(val, 10, 32)
				if e == nil {
					maxLogFiles = int(valInt)
				} else {
					Error.Printf("invalid A3D_MAX_LOG_FILES: %v", e)
				}
			}

			metricsLogger = metrics.NewFileLogger(*serverLogDir, maxLogFileSize, maxLogFiles, *verbose)
		}
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}, metricsCollector *metrics.MetricsCollector) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		Error.Printf("Error encoding response: %v\n", err)
		metricsCollector.Info.HTTPStatus = 500
	}
}

// decodeParameterSet reads a client payload over the documented defaults,
// so omitted fields keep their default values.
func decodeParameterSet(body []byte) (*utils.ParameterSet, error) {
	params := utils.NewParameterSet()
	if err := json.Unmarshal(body, params); err != nil {
		return nil, fmt.Errorf("unparsable parameter payload: %v", err)
	}
	params.Normalise()
	return params, nil
}

// checkSetup runs the sanity constraints plus the land-cover constant
// check and returns the inline messages of everything that failed.
func checkSetup(params *utils.ParameterSet) ([]string, error) {
	msgs, err := utils.CheckParams(params)
	if err != nil {
		return nil, err
	}
	if params.LusSource == utils.LusSourceConstant {
		if err := landCover.CheckConstant(params.LusConstant); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs, nil
}

// validateSpatial re-checks the current spatial selection. Run never
// trusts an earlier Validate response: spatial edits would invalidate it.
func validateSpatial(params *utils.ParameterSet) boundary.Result {
	if params.UseShapefileROI {
		if _, err := fileResolver.Lookup(params.ROIShapefile); err != nil {
			return boundary.Result{Valid: false,
				Message: fmt.Sprintf("ROI shapefile not found: %s", params.ROIShapefile)}
		}
		return boundary.Result{Valid: true, Message: "Using shapefile ROI"}
	}
	return validator.CheckPoint(params.East, params.North, params.ROISize)
}

// featureRingLV95 extracts the outer polygon ring of a GeoJSON feature
// payload (WGS84) and reprojects it to LV95.
func featureRingLV95(body []byte) ([][]float64, error) {
	var feat geo.Feature
	if err := json.Unmarshal(body, &feat); err != nil {
		return nil, fmt.Errorf("problem unmarshalling geometry: %v", err)
	}
	geomJSON, err := json.Marshal(feat.Geometry)
	if err != nil {
		return nil, fmt.Errorf("problem marshaling GeoJSON geometry: %v", err)
	}
	ring, err := boundary.PolygonRing(geomJSON)
	if err != nil {
		return nil, err
	}
	return utils.RingToLV95(ring)
}

func configFilePath(name string) string {
	if !strings.HasSuffix(name, ".ini") {
		name = name + ".ini"
	}
	return filepath.Join(utils.ConfigDir, name)
}

func serveListConfigs(w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	files, err := ioutil.ReadDir(utils.ConfigDir)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 500
		http.Error(w, fmt.Sprintf("Error listing configs: %v", err), 500)
		return
	}

	configs := []string{}
	for _, file := range files {
		name := file.Name()
		if !file.Mode().IsRegular() || filepath.Ext(name) != ".ini" {
			continue
		}
		if strings.HasPrefix(name, "_temp_") {
			continue
		}
		configs = append(configs, name)
	}

	writeJSON(w, map[string][]string{"configs": configs}, metricsCollector)
}

func serveGetConfig(name string, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	src, err := ioutil.ReadFile(configFilePath(name))
	if err != nil {
		metricsCollector.Info.HTTPStatus = 404
		http.Error(w, fmt.Sprintf("Config not found: %s", name), 404)
		return
	}

	params, err := utils.DeserialiseConfig(src)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, fmt.Sprintf("Error parsing config %s: %v", name, err), 400)
		return
	}

	writeJSON(w, map[string]interface{}{
		"name":           name,
		"params":         params,
		"spatial_digest": params.SpatialDigest(),
	}, metricsCollector)
}

func serveSaveConfig(body []byte, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	params, err := decodeParameterSet(body)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, err.Error(), 400)
		return
	}

	msgs, err := checkSetup(params)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 500
		http.Error(w, err.Error(), 500)
		return
	}
	if len(msgs) > 0 {
		metricsCollector.Info.HTTPStatus = 400
		writeJSON(w, map[string]interface{}{"errors": msgs}, metricsCollector)
		return
	}

	content, err := utils.SerialiseConfig(params, filepath.Join(utils.DataDir, "templates"))
	if err != nil {
		metricsCollector.Info.HTTPStatus = 500
		http.Error(w, fmt.Sprintf("Error serialising config: %v", err), 500)
		return
	}

	configPath := configFilePath(params.SimulationName)
	if err := ioutil.WriteFile(configPath, content, 0644); err != nil {
		metricsCollector.Info.HTTPStatus = 500
		http.Error(w, fmt.Sprintf("Error writing config: %v", err), 500)
		return
	}

	Info.Printf("Saved config %s\n", configPath)
	writeJSON(w, map[string]interface{}{
		"saved":          configPath,
		"spatial_digest": params.SpatialDigest(),
	}, metricsCollector)
}

func serveValidate(params utils.A3DParams, body []byte, r *http.Request, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	t0 := time.Now()
	defer func() { metricsCollector.Info.Validation.Duration = time.Since(t0) }()

	if r.Method == "POST" && len(body) > 0 {
		ring, err := featureRingLV95(body)
		if err != nil {
			// Fail closed: an ROI that cannot be checked is not accepted.
			metricsCollector.Info.HTTPStatus = 400
			http.Error(w, fmt.Sprintf("Could not validate boundaries: %v", err), 400)
			return
		}
		res, err := validator.CheckRing(ring)
		if err != nil {
			metricsCollector.Info.HTTPStatus = 400
			http.Error(w, fmt.Sprintf("Could not validate boundaries: %v", err), 400)
			return
		}
		metricsCollector.Info.Validation.Valid = res.Valid
		metricsCollector.Info.Validation.Degraded = res.Degraded
		metricsCollector.Info.Validation.Message = res.Message
		writeJSON(w, res, metricsCollector)
		return
	}

	if params.Easting == nil || params.Northing == nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, "Validate requires easting and northing parameters or a GeoJSON body", 400)
		return
	}

	roiSize := 0.0
	if params.ROI != nil {
		roiSize = *params.ROI
	}

	res := validator.CheckPoint(*params.Easting, *params.Northing, roiSize)
	metricsCollector.Info.Validation.Valid = res.Valid
	metricsCollector.Info.Validation.Degraded = res.Degraded
	metricsCollector.Info.Validation.Message = res.Message

	digestParams := utils.NewParameterSet()
	digestParams.East = *params.Easting
	digestParams.North = *params.Northing
	digestParams.ROISize = roiSize

	writeJSON(w, map[string]interface{}{
		"valid":          res.Valid,
		"message":        res.Message,
		"degraded":       res.Degraded,
		"spatial_digest": digestParams.SpatialDigest(),
	}, metricsCollector)
}

func serveSaveROI(params utils.A3DParams, body []byte, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	if params.Name == nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, "SaveROI requires a name parameter", 400)
		return
	}

	ring, err := featureRingLV95(body)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, fmt.Sprintf("Could not validate boundaries: %v", err), 400)
		return
	}

	res, err := validator.CheckRing(ring)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, fmt.Sprintf("Could not validate boundaries: %v", err), 400)
		return
	}
	metricsCollector.Info.Validation.Valid = res.Valid
	metricsCollector.Info.Validation.Degraded = res.Degraded
	metricsCollector.Info.Validation.Message = res.Message

	if !res.Valid {
		metricsCollector.Info.HTTPStatus = 400
		writeJSON(w, res, metricsCollector)
		return
	}

	shpPath := filepath.Join(utils.ConfigDir, "shapefiles", *params.Name+".shp")
	if err := utils.WriteROIShapefile(shpPath, ring); err != nil {
		metricsCollector.Info.HTTPStatus = 500
		http.Error(w, fmt.Sprintf("Error saving ROI: %v", err), 500)
		return
	}

	Info.Printf("Saved ROI shapefile %s\n", shpPath)
	writeJSON(w, map[string]interface{}{
		"saved":   shpPath,
		"message": res.Message,
	}, metricsCollector)
}

func serveHeight(params utils.A3DParams, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	if params.Easting == nil || params.Northing == nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, "Height requires easting and northing parameters", 400)
		return
	}

	height, err := validator.FetchHeight(*params.Easting, *params.Northing)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 502
		http.Error(w, fmt.Sprintf("Height lookup failed: %v", err), 502)
		return
	}

	writeJSON(w, map[string]float64{"height": height}, metricsCollector)
}

// serveListFiles lists shapefiles or DEMs under a directory inside the
// config tree, for the "use existing file" flows.
func serveListFiles(params utils.A3DParams, find func(string) []string, key string, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	searchDir := utils.ConfigDir
	if params.SearchDir != nil {
		searchDir = filepath.Join(utils.ConfigDir, *params.SearchDir)
	}
	writeJSON(w, map[string][]string{key: find(searchDir)}, metricsCollector)
}

// streamLines adapts an http response into a line sink, flushing after
// every line so clients see subprocess output as it happens.
func streamLines(w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) runner.LineFunc {
	flusher, hasFlusher := w.(http.Flusher)
	return func(line string) {
		metricsCollector.Info.Run.NumLines++
		fmt.Fprintln(w, line)
		if hasFlusher {
			flusher.Flush()
		}
	}
}

func serveRun(ctx context.Context, params utils.A3DParams, body []byte, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	setup, err := decodeParameterSet(body)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, err.Error(), 400)
		return
	}

	msgs, err := checkSetup(setup)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 500
		http.Error(w, err.Error(), 500)
		return
	}
	if len(msgs) > 0 {
		metricsCollector.Info.HTTPStatus = 400
		writeJSON(w, map[string]interface{}{"errors": msgs}, metricsCollector)
		return
	}

	res := validateSpatial(setup)
	metricsCollector.Info.Validation.Valid = res.Valid
	metricsCollector.Info.Validation.Degraded = res.Degraded
	metricsCollector.Info.Validation.Message = res.Message
	if !res.Valid {
		metricsCollector.Info.HTTPStatus = 400
		writeJSON(w, res, metricsCollector)
		return
	}

	logLevel := "INFO"
	if params.LogLevel != nil {
		logLevel = *params.LogLevel
	}

	skipSnowpack := false
	if params.SkipSnowpack != nil {
		skipSnowpack = *params.SkipSnowpack
	}
	if !utils.ImisAvailable() {
		// Snowpack preprocessing needs the IMIS station database.
		skipSnowpack = true
	}

	req := &runner.SimulationRequest{
		Params:       setup,
		ConfigDir:    utils.ConfigDir,
		TemplateRoot: filepath.Join(utils.DataDir, "templates"),
		LogLevel:     logLevel,
		SkipSnowpack: skipSnowpack,
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	onLine := streamLines(w, metricsCollector)
	Info.Printf("Starting simulation %s\n", setup.SimulationName)

	t0 := time.Now()
	exitCode, err := runner.RunSimulation(ctx, req, onLine)
	metricsCollector.Info.Run.Duration = time.Since(t0)
	metricsCollector.Info.Run.Binary = utils.SetupBin()
	metricsCollector.Info.Run.ExitCode = exitCode

	if err != nil {
		onLine(fmt.Sprintf("Error running simulation: %v", err))
		return
	}
	if exitCode == 0 {
		onLine("Run completed successfully")
	} else {
		onLine(fmt.Sprintf("Run failed with exit code %d", exitCode))
	}
}

func serveRunA3D(ctx context.Context, params utils.A3DParams, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	if !utils.RunA3DEnabled() {
		metricsCollector.Info.HTTPStatus = 403
		http.Error(w, "RunA3D is not enabled on this server", 403)
		return
	}
	if params.WorkingDir == nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, "RunA3D requires a working_dir parameter", 400)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	onLine := streamLines(w, metricsCollector)
	Info.Printf("Starting Alpine3D in %s\n", *params.WorkingDir)

	t0 := time.Now()
	exitCode, err := runner.RunAlpine3D(ctx, *params.WorkingDir, utils.Alpine3DBin(), onLine)
	metricsCollector.Info.Run.Duration = time.Since(t0)
	metricsCollector.Info.Run.Binary = utils.Alpine3DBin()
	metricsCollector.Info.Run.ExitCode = exitCode

	if err != nil {
		onLine(fmt.Sprintf("Error running Alpine3D: %v", err))
		return
	}
	if exitCode == 0 {
		onLine("Run completed successfully")
	} else {
		onLine(fmt.Sprintf("Run failed with exit code %d", exitCode))
	}
}

func serveA3D(ctx context.Context, params utils.A3DParams, body []byte, r *http.Request, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	if params.Request == nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, "Malformed request, a request field needs to be specified", 400)
		return
	}

	switch *params.Request {
	case "ListConfigs":
		serveListConfigs(w, metricsCollector)
	case "GetConfig":
		if params.Name == nil {
			metricsCollector.Info.HTTPStatus = 400
			http.Error(w, "GetConfig requires a name parameter", 400)
			return
		}
		serveGetConfig(*params.Name, w, metricsCollector)
	case "SaveConfig":
		serveSaveConfig(body, w, metricsCollector)
	case "Validate":
		serveValidate(params, body, r, w, metricsCollector)
	case "SaveROI":
		serveSaveROI(params, body, w, metricsCollector)
	case "Height":
		serveHeight(params, w, metricsCollector)
	case "Landcover":
		writeJSON(w, landCover, metricsCollector)
	case "ListShapefiles":
		serveListFiles(params, utils.FindShapefiles, "shapefiles", w, metricsCollector)
	case "ListDEMs":
		serveListFiles(params, utils.FindDEMFiles, "dems", w, metricsCollector)
	case "Run":
		serveRun(ctx, params, body, w, metricsCollector)
	case "RunA3D":
		serveRunA3D(ctx, params, w, metricsCollector)
	default:
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, fmt.Sprintf("Not a valid request. URL %s does not contain a valid 'request' parameter.", r.URL.String()), 400)
	}
}

func a3dHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	if *verbose {
		Info.Printf("%s\n", r.URL.String())
	}
	ctx := r.Context()

	metricsCollector := metrics.NewMetricsCollector(metricsLogger)
	defer metricsCollector.Log()

	t0 := time.Now()
	metricsCollector.Info.ReqTime = t0.Format(utils.ISOFormat)
	defer func() { metricsCollector.Info.ReqDuration = time.Since(t0) }()

	reqURL, e := url.QueryUnescape(r.URL.String())
	if e == nil {
		metricsCollector.Info.URL.RawURL = reqURL
	} else {
		metricsCollector.Info.URL.RawURL = r.URL.String()
	}

	metricsCollector.Info.RemoteAddr = utils.ParseRemoteAddr(r)
	metricsCollector.Info.HTTPStatus = 200

	var body []byte
	if r.Method == "POST" {
		var err error
		body, err = ioutil.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			metricsCollector.Info.HTTPStatus = 400
			http.Error(w, fmt.Sprintf("Error reading request body: %v", err), 400)
			return
		}
	}

	params, err := utils.A3DParamsChecker(r.URL.Query(), reA3DMap)
	if err != nil {
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, fmt.Sprintf("Wrong parameters on URL: %s", err), 400)
		return
	}

	serveA3D(ctx, params, body, r, w, metricsCollector)
}

func main() {
	http.HandleFunc("/a3d", a3dHandler)
	http.HandleFunc("/a3d/", a3dHandler)

	listener, err := reuseport.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", *port))
	if err != nil {
		Error.Printf("Error creating listener: %v\n", err)
		panic(err)
	}

	Info.Printf("A3Dshell is ready")
	log.Fatal(http.Serve(listener, nil))
}
