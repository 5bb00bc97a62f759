package metrics

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func queuedInfo(rawURL string) *MetricsInfo {
	info := &MetricsInfo{
		ReqTime:    "2026-08-29T12:00:00.000Z",
		RemoteAddr: "10.0.0.1:5000",
		HTTPStatus: 200,
		Validation: &ValidationInfo{},
		Run:        &RunInfo{},
	}
	info.URL.RawURL = rawURL
	return info
}

func logFilesWithContent(logDir string) int {
	files, err := ioutil.ReadDir(logDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, file := range files {
		if file.Mode().IsRegular() && file.Size() > 0 {
			count++
		}
	}
	return count
}

func TestFileLoggerSurvivesMissingLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	// The log directory does not exist yet: the first record must be
	// dropped without killing the writer goroutines.
	logger := NewFileLogger(logDir, 0, 0, false)
	logger.Log(queuedInfo("http://localhost:8080/a3d?request=ListConfigs"))
	time.Sleep(100 * time.Millisecond)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		t.Fatalf("failed to create log directory: %v", err)
	}

	// Both writers may have consumed a record while the directory was
	// missing; queue enough that one lands after it exists.
	for i := 0; i < 4; i++ {
		logger.Log(queuedInfo("http://localhost:8080/a3d?request=Validate"))
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if logFilesWithContent(logDir) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("no log file written after the log directory appeared")
}
