package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"time"
)

type URLInfo struct {
	RawURL string            `json:"raw_url"`
	Host   string            `json:"host"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query"`
}

// ValidationInfo records the boundary-validation outcome of a request,
// when the request performed one.
type ValidationInfo struct {
	Duration time.Duration `json:"duration"`
	Valid    bool          `json:"valid"`
	Degraded bool          `json:"degraded"`
	Message  string        `json:"message"`
}

// RunInfo records the subprocess launched by a Run request.
type RunInfo struct {
	Duration time.Duration `json:"duration"`
	Binary   string        `json:"binary"`
	ExitCode int           `json:"exit_code"`
	NumLines int           `json:"num_lines"`
}

type MetricsInfo struct {
	ReqTime     string          `json:"req_time"`
	ReqDuration time.Duration   `json:"req_duration"`
	URL         URLInfo         `json:"url"`
	RemoteAddr  string          `json:"remote_addr"`
	RemoteHost  string          `json:"remote_host"`
	RemotePort  string          `json:"remote_port"`
	HTTPStatus  int             `json:"http_status"`
	Validation  *ValidationInfo `json:"validation"`
	Run         *RunInfo        `json:"run"`
}

type MetricsCollector struct {
	Info   *MetricsInfo
	logger Logger
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info: &MetricsInfo{
			Validation: &ValidationInfo{},
			Run:        &RunInfo{},
		},
		logger: logger,
	}
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *MetricsInfo) ToJSON() (string, error) {
	i.normaliseNetworkAddr(i.RemoteAddr)
	err := i.normaliseURL(&i.URL)
	if err != nil {
		log.Printf("metrics: normaliseUrl() error: %v", err)
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err = enc.Encode(i)
	if err == nil {
		return buf.String(), nil
	} else {
		return "", err
	}
}

func (i *MetricsInfo) normaliseNetworkAddr(addr string) {
	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		i.RemoteHost = host
		i.RemotePort = port
	} else {
		i.RemoteHost = addr
	}
}

func (i *MetricsInfo) normaliseURL(u *URLInfo) error {
	r, err := url.Parse(u.RawURL)
	if err != nil {
		return err
	}

	u.Host = r.Host
	u.Path = r.Path
	query, err := url.ParseQuery(r.RawQuery)
	if err != nil {
		return err
	}

	if u.Query == nil {
		u.Query = make(map[string]string)
	}
	for k, v := range query {
		if len(v) == 1 {
			u.Query[k] = v[0]
		} else if len(v) > 1 {
			u.Query[k] = fmt.Sprintf("%v", v)
		} else {
			u.Query[k] = ""
		}
	}
	return nil
}
