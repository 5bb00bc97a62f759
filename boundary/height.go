package boundary

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strconv"
)

const heightURLFmt = "https://api3.geo.admin.ch/rest/services/height?easting=%.1f&northing=%.1f&sr=2056"

// FetchHeight looks up the terrain elevation at an LV95 coordinate via the
// swisstopo height service.
func (v *Validator) FetchHeight(easting, northing float64) (float64, error) {
	resp, err := v.client.Get(fmt.Sprintf(heightURLFmt, easting, northing))
	if err != nil {
		return 0, fmt.Errorf("height service unreachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("height service returned status %d", resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	// The service returns the height as a JSON string.
	var parsed struct {
		Height json.RawMessage `json:"height"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("height service response unparsable: %v", err)
	}

	raw := string(parsed.Height)
	if len(raw) >= 2 && raw[0] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	height, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("height service returned non-numeric height %q", raw)
	}
	return height, nil
}
