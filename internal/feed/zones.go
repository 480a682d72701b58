package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// zoneTypePath maps the UGC type character to the feed's zone API path segment.
var zoneTypePath = map[byte]string{
	'Z': "forecast",
	'C': "county",
}

type zoneResponse struct {
	Geometry json.RawMessage `json:"geometry"`
}

// FetchZoneGeometry fetches the GeoJSON geometry for one UGC zone code,
// trying the forecast path first and falling back to county on 404. A zone
// with no resolvable geometry returns (nil, nil): a miss, not an error.
func (c *Client) FetchZoneGeometry(ctx context.Context, ugc string) (json.RawMessage, error) {
	code := strings.ToUpper(strings.TrimSpace(ugc))
	if len(code) < 6 {
		return nil, nil
	}

	path, ok := zoneTypePath[code[2]]
	if !ok {
		path = "forecast"
	}

	geom, err := c.getZone(ctx, path, code)
	if err == nil {
		return geom, nil
	}

	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		if path == "forecast" && code[2] != 'C' {
			geom, err = c.getZone(ctx, "county", code)
			if err == nil {
				return geom, nil
			}
			if errors.As(err, &se) && se.code == http.StatusNotFound {
				return nil, nil
			}
		} else {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("fetch zone %s: %w", code, err)
}

func (c *Client) getZone(ctx context.Context, path, code string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/zones/%s/%s", c.baseURL, path, code)
	body, err := c.get(ctx, u, "application/geo+json")
	if err != nil {
		return nil, err
	}
	var resp zoneResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode zone response: %w", err)
	}
	if len(resp.Geometry) == 0 || string(resp.Geometry) == "null" {
		return nil, nil
	}
	return resp.Geometry, nil
}
