// Package feed provides the client for the upstream seismic event feed
// (USGS FDSN event service). It returns raw GeoJSON features; the decision
// core normalizes them.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quakewatch/internal/geo"
)

// DefaultBaseURL is the USGS FDSN event query endpoint.
const DefaultBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1/query"

// defaultLimit caps how many features one poll may return.
const defaultLimit = 100

// Query describes one feed poll. The lookback window should be wider than
// the polling interval to tolerate feed publication latency; the dedup
// layer absorbs the resulting overlap.
type Query struct {
	Bounds       *geo.BoundingBox
	MinMagnitude float64
	Lookback     time.Duration
	Limit        int
}

// Client fetches raw event records from the feed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a feed client. An empty baseURL selects the USGS
// endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// Fetch queries the feed and returns the raw GeoJSON features, ordered as
// the feed returned them. Order is not semantically significant.
func (c *Client) Fetch(ctx context.Context, q Query) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("format", "geojson")
	params.Set("orderby", "time")

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	params.Set("limit", strconv.Itoa(limit))

	if q.Lookback > 0 {
		params.Set("starttime", c.now().UTC().Add(-q.Lookback).Format(time.RFC3339))
	}
	if q.MinMagnitude > 0 {
		params.Set("minmagnitude", strconv.FormatFloat(q.MinMagnitude, 'f', -1, 64))
	}
	if q.Bounds != nil {
		params.Set("minlatitude", strconv.FormatFloat(q.Bounds.MinLat, 'f', -1, 64))
		params.Set("maxlatitude", strconv.FormatFloat(q.Bounds.MaxLat, 'f', -1, 64))
		params.Set("minlongitude", strconv.FormatFloat(q.Bounds.MinLon, 'f', -1, 64))
		params.Set("maxlongitude", strconv.FormatFloat(q.Bounds.MaxLon, 'f', -1, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var collection struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}

	return collection.Features, nil
}

// CombineBounds returns the smallest box covering every region, or nil
// when no regions are configured (the feed is then queried globally).
func CombineBounds(regions []geo.Region) *geo.BoundingBox {
	if len(regions) == 0 {
		return nil
	}
	combined := regions[0].Bounds
	for _, r := range regions[1:] {
		if r.Bounds.MinLat < combined.MinLat {
			combined.MinLat = r.Bounds.MinLat
		}
		if r.Bounds.MaxLat > combined.MaxLat {
			combined.MaxLat = r.Bounds.MaxLat
		}
		if r.Bounds.MinLon < combined.MinLon {
			combined.MinLon = r.Bounds.MinLon
		}
		if r.Bounds.MaxLon > combined.MaxLon {
			combined.MaxLon = r.Bounds.MaxLon
		}
	}
	return &combined
}
