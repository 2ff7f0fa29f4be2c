package navapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marinenav/internal/tracking"

	"go.uber.org/zap"
)

const DefaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client talks to the navigation backend under /api.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

var _ tracking.Backend = (*Client)(nil)

func (c *Client) CreateTrack(ctx context.Context, in tracking.TrackCreate) (tracking.Track, error) {
	var out wireTrack
	if err := c.do(ctx, http.MethodPost, "/api/tracks", in, &out); err != nil {
		return tracking.Track{}, err
	}
	return out.track(), nil
}

func (c *Client) AppendPoints(ctx context.Context, trackID string, points []tracking.TrackPoint) error {
	path := "/api/tracks/" + url.PathEscape(trackID) + "/points"
	return c.do(ctx, http.MethodPost, path, tracking.Batch{Points: points}, nil)
}

func (c *Client) EndTrack(ctx context.Context, trackID string) error {
	path := "/api/tracks/" + url.PathEscape(trackID) + "/end"
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

func (c *Client) Waypoints(ctx context.Context) ([]Waypoint, error) {
	var out []wireWaypoint
	if err := c.do(ctx, http.MethodGet, "/api/waypoints", nil, &out); err != nil {
		return nil, err
	}
	waypoints := make([]Waypoint, 0, len(out))
	for _, w := range out {
		waypoints = append(waypoints, w.waypoint())
	}
	return waypoints, nil
}

func (c *Client) CreateWaypoint(ctx context.Context, in WaypointCreate) (Waypoint, error) {
	var out wireWaypoint
	if err := c.do(ctx, http.MethodPost, "/api/waypoints", in, &out); err != nil {
		return Waypoint{}, err
	}
	return out.waypoint(), nil
}

func (c *Client) Routes(ctx context.Context) ([]Route, error) {
	var out []wireRoute
	if err := c.do(ctx, http.MethodGet, "/api/routes", nil, &out); err != nil {
		return nil, err
	}
	routes := make([]Route, 0, len(out))
	for _, r := range out {
		routes = append(routes, r.route())
	}
	return routes, nil
}

func (c *Client) Route(ctx context.Context, id string) (Route, error) {
	var out wireRoute
	if err := c.do(ctx, http.MethodGet, "/api/routes/"+url.PathEscape(id), nil, &out); err != nil {
		return Route{}, err
	}
	return out.route(), nil
}

func (c *Client) CreateRoute(ctx context.Context, in RouteCreate) (Route, error) {
	if in.WaypointIDs == nil {
		in.WaypointIDs = []string{}
	}
	var out wireRoute
	if err := c.do(ctx, http.MethodPost, "/api/routes", in, &out); err != nil {
		return Route{}, err
	}
	return out.route(), nil
}

// TideStations filters by case-insensitive name substring and state; empty
// arguments are not sent.
func (c *Client) TideStations(ctx context.Context, search, state string) ([]TideStation, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if state != "" {
		q.Set("state", state)
	}
	path := "/api/tides/stations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []TideStation
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []TideStation{}
	}
	return out, nil
}

// TidePredictions returns the high/low predictions for one day. A zero date
// leaves the choice of day to the backend.
func (c *Client) TidePredictions(ctx context.Context, stationID string, date time.Time) (TidePredictions, error) {
	path := "/api/tides/stations/" + url.PathEscape(stationID) + "/predictions"
	if !date.IsZero() {
		path += "?" + url.Values{"target_date": {date.Format(time.DateOnly)}}.Encode()
	}

	var out wirePredictions
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return TidePredictions{}, err
	}
	res := TidePredictions{StationID: out.StationID, Date: out.Date, Predictions: make([]TidePrediction, 0, len(out.Predictions))}
	for _, p := range out.Predictions {
		res.Predictions = append(res.Predictions, TidePrediction{Time: p.Time.Time, HeightFt: p.HeightFt, Type: p.Type})
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
