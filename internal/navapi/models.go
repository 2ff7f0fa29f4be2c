package navapi

import (
	"strings"
	"time"

	"marinenav/internal/tracking"
)

type Waypoint struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	CreatedAt   time.Time `json:"created_at"`
}

type WaypointCreate struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Route is an ordered list of waypoint ids.
type Route struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	WaypointIDs []string  `json:"waypoint_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

type RouteCreate struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	WaypointIDs []string `json:"waypoint_ids"`
}

type TideStation struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	State string   `json:"state,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
}

type TidePrediction struct {
	Time     time.Time `json:"time"`
	HeightFt float64   `json:"height_ft"`
	Type     string    `json:"type,omitempty"`
}

type TidePredictions struct {
	StationID   string           `json:"station_id"`
	Date        string           `json:"date"`
	Predictions []TidePrediction `json:"predictions"`
}

// Time accepts the backend's datetimes with or without a zone. Zone-less
// values are taken as UTC.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

type wireTrack struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Notes     string `json:"notes"`
	StartTime Time   `json:"start_time"`
	EndTime   *Time  `json:"end_time"`
}

func (w wireTrack) track() tracking.Track {
	t := tracking.Track{ID: w.ID, Name: w.Name, Notes: w.Notes, StartTime: w.StartTime.Time}
	if w.EndTime != nil && !w.EndTime.IsZero() {
		end := w.EndTime.Time
		t.EndTime = &end
	}
	return t
}

type wireWaypoint struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	CreatedAt   Time    `json:"created_at"`
}

func (w wireWaypoint) waypoint() Waypoint {
	return Waypoint{ID: w.ID, Name: w.Name, Description: w.Description, Lat: w.Lat, Lon: w.Lon, CreatedAt: w.CreatedAt.Time}
}

type wireRoute struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	WaypointIDs []string `json:"waypoint_ids"`
	CreatedAt   Time     `json:"created_at"`
}

func (w wireRoute) route() Route {
	ids := w.WaypointIDs
	if ids == nil {
		ids = []string{}
	}
	return Route{ID: w.ID, Name: w.Name, Description: w.Description, WaypointIDs: ids, CreatedAt: w.CreatedAt.Time}
}

type wirePredictions struct {
	StationID   string `json:"station_id"`
	Date        string `json:"date"`
	Predictions []struct {
		Time     Time    `json:"time"`
		HeightFt float64 `json:"height_ft"`
		Type     string  `json:"type"`
	} `json:"predictions"`
}
