package tracking

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidPoint = errors.New("invalid track point")

// Track is the remote track record a recording uploads into.
type Track struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

type TrackCreate struct {
	Name      string     `json:"name,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
}

// TrackPoint is one position sample. Timestamp is serialised as ISO-8601 UTC.
type TrackPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	SpeedKn   *float64  `json:"speed_kn,omitempty"`
	CourseDeg *float64  `json:"course_deg,omitempty"`
}

func (p TrackPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return errors.Join(ErrInvalidPoint, errors.New("lat/lon out of range"))
	}
	if p.SpeedKn != nil && (*p.SpeedKn < 0 || math.IsNaN(*p.SpeedKn)) {
		return errors.Join(ErrInvalidPoint, errors.New("speed_kn must be >= 0"))
	}
	if p.CourseDeg != nil && (*p.CourseDeg < 0 || *p.CourseDeg >= 360 || math.IsNaN(*p.CourseDeg)) {
		return errors.Join(ErrInvalidPoint, errors.New("course_deg must be in [0,360)"))
	}
	return nil
}

// Batch is the upload body: {"points": [...]}.
type Batch struct {
	Points []TrackPoint `json:"points"`
}

// Status describes the recorder at one instant.
type Status struct {
	TrackID     string     `json:"track_id,omitempty"`
	Tracking    bool       `json:"tracking"`
	Buffered    int        `json:"buffered"`
	Uploaded    int        `json:"uploaded"`
	Dropped     int        `json:"dropped"`
	Failures    int        `json:"failures"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	Summary     Summary    `json:"summary"`
}

// Summary is the running distance and speed of the current track.
type Summary struct {
	PointCount  int        `json:"point_count"`
	DistanceNm  float64    `json:"distance_nm"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	DurationSec int64      `json:"duration_sec"`
	AverageKn   float64    `json:"average_speed_kn"`
}
