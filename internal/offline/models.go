package offline

import (
	"fmt"
	"time"

	"marinenav/internal/tiles"
)

// State is where a batch is in its lifecycle: idle -> running -> completed|aborted.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

func (s State) Finished() bool {
	return s == StateCompleted || s == StateAborted
}

// Result is the outcome of one attempted job. Err is nil when the tile was stored.
type Result struct {
	Job   tiles.Job `json:"job"`
	Bytes int64     `json:"bytes"`
	Err   error     `json:"-"`
}

func (r Result) OK() bool {
	return r.Err == nil
}

type Report struct {
	State     State    `json:"state"`
	Total     int      `json:"total"`
	Attempted int      `json:"attempted"`
	Stored    int      `json:"stored"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"-"`
}

func (r Report) Summary() string {
	return fmt.Sprintf("stored %d of %d tiles", r.Stored, r.Total)
}

// Download is a batch started through the Service.
type Download struct {
	ID         string        `json:"id"`
	Request    tiles.Request `json:"request"`
	State      State         `json:"state"`
	Total      int           `json:"total"`
	Attempted  int           `json:"attempted"`
	Stored     int           `json:"stored"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Plan describes a batch without fetching anything.
type Plan struct {
	Total int          `json:"total"`
	Spans []tiles.Span `json:"spans"`
}

type CachedTile struct {
	Z          int       `json:"z"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	DownloadID string    `json:"download_id"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Progress is the payload published on the stream hub while a download runs.
type Progress struct {
	DownloadID string `json:"download_id"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	State      State  `json:"state"`
	Summary    string `json:"summary,omitempty"`
}
