package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"marinenav/internal/shared/geo"

	"go.uber.org/zap"
)

var (
	ErrNotTracking     = errors.New("not tracking")
	ErrAlreadyTracking = errors.New("already tracking another track")
	ErrEmptyTrackID    = errors.New("track id required")
	ErrFlushFailed     = errors.New("track flush failed")
)

const (
	DefaultThreshold   = 10
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 2 * time.Minute
	DefaultMaxPending  = 5000
)

// Uploader is the remote side of a recording.
type Uploader interface {
	AppendPoints(ctx context.Context, trackID string, points []TrackPoint) error
	EndTrack(ctx context.Context, trackID string) error
}

// Publisher receives every accepted sample, keyed by track id.
type Publisher interface {
	Broadcast(topic string, payload []byte)
}

type Options struct {
	// Threshold is the buffer length that triggers an upload.
	Threshold   int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// MaxPending caps the buffer while uploads keep failing; the oldest
	// points are dropped past it.
	MaxPending int
}

func DefaultOptions() Options {
	return Options{
		Threshold:   DefaultThreshold,
		BackoffBase: DefaultBackoffBase,
		BackoffMax:  DefaultBackoffMax,
		MaxPending:  DefaultMaxPending,
	}
}

// FlushError is returned by Stop when the trailing points could not be
// uploaded. Points holds them, oldest first.
type FlushError struct {
	TrackID string
	Points  []TrackPoint
	Err     error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("%s: %d points for track %s: %v", ErrFlushFailed, len(e.Points), e.TrackID, e.Err)
}

func (e *FlushError) Unwrap() []error {
	return []error{ErrFlushFailed, e.Err}
}

// Recorder buffers the samples of one track and uploads them in batches.
// State machine: stopped -> tracking -> stopped. A failed upload keeps the
// points and is retried on a later sample once the backoff has elapsed.
type Recorder struct {
	uploader Uploader
	hub      Publisher
	opts     Options
	log      *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	trackID     string
	tracking    bool
	buffer      []TrackPoint
	uploaded    int
	dropped     int
	failures    int
	lastErr     error
	nextAttempt time.Time

	startedAt  time.Time
	lastPoint  *TrackPoint
	pointCount int
	distanceNm float64
}

func NewRecorder(uploader Uploader, hub Publisher, opts Options, log *zap.Logger) *Recorder {
	def := DefaultOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = def.BackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = def.BackoffMax
	}
	if opts.MaxPending < opts.Threshold {
		opts.MaxPending = max(def.MaxPending, opts.Threshold)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{uploader: uploader, hub: hub, opts: opts, log: log, now: time.Now}
}

// Start begins recording into trackID with an empty buffer. Starting the
// track already being recorded is a no-op.
func (r *Recorder) Start(trackID string) error {
	if trackID == "" {
		return ErrEmptyTrackID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tracking {
		if r.trackID == trackID {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadyTracking, r.trackID)
	}

	r.reset()
	r.trackID = trackID
	r.tracking = true
	r.startedAt = r.now().UTC()
	r.log.Info("track started", zap.String("track_id", trackID))
	return nil
}

// AddPoint appends p in arrival order. Reaching the threshold uploads the
// whole buffer; an upload failure is recorded in Status, not returned.
func (r *Recorder) AddPoint(ctx context.Context, p TrackPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.tracking {
		return ErrNotTracking
	}

	p.Timestamp = p.Timestamp.UTC()
	r.buffer = append(r.buffer, p)
	r.observe(p)

	if over := len(r.buffer) - r.opts.MaxPending; over > 0 {
		r.buffer = append([]TrackPoint(nil), r.buffer[over:]...)
		r.dropped += over
		r.log.Error("track buffer full, dropped oldest points",
			zap.String("track_id", r.trackID),
			zap.Int("dropped", over),
		)
	}

	if r.hub != nil {
		payload, _ := json.Marshal(p)
		r.hub.Broadcast(r.trackID, payload)
	}

	if len(r.buffer) >= r.opts.Threshold && !r.now().Before(r.nextAttempt) {
		_ = r.flush(ctx)
	}
	return nil
}

// Stop uploads whatever is still buffered, ends the remote track and returns
// to stopped. The recorder stops even when the upload fails; the unsent
// points come back in a *FlushError.
func (r *Recorder) Stop(ctx context.Context) error {
	_, err := r.Finish(ctx)
	return err
}

// Finish is Stop that also returns the track's last status, taken after the
// final flush with Tracking false.
func (r *Recorder) Finish(ctx context.Context) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.tracking {
		return Status{}, ErrNotTracking
	}

	trackID := r.trackID
	var flushErr error
	if len(r.buffer) > 0 {
		if err := r.flush(ctx); err != nil {
			flushErr = &FlushError{TrackID: trackID, Points: append([]TrackPoint(nil), r.buffer...), Err: err}
		}
	}

	endErr := r.uploader.EndTrack(ctx, trackID)
	if endErr != nil {
		r.log.Warn("end track failed", zap.String("track_id", trackID), zap.Error(endErr))
	}

	r.log.Info("track stopped",
		zap.String("track_id", trackID),
		zap.Int("uploaded", r.uploaded),
		zap.Float64("distance_nm", r.distanceNm),
	)
	final := r.status()
	final.Tracking = false
	r.reset()

	if flushErr != nil {
		return final, flushErr
	}
	if endErr != nil {
		return final, fmt.Errorf("end track %s: %w", trackID, endErr)
	}
	return final, nil
}

func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status()
}

// status builds the snapshot. Callers hold r.mu.
func (r *Recorder) status() Status {
	s := Status{
		TrackID:     r.trackID,
		Tracking:    r.tracking,
		Buffered:    len(r.buffer),
		Uploaded:    r.uploaded,
		Dropped:     r.dropped,
		Failures:    r.failures,
		Summary:     r.summary(),
	}
	if !r.nextAttempt.IsZero() {
		next := r.nextAttempt
		s.NextRetryAt = &next
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	return s
}

// flush uploads the full buffer as one batch. Callers hold r.mu.
func (r *Recorder) flush(ctx context.Context) error {
	batch := append([]TrackPoint(nil), r.buffer...)
	err := r.uploader.AppendPoints(ctx, r.trackID, batch)
	if err != nil {
		r.failures++
		r.lastErr = err
		r.nextAttempt = r.now().Add(r.backoff())
		r.log.Warn("track upload failed, keeping points",
			zap.String("track_id", r.trackID),
			zap.Int("points", len(batch)),
			zap.Int("failures", r.failures),
			zap.Time("next_attempt", r.nextAttempt),
			zap.Error(err),
		)
		return err
	}

	r.buffer = r.buffer[:0]
	r.uploaded += len(batch)
	r.failures = 0
	r.lastErr = nil
	r.nextAttempt = time.Time{}
	r.log.Debug("track batch uploaded", zap.String("track_id", r.trackID), zap.Int("points", len(batch)))
	return nil
}

func (r *Recorder) backoff() time.Duration {
	d := r.opts.BackoffBase
	for i := 1; i < r.failures; i++ {
		d *= 2
		if d >= r.opts.BackoffMax {
			return r.opts.BackoffMax
		}
	}
	return min(d, r.opts.BackoffMax)
}

func (r *Recorder) observe(p TrackPoint) {
	if r.lastPoint != nil {
		r.distanceNm += geo.DistanceNm(
			geo.Point{Lat: r.lastPoint.Lat, Lon: r.lastPoint.Lon},
			geo.Point{Lat: p.Lat, Lon: p.Lon},
		)
	}
	r.lastPoint = &p
	r.pointCount++
}

func (r *Recorder) summary() Summary {
	s := Summary{PointCount: r.pointCount, DistanceNm: r.distanceNm}
	if !r.tracking {
		return s
	}
	started := r.startedAt
	s.StartedAt = &started
	duration := r.now().Sub(r.startedAt)
	s.DurationSec = int64(duration.Seconds())
	if hours := duration.Hours(); hours > 0 {
		s.AverageKn = r.distanceNm / hours
	}
	return s
}

func (r *Recorder) reset() {
	r.trackID = ""
	r.tracking = false
	r.buffer = nil
	r.uploaded = 0
	r.dropped = 0
	r.failures = 0
	r.lastErr = nil
	r.nextAttempt = time.Time{}
	r.startedAt = time.Time{}
	r.lastPoint = nil
	r.pointCount = 0
	r.distanceNm = 0
}
