package offline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"marinenav/internal/tiles"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrDownloadNotFound = errors.New("download not found")
	ErrServiceClosed    = errors.New("offline service is shutting down")
)

// Publisher is the stream hub as seen by the download service.
type Publisher interface {
	Broadcast(topic string, payload []byte)
}

// DefaultRetention is how long a finished download stays in memory after the
// catalog has recorded it.
const DefaultRetention = 10 * time.Minute

type download struct {
	Download
	cancel   context.CancelFunc
	done     chan struct{}
	recorded bool
}

// Service validates download areas, runs them in the background and keeps
// their status. Downloads are detached from the request that started them.
type Service struct {
	fetcher *Fetcher
	catalog *Catalog
	hub     Publisher
	source  tiles.Source
	limits  tiles.Limits
	log     *zap.Logger

	retention time.Duration

	mu        sync.Mutex
	downloads map[string]*download
	closed    bool
}

func NewService(fetcher *Fetcher, catalog *Catalog, hub Publisher, source tiles.Source, limits tiles.Limits, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	return &Service{
		fetcher:   fetcher,
		catalog:   catalog,
		hub:       hub,
		source:    source,
		limits:    limits,
		log:       log,
		retention: DefaultRetention,
		downloads: map[string]*download{},
	}
}

func (s *Service) Source() tiles.Source {
	return s.source
}

// Plan validates req and describes the batch it would produce.
func (s *Service) Plan(req tiles.Request) (Plan, error) {
	total, err := tiles.ValidateRequest(req, s.limits)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Total: total, Spans: tiles.Spans(req.BBox, req.MinZoom, req.MaxZoom)}, nil
}

// Start validates req and launches the download. Validation failures are
// returned before any directory or network access.
func (s *Service) Start(ctx context.Context, req tiles.Request) (Download, error) {
	if _, err := tiles.ValidateRequest(req, s.limits); err != nil {
		return Download{}, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Download{}, ErrServiceClosed
	}
	jobs := tiles.BuildBatch(req.BBox, req.MinZoom, req.MaxZoom, s.source)

	runCtx, cancel := context.WithCancel(context.Background())
	d := &download{
		Download: Download{
			ID:        uuid.NewString(),
			Request:   req,
			State:     StateRunning,
			Total:     len(jobs),
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := s.catalog.CreateDownload(ctx, d.Download); err != nil {
		s.log.Warn("catalog create download failed", zap.String("download_id", d.ID), zap.Error(err))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return Download{}, ErrServiceClosed
	}
	s.pruneLocked(time.Now().UTC())
	s.downloads[d.ID] = d
	snapshot := d.Download
	s.mu.Unlock()

	s.log.Info("offline download started",
		zap.String("download_id", d.ID),
		zap.Int("tiles", len(jobs)),
		zap.Int("min_zoom", req.MinZoom),
		zap.Int("max_zoom", req.MaxZoom),
	)
	go s.run(runCtx, d, jobs)
	return snapshot, nil
}

func (s *Service) run(ctx context.Context, d *download, jobs []tiles.Job) {
	defer close(d.done)
	defer d.cancel()

	report := s.fetcher.Run(ctx, jobs, func(completed, total int) {
		s.mu.Lock()
		d.Attempted = completed
		s.mu.Unlock()
		s.publish(Progress{DownloadID: d.ID, Completed: completed, Total: total, State: StateRunning})
	})

	// Catalog writes must outlive a cancelled download.
	bg := context.Background()
	for _, r := range report.Results {
		if !r.OK() {
			continue
		}
		if err := s.catalog.RecordTile(bg, d.ID, r); err != nil {
			s.log.Warn("catalog record tile failed", zap.String("tile", r.Job.Address.String()), zap.Error(err))
		}
	}

	s.mu.Lock()
	d.State = report.State
	d.Attempted = report.Attempted
	d.Stored = report.Stored
	d.Failed = report.Failed
	finished := time.Now().UTC()
	d.FinishedAt = &finished
	final := d.Download
	s.mu.Unlock()

	if err := s.catalog.FinishDownload(bg, final); err != nil {
		s.log.Warn("catalog finish download failed", zap.String("download_id", final.ID), zap.Error(err))
	} else if s.catalog.Enabled() {
		s.mu.Lock()
		d.recorded = true
		s.mu.Unlock()
	}
	s.publish(Progress{
		DownloadID: final.ID,
		Completed:  final.Attempted,
		Total:      final.Total,
		State:      final.State,
		Summary:    report.Summary(),
	})
	s.log.Info("offline download finished",
		zap.String("download_id", final.ID),
		zap.String("state", string(final.State)),
		zap.String("summary", report.Summary()),
		zap.Int("failed", final.Failed),
	)
}

func (s *Service) publish(p Progress) {
	if s.hub == nil {
		return
	}
	payload, _ := json.Marshal(p)
	s.hub.Broadcast(p.DownloadID, payload)
}

// pruneLocked drops finished downloads the catalog has held for longer than
// the retention. Callers hold s.mu.
func (s *Service) pruneLocked(now time.Time) {
	for id, d := range s.downloads {
		if d.recorded && now.Sub(*d.FinishedAt) > s.retention {
			delete(s.downloads, id)
		}
	}
}

// Status returns a running or recently finished download, falling back to
// the catalog for downloads it no longer holds.
func (s *Service) Status(ctx context.Context, id string) (Download, error) {
	s.mu.Lock()
	d, ok := s.downloads[id]
	var snapshot Download
	if ok {
		snapshot = d.Download
	}
	s.mu.Unlock()
	if ok {
		return snapshot, nil
	}
	return s.catalog.GetDownload(ctx, id)
}

// Cancel stops dispatching new tiles. It is a no-op for finished downloads.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	d, ok := s.downloads[id]
	s.mu.Unlock()
	if ok {
		d.cancel()
		return nil
	}
	_, err := s.catalog.GetDownload(ctx, id)
	return err
}

// Wait blocks until the download finishes or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (Download, error) {
	s.mu.Lock()
	d, ok := s.downloads[id]
	s.mu.Unlock()
	if !ok {
		return s.catalog.GetDownload(ctx, id)
	}

	select {
	case <-d.done:
	case <-ctx.Done():
		return Download{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return d.Download, nil
}

// Shutdown refuses new downloads, cancels the running ones and waits for them
// to record their final state.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	running := make([]*download, 0, len(s.downloads))
	for _, d := range s.downloads {
		running = append(running, d)
	}
	s.mu.Unlock()

	for _, d := range running {
		d.cancel()
	}
	for _, d := range running {
		select {
		case <-d.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.log.Info("offline downloads stopped", zap.Int("cancelled", len(running)))
	return nil
}

func (s *Service) CachedTiles(ctx context.Context, zoom int) ([]CachedTile, error) {
	return s.catalog.CachedTiles(ctx, zoom)
}
