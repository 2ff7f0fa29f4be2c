package tracking

import (
	"context"
	"fmt"
	"sync"
)

// Backend is the remote track API: a recording needs a track id before the
// first sample is accepted.
type Backend interface {
	Uploader
	CreateTrack(ctx context.Context, in TrackCreate) (Track, error)
}

type Service struct {
	backend  Backend
	recorder *Recorder

	// startMu makes check, create and start one step.
	startMu sync.Mutex
}

func NewService(backend Backend, recorder *Recorder) *Service {
	return &Service{backend: backend, recorder: recorder}
}

// StartTrack creates the remote track and starts recording into it. It
// refuses before any remote call when another track is being recorded.
func (s *Service) StartTrack(ctx context.Context, in TrackCreate) (Track, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if st := s.recorder.Status(); st.Tracking {
		return Track{}, fmt.Errorf("%w: %s", ErrAlreadyTracking, st.TrackID)
	}

	track, err := s.backend.CreateTrack(ctx, in)
	if err != nil {
		return Track{}, fmt.Errorf("create track: %w", err)
	}
	if err := s.recorder.Start(track.ID); err != nil {
		return Track{}, err
	}
	return track, nil
}

func (s *Service) AddPoint(ctx context.Context, p TrackPoint) (Status, error) {
	if err := p.Validate(); err != nil {
		return Status{}, err
	}
	if err := s.recorder.AddPoint(ctx, p); err != nil {
		return Status{}, err
	}
	return s.recorder.Status(), nil
}

// StopTrack returns the final status of the stopped track: its summary and
// what was uploaded or left unsent.
func (s *Service) StopTrack(ctx context.Context) (Status, error) {
	return s.recorder.Finish(ctx)
}

func (s *Service) Status() Status {
	return s.recorder.Status()
}
