package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"marinenav/internal/tiles"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 4
	DefaultTileTimeout = 15 * time.Second
	defaultUserAgent   = "marinenav-offline/1.0"
)

var ErrTileStatus = errors.New("unexpected tile status")

// ProgressFunc receives (completed, total) after every attempted job.
type ProgressFunc func(completed, total int)

type Options struct {
	// Workers bounds concurrent fetches. 1 fetches strictly in order.
	Workers int
	// Timeout applies to each tile on its own.
	Timeout   time.Duration
	UserAgent string
}

func DefaultOptions() Options {
	return Options{
		Workers:   DefaultWorkers,
		Timeout:   DefaultTileTimeout,
		UserAgent: defaultUserAgent,
	}
}

// Fetcher downloads a tile batch into the local cache. A failed tile is
// recorded in the report and never stops the batch.
type Fetcher struct {
	client *http.Client
	opts   Options
	log    *zap.Logger
}

func NewFetcher(client *http.Client, opts Options, log *zap.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTileTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{client: client, opts: opts, log: log}
}

// Run attempts every job in order. Cancelling ctx stops dispatching new jobs
// and ends the batch as aborted; tiles already written stay on disk.
func (f *Fetcher) Run(ctx context.Context, jobs []tiles.Job, progress ProgressFunc) Report {
	total := len(jobs)
	results := make([]Result, total)

	var (
		mu        sync.Mutex
		attempted int
		g         errgroup.Group
	)
	g.SetLimit(f.opts.Workers)

	dispatched := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() error {
			n, err := f.fetch(ctx, job)
			if err != nil {
				f.log.Warn("tile fetch failed",
					zap.String("tile", job.Address.String()),
					zap.String("url", job.RemoteURL),
					zap.Error(err),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			results[i] = Result{Job: job, Bytes: n, Err: err}
			attempted++
			if progress != nil {
				progress(attempted, total)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		State:     StateCompleted,
		Total:     total,
		Attempted: attempted,
		Results:   results[:dispatched],
	}
	for _, r := range report.Results {
		if r.OK() {
			report.Stored++
			continue
		}
		report.Failed++
		if errors.Is(r.Err, context.Canceled) {
			report.State = StateAborted
		}
	}
	if dispatched < total {
		report.State = StateAborted
	}
	return report
}

func (f *Fetcher) fetch(ctx context.Context, job tiles.Job) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(job.LocalPath), 0o755); err != nil {
		return 0, fmt.Errorf("create tile dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.RemoteURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %d", ErrTileStatus, resp.StatusCode)
	}

	// A tile only appears under its final name once fully written. Each
	// writer gets its own temp file; overlapping downloads may fetch the
	// same tile at once.
	file, err := os.CreateTemp(filepath.Dir(job.LocalPath), filepath.Base(job.LocalPath)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create tile file: %w", err)
	}
	tmp := file.Name()
	n, err := io.Copy(file, resp.Body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write tile: %w", err)
	}
	if err := os.Rename(tmp, job.LocalPath); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("store tile: %w", err)
	}
	return n, nil
}
