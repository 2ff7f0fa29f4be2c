package offline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"marinenav/internal/tiles"

	"github.com/pashagolub/pgxmock/v3"
)

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	progress []Progress
}

func (p *recordingPublisher) Broadcast(topic string, payload []byte) {
	var pr Progress
	_ = json.Unmarshal(payload, &pr)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.progress = append(p.progress, pr)
}

func (p *recordingPublisher) snapshot() ([]string, []Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...), append([]Progress(nil), p.progress...)
}

func newTestService(t *testing.T, serverURL string, catalog *Catalog, pub Publisher) *Service {
	t.Helper()
	src := tiles.Source{ServerURL: serverURL, StorageRoot: t.TempDir()}
	return NewService(serialFetcher(), catalog, pub, src, tiles.DefaultLimits(), nil)
}

func waitDone(t *testing.T, svc *Service, id string) Download {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return d
}

func TestServicePlan(t *testing.T) {
	svc := newTestService(t, "http://unused", nil, nil)

	plan, err := svc.Plan(tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 6})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Total != 4 || len(plan.Spans) != 2 {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	_, err = svc.Plan(tiles.Request{BBox: smallBox, MinZoom: 3, MaxZoom: 6})
	if !errors.Is(err, tiles.ErrInvalidZoom) {
		t.Fatalf("expected invalid zoom, got %v", err)
	}
}

func TestServiceStartRunsDownload(t *testing.T) {
	srv := tileServer(t)
	pub := &recordingPublisher{}
	svc := newTestService(t, srv.URL, nil, pub)

	d, err := svc.Start(context.Background(), tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 6})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.ID == "" || d.State != StateRunning || d.Total != 4 {
		t.Fatalf("unexpected download: %+v", d)
	}

	final := waitDone(t, svc, d.ID)
	if final.State != StateCompleted || final.Stored != 4 || final.Attempted != 4 {
		t.Fatalf("unexpected final download: %+v", final)
	}

	topics, progress := pub.snapshot()
	if len(progress) != 5 {
		t.Fatalf("expected 4 progress events and a summary, got %d", len(progress))
	}
	for _, topic := range topics {
		if topic != d.ID {
			t.Fatalf("progress published on wrong topic %q", topic)
		}
	}
	last := progress[len(progress)-1]
	if last.State != StateCompleted || last.Summary != "stored 4 of 4 tiles" {
		t.Fatalf("unexpected final event: %+v", last)
	}
}

func TestServiceStartValidationHasNoSideEffects(t *testing.T) {
	svc := newTestService(t, "http://unused", nil, nil)

	_, err := svc.Start(context.Background(), tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 17})
	if !errors.Is(err, tiles.ErrAreaTooLarge) {
		t.Fatalf("expected area too large, got %v", err)
	}
	entries, _ := os.ReadDir(svc.Source().StorageRoot)
	if len(entries) != 0 {
		t.Fatalf("expected no files written")
	}
}

func TestServiceCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()
	defer close(release)

	svc := newTestService(t, srv.URL, nil, nil)
	d, err := svc.Start(context.Background(), tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 7})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Cancel(context.Background(), d.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final := waitDone(t, svc, d.ID)
	if final.State != StateAborted {
		t.Fatalf("expected aborted, got %+v", final)
	}
	if err := svc.Cancel(context.Background(), "missing"); !errors.Is(err, ErrDownloadNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceRecordsCatalog(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO offline_downloads`).
		WithArgs(pgxmock.AnyArg(), 1.0, 0.0, 1.0, 0.0, 5, 5, 2, "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO cached_tiles`).
		WithArgs(5, 16, 15, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO cached_tiles`).
		WithArgs(5, 16, 16, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectExec(`UPDATE offline_downloads`).
		WithArgs(pgxmock.AnyArg(), "completed", 2, 2, 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	srv := tileServer(t)
	svc := newTestService(t, srv.URL, NewCatalog(mock), nil)

	d, err := svc.Start(context.Background(), tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitDone(t, svc, d.ID)
	if final.Stored != 2 {
		t.Fatalf("catalog errors must not affect the download: %+v", final)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceStatusFallsBackToCatalog(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	started := time.Now().Add(-time.Hour)
	finished := started.Add(time.Minute)
	mock.ExpectQuery(`SELECT id, north, south, east, west, min_zoom, max_zoom, total, state`).
		WithArgs("old-1").
		WillReturnRows(downloadRows().
			AddRow("old-1", 1.0, 0.0, 1.0, 0.0, 5, 5, 2, "completed", 2, 1, 1, started, &finished))
	mock.ExpectQuery(`SELECT id, north, south, east, west, min_zoom, max_zoom, total, state`).
		WithArgs("missing").
		WillReturnRows(downloadRows())
	mock.ExpectQuery(`SELECT id, north, south, east, west, min_zoom, max_zoom, total, state`).
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	svc := newTestService(t, "http://unused", NewCatalog(mock), nil)

	d, err := svc.Status(context.Background(), "old-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if d.State != StateCompleted || d.Stored != 1 || d.Request.BBox.North != 1 {
		t.Fatalf("unexpected download: %+v", d)
	}
	if d.FinishedAt == nil || !d.FinishedAt.Equal(finished) {
		t.Fatalf("expected finished_at from the catalog: %+v", d)
	}

	if _, err := svc.Status(context.Background(), "missing"); !errors.Is(err, ErrDownloadNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = svc.Status(context.Background(), "broken")
	if err == nil || errors.Is(err, ErrDownloadNotFound) {
		t.Fatalf("a catalog failure is not a missing download, got %v", err)
	}
}

func downloadRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "north", "south", "east", "west", "min_zoom", "max_zoom", "total", "state", "attempted", "stored", "failed", "started_at", "finished_at"})
}

func expectDownloadWrites(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(`INSERT INTO offline_downloads`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO cached_tiles`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO cached_tiles`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE offline_downloads`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestServicePrunesRecordedDownloads(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	expectDownloadWrites(mock)

	srv := tileServer(t)
	svc := newTestService(t, srv.URL, NewCatalog(mock), nil)

	d, err := svc.Start(context.Background(), tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitDone(t, svc, d.ID)
	if final.FinishedAt == nil {
		t.Fatalf("expected finished_at: %+v", final)
	}

	svc.mu.Lock()
	svc.pruneLocked(time.Now().UTC())
	kept := len(svc.downloads)
	svc.pruneLocked(final.FinishedAt.Add(DefaultRetention + time.Second))
	left := len(svc.downloads)
	svc.mu.Unlock()
	if kept != 1 || left != 0 {
		t.Fatalf("expected recorded download pruned after retention, kept=%d left=%d", kept, left)
	}

	mock.ExpectQuery(`SELECT id, north, south, east, west, min_zoom, max_zoom, total, state`).
		WithArgs(d.ID).
		WillReturnRows(downloadRows().
			AddRow(d.ID, 1.0, 0.0, 1.0, 0.0, 5, 5, 2, "completed", 2, 2, 0, final.StartedAt, final.FinishedAt))
	stored, err := svc.Status(context.Background(), d.ID)
	if err != nil || stored.State != StateCompleted || stored.Stored != 2 {
		t.Fatalf("expected pruned download from the catalog: %v %+v", err, stored)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceKeepsDownloadsWithoutCatalog(t *testing.T) {
	srv := tileServer(t)
	svc := newTestService(t, srv.URL, nil, nil)

	d, err := svc.Start(context.Background(), tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitDone(t, svc, d.ID)

	svc.mu.Lock()
	svc.pruneLocked(final.FinishedAt.Add(DefaultRetention + time.Hour))
	left := len(svc.downloads)
	svc.mu.Unlock()
	if left != 1 {
		t.Fatalf("without a catalog the download must stay in memory")
	}
}

func TestServiceShutdownCancelsDownloads(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()
	defer close(release)

	svc := newTestService(t, srv.URL, nil, nil)
	d, err := svc.Start(context.Background(), tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 7})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	st, err := svc.Status(context.Background(), d.ID)
	if err != nil || st.State != StateAborted || st.FinishedAt == nil {
		t.Fatalf("expected aborted download after shutdown: %v %+v", err, st)
	}
	if _, err := svc.Start(context.Background(), tiles.Request{BBox: smallBox, MinZoom: 5, MaxZoom: 5}); !errors.Is(err, ErrServiceClosed) {
		t.Fatalf("expected closed service, got %v", err)
	}

	_ = filepath.WalkDir(svc.Source().StorageRoot, func(path string, _ os.DirEntry, err error) error {
		if err == nil && strings.HasSuffix(path, ".part") {
			t.Fatalf("temp file left behind: %s", path)
		}
		return nil
	})
}

func TestDownloadOmitsUnsetFinishTime(t *testing.T) {
	raw, err := json.Marshal(Download{ID: "d1", StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "finished_at") {
		t.Fatalf("expected finished_at omitted, got %s", raw)
	}
}

func TestCatalogCachedTiles(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT z, x, y, path, size_bytes, download_id, fetched_at`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"z", "x", "y", "path", "size_bytes", "download_id", "fetched_at"}).
			AddRow(5, 16, 15, "/data/tiles/5/16/15.png", int64(120), "dl-1", time.Now()))

	cached, err := NewCatalog(mock).CachedTiles(context.Background(), 5)
	if err != nil || len(cached) != 1 || cached[0].X != 16 {
		t.Fatalf("cached tiles: %v %+v", err, cached)
	}

	empty, err := NewCatalog(nil).CachedTiles(context.Background(), 5)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list without database")
	}
}
