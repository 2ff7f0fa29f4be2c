package offline

import (
	"context"
	"errors"
	"fmt"

	"marinenav/internal/db"

	"github.com/jackc/pgx/v5"
)

// Catalog records downloads and cached tiles in Postgres. A Catalog with a
// nil Querier accepts every write and lists nothing, so downloads keep
// working on a gateway without a database.
type Catalog struct {
	db db.Querier
}

func NewCatalog(q db.Querier) *Catalog {
	return &Catalog{db: q}
}

func (c *Catalog) Enabled() bool {
	return c != nil && c.db != nil
}

func (c *Catalog) CreateDownload(ctx context.Context, d Download) error {
	if !c.Enabled() {
		return nil
	}
	b := d.Request.BBox
	_, err := c.db.Exec(ctx, `
		INSERT INTO offline_downloads (id, north, south, east, west, min_zoom, max_zoom, total, state, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, d.ID, b.North, b.South, b.East, b.West, d.Request.MinZoom, d.Request.MaxZoom, d.Total, string(d.State), d.StartedAt)
	return err
}

func (c *Catalog) FinishDownload(ctx context.Context, d Download) error {
	if !c.Enabled() {
		return nil
	}
	_, err := c.db.Exec(ctx, `
		UPDATE offline_downloads
		SET state=$2, attempted=$3, stored=$4, failed=$5, finished_at=$6
		WHERE id=$1
	`, d.ID, string(d.State), d.Attempted, d.Stored, d.Failed, d.FinishedAt)
	return err
}

func (c *Catalog) GetDownload(ctx context.Context, id string) (Download, error) {
	if !c.Enabled() {
		return Download{}, ErrDownloadNotFound
	}
	row := c.db.QueryRow(ctx, `
		SELECT id, north, south, east, west, min_zoom, max_zoom, total, state,
		       COALESCE(attempted,0), COALESCE(stored,0), COALESCE(failed,0), started_at, finished_at
		FROM offline_downloads WHERE id=$1
	`, id)

	var (
		d     Download
		state string
	)
	b := &d.Request.BBox
	if err := row.Scan(&d.ID, &b.North, &b.South, &b.East, &b.West, &d.Request.MinZoom, &d.Request.MaxZoom,
		&d.Total, &state, &d.Attempted, &d.Stored, &d.Failed, &d.StartedAt, &d.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Download{}, ErrDownloadNotFound
		}
		return Download{}, fmt.Errorf("load download %s: %w", id, err)
	}
	d.State = State(state)
	return d, nil
}

// RecordTile upserts a stored tile; the cache is append-only so a refetch
// only refreshes the row.
func (c *Catalog) RecordTile(ctx context.Context, downloadID string, r Result) error {
	if !c.Enabled() {
		return nil
	}
	a := r.Job.Address
	_, err := c.db.Exec(ctx, `
		INSERT INTO cached_tiles (z, x, y, path, size_bytes, download_id, fetched_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		ON CONFLICT (z, x, y) DO UPDATE
		SET path=EXCLUDED.path, size_bytes=EXCLUDED.size_bytes, download_id=EXCLUDED.download_id, fetched_at=now()
	`, a.Z, a.X, a.Y, r.Job.LocalPath, r.Bytes, downloadID)
	return err
}

func (c *Catalog) CachedTiles(ctx context.Context, zoom int) ([]CachedTile, error) {
	if !c.Enabled() {
		return []CachedTile{}, nil
	}
	rows, err := c.db.Query(ctx, `
		SELECT z, x, y, path, size_bytes, download_id, fetched_at
		FROM cached_tiles WHERE z=$1
		ORDER BY x, y
	`, zoom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tilesOut := []CachedTile{}
	for rows.Next() {
		var t CachedTile
		if err := rows.Scan(&t.Z, &t.X, &t.Y, &t.Path, &t.SizeBytes, &t.DownloadID, &t.FetchedAt); err != nil {
			return nil, err
		}
		tilesOut = append(tilesOut, t)
	}
	return tilesOut, rows.Err()
}
