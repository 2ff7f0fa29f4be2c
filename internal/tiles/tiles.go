// Package tiles maps geographic areas onto the web-mercator slippy-map grid.
//
// Everything here is a pure function of its inputs. Range checks live in
// ValidateRequest and are the caller's responsibility; BuildBatch never
// validates or truncates.
package tiles

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxLatitude is the edge of the square mercator world.
const MaxLatitude = 85.05112878

// Address identifies one tile: 0 <= X,Y < 2^Z.
type Address struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Z, a.X, a.Y)
}

func (a Address) Tile() maptile.Tile {
	return maptile.New(uint32(a.X), uint32(a.Y), maptile.Zoom(a.Z))
}

// Bound is the geographic extent covered by the tile.
func (a Address) Bound() orb.Bound {
	return a.Tile().Bound()
}

// BBox is a bounding box in degrees. North may be below South when the
// caller passes corners in the wrong order; BuildBatch normalises it.
type BBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(b.West, b.East), math.Min(b.South, b.North)},
		Max: orb.Point{math.Max(b.West, b.East), math.Max(b.South, b.North)},
	}
}

// Job is one tile to fetch. It lives only as long as its batch.
type Job struct {
	Address   Address `json:"address"`
	RemoteURL string  `json:"remote_url"`
	LocalPath string  `json:"local_path"`
}

// Source builds the remote URL and local cache path for an address.
type Source struct {
	ServerURL   string
	StorageRoot string
}

// URL returns {ServerURL}/{z}/{x}/{y}.png.
func (s Source) URL(a Address) string {
	return strings.TrimRight(s.ServerURL, "/") + "/" + a.String() + ".png"
}

// Path returns {StorageRoot}/tiles/{z}/{x}/{y}.png.
func (s Source) Path(a Address) string {
	return filepath.Join(s.StorageRoot, "tiles", strconv.Itoa(a.Z), strconv.Itoa(a.X), strconv.Itoa(a.Y)+".png")
}

// ForPoint returns the tile containing (lat, lon) at zoom. The antimeridian
// (lon 180) and the edges of the Mercator range fall in the last tile of the
// row or column, so 0 <= X,Y < 2^zoom always holds.
func ForPoint(lat, lon float64, zoom int) Address {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180
	x := math.Floor((lon + 180) / 360 * n)
	y := math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)
	return Address{Z: zoom, X: clampTile(x, n), Y: clampTile(y, n)}
}

func clampTile(v, n float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > n-1 {
		return int(n - 1)
	}
	return int(v)
}

// Span is the inclusive tile rectangle covering a box at one zoom level.
type Span struct {
	Zoom int `json:"zoom"`
	MinX int `json:"min_x"`
	MaxX int `json:"max_x"`
	MinY int `json:"min_y"`
	MaxY int `json:"max_y"`
}

func (s Span) Count() int {
	return (s.MaxX - s.MinX + 1) * (s.MaxY - s.MinY + 1)
}

// Spans returns one span per zoom in [zoomMin, zoomMax], ascending.
func Spans(box BBox, zoomMin, zoomMax int) []Span {
	var spans []Span
	for z := zoomMin; z <= zoomMax; z++ {
		nw := ForPoint(box.North, box.West, z)
		se := ForPoint(box.South, box.East, z)
		spans = append(spans, Span{
			Zoom: z,
			MinX: min(nw.X, se.X),
			MaxX: max(nw.X, se.X),
			MinY: min(nw.Y, se.Y),
			MaxY: max(nw.Y, se.Y),
		})
	}
	return spans
}

// CountBatch is len(BuildBatch(...)) without building the jobs.
func CountBatch(box BBox, zoomMin, zoomMax int) int {
	total := 0
	for _, s := range Spans(box, zoomMin, zoomMax) {
		total += s.Count()
	}
	return total
}

// BuildBatch enumerates every tile covering box for each zoom in
// [zoomMin, zoomMax], ordered by zoom, then x, then y.
func BuildBatch(box BBox, zoomMin, zoomMax int, src Source) []Job {
	var jobs []Job
	for _, s := range Spans(box, zoomMin, zoomMax) {
		for x := s.MinX; x <= s.MaxX; x++ {
			for y := s.MinY; y <= s.MaxY; y++ {
				addr := Address{Z: s.Zoom, X: x, Y: y}
				jobs = append(jobs, Job{
					Address:   addr,
					RemoteURL: src.URL(addr),
					LocalPath: src.Path(addr),
				})
			}
		}
	}
	return jobs
}
