package tiles

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidBBox  = errors.New("invalid bounding box")
	ErrInvalidZoom  = errors.New("invalid zoom range")
	ErrAreaTooLarge = errors.New("area too large")
)

const (
	DefaultMinZoom  = 5
	DefaultMaxZoom  = 17
	DefaultMaxTiles = 2000
)

// Request is a caller-supplied offline download area.
type Request struct {
	BBox    BBox `json:"bbox"`
	MinZoom int  `json:"min_zoom"`
	MaxZoom int  `json:"max_zoom"`
}

// Limits bounds what a Request may ask for.
type Limits struct {
	MinZoom  int
	MaxZoom  int
	MaxTiles int
}

func DefaultLimits() Limits {
	return Limits{MinZoom: DefaultMinZoom, MaxZoom: DefaultMaxZoom, MaxTiles: DefaultMaxTiles}
}

// ValidateRequest checks req against limits and returns the job count the
// batch would have. It performs no I/O.
func ValidateRequest(req Request, limits Limits) (int, error) {
	b := req.BBox
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: coordinates must be finite", ErrInvalidBBox)
		}
	}
	if math.Abs(b.North) > MaxLatitude || math.Abs(b.South) > MaxLatitude {
		return 0, fmt.Errorf("%w: latitude outside ±%.4f", ErrInvalidBBox, MaxLatitude)
	}
	if math.Abs(b.East) > 180 || math.Abs(b.West) > 180 {
		return 0, fmt.Errorf("%w: longitude outside ±180", ErrInvalidBBox)
	}
	if b.North == b.South || b.East == b.West {
		return 0, fmt.Errorf("%w: box has no area", ErrInvalidBBox)
	}

	if req.MinZoom > req.MaxZoom || req.MinZoom < limits.MinZoom || req.MaxZoom > limits.MaxZoom {
		return 0, fmt.Errorf("%w: zoom must satisfy %d <= min <= max <= %d", ErrInvalidZoom, limits.MinZoom, limits.MaxZoom)
	}

	count := CountBatch(b, req.MinZoom, req.MaxZoom)
	if limits.MaxTiles > 0 && count > limits.MaxTiles {
		return count, fmt.Errorf("%w: %d tiles exceeds limit of %d", ErrAreaTooLarge, count, limits.MaxTiles)
	}
	return count, nil
}
