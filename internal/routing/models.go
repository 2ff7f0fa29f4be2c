package routing

import (
	"errors"

	"marinenav/internal/shared/geo"
)

var (
	ErrRouteNotFound = errors.New("route not found")
	ErrInvalidPoints = errors.New("invalid route points")
)

// ActiveRoute is the route currently shown on the chart.
type ActiveRoute struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type StatsRequest struct {
	Points []geo.Point `json:"points"`
}

// RouteSummary is the stats of a stored route. Missing lists waypoint ids
// the route references but the backend no longer has.
type RouteSummary struct {
	RouteID  string         `json:"route_id"`
	Name     string         `json:"name"`
	Points   []geo.Point    `json:"points"`
	Missing  []string       `json:"missing"`
	Stats    geo.RouteStats `json:"stats"`
	IsActive bool           `json:"is_active"`
}
