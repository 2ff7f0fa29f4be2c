package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"marinenav/internal/navapi"
	"marinenav/internal/shared/geo"
)

// Source is the part of the backend routes are resolved against.
type Source interface {
	Route(ctx context.Context, id string) (navapi.Route, error)
	Waypoints(ctx context.Context) ([]navapi.Waypoint, error)
}

type Service struct {
	source  Source
	session *Session
}

func NewService(source Source, session *Session) *Service {
	return &Service{source: source, session: session}
}

func (s *Service) Session() *Session {
	return s.session
}

// Stats resolves the route's waypoint ids in order and computes its legs.
// Ids with no matching waypoint are skipped and reported in Missing.
func (s *Service) Stats(ctx context.Context, routeID string) (RouteSummary, error) {
	route, err := s.route(ctx, routeID)
	if err != nil {
		return RouteSummary{}, err
	}
	waypoints, err := s.source.Waypoints(ctx)
	if err != nil {
		return RouteSummary{}, fmt.Errorf("list waypoints: %w", err)
	}

	byID := make(map[string]navapi.Waypoint, len(waypoints))
	for _, w := range waypoints {
		byID[w.ID] = w
	}

	summary := RouteSummary{
		RouteID:  route.ID,
		Name:     route.Name,
		Points:   make([]geo.Point, 0, len(route.WaypointIDs)),
		Missing:  []string{},
		IsActive: s.session.IsActive(route.ID),
	}
	for _, id := range route.WaypointIDs {
		w, ok := byID[id]
		if !ok {
			summary.Missing = append(summary.Missing, id)
			continue
		}
		summary.Points = append(summary.Points, geo.Point{Lat: w.Lat, Lon: w.Lon})
	}
	summary.Stats = geo.ComputeRouteStats(summary.Points)
	return summary, nil
}

func (s *Service) StatsForPoints(points []geo.Point) (geo.RouteStats, error) {
	for i, p := range points {
		if !p.Valid() {
			return geo.RouteStats{}, fmt.Errorf("%w: point %d out of range", ErrInvalidPoints, i)
		}
	}
	return geo.ComputeRouteStats(points), nil
}

// Activate looks the route up and makes it the active selection.
func (s *Service) Activate(ctx context.Context, routeID string) (ActiveRoute, error) {
	route, err := s.route(ctx, routeID)
	if err != nil {
		return ActiveRoute{}, err
	}
	active := ActiveRoute{ID: route.ID, Name: route.Name}
	s.session.SetActive(active)
	return active, nil
}

func (s *Service) route(ctx context.Context, routeID string) (navapi.Route, error) {
	route, err := s.source.Route(ctx, routeID)
	var apiErr *navapi.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return navapi.Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	if err != nil {
		return navapi.Route{}, fmt.Errorf("get route %s: %w", routeID, err)
	}
	return route, nil
}
