package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"marinenav/internal/navapi"
	"marinenav/internal/routing"
	"marinenav/internal/shared/geo"

	"github.com/spf13/cobra"
)

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route geometry",
	}

	var routeID, backendURL string
	stats := &cobra.Command{
		Use:   "stats [lat,lon ...]",
		Short: "Print the legs and total distance of a route",
		Long: `Print the great-circle legs of a route in nautical miles. Points are
given as lat,lon arguments, or the route is loaded from the backend with --route.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := routing.NewService(navapi.NewClient(backendURL, 0, cliLogger(cmd)), routing.NewSession())
			if routeID != "" {
				summary, err := svc.Stats(cmd.Context(), routeID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "route %s (%s)\n", summary.Name, summary.RouteID)
				for _, id := range summary.Missing {
					fmt.Fprintf(cmd.OutOrStdout(), "skipped unknown waypoint %s\n", id)
				}
				printStats(cmd.OutOrStdout(), summary.Stats)
				return nil
			}

			points, err := parsePoints(args)
			if err != nil {
				return err
			}
			st, err := svc.StatsForPoints(points)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), st)
			return nil
		},
	}
	stats.Flags().StringVar(&routeID, "route", "", "Route id to load from the backend")
	stats.Flags().StringVar(&backendURL, "backend", "http://localhost:8001", "Backend base URL")

	var listBackend string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored routes with their total distance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := navapi.NewClient(listBackend, 0, cliLogger(cmd))
			svc := routing.NewService(client, routing.NewSession())
			routes, err := client.Routes(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range routes {
				summary, err := svc.Stats(cmd.Context(), r.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d waypoints\t%.2f nm\n",
					r.ID, r.Name, len(r.WaypointIDs), summary.Stats.TotalDistanceNm)
			}
			return nil
		},
	}
	list.Flags().StringVar(&listBackend, "backend", "http://localhost:8001", "Backend base URL")

	cmd.AddCommand(stats, list)
	return cmd
}

func parsePoints(args []string) ([]geo.Point, error) {
	points := make([]geo.Point, 0, len(args))
	for _, arg := range args {
		p, err := parsePoint(arg)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func parsePoint(arg string) (geo.Point, error) {
	latStr, lonStr, ok := strings.Cut(arg, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("point %q: want lat,lon", arg)
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err := errors.Join(errLat, errLon); err != nil {
		return geo.Point{}, fmt.Errorf("point %q: %w", arg, err)
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}

func printStats(w io.Writer, st geo.RouteStats) {
	for i, leg := range st.Legs {
		fmt.Fprintf(w, "leg %d: %.5f,%.5f -> %.5f,%.5f  %.2f nm\n",
			i+1, leg.From.Lat, leg.From.Lon, leg.To.Lat, leg.To.Lon, leg.DistanceNm)
	}
	fmt.Fprintf(w, "total: %.2f nm over %d legs\n", st.TotalDistanceNm, len(st.Legs))
}
