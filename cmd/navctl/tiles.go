package main

import (
	"fmt"
	"net/http"

	"marinenav/internal/logger"
	"marinenav/internal/offline"
	"marinenav/internal/tiles"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type areaFlags struct {
	north, south, east, west float64
	minZoom, maxZoom         int
	maxTiles                 int
}

func (a *areaFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&a.north, "north", 0, "North edge latitude")
	cmd.Flags().Float64Var(&a.south, "south", 0, "South edge latitude")
	cmd.Flags().Float64Var(&a.east, "east", 0, "East edge longitude")
	cmd.Flags().Float64Var(&a.west, "west", 0, "West edge longitude")
	cmd.Flags().IntVar(&a.minZoom, "min-zoom", 10, "Lowest zoom level")
	cmd.Flags().IntVar(&a.maxZoom, "max-zoom", 12, "Highest zoom level")
	cmd.Flags().IntVar(&a.maxTiles, "max-tiles", tiles.DefaultMaxTiles, "Refuse batches larger than this")
	for _, name := range []string{"north", "south", "east", "west"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (a *areaFlags) request() tiles.Request {
	return tiles.Request{
		BBox:    tiles.BBox{North: a.north, South: a.south, East: a.east, West: a.west},
		MinZoom: a.minZoom,
		MaxZoom: a.maxZoom,
	}
}

func (a *areaFlags) limits() tiles.Limits {
	l := tiles.DefaultLimits()
	l.MaxTiles = a.maxTiles
	return l
}

func newTilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "Offline tile sets",
	}
	cmd.AddCommand(newTilesPlanCmd(), newTilesFetchCmd(), newTilesLocateCmd())
	return cmd
}

func newTilesPlanCmd() *cobra.Command {
	var area areaFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the tile ranges a bounding box covers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := area.request()
			total, err := tiles.ValidateRequest(req, area.limits())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range tiles.Spans(req.BBox, req.MinZoom, req.MaxZoom) {
				fmt.Fprintf(out, "z%d x %d..%d y %d..%d  %d tiles\n", s.Zoom, s.MinX, s.MaxX, s.MinY, s.MaxY, s.Count())
			}
			fmt.Fprintf(out, "total: %d tiles\n", total)
			return nil
		},
	}
	area.bind(cmd)
	return cmd
}

func newTilesFetchCmd() *cobra.Command {
	var (
		area      areaFlags
		serverURL string
		outDir    string
		workers   int
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the tiles of a bounding box into a local cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := area.request()
			if _, err := tiles.ValidateRequest(req, area.limits()); err != nil {
				return err
			}
			src := tiles.Source{ServerURL: serverURL, StorageRoot: outDir}
			jobs := tiles.BuildBatch(req.BBox, req.MinZoom, req.MaxZoom, src)

			fetcher := offline.NewFetcher(&http.Client{}, offline.Options{Workers: workers}, cliLogger(cmd))
			out := cmd.OutOrStdout()
			report := fetcher.Run(cmd.Context(), jobs, func(completed, total int) {
				if completed == total || completed%50 == 0 {
					fmt.Fprintf(out, "progress %d/%d\n", completed, total)
				}
			})
			for _, r := range report.Results {
				if !r.OK() {
					fmt.Fprintf(out, "failed %s: %v\n", r.Job.Address, r.Err)
				}
			}
			fmt.Fprintln(out, report.Summary())
			if report.State == offline.StateAborted {
				return fmt.Errorf("download aborted")
			}
			return nil
		},
	}
	area.bind(cmd)
	cmd.Flags().StringVar(&serverURL, "server", "https://a.tile.openstreetmap.org", "Tile server base URL")
	cmd.Flags().StringVar(&outDir, "out", "./data", "Storage root; tiles go under <out>/tiles")
	cmd.Flags().IntVar(&workers, "workers", offline.DefaultWorkers, "Concurrent downloads")
	return cmd
}

func newTilesLocateCmd() *cobra.Command {
	var zoom int
	cmd := &cobra.Command{
		Use:   "locate lat,lon",
		Short: "Print the tile containing a point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePoint(args[0])
			if err != nil {
				return err
			}
			if !p.Valid() {
				return fmt.Errorf("point %s out of range", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), tiles.ForPoint(p.Lat, p.Lon, zoom))
			return nil
		},
	}
	cmd.Flags().IntVar(&zoom, "zoom", 12, "Zoom level")
	return cmd
}

func cliLogger(cmd *cobra.Command) *zap.Logger {
	level := "error"
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = "debug"
	}
	log, err := logger.New(level)
	if err != nil {
		return zap.NewNop()
	}
	return log
}
