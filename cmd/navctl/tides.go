package main

import (
	"fmt"
	"time"

	"marinenav/internal/navapi"

	"github.com/spf13/cobra"
)

func newTidesCmd() *cobra.Command {
	var backendURL string
	cmd := &cobra.Command{
		Use:   "tides",
		Short: "Tide stations and predictions from the backend",
	}
	cmd.PersistentFlags().StringVar(&backendURL, "backend", "http://localhost:8001", "Backend base URL")

	var search, state string
	stations := &cobra.Command{
		Use:   "stations",
		Short: "List tide stations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := navapi.NewClient(backendURL, 0, cliLogger(cmd))
			list, err := client.TideStations(cmd.Context(), search, state)
			if err != nil {
				return err
			}
			for _, s := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", s.ID, s.Name, s.State)
			}
			return nil
		},
	}
	stations.Flags().StringVar(&search, "search", "", "Name substring")
	stations.Flags().StringVar(&state, "state", "", "State code")

	var date string
	predictions := &cobra.Command{
		Use:   "predictions STATION",
		Short: "Print high and low water for one day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var day time.Time
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("date %q: %w", date, err)
				}
				day = parsed
			}
			client := navapi.NewClient(backendURL, 0, cliLogger(cmd))
			res, err := client.TidePredictions(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "station %s on %s\n", res.StationID, res.Date)
			for _, p := range res.Predictions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-2s %6.2f ft\n", p.Time.Format("15:04"), p.Type, p.HeightFt)
			}
			return nil
		},
	}
	predictions.Flags().StringVar(&date, "date", "", "Day as YYYY-MM-DD (backend default when empty)")

	cmd.AddCommand(stations, predictions)
	return cmd
}
