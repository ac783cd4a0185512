package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"campusmap/internal/shuttle"
)

func init() {
	rootCmd.AddCommand(shuttlesCmd)
	shuttlesCmd.AddCommand(shuttlesBuildCmd)

	shuttlesBuildCmd.Flags().String("csv", "", "timetable CSV (defaults to shuttle.csv in config)")
	shuttlesBuildCmd.Flags().String("stops", "", "stop coordinate lookup JSON (defaults to shuttle.stops)")
	shuttlesBuildCmd.Flags().String("out", "", "routes JSON to write (defaults to shuttle.output)")
}

var shuttlesCmd = &cobra.Command{
	Use:   "shuttles",
	Short: "Manage shuttle route data",
}

var shuttlesBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the routes file from the timetable CSV and stop lookup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer setupLogging(cfg).Close()

		csvPath := flagOr(cmd, "csv", cfg.Shuttle.CSV)
		stopsPath := flagOr(cmd, "stops", cfg.Shuttle.Stops)
		outPath := flagOr(cmd, "out", cfg.Shuttle.Output)

		routes, err := shuttle.BuildFile(csvPath, stopsPath)
		if err != nil {
			return err
		}
		if err := shuttle.WriteRoutes(outPath, routes); err != nil {
			return err
		}

		stops := 0
		for _, r := range routes {
			stops += len(r.Stops)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d routes (%d stops) to %s\n", len(routes), stops, outPath)
		return nil
	},
}

func flagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
