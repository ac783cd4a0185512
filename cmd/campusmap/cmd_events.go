package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"campusmap/internal/calendar"
	"campusmap/internal/cluster"
	"campusmap/internal/model"
	"campusmap/internal/store"
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsCheckCmd)

	eventsCheckCmd.Flags().String("date", "", "civil date YYYY-MM-DD (defaults to today in the configured zone)")
	eventsCheckCmd.Flags().Bool("fresh", false, "refresh from sources instead of reading the stored snapshot")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect event data",
}

var eventsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Print the events occurring on a date and how they cluster on the map",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer setupLogging(cfg).Close()

		loc := calendar.ResolveLocation(cfg.Timezone)
		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			date = calendar.Today(time.Now(), loc)
		} else if !calendar.ValidDate(date) {
			return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
		}
		fresh, _ := cmd.Flags().GetBool("fresh")

		ctx, cancel := signalContext()
		defer cancel()

		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		snap, ok, err := db.LatestSnapshot(ctx)
		if err != nil {
			return err
		}
		if fresh || !ok {
			if snap, err = newRefresher(cfg, &store.Memory{}, db).Run(ctx); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
		}

		evs := calendar.FilterOnDate(snap.Events, date, loc)
		clusters := cluster.AggregateByLocation(evs, loadDirectory(cfg.Buildings))
		printDay(cmd.OutOrStdout(), date, loc, evs, clusters)
		return nil
	},
}

func printDay(out io.Writer, date string, loc *time.Location, evs []model.Event, clusters []model.EventCluster) {
	fmt.Fprintf(out, "%s (%s): %d events\n\n", date, loc, len(evs))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tCATEGORY\tTITLE\tLOCATION")
	for _, ev := range evs {
		location := "-"
		if ev.Location != nil {
			location = *ev.Location
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.Start.In(loc).Format("Jan 2 15:04"),
			ev.DisplayEnd().In(loc).Format("Jan 2 15:04"),
			ev.Category, ev.Title, location)
	}
	tw.Flush()

	placed := 0
	fmt.Fprintf(out, "\n%d map clusters\n\n", len(clusters))
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tLABEL\tPOSITION\tEVENTS")
	for _, c := range clusters {
		titles := make([]string, 0, len(c.Events))
		for _, ev := range c.Events {
			titles = append(titles, ev.Title)
		}
		placed += len(c.Events)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Label,
			cluster.CoordinateKey(c.Position.Lat, c.Position.Lng), strings.Join(titles, "; "))
	}
	tw.Flush()

	if unplaced := len(evs) - placed; unplaced > 0 {
		fmt.Fprintf(out, "\n%d events could not be placed on the map\n", unplaced)
	}
}
