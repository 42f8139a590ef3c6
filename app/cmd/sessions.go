package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triagelabs/searchgate/persistence"
	"github.com/triagelabs/searchgate/sizing"
)

// newSessionsCmd reports recent tracked measurements and load sessions.
func newSessionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recent tracked measurements and progressive loads",
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalCfg.Tracking.Path == "" {
				return fmt.Errorf("tracking path not configured")
			}
			store, err := persistence.NewTrackingStore(globalCfg.Tracking.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			measurements, err := store.RecentMeasurements(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Measurements (%d):\n", len(measurements))
			for _, m := range measurements {
				status := "within"
				if !m.WithinLimit {
					status = "exceeded"
				}
				fmt.Fprintf(out, "  %s  %-24s %10s  %5d items  %s\n",
					m.MeasuredAt.Format("2006-01-02 15:04:05"), m.Label,
					sizing.FormatSize(m.SizeBytes), m.ItemCount, status)
			}

			loads, err := store.RecentLoadSessions(limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Load sessions (%d):\n", len(loads))
			for _, l := range loads {
				fmt.Fprintf(out, "  %s  %-16s %3d pages  %5d items  stopped: %s\n",
					l.CreatedAt.Format("2006-01-02 15:04:05"), l.Source,
					l.PagesLoaded, l.TotalLoaded, l.StoppedReason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows per table")
	return cmd
}
