package commands

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func eventsCmd(configPath *string, logger func() *slog.Logger) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List club events",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), *configPath, logger())
			if err != nil {
				return err
			}
			defer app.Close()

			events := app.Calendar.UpcomingEvents(time.Now())
			if all {
				events = app.Calendar.Events()
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tTIME\tTITLE\tPRICE\tBOOKED\tSTATUS")
			for _, e := range events {
				booked := fmt.Sprintf("%d", e.CurrentParticipants)
				if e.MaxParticipants > 0 {
					booked = fmt.Sprintf("%d/%d", e.CurrentParticipants, e.MaxParticipants)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Date, e.Time, e.Title, e.Price.StringFixed(2), booked, e.Status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include past and cancelled events")
	return cmd
}
