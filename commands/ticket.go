package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clubsincronica/clubd/ticket"
)

func ticketCmd(configPath *string, logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Ticket validation and check-in",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a scanned QR payload (reads stdin without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args)
			if err != nil {
				return err
			}

			v := ticket.ValidateQR(payload)
			out := cmd.OutOrStdout()
			if !v.Valid {
				fmt.Fprintf(out, "INVALID: %s\n", v.Err)
				return fmt.Errorf("ticket invalid: %s", v.Err)
			}
			fmt.Fprintf(out, "VALID ticket %s\n", v.Ticket.TicketID)
			fmt.Fprintf(out, "Event:    %s (%s)\n", v.Ticket.EventID, v.Ticket.EventDate)
			fmt.Fprintf(out, "Attendee: %s\n", v.Ticket.AttendeeName)
			return nil
		},
	})

	checkin := &cobra.Command{
		Use:   "checkin <event-id> [file]",
		Short: "Validate a QR payload and record attendance for an event",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args[1:])
			if err != nil {
				return err
			}

			app, err := NewApp(cmd.Context(), *configPath, logger())
			if err != nil {
				return err
			}
			defer app.Close()

			location, _ := cmd.Flags().GetString("location")
			scanned, err := app.Attendance.CheckIn(cmd.Context(), args[0], payload, location)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked in %s (%s)\n", scanned.AttendeeName, scanned.TicketID)
			if summary, err := app.Attendance.Summary(cmd.Context(), args[0]); err == nil {
				fmt.Fprintf(out, "Attendance: %d/%d (%.0f%%)\n",
					summary.Scanned, summary.Total, summary.Rate*100)
			}
			return nil
		},
	}
	checkin.Flags().String("location", "", "Scan location recorded with the check-in")
	cmd.AddCommand(checkin)

	return cmd
}

func readPayload(args []string) ([]byte, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read payload from stdin: %w", err)
	}
	return data, nil
}
