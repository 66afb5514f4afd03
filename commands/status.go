package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func statusCmd(configPath *string, logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in user, carts, and pending activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), *configPath, logger())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()

			if user, ok := app.Identity.Current(); ok {
				fmt.Fprintf(out, "Signed in as %s <%s> (%s)\n", user.Name, user.Email, user.Role)
			} else {
				fmt.Fprintln(out, "Not signed in")
			}

			if cart := app.Food.Cart(); cart != nil {
				fmt.Fprintf(out, "Food cart: %d item(s) from %s, total %s\n",
					len(cart.Items), cart.Vendor.Name, cart.Total().StringFixed(2))
			} else {
				fmt.Fprintln(out, "Food cart: empty")
			}

			bookingCart := app.Calendar.Cart()
			if len(bookingCart) > 0 {
				fmt.Fprintf(out, "Booking cart: %d event(s), total %s\n",
					len(bookingCart), app.Calendar.CartTotal().StringFixed(2))
			} else {
				fmt.Fprintln(out, "Booking cart: empty")
			}

			fmt.Fprintf(out, "Orders: %d\n", len(app.Food.Orders()))
			fmt.Fprintf(out, "Reservations: %d\n", len(app.Calendar.UserReservations()))
			fmt.Fprintf(out, "Upcoming events: %d\n", len(app.Calendar.UpcomingEvents(time.Now())))
			fmt.Fprintf(out, "Unread notifications: %d\n", app.Food.UnreadCount())
			return nil
		},
	}
}
