package commands

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func ordersCmd(configPath *string, logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Food order operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List food orders, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), *configPath, logger())
			if err != nil {
				return err
			}
			defer app.Close()

			orders := app.Food.Orders()
			if len(orders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No orders.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tVENDOR\tSTATUS\tTOTAL\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					o.Number, o.Vendor.Name, o.Status,
					o.Total.StringFixed(2), o.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <order-id>",
		Short: "Show one order with its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), *configPath, logger())
			if err != nil {
				return err
			}
			defer app.Close()

			o, err := app.Food.Order(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", o.Number, o.ID)
			fmt.Fprintf(out, "Vendor: %s\n", o.Vendor.Name)
			fmt.Fprintf(out, "Status: %s\n", o.Status)
			fmt.Fprintf(out, "Type:   %s\n", o.Type)
			for _, item := range o.Items {
				fmt.Fprintf(out, "  %dx %s  %s\n", item.Quantity, item.MenuItem.Name, item.Price.StringFixed(2))
			}
			fmt.Fprintf(out, "Subtotal: %s\n", o.Subtotal.StringFixed(2))
			fmt.Fprintf(out, "Delivery: %s\n", o.DeliveryFee.StringFixed(2))
			fmt.Fprintf(out, "Tax:      %s\n", o.Tax.StringFixed(2))
			fmt.Fprintf(out, "Total:    %s\n", o.Total.StringFixed(2))
			if len(o.StatusHistory) > 0 {
				fmt.Fprintln(out, "History:")
				for _, h := range o.StatusHistory {
					fmt.Fprintf(out, "  %s  %s -> %s\n", h.Timestamp.Format("2006-01-02 15:04:05"), h.From, h.To)
				}
			}
			return nil
		},
	})

	return cmd
}
