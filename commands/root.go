package commands

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build metadata, set via -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Root returns the clubd root command.
func Root() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "clubd",
		Short: "Club Sincrónica wellness club client",
		Long: `Clubd is the command-line client for the Club Sincrónica wellness
marketplace: food ordering, class and event reservations, tickets,
and the vendor dashboard.

State persists in a NATS JetStream KV bucket when nats.url is
configured; otherwise commands run against in-memory state.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	logger := func() *slog.Logger {
		level := slog.LevelInfo
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(l)
		return l
	}

	cmd.AddCommand(
		statusCmd(&configPath, logger),
		ordersCmd(&configPath, logger),
		eventsCmd(&configPath, logger),
		ticketCmd(&configPath, logger),
		agentCmd(&configPath, logger),
		configCmd(logger),
		versionCmd(),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("clubd version %s (build: %s)\n", Version, BuildTime)
		},
	}
}
