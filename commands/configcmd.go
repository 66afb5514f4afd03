package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clubsincronica/clubd/config"
)

func configCmd(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(logger()).Load()
			if err != nil {
				return err
			}
			// The token is a credential; never echo it.
			if cfg.Backend.Token != "" {
				cfg.Backend.Token = "***"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			cmd.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(logger())
			if err := loader.EnsureUserConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "User config ready.")
			return nil
		},
	})

	return cmd
}
