package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/stagepass/config"
	"github.com/MrEthical07/stagepass/internal/logging"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stagepass",
		Short: "Authentication and session service",
		Long: `stagepass issues short-lived access tokens and rotating refresh tokens,
and handles registration, email verification and password reset.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewInviteCmd())

	return cmd
}

// loadConfig reads --config and every flag the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path, cmd.Flags())
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.Setup("stagepass", version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
}
