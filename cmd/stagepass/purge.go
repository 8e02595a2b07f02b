package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh records and single-use tokens",
		RunE:  runPurge,
	}
	cmd.Flags().Duration("retain", 0, "keep rows for this long after they expire")
	return cmd
}

func runPurge(cmd *cobra.Command, _ []string) error {
	retain, err := cmd.Flags().GetDuration("retain")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd.Context(), cfg, newLogger(cmd, cfg))
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.engine.Purge(cmd.Context(), retain)
	if err != nil {
		return err
	}
	cmd.Println(fmt.Sprintf("purged %d refresh records and %d single-use tokens", res.RefreshRecords, res.SingleUseTokens))
	return nil
}
