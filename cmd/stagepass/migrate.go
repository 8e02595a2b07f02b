package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/stagepass/store/postgres"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Run database migrations",
		Long:      `Apply (up, the default) or roll back (down) the Postgres schema, or print its version.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE:      runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	action := "up"
	if len(args) == 1 {
		action = args[0]
	}

	url, err := databaseURL(cmd)
	if err != nil {
		return err
	}

	m, err := postgres.NewMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close()

	switch action {
	case "up":
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
	case "down":
		cmd.Println("Rolling back migrations...")
		if err := m.Down(); err != nil {
			return err
		}
		cmd.Println("Rollback completed successfully")
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		cmd.Println(fmt.Sprintf("version %d (dirty: %t)", v, dirty))
	}
	return nil
}

// databaseURL loads the config and returns the Postgres URL. The memory
// backend has nothing to migrate.
func databaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database.url is required to migrate")
	}
	return cfg.Database.URL, nil
}
