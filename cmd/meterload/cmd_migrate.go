package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/meterload/internal/config"
	"github.com/JonMunkholm/meterload/internal/core"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the meters, readings and ingest history tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		pool, err := connect(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := core.EnsureSchema(cmd.Context(), pool); err != nil {
			return err
		}
		slog.Info("schema is up to date")
		return nil
	},
}

var mappersCmd = &cobra.Command{
	Use:   "mappers",
	Short: "List the row layouts a profile can name",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printMappers(cmd.OutOrStdout())
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [PROFILES]",
	Short: "Validate a meter profile file without touching the database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "profiles.yaml"
		if len(args) == 1 {
			path = args[0]
		} else if cfg, err := config.Load(); err == nil {
			path = cfg.Ingest.ProfilesPath
		}
		p, err := config.LoadProfiles(path)
		if err != nil {
			return err
		}
		for _, name := range p.Names() {
			m, _ := p.Get(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: mapper=%s cumulative=%t\n", name, m.Mapper, m.Cumulative)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, mappersCmd, checkCmd)
}
