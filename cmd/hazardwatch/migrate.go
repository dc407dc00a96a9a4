package main

import (
	"context"
	"fmt"
	"time"

	"github.com/saferoute/hazardwatch/internal/config"
	"github.com/saferoute/hazardwatch/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the hazards table, functions and change trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configDir)
			if err != nil {
				return err
			}
			if printOnly {
				sql, err := postgres.SchemaSQL(cfg.Database.Channel)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), sql)
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			store, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied; notifications on channel %q\n", cfg.Database.Channel)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema SQL instead of applying it")
	return cmd
}
