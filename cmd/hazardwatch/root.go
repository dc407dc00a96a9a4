package main

import (
	"github.com/saferoute/hazardwatch/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "hazardwatch",
		Short:         "Real-time road hazard notifications",
		Long:          "hazardwatch streams hazard changes from the hazard store to subscribed clients over SSE and WebSocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", config.DefaultDir, "directory holding config.yml and config.local.yml")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}
