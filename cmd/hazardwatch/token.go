package main

import (
	"fmt"

	"github.com/saferoute/hazardwatch/internal/config"
	"github.com/saferoute/hazardwatch/internal/identity"
	"github.com/spf13/cobra"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <subscriber-id>",
		Short: "Issue a signed development token for a subscriber",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configDir)
			if err != nil {
				return err
			}
			tokens, err := identity.NewTokenService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}
