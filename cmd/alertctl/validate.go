package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a rules file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			enabled := 0
			for _, r := range cfg.AlertRules() {
				if r.Enabled {
					enabled++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d rules, %d enabled, %d groups)\n",
				g.configPath, len(cfg.Rules), enabled, len(cfg.Groups))
			return nil
		},
	}
}
