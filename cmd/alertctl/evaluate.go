package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newEvaluateCmd(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one evaluation pass and print its triggers",
		Long: `Run one evaluation pass over every enabled rule. Debounce state starts
empty, so only rules with a debounce count of 1 can trigger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			eng, err := g.newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer eng.Shutdown()

			res, err := eng.RunPass(ctx, "manual", cfg.AlertRules())
			if err != nil {
				return err
			}
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d rules, %d nodes evaluated, %d skipped, %d triggers (%dms)\n",
				res.RulesEvaluated, res.NodesEvaluated, len(res.NodesSkipped), len(res.Triggers), res.DurationMs)
			if len(res.Triggers) > 0 {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SEVERITY\tRULE\tCERTNAME")
				for _, t := range res.Triggers {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Severity, t.AlertRuleID, t.Certname)
				}
				tw.Flush()
			}
			for _, e := range res.Errors {
				fmt.Fprintf(w, "warning: %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	return cmd
}
