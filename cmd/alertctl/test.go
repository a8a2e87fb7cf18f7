package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/nodealert/internal/engine"
	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
)

func newTestCmd(g *globalFlags) *cobra.Command {
	var (
		ruleID      string
		output      string
		matchedOnly bool
	)
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Dry-run rules and show per-node results",
		Long: `Dry-run rules against every node. Debounce state is ignored and nothing
is delivered; the triggers listed are those a pass would emit once the
debounce count is reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			var rules []rule.AlertRule
			for _, r := range cfg.AlertRules() {
				if ruleID == "" || r.ID == ruleID {
					rules = append(rules, r)
				}
			}
			if len(rules) == 0 {
				return fmt.Errorf("no rule matches %q", ruleID)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			eng, err := g.newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer eng.Shutdown()

			results := make([]*engine.TestResult, 0, len(rules))
			for _, r := range rules {
				res, err := eng.TestRule(ctx, r)
				if err != nil {
					return fmt.Errorf("rule %s: %w", r.ID, err)
				}
				results = append(results, res)
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			printTestResults(cmd.OutOrStdout(), results, matchedOnly)
			return nil
		},
	}
	cmd.Flags().StringVarP(&ruleID, "rule", "r", "", "Only test the rule with this id")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&matchedOnly, "matched-only", false, "Only list matching nodes")
	return cmd
}

func printTestResults(w io.Writer, results []*engine.TestResult, matchedOnly bool) {
	for _, res := range results {
		gate := "passed"
		if !res.GatePassed {
			gate = "blocked"
		}
		fmt.Fprintf(w, "Rule %s: %d/%d nodes matched, node-count gate %s, %d triggers (%dms)\n",
			res.RuleID, res.MatchedCount, len(res.Nodes), gate, len(res.Triggers), res.DurationMs)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  CERTNAME\tRESULT\tDURATION\tERROR")
		for _, n := range res.Nodes {
			if matchedOnly && !n.Matched {
				continue
			}
			result := "no match"
			switch {
			case n.Skipped:
				result = "skipped"
			case n.Matched:
				result = "MATCH"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%.2fms\t%s\n", n.Certname, result, n.DurationMs, n.Error)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}
}
