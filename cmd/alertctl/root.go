package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/nodealert/internal/config"
	"github.com/gyaneshwarpardhi/nodealert/internal/engine"
	"github.com/gyaneshwarpardhi/nodealert/internal/fixture"
	"github.com/gyaneshwarpardhi/nodealert/internal/groups"
	"github.com/gyaneshwarpardhi/nodealert/internal/puppetdb"
)

type globalFlags struct {
	configPath  string
	fixturePath string
	now         string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "alertctl",
		Short: "Validate and dry-run node alert rules",
		Long: `alertctl - authoring tool for node alert rules.

Commands:
  validate  - Check a rules file without evaluating it
  test      - Dry-run rules against PuppetDB or a fixture and show per-node results
  evaluate  - Run one evaluation pass and print the triggers it would emit

Examples:
  alertctl validate --config configs/rules.yaml
  alertctl test --config configs/rules.yaml --fixture configs/fixture.yaml --rule failed-production
  alertctl evaluate --config configs/rules.yaml --output json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "configs/rules.yaml", "Rules configuration file")
	root.PersistentFlags().StringVarP(&g.fixturePath, "fixture", "f", "", "Read node data from a YAML fixture instead of PuppetDB")
	root.PersistentFlags().StringVar(&g.now, "now", "", "Evaluation time (RFC 3339); defaults to the current time")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newValidateCmd(g))
	root.AddCommand(newTestCmd(g))
	root.AddCommand(newEvaluateCmd(g))
	return root
}

// loadConfig reads and validates the rules file.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *globalFlags) clock() (func() time.Time, error) {
	if g.now == "" {
		return func() time.Time { return time.Now().UTC() }, nil
	}
	t, err := time.Parse(time.RFC3339, g.now)
	if err != nil {
		return nil, fmt.Errorf("--now: %w", err)
	}
	t = t.UTC()
	return func() time.Time { return t }, nil
}

// newEngine builds an engine over the fixture or PuppetDB. The caller must
// call Shutdown.
func (g *globalFlags) newEngine(ctx context.Context, cfg *config.Config, opts ...engine.Option) (*engine.Engine, error) {
	now, err := g.clock()
	if err != nil {
		return nil, err
	}
	var nodes engine.NodeSource
	if g.fixturePath != "" {
		src, err := fixture.Load(g.fixturePath)
		if err != nil {
			return nil, err
		}
		nodes = src.WithClock(now)
	} else {
		client, err := puppetdb.NewClient(cfg.PuppetDB)
		if err != nil {
			return nil, err
		}
		nodes = client
	}
	gs, err := groups.NewStatic(cfg.Groups)
	if err != nil {
		return nil, err
	}
	opts = append(opts, engine.WithClock(now), engine.WithLogger(slog.Default()), engine.WithGroupSource(gs))
	return engine.New(ctx, nodes, cfg.Engine, opts...), nil
}

func checkOutput(format string) error {
	switch format {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unknown output format %q: want text or json", format)
}
