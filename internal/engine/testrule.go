package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/nodealert/internal/metrics"
	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
	"github.com/gyaneshwarpardhi/nodealert/internal/trigger"
)

// NodeTestResult is the outcome of a dry run for one node.
type NodeTestResult struct {
	Certname   string  `json:"certname"`
	Matched    bool    `json:"matched"`
	Skipped    bool    `json:"skipped,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// TestResult is the outcome of a dry run of one rule.
type TestResult struct {
	RuleID       string                 `json:"rule_id"`
	EvaluatedAt  time.Time              `json:"evaluated_at"`
	DurationMs   int64                  `json:"duration_ms"`
	Nodes        []NodeTestResult       `json:"nodes"`
	MatchedCount int                    `json:"matched_count"`
	GatePassed   bool                   `json:"gate_passed"`
	Triggers     []trigger.AlertTrigger `json:"triggers"`
}

// TestRule evaluates one rule against every node through the same worker pool
// as scheduled passes, reporting per-node results and timings. The rule is
// evaluated even when disabled. Debounce state is neither read nor updated
// and nothing is delivered to the sink: Triggers lists what a pass would emit
// once the debounce count is reached.
func (e *Engine) TestRule(ctx context.Context, r rule.AlertRule) (*TestResult, error) {
	res, err := e.testRule(ctx, r)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.PassesRun.WithLabelValues("test", outcome).Inc()
	return res, err
}

func (e *Engine) testRule(ctx context.Context, r rule.AlertRule) (*TestResult, error) {
	if e.nodes == nil {
		return nil, ErrNoNodeSource
	}
	c, err := rule.Compile(r)
	if err != nil {
		return nil, err
	}
	if d := e.conf.PassTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	start := time.Now()
	now := e.now()

	nodes, err := e.nodes.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	outcomes, err := e.evaluateNodes(ctx, []*rule.Compiled{c}, nodes, now)
	if err != nil {
		return nil, fmt.Errorf("evaluate nodes: %w", err)
	}

	res := &TestResult{RuleID: r.ID, EvaluatedAt: now, Nodes: make([]NodeTestResult, 0, len(outcomes))}
	var matches []trigger.Match
	for _, o := range outcomes {
		nr := NodeTestResult{Certname: o.Certname, DurationMs: float64(o.Duration.Microseconds()) / 1000}
		switch {
		case o.Skipped != nil:
			nr.Skipped = true
			nr.Error = o.Skipped.Error()
		case len(o.Rules) == 1:
			nr.Matched = o.Rules[0].Matched
			if o.Rules[0].Err != nil {
				nr.Error = o.Rules[0].Err.Error()
			}
		}
		if nr.Matched {
			res.MatchedCount++
			matches = append(matches, trigger.Match{Certname: o.Certname, Count: c.Rule.Debounce()})
		}
		res.Nodes = append(res.Nodes, nr)
	}

	res.GatePassed, err = c.CountGate(res.MatchedCount)
	if err != nil {
		return nil, err
	}
	res.Triggers = []trigger.AlertTrigger{}
	if res.GatePassed {
		res.Triggers = trigger.Generate(c, matches, now)
	}
	res.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}
