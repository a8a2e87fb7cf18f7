package rule

import (
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/nodealert/internal/condition"
	"github.com/gyaneshwarpardhi/nodealert/internal/node"
)

// CompiledCondition is an enabled condition with its payload decoded.
type CompiledCondition struct {
	ID       string
	Type     condition.Type
	Operator condition.Operator
	Spec     condition.Spec
}

// Compiled is a rule ready for evaluation. All payloads are decoded and all
// regular expressions compiled here; zero parsing happens per node.
// A Compiled rule is immutable and safe for concurrent use.
type Compiled struct {
	Rule       AlertRule
	conditions []CompiledCondition
	thresholds []CompiledCondition
}

// Compile decodes the enabled conditions of r.
func Compile(r AlertRule) (*Compiled, error) {
	op := r.Operator()
	if op != And && op != Or {
		return nil, condition.ValidationError{RuleID: r.ID, Field: "logical_operator", Message: fmt.Sprintf("unknown logical operator %q", r.LogicalOperator)}
	}
	c := &Compiled{Rule: r}
	for _, cond := range r.Conditions {
		if !cond.Enabled {
			continue
		}
		spec, err := condition.Decode(cond)
		if err != nil {
			var ve condition.ValidationError
			if errors.As(err, &ve) {
				ve.RuleID = r.ID
				return nil, ve
			}
			return nil, fmt.Errorf("rule %s: condition %s: %w", r.ID, cond.ID, err)
		}
		cc := CompiledCondition{ID: cond.ID, Type: cond.Type, Operator: cond.Operator, Spec: spec}
		if cond.Type == condition.TypeNodeCountThreshold {
			c.thresholds = append(c.thresholds, cc)
			continue
		}
		c.conditions = append(c.conditions, cc)
	}
	return c, nil
}

// Conditions returns the per-node conditions in authored order.
func (c *Compiled) Conditions() []CompiledCondition { return c.conditions }

// Thresholds returns the node_count_threshold conditions.
func (c *Compiled) Thresholds() []CompiledCondition { return c.thresholds }

// Needs describes which collaborator data a rule reads besides the node snapshot.
type Needs struct {
	Reports      bool // report history
	ReportHours  uint // widest history window required
	LatestReport bool
	Groups       bool
}

// Merge returns the union of two needs.
func (n Needs) Merge(o Needs) Needs {
	n.Reports = n.Reports || o.Reports
	n.LatestReport = n.LatestReport || o.LatestReport
	n.Groups = n.Groups || o.Groups
	if o.ReportHours > n.ReportHours {
		n.ReportHours = o.ReportHours
	}
	return n
}

// Needs reports what the orchestrator must fetch to evaluate c.
func (c *Compiled) Needs() Needs {
	var n Needs
	history := func(hours uint) {
		n.Reports = true
		if hours > n.ReportHours {
			n.ReportHours = hours
		}
	}
	for _, cc := range c.conditions {
		switch sp := cc.Spec.(type) {
		case condition.ReportMetricSpec:
			n.LatestReport = true
		case condition.GroupFilterSpec:
			n.Groups = true
		case condition.ConsecutiveFailuresSpec:
			history(sp.WithinHours)
		case condition.ConsecutiveChangesSpec:
			history(sp.WithinHours)
		case condition.ClassChangeFrequencySpec:
			history(sp.WithinHours)
		}
	}
	return n
}

// Evaluate decides whether the rule holds for one node.
//
// With AND the first false or failing condition ends the evaluation; a
// failing condition yields false together with its error. With OR the first
// true condition ends the evaluation; errors from conditions evaluated before
// it are still returned for logging. Conditions never reached are not evaluated,
// so their errors never surface. A rule without per-node conditions matches nothing.
func (c *Compiled) Evaluate(in *condition.Input, now time.Time) (bool, error) {
	if len(c.conditions) == 0 {
		return false, nil
	}
	if c.Rule.Operator() == Or {
		var errs []error
		for _, cc := range c.conditions {
			ok, err := condition.Evaluate(cc.Spec, cc.Operator, in, now)
			if err != nil {
				errs = append(errs, c.wrap(cc, in, err))
				continue
			}
			if ok {
				return true, errors.Join(errs...)
			}
		}
		return false, errors.Join(errs...)
	}
	for _, cc := range c.conditions {
		ok, err := condition.Evaluate(cc.Spec, cc.Operator, in, now)
		if err != nil {
			return false, c.wrap(cc, in, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// CountGate applies every node_count_threshold to the matched node count.
// A rule without thresholds always passes.
func (c *Compiled) CountGate(matched int) (bool, error) {
	for _, cc := range c.thresholds {
		spec, ok := cc.Spec.(condition.NodeCountThresholdSpec)
		if !ok {
			return false, fmt.Errorf("rule %s: condition %s: unexpected spec %T", c.Rule.ID, cc.ID, cc.Spec)
		}
		pass, err := condition.EvaluateCount(spec, cc.Operator, matched)
		if err != nil {
			return false, fmt.Errorf("rule %s: condition %s: %w", c.Rule.ID, cc.ID, err)
		}
		if !pass {
			return false, nil
		}
	}
	return true, nil
}

func (c *Compiled) wrap(cc CompiledCondition, in *condition.Input, err error) error {
	return &condition.EvaluationError{
		RuleID:      c.Rule.ID,
		ConditionID: cc.ID,
		Certname:    in.Node.Certname,
		Err:         err,
	}
}

// EvaluateRule compiles r and evaluates it for one node. Callers evaluating a
// rule against many nodes should Compile once and reuse the result.
func EvaluateRule(r AlertRule, n node.Snapshot, reports []node.Report, now time.Time) (bool, error) {
	c, err := Compile(r)
	if err != nil {
		return false, err
	}
	return c.Evaluate(&condition.Input{Node: n, Reports: reports}, now)
}
