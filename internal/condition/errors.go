package condition

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFactMissing is returned when a compared fact path is absent on the node.
	ErrFactMissing = errors.New("fact not present")
	// ErrTypeMismatch is returned when a value cannot be coerced to the declared type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrNoReport is returned when a condition needs a report the node does not have.
	ErrNoReport = errors.New("no report available")
	// ErrMetricMissing is returned when the latest report lacks the compared metric.
	ErrMetricMissing = errors.New("metric not present in report")
	// ErrRuleLevel is returned when a rule-level condition is evaluated against a single node.
	ErrRuleLevel = errors.New("condition applies to the matched node set, not to a node")
)

// ValidationError describes a malformed rule or condition found at authoring time.
type ValidationError struct {
	RuleID      string `json:"rule_id,omitempty"`
	ConditionID string `json:"condition_id,omitempty"`
	Field       string `json:"field"`
	Message     string `json:"message"`
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.RuleID != "" {
		fmt.Fprintf(&b, "rule %s: ", e.RuleID)
	}
	if e.ConditionID != "" {
		fmt.Fprintf(&b, "condition %s: ", e.ConditionID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Message)
	return b.String()
}

// EvaluationError reports a condition that could not be computed for one node.
// The condition is treated as not satisfied.
type EvaluationError struct {
	RuleID      string
	ConditionID string
	Certname    string
	Err         error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %s condition %s on %s: %v", e.RuleID, e.ConditionID, e.Certname, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
