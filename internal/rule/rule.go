package rule

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/nodealert/internal/condition"
)

// Severity classifies how urgent a rule's triggers are.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical, SeverityEmergency:
		return true
	}
	return false
}

// LogicalOperator combines the per-node conditions of a rule.
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// AlertRule is a named, composable predicate over node data.
// The node-count threshold of a rule is expressed by its node_count_threshold conditions.
type AlertRule struct {
	ID              string                `json:"id" yaml:"id"`
	Name            string                `json:"name" yaml:"name"`
	Enabled         bool                  `json:"enabled" yaml:"enabled"`
	Severity        Severity              `json:"severity" yaml:"severity"`
	Conditions      []condition.Condition `json:"conditions" yaml:"conditions"`
	LogicalOperator LogicalOperator       `json:"logical_operator" yaml:"logical_operator"`
	// DebounceCount is the number of consecutive matching passes required before a trigger; <= 0 means 1.
	DebounceCount int `json:"debounce_count" yaml:"debounce_count"`
}

// Operator returns the normalised logical operator (AND when unset).
func (r *AlertRule) Operator() LogicalOperator {
	op := LogicalOperator(strings.ToUpper(strings.TrimSpace(string(r.LogicalOperator))))
	if op == "" {
		return And
	}
	return op
}

// Debounce returns the effective debounce count.
func (r *AlertRule) Debounce() int {
	if r.DebounceCount <= 0 {
		return 1
	}
	return r.DebounceCount
}

// Validate checks a rule at authoring time and returns every problem found.
func Validate(r AlertRule) []condition.ValidationError {
	var errs []condition.ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, condition.ValidationError{RuleID: r.ID, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(r.ID) == "" {
		add("id", "id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		add("name", "name is required")
	}
	if !r.Severity.Valid() {
		add("severity", "severity %q must be one of info, warning, critical, emergency", r.Severity)
	}
	if op := r.Operator(); op != And && op != Or {
		add("logical_operator", "logical operator %q must be AND or OR", r.LogicalOperator)
	}
	if r.DebounceCount < 0 {
		add("debounce_count", "debounce count must not be negative")
	}

	seen := make(map[string]int, len(r.Conditions))
	for i, c := range r.Conditions {
		if c.ID != "" {
			if prev, ok := seen[c.ID]; ok {
				add(fmt.Sprintf("conditions[%d].id", i), "duplicate condition id %q (first seen at conditions[%d])", c.ID, prev)
			} else {
				seen[c.ID] = i
			}
		}
		for _, ve := range condition.Validate(c) {
			ve.RuleID = r.ID
			if ve.ConditionID == "" {
				ve.Field = fmt.Sprintf("conditions[%d].%s", i, ve.Field)
			}
			errs = append(errs, ve)
		}
	}
	return errs
}
