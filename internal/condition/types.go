package condition

import "encoding/json"

// Type discriminates the condition variants.
type Type string

const (
	TypeNodeStatus           Type = "node_status"
	TypeNodeFact             Type = "node_fact"
	TypeReportMetric         Type = "report_metric"
	TypeEnvironmentFilter    Type = "environment_filter"
	TypeGroupFilter          Type = "group_filter"
	TypeNodeCountThreshold   Type = "node_count_threshold"
	TypeTimeWindowFilter     Type = "time_window_filter"
	TypeLastReportTime       Type = "last_report_time"
	TypeConsecutiveFailures  Type = "consecutive_failures"
	TypeConsecutiveChanges   Type = "consecutive_changes"
	TypeClassChangeFrequency Type = "class_change_frequency"
)

// Types lists every known condition type. Decode and the evaluator switch over
// the same set; condition tests walk this slice to keep them exhaustive.
var Types = []Type{
	TypeNodeStatus,
	TypeNodeFact,
	TypeReportMetric,
	TypeEnvironmentFilter,
	TypeGroupFilter,
	TypeNodeCountThreshold,
	TypeTimeWindowFilter,
	TypeLastReportTime,
	TypeConsecutiveFailures,
	TypeConsecutiveChanges,
	TypeClassChangeFrequency,
}

// Operator represents a comparison operator.
type Operator string

const (
	OpEq          Operator = "="
	OpNeq         Operator = "!="
	OpMatches     Operator = "~"
	OpNotMatches  Operator = "!~"
	OpGt          Operator = ">"
	OpGte         Operator = ">="
	OpLt          Operator = "<"
	OpLte         Operator = "<="
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

// IsRegex reports whether op takes a regular expression operand.
func (op Operator) IsRegex() bool {
	return op == OpMatches || op == OpNotMatches
}

// IsList reports whether op takes a list operand.
func (op Operator) IsList() bool {
	return op == OpIn || op == OpNotIn
}

// IsPresence reports whether op only tests for presence of a value.
func (op Operator) IsPresence() bool {
	return op == OpExists || op == OpNotExists
}

// Kind is the shape of the value a condition compares.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindSet     Kind = "set"
)

// DataType is the declared type of a node fact.
type DataType string

const (
	DataString  DataType = "string"
	DataInteger DataType = "integer"
	DataFloat   DataType = "float"
	DataBoolean DataType = "boolean"
)

// Kind maps a declared fact type onto the comparator family.
func (d DataType) Kind() (Kind, bool) {
	switch d {
	case DataString:
		return KindString, true
	case DataInteger, DataFloat:
		return KindNumber, true
	case DataBoolean:
		return KindBoolean, true
	}
	return "", false
}

// Condition is a single authored predicate of an alert rule.
// Value holds the loosely typed payload; Decode turns it into a Spec.
type Condition struct {
	ID       string   `json:"id" yaml:"id"`
	Type     Type     `json:"type" yaml:"type"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
	Enabled  bool     `json:"enabled" yaml:"enabled"`
}

// UnmarshalJSON decodes a condition; an omitted "enabled" means enabled.
func (c *Condition) UnmarshalJSON(data []byte) error {
	type plain Condition
	p := plain{Enabled: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Condition(p)
	return nil
}

type operatorSet map[Operator]struct{}

func ops(list ...Operator) operatorSet {
	s := make(operatorSet, len(list))
	for _, op := range list {
		s[op] = struct{}{}
	}
	return s
}

// kindOperators is the legality table per value kind.
var kindOperators = map[Kind]operatorSet{
	KindString:  ops(OpEq, OpNeq, OpMatches, OpNotMatches, OpIn, OpNotIn, OpExists, OpNotExists, OpContains, OpNotContains),
	KindNumber:  ops(OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpExists, OpNotExists),
	KindBoolean: ops(OpEq, OpNeq),
	KindSet:     ops(OpEq, OpNeq, OpIn, OpNotIn, OpContains, OpNotContains),
}

var thresholdOps = ops(OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte)

// typeOperators narrows the kind table for types that do not accept every
// operator of their kind. node_fact is absent: its kind table applies as is.
var typeOperators = map[Type]operatorSet{
	TypeNodeStatus:           ops(OpEq, OpNeq, OpIn, OpNotIn),
	TypeReportMetric:         ops(OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn),
	TypeEnvironmentFilter:    ops(OpEq, OpNeq, OpMatches, OpNotMatches, OpIn, OpNotIn),
	TypeNodeCountThreshold:   ops(OpEq, OpGt, OpGte, OpLt, OpLte),
	TypeTimeWindowFilter:     thresholdOps,
	TypeLastReportTime:       thresholdOps,
	TypeConsecutiveFailures:  thresholdOps,
	TypeConsecutiveChanges:   thresholdOps,
	TypeClassChangeFrequency: thresholdOps,
}

// Legal reports whether op may be used by a condition of type t comparing a value of kind k.
func Legal(t Type, k Kind, op Operator) bool {
	if _, ok := kindOperators[k][op]; !ok {
		return false
	}
	if narrowed, ok := typeOperators[t]; ok {
		_, ok := narrowed[op]
		return ok
	}
	return true
}
