package condition

import (
	"fmt"
	"math"
	"time"

	"github.com/gyaneshwarpardhi/nodealert/internal/node"
	"github.com/gyaneshwarpardhi/nodealert/internal/temporal"
)

// Input is the data one node contributes to an evaluation.
// Reports is the node's recent history in any order; Latest may be nil, in
// which case the newest entry of Reports is used.
type Input struct {
	Node    node.Snapshot
	Reports []node.Report
	Latest  *node.Report
}

func (in *Input) latest() *node.Report {
	if in.Latest != nil {
		return in.Latest
	}
	return node.Latest(in.Reports)
}

// Evaluate decides whether a decoded condition holds for one node at now.
// It never mutates in.
func Evaluate(s Spec, op Operator, in *Input, now time.Time) (bool, error) {
	switch sp := s.(type) {
	case NodeStatusSpec:
		return CompareString(op, string(in.Node.Status), sp.Operand)
	case NodeFactSpec:
		return evalFact(sp, op, in)
	case ReportMetricSpec:
		return evalReportMetric(sp, op, in)
	case EnvironmentFilterSpec:
		return CompareString(op, in.Node.Environment, sp.Operand)
	case GroupFilterSpec:
		return CompareSet(op, in.Node.GroupIDs, sp.GroupIDs)
	case NodeCountThresholdSpec:
		return false, ErrRuleLevel
	case TimeWindowFilterSpec:
		age, err := temporal.ReportAge(in.Node, now)
		if err != nil {
			return false, err
		}
		return CompareNumber(op, temporal.Minutes(age), NumberOperand{Value: float64(sp.Minutes)})
	case LastReportTimeSpec:
		age, err := temporal.ReportAge(in.Node, now)
		if err != nil {
			return false, err
		}
		return CompareNumber(op, temporal.Hours(age), NumberOperand{Value: float64(sp.Hours)})
	case ConsecutiveFailuresSpec:
		streak := temporal.ConsecutiveFailures(in.Reports, now, temporal.Window(sp.WithinHours))
		return CompareNumber(op, float64(streak), NumberOperand{Value: float64(sp.Count)})
	case ConsecutiveChangesSpec:
		streak := temporal.ConsecutiveChanges(in.Reports, now, temporal.Window(sp.WithinHours))
		return CompareNumber(op, float64(streak), NumberOperand{Value: float64(sp.Count)})
	case ClassChangeFrequencySpec:
		freq := temporal.ClassChangeFrequency(in.Reports, now, temporal.Window(sp.WithinHours), sp.ClassName)
		return CompareNumber(op, float64(freq), NumberOperand{Value: float64(sp.ChangeCount)})
	}
	return false, fmt.Errorf("unknown condition spec %T", s)
}

// EvaluateCount applies a node_count_threshold to the size of the matched node set.
func EvaluateCount(s NodeCountThresholdSpec, op Operator, matched int) (bool, error) {
	return CompareNumber(op, float64(matched), NumberOperand{Value: float64(s.Count)})
}

func evalFact(sp NodeFactSpec, op Operator, in *Input) (bool, error) {
	raw, present := in.Node.Fact(sp.FactPath)
	if op.IsPresence() {
		return ComparePresence(op, present)
	}
	if !present {
		return false, fmt.Errorf("%w: %s", ErrFactMissing, sp.FactPath)
	}
	switch sp.DataType {
	case DataString:
		s, ok := scalarString(raw)
		if !ok {
			return false, fmt.Errorf("%w: fact %s is %T, want string", ErrTypeMismatch, sp.FactPath, raw)
		}
		return CompareString(op, s, sp.Str)
	case DataInteger, DataFloat:
		f, err := parseNumber(raw, sp.DataType)
		if err != nil {
			return false, fmt.Errorf("fact %s: %w", sp.FactPath, err)
		}
		return CompareNumber(op, f, sp.Num)
	case DataBoolean:
		b, err := parseBool(raw)
		if err != nil {
			return false, fmt.Errorf("fact %s: %w", sp.FactPath, err)
		}
		return CompareBool(op, b, sp.Bool)
	}
	return false, fmt.Errorf("fact %s: unsupported data type %q", sp.FactPath, sp.DataType)
}

func evalReportMetric(sp ReportMetricSpec, op Operator, in *Input) (bool, error) {
	latest := in.latest()
	if latest == nil {
		return false, ErrNoReport
	}
	var value float64
	if sp.Metric == MetricFailurePercentage {
		value = latest.FailurePercentage()
	} else {
		v, ok := latest.Metric(sp.Metric)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrMetricMissing, sp.Metric)
		}
		value = v
	}
	if math.IsNaN(value) {
		return false, fmt.Errorf("%w: metric %q is NaN", ErrTypeMismatch, sp.Metric)
	}
	return CompareNumber(op, value, sp.Operand)
}
