package condition

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/nodealert/internal/node"
)

// Spec is the strongly typed form of a condition payload.
// Every variant is produced by Decode; evaluation never looks at raw payloads.
type Spec interface {
	Type() Type
	Kind() Kind
}

// NodeStatusSpec matches the node's last run status.
type NodeStatusSpec struct {
	Operand StringOperand
}

// NodeFactSpec compares a flattened fact against a typed threshold.
type NodeFactSpec struct {
	FactPath string
	DataType DataType
	Str      StringOperand
	Num      NumberOperand
	Bool     bool
}

// MetricFailurePercentage is a derived report metric: failed*100/total.
const MetricFailurePercentage = "failure_percentage"

// ReportMetricSpec compares a metric of the latest report.
type ReportMetricSpec struct {
	Metric  string
	Operand NumberOperand
}

// EnvironmentFilterSpec matches the node's environment.
type EnvironmentFilterSpec struct {
	Operand StringOperand
}

// GroupFilterSpec intersects the node's group membership with GroupIDs.
type GroupFilterSpec struct {
	GroupIDs []string
}

// NodeCountThresholdSpec gates a whole rule on the number of matching nodes.
type NodeCountThresholdSpec struct {
	Count uint
}

// TimeWindowFilterSpec compares minutes since the last report against Minutes.
type TimeWindowFilterSpec struct {
	Minutes uint
}

// LastReportTimeSpec compares hours since the last report against Hours.
type LastReportTimeSpec struct {
	Hours uint
}

// ConsecutiveFailuresSpec compares the failed-run streak against Count.
type ConsecutiveFailuresSpec struct {
	Count       uint
	WithinHours uint
}

// ConsecutiveChangesSpec compares the changing-run streak against Count.
type ConsecutiveChangesSpec struct {
	Count       uint
	WithinHours uint
}

// ClassChangeFrequencySpec counts in-window reports that changed ClassName.
type ClassChangeFrequencySpec struct {
	ClassName   string
	ChangeCount uint
	WithinHours uint
}

func (NodeStatusSpec) Type() Type           { return TypeNodeStatus }
func (NodeFactSpec) Type() Type             { return TypeNodeFact }
func (ReportMetricSpec) Type() Type         { return TypeReportMetric }
func (EnvironmentFilterSpec) Type() Type    { return TypeEnvironmentFilter }
func (GroupFilterSpec) Type() Type          { return TypeGroupFilter }
func (NodeCountThresholdSpec) Type() Type   { return TypeNodeCountThreshold }
func (TimeWindowFilterSpec) Type() Type     { return TypeTimeWindowFilter }
func (LastReportTimeSpec) Type() Type       { return TypeLastReportTime }
func (ConsecutiveFailuresSpec) Type() Type  { return TypeConsecutiveFailures }
func (ConsecutiveChangesSpec) Type() Type   { return TypeConsecutiveChanges }
func (ClassChangeFrequencySpec) Type() Type { return TypeClassChangeFrequency }

func (NodeStatusSpec) Kind() Kind        { return KindString }
func (ReportMetricSpec) Kind() Kind      { return KindNumber }
func (EnvironmentFilterSpec) Kind() Kind { return KindString }
func (GroupFilterSpec) Kind() Kind       { return KindSet }

func (s NodeFactSpec) Kind() Kind {
	k, _ := s.DataType.Kind()
	return k
}

func (NodeCountThresholdSpec) Kind() Kind   { return KindNumber }
func (TimeWindowFilterSpec) Kind() Kind     { return KindNumber }
func (LastReportTimeSpec) Kind() Kind       { return KindNumber }
func (ConsecutiveFailuresSpec) Kind() Kind  { return KindNumber }
func (ConsecutiveChangesSpec) Kind() Kind   { return KindNumber }
func (ClassChangeFrequencySpec) Kind() Kind { return KindNumber }

// Decode validates c and converts its payload into the matching Spec variant.
// Regular expressions are compiled here, so a decoded Spec is ready to be
// evaluated against any number of nodes. The returned error is a ValidationError.
func Decode(c Condition) (Spec, error) {
	fail := func(field, format string, args ...any) (Spec, error) {
		return nil, ValidationError{ConditionID: c.ID, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	kind, err := kindOf(c)
	if err != nil {
		return fail("value.data_type", "%v", err)
	}
	if kind == "" {
		return fail("type", "unknown condition type %q", c.Type)
	}
	if !Legal(c.Type, kind, c.Operator) {
		return fail("operator", "operator %q is not valid for %s (%s value)", c.Operator, c.Type, kind)
	}

	var spec Spec
	switch c.Type {
	case TypeNodeStatus:
		spec, err = decodeNodeStatus(c)
	case TypeNodeFact:
		spec, err = decodeNodeFact(c)
	case TypeReportMetric:
		spec, err = decodeReportMetric(c)
	case TypeEnvironmentFilter:
		var op StringOperand
		op, err = decodeStringOperand(c.Operator, c.Value)
		spec = EnvironmentFilterSpec{Operand: op}
	case TypeGroupFilter:
		var ids []string
		ids, err = asStrings(c.Value)
		if err == nil && len(ids) == 0 {
			err = fmt.Errorf("at least one group id is required")
		}
		spec = GroupFilterSpec{GroupIDs: ids}
	case TypeNodeCountThreshold:
		var n uint
		n, err = requiredUint(c.Value, "count", false)
		spec = NodeCountThresholdSpec{Count: n}
	case TypeTimeWindowFilter:
		var n uint
		n, err = requiredUint(c.Value, "minutes", true)
		spec = TimeWindowFilterSpec{Minutes: n}
	case TypeLastReportTime:
		var n uint
		n, err = requiredUint(c.Value, "hours", true)
		spec = LastReportTimeSpec{Hours: n}
	case TypeConsecutiveFailures:
		var count, within uint
		count, within, err = decodeStreak(c.Value)
		spec = ConsecutiveFailuresSpec{Count: count, WithinHours: within}
	case TypeConsecutiveChanges:
		var count, within uint
		count, within, err = decodeStreak(c.Value)
		spec = ConsecutiveChangesSpec{Count: count, WithinHours: within}
	case TypeClassChangeFrequency:
		spec, err = decodeClassChange(c.Value)
	default:
		return fail("type", "unknown condition type %q", c.Type)
	}
	if err != nil {
		return fail("value", "%v", err)
	}
	return spec, nil
}

func kindOf(c Condition) (Kind, error) {
	switch c.Type {
	case TypeNodeStatus, TypeEnvironmentFilter:
		return KindString, nil
	case TypeGroupFilter:
		return KindSet, nil
	case TypeReportMetric, TypeNodeCountThreshold, TypeTimeWindowFilter, TypeLastReportTime,
		TypeConsecutiveFailures, TypeConsecutiveChanges, TypeClassChangeFrequency:
		return KindNumber, nil
	case TypeNodeFact:
		m, ok := asMap(c.Value)
		if !ok {
			return "", fmt.Errorf("node_fact value must be an object with fact_path, data_type and value")
		}
		raw, _ := m["data_type"].(string)
		k, ok := DataType(strings.ToLower(raw)).Kind()
		if !ok {
			return "", fmt.Errorf("data_type %q must be one of string, integer, float, boolean", raw)
		}
		return k, nil
	}
	return "", nil
}

func decodeNodeStatus(c Condition) (Spec, error) {
	op, err := decodeStringOperand(c.Operator, c.Value)
	if err != nil {
		return nil, err
	}
	check := op.Values
	if !c.Operator.IsList() {
		check = []string{op.Value}
	}
	for _, s := range check {
		if !node.Status(s).Valid() {
			return nil, fmt.Errorf("unknown node status %q", s)
		}
	}
	return NodeStatusSpec{Operand: op}, nil
}

func decodeNodeFact(c Condition) (Spec, error) {
	m, _ := asMap(c.Value)
	path, _ := m["fact_path"].(string)
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("fact_path is required")
	}
	dt := DataType(strings.ToLower(m["data_type"].(string)))
	spec := NodeFactSpec{FactPath: path, DataType: dt}
	if c.Operator.IsPresence() {
		return spec, nil
	}
	raw, ok := m["value"]
	if !ok {
		return nil, fmt.Errorf("value is required for operator %q", c.Operator)
	}
	var err error
	switch dt {
	case DataString:
		spec.Str, err = decodeStringOperand(c.Operator, raw)
	case DataInteger, DataFloat:
		spec.Num, err = decodeNumberOperand(c.Operator, raw, dt)
	case DataBoolean:
		spec.Bool, err = parseBool(raw)
	}
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func decodeReportMetric(c Condition) (Spec, error) {
	m, ok := asMap(c.Value)
	if !ok {
		return nil, fmt.Errorf("report_metric value must be an object with metric and value")
	}
	metric, _ := m["metric"].(string)
	if metric == "" {
		return nil, fmt.Errorf("metric is required")
	}
	raw, ok := m["value"]
	if !ok {
		return nil, fmt.Errorf("value is required")
	}
	op, err := decodeNumberOperand(c.Operator, raw, DataFloat)
	if err != nil {
		return nil, err
	}
	return ReportMetricSpec{Metric: metric, Operand: op}, nil
}

func decodeStreak(v any) (count, within uint, err error) {
	if count, err = requiredUint(v, "count", false); err != nil {
		return 0, 0, err
	}
	if within, err = requiredUint(v, "within_hours", true); err != nil {
		return 0, 0, err
	}
	return count, within, nil
}

func decodeClassChange(v any) (Spec, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("value must be an object")
	}
	name, _ := m["class_name"].(string)
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("class_name is required")
	}
	count, err := requiredUint(v, "change_count", false)
	if err != nil {
		return nil, err
	}
	within, err := requiredUint(v, "within_hours", true)
	if err != nil {
		return nil, err
	}
	return ClassChangeFrequencySpec{ClassName: name, ChangeCount: count, WithinHours: within}, nil
}

func decodeStringOperand(op Operator, raw any) (StringOperand, error) {
	switch {
	case op.IsPresence():
		return StringOperand{}, nil
	case op.IsRegex():
		pattern, ok := raw.(string)
		if !ok {
			return StringOperand{}, fmt.Errorf("operator %q requires a string pattern, got %T", op, raw)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return StringOperand{}, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		return StringOperand{Value: pattern, Pattern: re}, nil
	case op.IsList():
		values, err := asStrings(raw)
		if err != nil {
			return StringOperand{}, err
		}
		if len(values) == 0 {
			return StringOperand{}, fmt.Errorf("operator %q requires a non-empty list", op)
		}
		return StringOperand{Values: values}, nil
	}
	s, ok := scalarString(raw)
	if !ok {
		return StringOperand{}, fmt.Errorf("operator %q requires a single value, got %T", op, raw)
	}
	return StringOperand{Value: s}, nil
}

func decodeNumberOperand(op Operator, raw any, dt DataType) (NumberOperand, error) {
	switch {
	case op.IsPresence():
		return NumberOperand{}, nil
	case op.IsList():
		items, ok := raw.([]any)
		if !ok {
			return NumberOperand{}, fmt.Errorf("operator %q requires a list, got %T", op, raw)
		}
		if len(items) == 0 {
			return NumberOperand{}, fmt.Errorf("operator %q requires a non-empty list", op)
		}
		values := make([]float64, 0, len(items))
		for _, it := range items {
			f, err := parseNumber(it, dt)
			if err != nil {
				return NumberOperand{}, err
			}
			values = append(values, f)
		}
		return NumberOperand{Values: values}, nil
	}
	f, err := parseNumber(raw, dt)
	if err != nil {
		return NumberOperand{}, err
	}
	return NumberOperand{Value: f}, nil
}

// parseNumber parses v as the declared data type; integers must be whole.
func parseNumber(v any, dt DataType) (float64, error) {
	f, ok := toFloat64(v)
	if !ok {
		s, isString := v.(string)
		if !isString {
			return 0, fmt.Errorf("%w: %v (%T) is not a number", ErrTypeMismatch, v, v)
		}
		var err error
		if dt == DataInteger {
			var n int64
			n, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			f = float64(n)
		} else {
			f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a valid %s", ErrTypeMismatch, s, dt)
		}
	}
	if dt == DataInteger && f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, v)
	}
	return f, nil
}

func parseBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrTypeMismatch, b)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("%w: %v (%T) is not a boolean", ErrTypeMismatch, v, v)
}

// scalarString renders a scalar payload as a string.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	}
	if f, ok := toFloat64(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// asStrings accepts a single string or a list of scalars.
func asStrings(v any) ([]string, error) {
	switch list := v.(type) {
	case string:
		return []string{list}, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, it := range list {
			s, ok := scalarString(it)
			if !ok {
				return nil, fmt.Errorf("list entries must be scalars, got %T", it)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a string or a list of strings, got %T", v)
}

// MaxCount bounds every count, hours and minutes setting so that an hour
// count still fits in a time.Duration.
const MaxCount = math.MaxInt64 / int64(time.Hour)

func requiredUint(v any, key string, positive bool) (uint, error) {
	m, ok := asMap(v)
	if !ok {
		return 0, fmt.Errorf("value must be an object with %s", key)
	}
	raw, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, err := parseNumber(raw, DataInteger)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if f < 0 || (positive && f == 0) {
		if positive {
			return 0, fmt.Errorf("%s must be greater than 0", key)
		}
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	if f > float64(MaxCount) {
		return 0, fmt.Errorf("%s must not exceed %d", key, MaxCount)
	}
	return uint(f), nil
}
