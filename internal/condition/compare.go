package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// numericEpsilon absorbs float round-trips for = and != on numbers.
const numericEpsilon = 1e-3

// StringOperand is the right-hand side of a string comparison.
// Pattern is set for ~ and !~, Values for in and not_in, Value otherwise.
type StringOperand struct {
	Value   string
	Values  []string
	Pattern *regexp.Regexp
}

// NumberOperand is the right-hand side of a numeric comparison.
type NumberOperand struct {
	Value  float64
	Values []float64
}

// toFloat64 coerces a numeric value to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// CompareString applies op to a string value.
func CompareString(op Operator, actual string, want StringOperand) (bool, error) {
	switch op {
	case OpEq:
		return actual == want.Value, nil
	case OpNeq:
		return actual != want.Value, nil
	case OpMatches, OpNotMatches:
		if want.Pattern == nil {
			return false, fmt.Errorf("operator %s: pattern %q was not compiled", op, want.Value)
		}
		m := want.Pattern.MatchString(actual)
		if op == OpNotMatches {
			return !m, nil
		}
		return m, nil
	case OpIn:
		return containsString(want.Values, actual), nil
	case OpNotIn:
		return !containsString(want.Values, actual), nil
	case OpContains:
		return strings.Contains(actual, want.Value), nil
	case OpNotContains:
		return !strings.Contains(actual, want.Value), nil
	}
	return false, fmt.Errorf("operator %s is not supported for string values", op)
}

// CompareNumber applies op to a numeric value.
func CompareNumber(op Operator, actual float64, want NumberOperand) (bool, error) {
	switch op {
	case OpEq:
		return equalFloat(actual, want.Value), nil
	case OpNeq:
		return !equalFloat(actual, want.Value), nil
	case OpGt:
		return actual > want.Value, nil
	case OpGte:
		return actual >= want.Value, nil
	case OpLt:
		return actual < want.Value, nil
	case OpLte:
		return actual <= want.Value, nil
	case OpIn, OpNotIn:
		found := false
		for _, v := range want.Values {
			if equalFloat(actual, v) {
				found = true
				break
			}
		}
		if op == OpNotIn {
			return !found, nil
		}
		return found, nil
	}
	return false, fmt.Errorf("operator %s is not supported for numeric values", op)
}

// CompareBool applies op to a boolean value.
func CompareBool(op Operator, actual, want bool) (bool, error) {
	switch op {
	case OpEq:
		return actual == want, nil
	case OpNeq:
		return actual != want, nil
	}
	return false, fmt.Errorf("operator %s is not supported for boolean values", op)
}

// CompareSet applies op to an unordered set of strings.
//
//	in / not_in             any / none of want is in actual
//	contains / not_contains want is / is not a subset of actual
//	= / !=                  set equality
func CompareSet(op Operator, actual, want []string) (bool, error) {
	have := make(map[string]struct{}, len(actual))
	for _, a := range actual {
		have[a] = struct{}{}
	}
	switch op {
	case OpIn, OpNotIn:
		hit := false
		for _, w := range want {
			if _, ok := have[w]; ok {
				hit = true
				break
			}
		}
		if op == OpNotIn {
			return !hit, nil
		}
		return hit, nil
	case OpContains, OpNotContains:
		subset := true
		for _, w := range want {
			if _, ok := have[w]; !ok {
				subset = false
				break
			}
		}
		if op == OpNotContains {
			return !subset, nil
		}
		return subset, nil
	case OpEq, OpNeq:
		eq := setEqual(have, want)
		if op == OpNeq {
			return !eq, nil
		}
		return eq, nil
	}
	return false, fmt.Errorf("operator %s is not supported for set values", op)
}

// ComparePresence evaluates exists / not_exists.
func ComparePresence(op Operator, present bool) (bool, error) {
	switch op {
	case OpExists:
		return present, nil
	case OpNotExists:
		return !present, nil
	}
	return false, fmt.Errorf("operator %s is not a presence test", op)
}

func equalFloat(a, b float64) bool {
	return math.Abs(a-b) < numericEpsilon
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func setEqual(have map[string]struct{}, want []string) bool {
	wantSet := make(map[string]struct{}, len(want))
	for _, w := range want {
		if _, ok := have[w]; !ok {
			return false
		}
		wantSet[w] = struct{}{}
	}
	return len(wantSet) == len(have)
}
