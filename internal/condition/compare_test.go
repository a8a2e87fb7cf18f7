package condition

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type compareCase struct {
	name string
	op   Operator
	want bool
}

func TestCompareString(t *testing.T) {
	pattern := StringOperand{Value: `^web-\d+$`, Pattern: regexp.MustCompile(`^web-\d+$`)}
	cases := []struct {
		compareCase
		actual  string
		operand StringOperand
	}{
		{compareCase{"eq", OpEq, true}, "failed", StringOperand{Value: "failed"}},
		{compareCase{"eq is case sensitive", OpEq, false}, "Failed", StringOperand{Value: "failed"}},
		{compareCase{"neq", OpNeq, true}, "success", StringOperand{Value: "failed"}},
		{compareCase{"regex match", OpMatches, true}, "web-12", pattern},
		{compareCase{"regex no match", OpMatches, false}, "db-12", pattern},
		{compareCase{"negated regex", OpNotMatches, true}, "db-12", pattern},
		{compareCase{"in", OpIn, true}, "noop", StringOperand{Values: []string{"failed", "noop"}}},
		{compareCase{"not in", OpNotIn, false}, "noop", StringOperand{Values: []string{"failed", "noop"}}},
		{compareCase{"contains", OpContains, true}, "production-eu", StringOperand{Value: "prod"}},
		{compareCase{"not contains", OpNotContains, true}, "staging", StringOperand{Value: "prod"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CompareString(tc.op, tc.actual, tc.operand)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := CompareString(OpMatches, "x", StringOperand{Value: "x"})
	assert.Error(t, err, "an uncompiled pattern is an evaluation error")
	_, err = CompareString(OpGt, "x", StringOperand{})
	assert.Error(t, err)
}

func TestCompareNumber(t *testing.T) {
	cases := []struct {
		compareCase
		actual  float64
		operand NumberOperand
	}{
		{compareCase{"eq within epsilon", OpEq, true}, 0.1 + 0.2, NumberOperand{Value: 0.3}},
		{compareCase{"eq outside epsilon", OpEq, false}, 0.302, NumberOperand{Value: 0.3}},
		{compareCase{"neq", OpNeq, true}, 5, NumberOperand{Value: 4}},
		{compareCase{"gt", OpGt, true}, 11, NumberOperand{Value: 10}},
		{compareCase{"gt equal", OpGt, false}, 10, NumberOperand{Value: 10}},
		{compareCase{"gte", OpGte, true}, 10, NumberOperand{Value: 10}},
		{compareCase{"lt", OpLt, true}, 7, NumberOperand{Value: 8}},
		{compareCase{"lte", OpLte, false}, 9, NumberOperand{Value: 8}},
		{compareCase{"in", OpIn, true}, 8.0004, NumberOperand{Values: []float64{7, 8}}},
		{compareCase{"not in", OpNotIn, true}, 9, NumberOperand{Values: []float64{7, 8}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CompareNumber(tc.op, tc.actual, tc.operand)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := CompareNumber(OpMatches, 1, NumberOperand{})
	assert.Error(t, err)
}

func TestCompareBool(t *testing.T) {
	got, err := CompareBool(OpEq, true, true)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = CompareBool(OpNeq, true, true)
	require.NoError(t, err)
	assert.False(t, got)

	_, err = CompareBool(OpGt, true, false)
	assert.Error(t, err)
}

func TestCompareSet(t *testing.T) {
	actual := []string{"web", "canary", "eu"}
	cases := []struct {
		compareCase
		want []string
	}{
		{compareCase{"in any", OpIn, true}, []string{"db", "web"}},
		{compareCase{"in none", OpIn, false}, []string{"db"}},
		{compareCase{"not in", OpNotIn, true}, []string{"db"}},
		{compareCase{"contains subset", OpContains, true}, []string{"web", "eu"}},
		{compareCase{"contains missing", OpContains, false}, []string{"web", "us"}},
		{compareCase{"not contains", OpNotContains, true}, []string{"us"}},
		{compareCase{"set equal ignores order", OpEq, true}, []string{"eu", "web", "canary"}},
		{compareCase{"set equal ignores duplicates", OpEq, true}, []string{"eu", "web", "canary", "eu"}},
		{compareCase{"set not equal", OpNeq, true}, []string{"web"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CompareSet(tc.op, actual, tc.want)
			require.NoError(t, err)
			assert.Equal(t, tc.compareCase.want, got)
		})
	}

	got, err := CompareSet(OpIn, nil, []string{"web"})
	require.NoError(t, err)
	assert.False(t, got, "a node without groups is in no group")
}

func TestComparePresence(t *testing.T) {
	got, _ := ComparePresence(OpExists, true)
	assert.True(t, got)
	got, _ = ComparePresence(OpNotExists, true)
	assert.False(t, got)
	_, err := ComparePresence(OpEq, true)
	assert.Error(t, err)
}
