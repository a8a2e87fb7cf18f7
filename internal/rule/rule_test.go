package rule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/nodealert/internal/condition"
	"github.com/gyaneshwarpardhi/nodealert/internal/node"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func cond(id string, typ condition.Type, op condition.Operator, value any) condition.Condition {
	return condition.Condition{ID: id, Type: typ, Operator: op, Value: value, Enabled: true}
}

var (
	statusFailed = cond("status", condition.TypeNodeStatus, condition.OpIn, []any{"failed"})
	envProd      = cond("env", condition.TypeEnvironmentFilter, condition.OpEq, "production")
	// missingFact errors on every node below: none has a kernel fact.
	missingFact = cond("kernel", condition.TypeNodeFact, condition.OpEq,
		map[string]any{"fact_path": "kernel", "data_type": "string", "value": "Linux"})
)

func newRule(op LogicalOperator, conds ...condition.Condition) AlertRule {
	return AlertRule{ID: "r1", Name: "test", Enabled: true, Severity: SeverityWarning, LogicalOperator: op, Conditions: conds}
}

func TestEvaluateRule_Scenarios(t *testing.T) {
	r := newRule(And, statusFailed, envProd)
	cases := []struct {
		name string
		node node.Snapshot
		want bool
	}{
		{"failed in production", node.Snapshot{Certname: "a", Status: node.StatusFailed, Environment: "production"}, true},
		{"failed in staging", node.Snapshot{Certname: "b", Status: node.StatusFailed, Environment: "staging"}, false},
		{"success in production", node.Snapshot{Certname: "c", Status: node.StatusSuccess, Environment: "production"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvaluateRule(r, tc.node, nil, now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateRule_NoEnabledConditionsMatchesNothing(t *testing.T) {
	disabled := statusFailed
	disabled.Enabled = false
	n := node.Snapshot{Status: node.StatusFailed}

	for _, r := range []AlertRule{newRule(And), newRule(Or), newRule(And, disabled), newRule(Or, disabled)} {
		got, err := EvaluateRule(r, n, nil, now)
		require.NoError(t, err)
		assert.False(t, got)
	}
}

func TestEvaluateRule_ShortCircuit(t *testing.T) {
	failed := node.Snapshot{Certname: "a", Status: node.StatusFailed}
	healthy := node.Snapshot{Certname: "b", Status: node.StatusSuccess}

	t.Run("AND stops at first false", func(t *testing.T) {
		got, err := EvaluateRule(newRule(And, statusFailed, missingFact), healthy, nil, now)
		assert.NoError(t, err)
		assert.False(t, got)
	})
	t.Run("AND surfaces a reached error", func(t *testing.T) {
		got, err := EvaluateRule(newRule(And, statusFailed, missingFact), failed, nil, now)
		assert.False(t, got)
		var ee *condition.EvaluationError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, "kernel", ee.ConditionID)
		assert.Equal(t, "a", ee.Certname)
		assert.ErrorIs(t, err, condition.ErrFactMissing)
	})
	t.Run("OR stops at first true", func(t *testing.T) {
		got, err := EvaluateRule(newRule(Or, statusFailed, missingFact), failed, nil, now)
		assert.NoError(t, err)
		assert.True(t, got)
	})
	t.Run("OR continues past an error", func(t *testing.T) {
		got, err := EvaluateRule(newRule(Or, missingFact, statusFailed), failed, nil, now)
		assert.True(t, got)
		assert.ErrorIs(t, err, condition.ErrFactMissing)
	})
	t.Run("OR all false", func(t *testing.T) {
		got, err := EvaluateRule(newRule(Or, statusFailed, envProd), healthy, nil, now)
		assert.NoError(t, err)
		assert.False(t, got)
	})
}

func TestEvaluateRule_ConsecutiveFailures(t *testing.T) {
	r := newRule(And, cond("streak", condition.TypeConsecutiveFailures, condition.OpGte,
		map[string]any{"count": 3, "within_hours": 12}))
	at := func(h int, s node.Status) node.Report {
		return node.Report{Timestamp: now.Add(-time.Duration(h) * time.Hour), Status: s}
	}

	got, err := EvaluateRule(r, node.Snapshot{}, []node.Report{
		at(0, node.StatusFailed), at(1, node.StatusFailed), at(2, node.StatusFailed), at(3, node.StatusSuccess),
	}, now)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateRule(r, node.Snapshot{}, []node.Report{
		at(0, node.StatusFailed), at(1, node.StatusSuccess), at(2, node.StatusFailed),
	}, now)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateRule_TimeWindowFilterIsAnOrdinaryTerm(t *testing.T) {
	recent := cond("recent", condition.TypeTimeWindowFilter, condition.OpLte, map[string]any{"minutes": 30})
	stale := node.Snapshot{Certname: "a", Status: node.StatusFailed, LastReportAt: now.Add(-5 * time.Hour)}

	got, err := EvaluateRule(newRule(Or, recent, statusFailed), stale, nil, now)
	require.NoError(t, err)
	assert.True(t, got, "OR still matches on the status term")

	got, err = EvaluateRule(newRule(And, recent, statusFailed), stale, nil, now)
	require.NoError(t, err)
	assert.False(t, got)

	fresh := stale
	fresh.LastReportAt = now.Add(-10 * time.Minute)
	got, err = EvaluateRule(newRule(And, recent, statusFailed), fresh, nil, now)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompile(t *testing.T) {
	gate := cond("gate", condition.TypeNodeCountThreshold, condition.OpGt, map[string]any{"count": 5})
	c, err := Compile(newRule(And, statusFailed, gate, envProd))
	require.NoError(t, err)
	assert.Len(t, c.Conditions(), 2)
	assert.Len(t, c.Thresholds(), 1)

	for _, matched := range []int{3, 5} {
		pass, err := c.CountGate(matched)
		require.NoError(t, err)
		assert.False(t, pass)
	}
	pass, err := c.CountGate(6)
	require.NoError(t, err)
	assert.True(t, pass)

	noGate, err := Compile(newRule(And, statusFailed))
	require.NoError(t, err)
	pass, err = noGate.CountGate(0)
	require.NoError(t, err)
	assert.True(t, pass)

	_, err = Compile(newRule(And, cond("bad", condition.TypeNodeStatus, condition.OpGt, "failed")))
	var ve condition.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "r1", ve.RuleID)

	_, err = Compile(newRule("XOR", statusFailed))
	assert.Error(t, err)
}

func TestCompile_OnlyGateConditionsMatchesNothing(t *testing.T) {
	gate := cond("gate", condition.TypeNodeCountThreshold, condition.OpGte, map[string]any{"count": 0})
	got, err := EvaluateRule(newRule(And, gate), node.Snapshot{Status: node.StatusFailed}, nil, now)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestNeeds(t *testing.T) {
	c, err := Compile(newRule(Or,
		statusFailed,
		cond("groups", condition.TypeGroupFilter, condition.OpIn, []any{"web"}),
		cond("metric", condition.TypeReportMetric, condition.OpGt, map[string]any{"metric": "resources.failed", "value": 0}),
		cond("streak", condition.TypeConsecutiveFailures, condition.OpGte, map[string]any{"count": 2, "within_hours": 6}),
		cond("churn", condition.TypeClassChangeFrequency, condition.OpGt, map[string]any{"class_name": "ntp", "change_count": 1, "within_hours": 24}),
	))
	require.NoError(t, err)
	assert.Equal(t, Needs{Reports: true, ReportHours: 24, LatestReport: true, Groups: true}, c.Needs())

	plain, err := Compile(newRule(And, statusFailed))
	require.NoError(t, err)
	assert.Equal(t, Needs{}, plain.Needs())
	assert.Equal(t, Needs{Reports: true, ReportHours: 48}, Needs{Reports: true, ReportHours: 48}.Merge(plain.Needs()))
}

func TestValidate(t *testing.T) {
	valid := newRule(And, statusFailed, envProd)
	assert.Empty(t, Validate(valid))

	bad := AlertRule{
		Severity:        "loud",
		LogicalOperator: "XOR",
		DebounceCount:   -1,
		Conditions: []condition.Condition{
			statusFailed,
			statusFailed,
			cond("", condition.TypeNodeStatus, condition.OpGt, "failed"),
		},
	}
	fields := map[string]bool{}
	for _, e := range Validate(bad) {
		fields[e.Field] = true
	}
	for _, f := range []string{"id", "name", "severity", "logical_operator", "debounce_count",
		"conditions[1].id", "conditions[2].id", "conditions[2].operator"} {
		assert.True(t, fields[f], "expected a validation error on %s, got %v", f, fields)
	}
}

func TestAlertRule_Defaults(t *testing.T) {
	r := AlertRule{}
	assert.Equal(t, And, r.Operator())
	assert.Equal(t, 1, r.Debounce())
	r.LogicalOperator = " or "
	assert.Equal(t, Or, r.Operator())
	r.DebounceCount = 3
	assert.Equal(t, 3, r.Debounce())
}
