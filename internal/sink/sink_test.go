package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
	"github.com/gyaneshwarpardhi/nodealert/internal/trigger"
)

type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) Deliver(context.Context, []trigger.AlertTrigger) error {
	return errors.New("unreachable")
}

func triggers(certnames ...string) []trigger.AlertTrigger {
	out := make([]trigger.AlertTrigger, 0, len(certnames))
	for _, c := range certnames {
		out = append(out, trigger.AlertTrigger{ID: c, AlertRuleID: "r1", Certname: c, Severity: rule.SeverityWarning})
	}
	return out
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	mem := NewMemory(10)
	reg.Register(mem)
	reg.Register(failingSink{})

	assert.Equal(t, []string{"failing", "memory"}, reg.Names())
	assert.Panics(t, func() { reg.Register(NewMemory(1)) })

	got, err := reg.Get("memory")
	require.NoError(t, err)
	assert.Same(t, mem, got)
	_, err = reg.Get("pagerduty")
	assert.Error(t, err)

	err = reg.Deliver(context.Background(), triggers("web-01"))
	assert.ErrorContains(t, err, "sink failing")
	assert.Equal(t, 1, mem.Len(), "a failing sink must not block the others")
}

func TestMemory_BoundedNewestFirst(t *testing.T) {
	mem := NewMemory(3)
	require.NoError(t, mem.Deliver(context.Background(), triggers("a", "b", "c", "d")))

	got := mem.List(Filter{})
	require.Len(t, got, 3)
	assert.Equal(t, "d", got[0].Certname)
	assert.Equal(t, "b", got[2].Certname)
}

func TestMemory_Filter(t *testing.T) {
	mem := NewMemory(10)
	ts := triggers("a", "b", "c")
	ts[1].AlertRuleID = "r2"
	ts[2].Severity = rule.SeverityCritical
	require.NoError(t, mem.Deliver(context.Background(), ts))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"c", "b", "a"}},
		{"by rule", Filter{RuleID: "r2"}, []string{"b"}},
		{"by certname", Filter{Certname: "a"}, []string{"a"}},
		{"by severity", Filter{Severity: rule.SeverityCritical}, []string{"c"}},
		{"limit", Filter{Limit: 2}, []string{"c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, tr := range mem.List(tt.filter) {
				got = append(got, tr.Certname)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))
	ts := triggers("web-01")
	ts[0].Severity = rule.SeverityCritical
	require.NoError(t, l.Deliver(context.Background(), ts))

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "certname=web-01")
	assert.Contains(t, out, "rule_id=r1")
}
