package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/nodealert/internal/engine"
)

const (
	rulesFile   = "../../configs/rules.yaml"
	fixtureFile = "../../configs/fixture.yaml"
	fixtureNow  = "2024-05-01T12:00:00Z"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "--config", rulesFile)
	require.NoError(t, err)
	assert.Contains(t, out, "OK (7 rules, 6 enabled, 2 groups)")
}

func TestValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	bad := `
version: "1"
rules:
  - id: r1
    name: bad operator
    severity: warning
    conditions:
      - id: c1
        type: node_status
        operator: ">"
        value: failed
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	_, err := run(t, "validate", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule r1: condition c1: operator")
}

func TestTest_JSON(t *testing.T) {
	out, err := run(t, "test", "--config", rulesFile, "--fixture", fixtureFile, "--now", fixtureNow,
		"--rule", "stale-nodes", "--output", "json")
	require.NoError(t, err)

	var results []engine.TestResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, "stale-nodes", res.RuleID)
	assert.Equal(t, 1, res.MatchedCount)
	require.Len(t, res.Triggers, 1, "dry runs list triggers regardless of debounce")
	assert.Equal(t, "db-01.example.com", res.Triggers[0].Certname)
}

func TestTest_Text(t *testing.T) {
	out, err := run(t, "test", "-c", rulesFile, "-f", fixtureFile, "--now", fixtureNow, "-r", "widespread-failures")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule widespread-failures: 1/3 nodes matched, node-count gate blocked, 0 triggers")
	assert.Contains(t, out, "web-01.example.com")
}

func TestTest_UnknownRule(t *testing.T) {
	_, err := run(t, "test", "-c", rulesFile, "-f", fixtureFile, "-r", "nope")
	assert.ErrorContains(t, err, `no rule matches "nope"`)
}

func TestEvaluate(t *testing.T) {
	out, err := run(t, "evaluate", "-c", rulesFile, "-f", fixtureFile, "--now", fixtureNow, "-o", "json")
	require.NoError(t, err)

	var res engine.PassResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 6, res.RulesEvaluated)
	assert.Equal(t, 3, res.NodesEvaluated)

	got := map[string]string{}
	for _, tr := range res.Triggers {
		got[tr.AlertRuleID] = tr.Certname
	}
	assert.Equal(t, map[string]string{
		"failed-production": "web-01.example.com",
		"web-failure-rate":  "web-01.example.com",
		"old-redhat":        "web-01.example.com",
	}, got)
}

func TestBadFlags(t *testing.T) {
	_, err := run(t, "test", "-c", rulesFile, "-f", fixtureFile, "-o", "xml")
	assert.Error(t, err)
	_, err = run(t, "evaluate", "-c", rulesFile, "-f", fixtureFile, "--now", "yesterday")
	assert.Error(t, err)
}
