package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/nodealert/internal/config"
	"github.com/gyaneshwarpardhi/nodealert/internal/engine"
	"github.com/gyaneshwarpardhi/nodealert/internal/fixture"
	"github.com/gyaneshwarpardhi/nodealert/internal/node"
	"github.com/gyaneshwarpardhi/nodealert/internal/sink"
)

const rulesYAML = `
version: "1"
engine:
  node_workers: 2
rules:
  - id: failed-prod
    name: Failed production runs
    severity: critical
    conditions:
      - id: c1
        type: node_status
        operator: "="
        value: failed
      - id: c2
        type: environment_filter
        operator: "="
        value: production
`

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (http.Handler, *sink.Memory) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o600))
	loader, err := config.NewLoader(path)
	require.NoError(t, err)

	src, err := fixture.New(fixture.File{Nodes: []node.Snapshot{
		{Certname: "web-01", Environment: "production", Status: node.StatusFailed, LastReportAt: now.Add(-time.Hour)},
		{Certname: "web-02", Environment: "production", Status: node.StatusSuccess, LastReportAt: now.Add(-time.Hour)},
		{Certname: "dev-01", Environment: "development", Status: node.StatusFailed, LastReportAt: now.Add(-time.Hour)},
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mem := sink.NewMemory(100)
	reg := sink.NewRegistry()
	reg.Register(mem)
	eng := engine.New(ctx, src, loader.Config().Engine,
		engine.WithSink(reg),
		engine.WithClock(func() time.Time { return now }))
	t.Cleanup(eng.Shutdown)
	return New(eng, loader, reg), mem
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEvaluate_DeliversTriggers(t *testing.T) {
	h, mem := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/evaluate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res engine.PassResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 3, res.NodesEvaluated)
	require.Len(t, res.Triggers, 1)
	assert.Equal(t, "web-01", res.Triggers[0].Certname)
	assert.Equal(t, 1, mem.Len())

	rec = do(t, h, http.MethodGet, "/v1/triggers?rule_id=failed-prod", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"certname":"web-01"`)
}

func TestTestRule(t *testing.T) {
	h, mem := newTestServer(t)

	body := `{"rule":{"id":"any-failed","name":"Any failure","severity":"warning",
		"conditions":[{"id":"c1","type":"node_status","operator":"=","value":"failed"}]}}`
	rec := do(t, h, http.MethodPost, "/v1/rules/test", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res engine.TestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.MatchedCount)
	assert.True(t, res.GatePassed)
	assert.Len(t, res.Triggers, 2)
	assert.Zero(t, mem.Len(), "dry runs must not reach the sink")
}

func TestTestRule_ByID(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/rules/test", `{"rule_id":"failed-prod"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/rules/test", `{"rule_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/rules/test", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateRule(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"valid", `{"id":"r","name":"n","severity":"info","conditions":[{"id":"c","type":"node_status","operator":"=","value":"failed"}]}`, http.StatusOK},
		{"illegal operator", `{"id":"r","name":"n","severity":"info","conditions":[{"id":"c","type":"node_status","operator":">","value":"failed"}]}`, http.StatusUnprocessableEntity},
		{"bad severity", `{"id":"r","name":"n","severity":"loud","conditions":[]}`, http.StatusUnprocessableEntity},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/rules/validate", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestListRulesAndReload(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"failed-prod"`)

	rec = do(t, h, http.MethodPost, "/v1/rules/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"rules_count":1`)
}

func TestListTriggers_BadLimit(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/v1/triggers?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProbes(t *testing.T) {
	h, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)

	rec := do(t, h, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ready struct {
		Status string   `json:"status"`
		Sinks  []string `json:"sinks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, []string{"memory"}, ready.Sinks)
}

func TestListTriggers_WithoutHistorySink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	src, err := fixture.New(fixture.File{})
	require.NoError(t, err)
	eng := engine.New(ctx, src, config.EngineConf{NodeWorkers: 1, QueueDepth: 1})
	t.Cleanup(eng.Shutdown)

	h := New(eng, nil, sink.NewRegistry())
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/triggers", "").Code)
}
