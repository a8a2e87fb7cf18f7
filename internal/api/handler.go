package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/nodealert/internal/config"
	"github.com/gyaneshwarpardhi/nodealert/internal/engine"
	"github.com/gyaneshwarpardhi/nodealert/internal/metrics"
	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
	"github.com/gyaneshwarpardhi/nodealert/internal/sink"
)

const maxListLimit = 1000

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng      *engine.Engine
	loader   *config.Loader
	sinks    *sink.Registry
	triggers *sink.Memory
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes. Trigger history is
// served from the sink registered as "memory"; without one, GET /v1/triggers
// reports 404.
func New(eng *engine.Engine, loader *config.Loader, sinks *sink.Registry) http.Handler {
	h := &Handler{eng: eng, loader: loader, sinks: sinks, mux: http.NewServeMux()}
	if sinks != nil {
		if s, err := sinks.Get("memory"); err == nil {
			h.triggers, _ = s.(*sink.Memory)
		}
	}

	h.mux.HandleFunc("POST /v1/evaluate", h.evaluate)
	h.mux.HandleFunc("POST /v1/rules/test", h.testRule)
	h.mux.HandleFunc("POST /v1/rules/validate", h.validateRule)
	h.mux.HandleFunc("GET /v1/rules", h.listRules)
	h.mux.HandleFunc("POST /v1/rules/reload", h.reloadRules)
	h.mux.HandleFunc("GET /v1/triggers", h.listTriggers)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// testRequest names a loaded rule or carries an ad-hoc one.
type testRequest struct {
	RuleID string          `json:"rule_id"`
	Rule   *rule.AlertRule `json:"rule"`
}

// POST /v1/evaluate: run an evaluation pass over the loaded rules now.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	res, err := h.eng.RunPass(r.Context(), "manual", h.loader.Config().AlertRules())
	if err != nil {
		if res != nil {
			// Triggers were produced but a sink failed.
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error(), "result": res})
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/rules/test: dry-run one rule against every node.
func (h *Handler) testRule(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	var target rule.AlertRule
	switch {
	case req.Rule != nil:
		target = *req.Rule
	case req.RuleID != "":
		found := false
		for _, ar := range h.loader.Config().AlertRules() {
			if ar.ID == req.RuleID {
				target, found = ar, true
				break
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, fmt.Sprintf("rule %q not found", req.RuleID))
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "one of rule or rule_id is required")
		return
	}

	if errs := rule.Validate(target); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Valid: false, Errors: errs})
		return
	}
	res, err := h.eng.TestRule(r.Context(), target)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/rules/validate: authoring-time checks of a posted rule.
func (h *Handler) validateRule(w http.ResponseWriter, r *http.Request) {
	var ar rule.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&ar); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if errs := rule.Validate(ar); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Valid: false, Errors: errs})
		return
	}
	writeJSON(w, http.StatusOK, validationResponse{Valid: true})
}

// GET /v1/rules: list loaded rules.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version": cfg.Version,
		"rules":   cfg.AlertRules(),
	})
}

// POST /v1/rules/reload: hot-reload rules from disk.
func (h *Handler) reloadRules(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.eng.InvalidateCache()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":    true,
		"rules_count": len(cfg.Rules),
	})
}

// GET /v1/triggers: recent triggers, newest first.
func (h *Handler) listTriggers(w http.ResponseWriter, r *http.Request) {
	if h.triggers == nil {
		writeError(w, http.StatusNotFound, "trigger history is not enabled")
		return
	}
	q := r.URL.Query()
	f := sink.Filter{
		RuleID:   q.Get("rule_id"),
		Certname: q.Get("certname"),
		Severity: rule.Severity(q.Get("severity")),
		Limit:    100,
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		f.Limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"triggers": h.triggers.List(f)})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the node queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	sinks := []string{}
	if h.sinks != nil {
		sinks = h.sinks.Names()
	}
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
			"sinks":             sinks,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"sinks":             sinks,
	})
}
