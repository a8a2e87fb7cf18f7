package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassesRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodealert_passes_total",
		Help: "Total number of evaluation passes, labelled by kind (scheduled, manual, test) and outcome.",
	}, []string{"kind", "outcome"})

	NodesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodealert_nodes_evaluated_total",
		Help: "Total number of node evaluations across all passes.",
	})

	NodesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodealert_nodes_skipped_total",
		Help: "Total number of nodes skipped because their data could not be fetched, labelled by reason.",
	}, []string{"reason"})

	ConditionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodealert_condition_errors_total",
		Help: "Total number of rule evaluations that returned a condition error, labelled by rule ID.",
	}, []string{"rule_id"})

	RulesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodealert_rule_node_matches_total",
		Help: "Total number of node matches, labelled by rule ID.",
	}, []string{"rule_id"})

	RulesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodealert_rules_skipped_total",
		Help: "Total number of rules skipped in a pass because they failed to compile.",
	})

	TriggersEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodealert_triggers_emitted_total",
		Help: "Total number of alert triggers emitted, labelled by severity.",
	}, []string{"severity"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodealert_node_cache_lookups_total",
		Help: "Node data cache lookups, labelled by data kind and result (hit, miss).",
	}, []string{"kind", "result"})

	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nodealert_pass_duration_ms",
		Help:    "End-to-end evaluation pass latency in milliseconds.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nodealert_queue_utilization_ratio",
		Help: "Current node evaluation queue utilization (0 to 1).",
	})
)
