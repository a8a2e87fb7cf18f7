package sink

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
	"github.com/gyaneshwarpardhi/nodealert/internal/trigger"
)

// Log writes one structured log line per trigger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log sink; a nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Deliver(ctx context.Context, triggers []trigger.AlertTrigger) error {
	for _, t := range triggers {
		l.logger.Log(ctx, level(t.Severity), "alert triggered",
			"trigger_id", t.ID,
			"rule_id", t.AlertRuleID,
			"rule", t.RuleName,
			"certname", t.Certname,
			"severity", t.Severity,
			"count", t.TriggeredCount)
	}
	return nil
}

func level(s rule.Severity) slog.Level {
	switch s {
	case rule.SeverityCritical, rule.SeverityEmergency:
		return slog.LevelError
	case rule.SeverityWarning:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
