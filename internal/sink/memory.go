package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
	"github.com/gyaneshwarpardhi/nodealert/internal/trigger"
)

// Filter selects triggers from a Memory sink. Zero fields match everything.
type Filter struct {
	RuleID   string
	Certname string
	Severity rule.Severity
	Limit    int
}

func (f Filter) match(t trigger.AlertTrigger) bool {
	if f.RuleID != "" && t.AlertRuleID != f.RuleID {
		return false
	}
	if f.Certname != "" && t.Certname != f.Certname {
		return false
	}
	if f.Severity != "" && t.Severity != f.Severity {
		return false
	}
	return true
}

// Memory keeps the most recent triggers in a bounded in-process buffer.
type Memory struct {
	mu       sync.RWMutex
	triggers []trigger.AlertTrigger
	maxSize  int
}

// NewMemory creates a buffer holding at most maxSize triggers.
func NewMemory(maxSize int) *Memory {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Memory{triggers: make([]trigger.AlertTrigger, 0, maxSize), maxSize: maxSize}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Deliver(_ context.Context, triggers []trigger.AlertTrigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range triggers {
		if len(m.triggers) < m.maxSize {
			m.triggers = append(m.triggers, t)
			continue
		}
		slog.Debug("trigger buffer full, dropping oldest trigger")
		copy(m.triggers, m.triggers[1:])
		m.triggers[len(m.triggers)-1] = t
	}
	return nil
}

// List returns matching triggers, newest first.
func (m *Memory) List(f Filter) []trigger.AlertTrigger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]trigger.AlertTrigger, 0)
	for i := len(m.triggers) - 1; i >= 0; i-- {
		if !f.match(m.triggers[i]) {
			continue
		}
		out = append(out, m.triggers[i])
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of buffered triggers.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.triggers)
}
