package trigger

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
)

// AlertTrigger is emitted for a node that satisfied a rule for enough consecutive passes.
type AlertTrigger struct {
	ID             string        `json:"id"`
	AlertRuleID    string        `json:"alert_rule_id"`
	RuleName       string        `json:"rule_name"`
	Certname       string        `json:"certname"`
	Severity       rule.Severity `json:"severity"`
	TriggeredAt    time.Time     `json:"triggered_at"`
	TriggeredCount int           `json:"triggered_count"`
}

// Match is a node that matched a rule in this pass together with its
// consecutive-pass counter.
type Match struct {
	Certname string
	Count    int
}

// Generate builds triggers for matches whose counter reached the rule's
// debounce count. The node-count gate must have been applied by the caller.
// Triggers are ordered by certname.
func Generate(c *rule.Compiled, matches []Match, now time.Time) []AlertTrigger {
	debounce := c.Rule.Debounce()
	out := make([]AlertTrigger, 0, len(matches))
	for _, m := range matches {
		if m.Count < debounce {
			continue
		}
		out = append(out, AlertTrigger{
			ID:             uuid.NewString(),
			AlertRuleID:    c.Rule.ID,
			RuleName:       c.Rule.Name,
			Certname:       m.Certname,
			Severity:       c.Rule.Severity,
			TriggeredAt:    now,
			TriggeredCount: m.Count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Certname < out[j].Certname })
	return out
}
