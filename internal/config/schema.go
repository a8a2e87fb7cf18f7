package config

import (
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/nodealert/internal/condition"
	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
)

// Config is the top-level YAML structure.
type Config struct {
	Version  string       `yaml:"version"`
	Engine   EngineConf   `yaml:"engine"`
	PuppetDB PuppetDBConf `yaml:"puppetdb"`
	Groups   []GroupDef   `yaml:"groups"`
	Rules    []RuleDef    `yaml:"rules"`
}

// EngineConf holds tunable concurrency and scheduling settings.
type EngineConf struct {
	NodeWorkers     int    `yaml:"node_workers"`
	QueueDepth      int    `yaml:"queue_depth"`
	NodeTimeoutMs   int    `yaml:"node_timeout_ms"`
	PassTimeoutMs   int    `yaml:"pass_timeout_ms"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	Schedule        string `yaml:"schedule"` // cron expression or descriptor such as "@every 5m"
}

// NodeTimeout is the deadline for fetching one node's data.
func (c EngineConf) NodeTimeout() time.Duration {
	return time.Duration(c.NodeTimeoutMs) * time.Millisecond
}

// PassTimeout is the deadline for a whole pass.
func (c EngineConf) PassTimeout() time.Duration {
	return time.Duration(c.PassTimeoutMs) * time.Millisecond
}

// CacheTTL is how long fetched node data is reused.
func (c EngineConf) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// PuppetDBConf points at the PuppetDB query API.
type PuppetDBConf struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	RetryCount int    `yaml:"retry_count"`
	// RetryWaitMs is the initial wait between retries; resty backs off from there.
	RetryWaitMs int `yaml:"retry_wait_ms"`
}

// GroupDef is a static node group: explicit certnames and/or a certname regex.
type GroupDef struct {
	ID              string   `yaml:"id"`
	Certnames       []string `yaml:"certnames"`
	CertnamePattern string   `yaml:"certname_pattern"`
}

// RuleDef is an alert rule as written in the rules file.
type RuleDef struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	Enabled         *bool          `yaml:"enabled"` // nil = enabled
	Severity        string         `yaml:"severity"`
	LogicalOperator string         `yaml:"logical_operator"`
	DebounceCount   int            `yaml:"debounce_count"`
	Conditions      []ConditionDef `yaml:"conditions"`
}

// ConditionDef is one condition as written in the rules file.
type ConditionDef struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
	Enabled  *bool  `yaml:"enabled"` // nil = enabled
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// Rule converts the definition into the engine's rule model.
func (d RuleDef) Rule() rule.AlertRule {
	r := rule.AlertRule{
		ID:              d.ID,
		Name:            d.Name,
		Enabled:         enabled(d.Enabled),
		Severity:        rule.Severity(strings.ToLower(d.Severity)),
		LogicalOperator: rule.LogicalOperator(strings.ToUpper(d.LogicalOperator)),
		DebounceCount:   d.DebounceCount,
		Conditions:      make([]condition.Condition, 0, len(d.Conditions)),
	}
	for _, c := range d.Conditions {
		r.Conditions = append(r.Conditions, condition.Condition{
			ID:       c.ID,
			Type:     condition.Type(strings.ToLower(c.Type)),
			Operator: condition.Operator(strings.ToLower(c.Operator)),
			Value:    c.Value,
			Enabled:  enabled(c.Enabled),
		})
	}
	return r
}

// AlertRules converts every rule definition.
func (c *Config) AlertRules() []rule.AlertRule {
	out := make([]rule.AlertRule, 0, len(c.Rules))
	for _, d := range c.Rules {
		out = append(out, d.Rule())
	}
	return out
}
