package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
)

// Validate checks the config for:
//   - Required fields and engine settings
//   - A parseable pass schedule
//   - Duplicate rule and group IDs
//   - Every rule error reported by rule.Validate
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Engine.NodeWorkers < 1 {
		errs = append(errs, "engine.node_workers must be at least 1")
	}
	if cfg.Engine.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Engine.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("engine.schedule %q: %v", cfg.Engine.Schedule, err))
		}
	}

	groups := make(map[string]int)
	for i, g := range cfg.Groups {
		if g.ID == "" {
			errs = append(errs, fmt.Sprintf("groups[%d]: id is required", i))
			continue
		}
		if prev, ok := groups[g.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate group id %q (first seen at groups[%d], again at groups[%d])", g.ID, prev, i))
		} else {
			groups[g.ID] = i
		}
		if g.CertnamePattern != "" {
			if _, err := regexp.Compile(g.CertnamePattern); err != nil {
				errs = append(errs, fmt.Sprintf("group %s: invalid certname_pattern: %v", g.ID, err))
			}
		}
	}

	rules := make(map[string]int)
	for i, d := range cfg.Rules {
		if d.ID != "" {
			if prev, ok := rules[d.ID]; ok {
				errs = append(errs, fmt.Sprintf("duplicate rule id %q (first seen at rules[%d], again at rules[%d])", d.ID, prev, i))
			} else {
				rules[d.ID] = i
			}
		}
		for _, ve := range rule.Validate(d.Rule()) {
			if d.ID == "" {
				errs = append(errs, fmt.Sprintf("rules[%d]: %s", i, ve.Error()))
				continue
			}
			errs = append(errs, ve.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
