package groups

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/nodealert/internal/config"
)

type group struct {
	id        string
	certnames map[string]struct{}
	pattern   *regexp.Regexp
}

// Static resolves node group membership from the groups section of the rule
// file. A node belongs to a group when its certname is listed explicitly or
// matches the group's certname pattern.
type Static struct {
	mu     sync.RWMutex
	groups []group
}

// NewStatic compiles group definitions.
func NewStatic(defs []config.GroupDef) (*Static, error) {
	s := &Static{}
	if err := s.Update(defs); err != nil {
		return nil, err
	}
	return s, nil
}

// Update replaces the group definitions, e.g. after a config reload. Invalid
// definitions leave the current groups in place.
func (s *Static) Update(defs []config.GroupDef) error {
	groups := make([]group, 0, len(defs))
	for _, d := range defs {
		g := group{id: d.ID, certnames: make(map[string]struct{}, len(d.Certnames))}
		for _, c := range d.Certnames {
			g.certnames[c] = struct{}{}
		}
		if d.CertnamePattern != "" {
			re, err := regexp.Compile(d.CertnamePattern)
			if err != nil {
				return fmt.Errorf("group %s: invalid certname_pattern: %w", d.ID, err)
			}
			g.pattern = re
		}
		groups = append(groups, g)
	}
	s.mu.Lock()
	s.groups = groups
	s.mu.Unlock()
	return nil
}

// GetNodeGroups returns the sorted ids of the groups certname belongs to.
// With no groups defined it returns nil, leaving membership to the node data.
func (s *Static) GetNodeGroups(ctx context.Context, certname string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.groups) == 0 {
		return nil, nil
	}
	out := []string{}
	for _, g := range s.groups {
		if _, ok := g.certnames[certname]; ok {
			out = append(out, g.id)
			continue
		}
		if g.pattern != nil && g.pattern.MatchString(certname) {
			out = append(out, g.id)
		}
	}
	sort.Strings(out)
	return out, nil
}
