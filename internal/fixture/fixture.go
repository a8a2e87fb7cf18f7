// Package fixture serves node data from a YAML file, for dry runs and tests
// without a PuppetDB.
package fixture

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/nodealert/internal/node"
)

// File is the on-disk layout of a fixture.
//
//	nodes:
//	  - certname: web-01
//	    environment: production
//	    status: failed
//	    last_report_at: 2024-05-01T10:00:00Z
//	    facts: {os: {family: RedHat}}
//	reports:
//	  - certname: web-01
//	    timestamp: 2024-05-01T10:00:00Z
//	    status: failed
//	    metrics: {resources.failed: 2, resources.total: 8}
type File struct {
	Nodes   []node.Snapshot `yaml:"nodes"`
	Reports []node.Report   `yaml:"reports"`
}

// Source is a NodeSource backed by fixture data. It is read-only after
// construction and safe for concurrent use.
type Source struct {
	nodes   []node.Snapshot
	reports map[string][]node.Report // certname → reports, newest first
	now     func() time.Time
}

// Load reads a fixture file.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML.
func Parse(data []byte) (*Source, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return New(f)
}

// New builds a Source from in-memory data. Nested facts are flattened to
// dotted paths; a node without last_report_at takes the time of its newest report.
func New(f File) (*Source, error) {
	s := &Source{
		reports: make(map[string][]node.Report),
		now:     func() time.Time { return time.Now().UTC() },
	}
	seen := make(map[string]struct{}, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.Certname == "" {
			return nil, fmt.Errorf("fixture: node without certname")
		}
		if _, dup := seen[n.Certname]; dup {
			return nil, fmt.Errorf("fixture: duplicate node %q", n.Certname)
		}
		seen[n.Certname] = struct{}{}
		if n.Status == "" {
			n.Status = node.StatusUnknown
		}
		if !n.Status.Valid() {
			return nil, fmt.Errorf("fixture: node %s: unknown status %q", n.Certname, n.Status)
		}
		n.Facts = node.FlattenFacts(n.Facts)
		s.nodes = append(s.nodes, n)
	}
	for _, r := range f.Reports {
		if _, ok := seen[r.Certname]; !ok {
			return nil, fmt.Errorf("fixture: report for unknown node %q", r.Certname)
		}
		s.reports[r.Certname] = append(s.reports[r.Certname], r)
	}
	for certname, rs := range s.reports {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Timestamp.After(rs[j].Timestamp) })
		s.reports[certname] = rs
	}
	for i := range s.nodes {
		n := &s.nodes[i]
		if rs := s.reports[n.Certname]; !n.HasReported() && len(rs) > 0 {
			n.LastReportAt = rs[0].Timestamp
		}
	}
	sort.Slice(s.nodes, func(i, j int) bool { return s.nodes[i].Certname < s.nodes[j].Certname })
	return s, nil
}

// WithClock sets the clock used to cut report windows.
func (s *Source) WithClock(now func() time.Time) *Source {
	s.now = now
	return s
}

func (s *Source) ListNodes(ctx context.Context) ([]node.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]node.Snapshot, len(s.nodes))
	copy(out, s.nodes)
	return out, nil
}

func (s *Source) GetNodeReports(ctx context.Context, certname string, withinHours uint) ([]node.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs := s.reports[certname]
	if withinHours == 0 {
		return append([]node.Report(nil), rs...), nil
	}
	since := s.now().Add(-time.Duration(withinHours) * time.Hour)
	out := make([]node.Report, 0, len(rs))
	for _, r := range rs {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Source) GetLatestReport(ctx context.Context, certname string) (*node.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs := s.reports[certname]
	if len(rs) == 0 {
		return nil, nil
	}
	r := rs[0]
	return &r, nil
}
