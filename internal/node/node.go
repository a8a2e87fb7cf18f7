package node

import "time"

// Status is the outcome of a node's most recent configuration run.
type Status string

const (
	StatusFailed  Status = "failed"
	StatusSuccess Status = "success"
	StatusNoop    Status = "noop"
	StatusUnknown Status = "unknown"
)

// Valid reports whether s is one of the known run statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusFailed, StatusSuccess, StatusNoop, StatusUnknown:
		return true
	}
	return false
}

// Well-known report metric keys ("<category>.<name>").
const (
	MetricResourcesChanged = "resources.changed"
	MetricResourcesFailed  = "resources.failed"
	MetricResourcesTotal   = "resources.total"
)

// Snapshot is the canonical read-only view of one managed node.
type Snapshot struct {
	Certname    string `json:"certname" yaml:"certname"`
	Environment string `json:"environment" yaml:"environment"`
	Status      Status `json:"status" yaml:"status"`
	// LastReportAt is zero when the node has never reported.
	LastReportAt time.Time `json:"last_report_at,omitempty" yaml:"last_report_at,omitempty"`
	// ReportTimeUnknown is set by sources that cannot tell whether the node reported.
	ReportTimeUnknown bool           `json:"report_time_unknown,omitempty" yaml:"report_time_unknown,omitempty"`
	GroupIDs          []string       `json:"group_ids,omitempty" yaml:"group_ids,omitempty"`
	Facts             map[string]any `json:"facts,omitempty" yaml:"facts,omitempty"` // dotted path → scalar
}

// Fact returns the flattened fact stored under path.
func (s *Snapshot) Fact(path string) (any, bool) {
	if s.Facts == nil {
		return nil, false
	}
	v, ok := s.Facts[path]
	return v, ok
}

// HasReported reports whether the node has a known last report timestamp.
func (s *Snapshot) HasReported() bool {
	return !s.LastReportAt.IsZero()
}

// ResourceChange is one changed resource inside a report, e.g. "Class[Apache::Server]".
type ResourceChange struct {
	ResourceType string `json:"resource_type" yaml:"resource_type"`
	Status       string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Report is one configuration run of a node.
type Report struct {
	Certname        string             `json:"certname" yaml:"certname"`
	Timestamp       time.Time          `json:"timestamp" yaml:"timestamp"`
	Status          Status             `json:"status" yaml:"status"`
	Metrics         map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	ResourceChanges []ResourceChange   `json:"resource_changes,omitempty" yaml:"resource_changes,omitempty"`
}

// Metric returns the named metric and whether the report carries it.
func (r *Report) Metric(name string) (float64, bool) {
	if r.Metrics == nil {
		return 0, false
	}
	v, ok := r.Metrics[name]
	return v, ok
}

// FailurePercentage is failed*100/total; a report without resources yields 0.
func (r *Report) FailurePercentage() float64 {
	total, _ := r.Metric(MetricResourcesTotal)
	if total == 0 {
		return 0
	}
	failed, _ := r.Metric(MetricResourcesFailed)
	return failed * 100 / total
}

// Latest returns the newest report in reports, or nil when empty.
func Latest(reports []Report) *Report {
	var latest *Report
	for i := range reports {
		if latest == nil || reports[i].Timestamp.After(latest.Timestamp) {
			latest = &reports[i]
		}
	}
	return latest
}

// FlattenFacts turns nested fact maps into dotted paths ("os.family").
func FlattenFacts(facts map[string]any) map[string]any {
	out := make(map[string]any, len(facts))
	flatten("", facts, out)
	return out
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch sub := v.(type) {
		case map[string]any:
			flatten(key, sub, out)
		default:
			out[key] = v
		}
	}
}
