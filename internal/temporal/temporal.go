// Package temporal derives streak and window facts from a node's report
// history. Every function is a pure function of its arguments: reports are
// never modified and sorting happens on a private copy.
package temporal

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gyaneshwarpardhi/nodealert/internal/node"
)

// ErrUnknownReportTime is returned when the source cannot tell when a node last reported.
var ErrUnknownReportTime = errors.New("last report time unknown")

// Never is the age of a node that has never reported.
const Never = time.Duration(math.MaxInt64)

// Window converts a within_hours setting into a duration, saturating at the
// largest representable duration.
func Window(hours uint) time.Duration {
	if hours > uint(math.MaxInt64/int64(time.Hour)) {
		return Never
	}
	return time.Duration(hours) * time.Hour
}

// ReportAge returns how long ago the node last reported.
func ReportAge(n node.Snapshot, now time.Time) (time.Duration, error) {
	if n.ReportTimeUnknown {
		return 0, ErrUnknownReportTime
	}
	if !n.HasReported() {
		return Never, nil
	}
	return now.Sub(n.LastReportAt), nil
}

// Minutes expresses age in minutes; Never maps to +Inf.
func Minutes(age time.Duration) float64 {
	if age == Never {
		return math.Inf(1)
	}
	return age.Minutes()
}

// Hours expresses age in hours; Never maps to +Inf.
func Hours(age time.Duration) float64 {
	if age == Never {
		return math.Inf(1)
	}
	return age.Hours()
}

// InWindow returns the reports whose timestamp is no older than window before now.
func InWindow(reports []node.Report, now time.Time, window time.Duration) []node.Report {
	cutoff := now.Add(-window)
	out := make([]node.Report, 0, len(reports))
	for _, r := range reports {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Streak counts the most recent in-window reports satisfying pred, stopping at
// the first one that does not. The window is applied before the walk.
// Reports sharing a timestamp are ordered with non-matching ones first.
func Streak(reports []node.Report, now time.Time, window time.Duration, pred func(*node.Report) bool) int {
	in := InWindow(reports, now, window)
	sort.SliceStable(in, func(i, j int) bool {
		if !in[i].Timestamp.Equal(in[j].Timestamp) {
			return in[i].Timestamp.After(in[j].Timestamp)
		}
		return !pred(&in[i]) && pred(&in[j])
	})
	streak := 0
	for i := range in {
		if !pred(&in[i]) {
			break
		}
		streak++
	}
	return streak
}

// Failed reports whether the run failed.
func Failed(r *node.Report) bool {
	return r.Status == node.StatusFailed
}

// Changed reports whether the run changed at least one resource.
func Changed(r *node.Report) bool {
	v, _ := r.Metric(node.MetricResourcesChanged)
	return v > 0
}

// ConsecutiveFailures is the failed-run streak.
func ConsecutiveFailures(reports []node.Report, now time.Time, window time.Duration) int {
	return Streak(reports, now, window, Failed)
}

// ConsecutiveChanges is the changing-run streak.
func ConsecutiveChanges(reports []node.Report, now time.Time, window time.Duration) int {
	return Streak(reports, now, window, Changed)
}

// ClassChangeFrequency counts in-window reports with at least one resource
// change referring to className. Each report counts at most once.
func ClassChangeFrequency(reports []node.Report, now time.Time, window time.Duration, className string) int {
	ref := CanonicalClass(className)
	if ref == "" {
		return 0
	}
	count := 0
	for _, r := range InWindow(reports, now, window) {
		for _, rc := range r.ResourceChanges {
			if strings.Contains(rc.ResourceType, ref) {
				count++
				break
			}
		}
	}
	return count
}

// CanonicalClass returns the class name the way Puppet writes it in resource
// references: every namespace segment capitalised ("apache::server" becomes
// "Apache::Server"). Full references such as "Class[Foo]" are returned as is.
func CanonicalClass(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "::")
	if name == "" || strings.Contains(name, "[") {
		return name
	}
	segments := strings.Split(name, "::")
	for i, seg := range segments {
		r, size := utf8.DecodeRuneInString(seg)
		if r == utf8.RuneError {
			continue
		}
		segments[i] = string(unicode.ToUpper(r)) + seg[size:]
	}
	return strings.Join(segments, "::")
}
