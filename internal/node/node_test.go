package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlattenFacts(t *testing.T) {
	got := FlattenFacts(map[string]any{
		"os":         map[string]any{"family": "RedHat", "release": map[string]any{"major": "8", "minor": "9"}},
		"is_virtual": true,
		"interfaces": []any{"eth0", "lo"},
	})
	assert.Equal(t, map[string]any{
		"os.family":        "RedHat",
		"os.release.major": "8",
		"os.release.minor": "9",
		"is_virtual":       true,
		"interfaces":       []any{"eth0", "lo"},
	}, got)
	assert.Empty(t, FlattenFacts(nil))
}

func TestReport_FailurePercentage(t *testing.T) {
	cases := []struct {
		name    string
		metrics map[string]float64
		want    float64
	}{
		{"quarter", map[string]float64{MetricResourcesFailed: 2, MetricResourcesTotal: 8}, 25},
		{"zero total", map[string]float64{MetricResourcesFailed: 2, MetricResourcesTotal: 0}, 0},
		{"no total", map[string]float64{MetricResourcesFailed: 2}, 0},
		{"no metrics", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Report{Metrics: tc.metrics}
			assert.Equal(t, tc.want, r.FailurePercentage())
		})
	}
}

func TestLatest(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reports := []Report{
		{Timestamp: now.Add(-time.Hour), Status: StatusSuccess},
		{Timestamp: now, Status: StatusFailed},
		{Timestamp: now.Add(-2 * time.Hour), Status: StatusNoop},
	}
	assert.Equal(t, StatusFailed, Latest(reports).Status)
	assert.Nil(t, Latest(nil))
}

func TestSnapshot(t *testing.T) {
	var s Snapshot
	_, ok := s.Fact("os.family")
	assert.False(t, ok)
	assert.False(t, s.HasReported())
	assert.True(t, StatusNoop.Valid())
	assert.False(t, Status("exploded").Valid())
}
