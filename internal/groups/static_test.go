package groups

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/nodealert/internal/config"
)

func TestStatic_GetNodeGroups(t *testing.T) {
	s, err := NewStatic([]config.GroupDef{
		{ID: "web", CertnamePattern: `^web-\d+\.`},
		{ID: "canary", Certnames: []string{"web-01.example.com", "db-01.example.com"}},
		{ID: "empty"},
	})
	require.NoError(t, err)

	tests := []struct {
		certname string
		want     []string
	}{
		{"web-01.example.com", []string{"canary", "web"}},
		{"web-02.example.com", []string{"web"}},
		{"db-01.example.com", []string{"canary"}},
		{"mail-01.example.com", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.certname, func(t *testing.T) {
			got, err := s.GetNodeGroups(context.Background(), tt.certname)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewStatic_InvalidPattern(t *testing.T) {
	_, err := NewStatic([]config.GroupDef{{ID: "bad", CertnamePattern: "("}})
	assert.ErrorContains(t, err, "group bad")
}

func TestStatic_Update(t *testing.T) {
	s, err := NewStatic([]config.GroupDef{{ID: "web", CertnamePattern: "^web-"}})
	require.NoError(t, err)

	require.NoError(t, s.Update([]config.GroupDef{{ID: "db", CertnamePattern: "^db-"}}))
	got, err := s.GetNodeGroups(context.Background(), "db-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, got)

	assert.Error(t, s.Update([]config.GroupDef{{ID: "bad", CertnamePattern: "["}}))
	got, _ = s.GetNodeGroups(context.Background(), "db-01")
	assert.Equal(t, []string{"db"}, got)
}

func TestStatic_NoGroupsDefersToNodeData(t *testing.T) {
	s, err := NewStatic(nil)
	require.NoError(t, err)

	got, err := s.GetNodeGroups(context.Background(), "web-01")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Update([]config.GroupDef{{ID: "web", CertnamePattern: "^web-"}}))
	got, err = s.GetNodeGroups(context.Background(), "web-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, got)

	got, err = s.GetNodeGroups(context.Background(), "db-01")
	require.NoError(t, err)
	assert.NotNil(t, got, "defined groups with no match is an empty membership")
	assert.Empty(t, got)
}
