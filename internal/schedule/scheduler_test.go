package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(context.Background(), "every now and then", func(context.Context) {}, nil)
	assert.Error(t, err)
}

func TestScheduler_RunsPasses(t *testing.T) {
	var runs atomic.Int32
	s, err := New(context.Background(), "@every 1s", func(context.Context) { runs.Add(1) }, nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_Reschedule(t *testing.T) {
	s, err := New(context.Background(), "*/5 * * * *", func(context.Context) {}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Reschedule("@hourly"))
	assert.Equal(t, "@hourly", s.Schedule())

	assert.Error(t, s.Reschedule("not a schedule"))
	assert.Equal(t, "@hourly", s.Schedule(), "an invalid schedule must keep the previous one")
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_SkipsAfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var runs atomic.Int32
	s, err := New(ctx, "@every 1s", func(context.Context) { runs.Add(1) }, nil)
	require.NoError(t, err)
	s.Start()
	time.Sleep(1500 * time.Millisecond)
	s.Stop()
	assert.Zero(t, runs.Load())
}
