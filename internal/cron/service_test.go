package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	_, err := Parse("*/5 * * * *", "")
	require.NoError(t, err)
	_, err = Parse("@every 1m", "")
	require.NoError(t, err)
	_, err = Parse("0 9 * * 1", "Europe/Berlin")
	require.NoError(t, err)

	_, err = Parse("every tuesday", "")
	assert.Error(t, err)
	_, err = Parse("0 9 * * *", "Mars/Olympus")
	assert.Error(t, err)
}

func TestNextRun(t *testing.T) {
	from := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	next, err := NextRun("0 9 * * *", "UTC", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), next.UTC())
}

func TestService_ScheduleReplaceRemove(t *testing.T) {
	s := NewService()
	require.NoError(t, s.Schedule("wf-1", "0 * * * *", "", func() {}))
	require.NoError(t, s.Schedule("wf-1", "30 * * * *", "", func() {}))
	require.NoError(t, s.Schedule("wf-2", "0 0 * * *", "", func() {}))
	assert.Equal(t, []string{"wf-1", "wf-2"}, s.IDs())

	next, ok := s.Next("wf-1")
	require.True(t, ok)
	assert.Equal(t, 30, next.Minute())

	assert.True(t, s.Remove("wf-1"))
	assert.False(t, s.Remove("wf-1"))
	assert.Equal(t, []string{"wf-2"}, s.IDs())

	assert.Error(t, s.Schedule("bad", "nope", "", func() {}))
}

func TestService_EveryFiresAndRecoversPanics(t *testing.T) {
	s := NewService()
	var fired atomic.Int32
	require.NoError(t, s.Every("tick", time.Second, func() {
		fired.Add(1)
		panic("job failure must not stop the scheduler")
	}))
	assert.Error(t, s.Every("zero", 0, func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return fired.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
