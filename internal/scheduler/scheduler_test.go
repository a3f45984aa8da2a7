package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler(t *testing.T) {
	s, err := NewScheduler("America/Argentina/Buenos_Aires", nil)
	require.NoError(t, err)
	defer s.Stop()
	assert.Equal(t, "America/Argentina/Buenos_Aires", s.location.String())
}

func TestNewSchedulerDefaultsToUTC(t *testing.T) {
	s, err := NewScheduler("", nil)
	require.NoError(t, err)
	assert.Equal(t, "UTC", s.location.String())
}

func TestNewSchedulerInvalidTimezone(t *testing.T) {
	_, err := NewScheduler("Invalid/Zone", nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for _, spec := range []string{"0 * * * *", "*/15 * * * *", "@hourly", "@every 30m"} {
		assert.NoError(t, Validate(spec), spec)
	}
	for _, spec := range []string{"", "hourly", "61 * * * *", "* * * *"} {
		assert.Error(t, Validate(spec), spec)
	}
}

func TestScheduleReplacesJob(t *testing.T) {
	s, err := NewScheduler("UTC", nil)
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.Schedule("0 * * * *", func(context.Context) {}))
	require.NoError(t, s.Schedule("30 * * * *", func(context.Context) {}))
	s.Start()

	assert.Len(t, s.cron.Entries(), 1)
	next := s.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, 30, next.Minute())
}

func TestScheduleInvalidSpec(t *testing.T) {
	s, err := NewScheduler("UTC", nil)
	require.NoError(t, err)
	assert.Error(t, s.Schedule("whenever", func(context.Context) {}))
	assert.True(t, s.Next().IsZero())
}

func TestNextAfter(t *testing.T) {
	s, err := NewScheduler("UTC", nil)
	require.NoError(t, err)

	from := time.Date(2026, 2, 6, 14, 5, 0, 0, time.UTC)
	next, err := s.NextAfter("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 6, 15, 0, 0, 0, time.UTC), next)
}

func TestRunExecutesJobAndStops(t *testing.T) {
	s, err := NewScheduler("UTC", nil)
	require.NoError(t, err)

	var runs atomic.Int32
	jobCtx := make(chan context.Context, 1)
	require.NoError(t, s.Schedule("@every 1s", func(ctx context.Context) {
		if runs.Add(1) == 1 {
			jobCtx <- ctx
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	var got context.Context
	select {
	case got = <-jobCtx:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.ErrorIs(t, got.Err(), context.Canceled)
}

func TestRestartGivesJobsLiveContext(t *testing.T) {
	s, err := NewScheduler("UTC", nil)
	require.NoError(t, err)

	jobCtx := make(chan context.Context, 1)
	require.NoError(t, s.Schedule("@every 1s", func(ctx context.Context) {
		select {
		case jobCtx <- ctx:
		default:
		}
	}))

	s.Start()
	s.Stop()
	select {
	case <-jobCtx:
	default:
	}

	s.Start()
	defer s.Stop()

	select {
	case got := <-jobCtx:
		assert.NoError(t, got.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run after restart")
	}
}
