package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleSpecsParse(t *testing.T) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, entry := range schedule {
		_, err := parser.Parse(entry.spec)
		require.NoError(t, err, "spec %q for %s", entry.spec, entry.freq)
	}
}

func TestScheduleFireTimes(t *testing.T) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	base := time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC)

	next := func(spec string) time.Time {
		s, err := parser.Parse(spec)
		require.NoError(t, err)
		return s.Next(base)
	}

	// HOURLY at minute 05.
	assert.Equal(t, time.Date(2025, 8, 5, 0, 5, 0, 0, time.UTC), next("5 * * * *"))
	// DAILY at 00:05.
	assert.Equal(t, time.Date(2025, 8, 5, 0, 5, 0, 0, time.UTC), next("5 0 * * *"))
	// MONTHLY on day 1 at 00:10.
	assert.Equal(t, time.Date(2025, 9, 1, 0, 10, 0, 0, time.UTC), next("10 0 1 * *"))
	// QUARTERLY on quarter start at 00:15.
	assert.Equal(t, time.Date(2025, 10, 1, 0, 15, 0, 0, time.UTC), next("15 0 1 1,4,7,10 *"))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Give the cron loop a moment to install entries, then shut down.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not drain after cancellation")
	}
}
