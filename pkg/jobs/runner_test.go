package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesOnCadence(t *testing.T) {
	var calls int64
	runner := NewRunner("test", func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, RunnerConfig{Interval: 10 * time.Millisecond})

	runner.Start(context.Background())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerRunAtStart(t *testing.T) {
	var calls int64
	runner := NewRunner("test", func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, RunnerConfig{Interval: time.Hour, RunAtStart: true})

	runner.Start(context.Background())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	runner := NewRunner("test", func(ctx context.Context) error { return nil }, RunnerConfig{Interval: time.Hour})
	runner.Start(context.Background())
	runner.Stop()
	runner.Stop()
}
