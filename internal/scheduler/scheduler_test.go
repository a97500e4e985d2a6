package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type everyFewMillis struct{}

func (everyFewMillis) Next(t time.Time) time.Time { return t.Add(5 * time.Millisecond) }

func TestParseStandardExpression(t *testing.T) {
	sched, err := Parse("30 22 * * 1-5")
	require.NoError(t, err)

	s := New(Options{Schedule: sched, Location: time.UTC}, zerolog.Nop())

	// Friday 2024-03-08 23:00 UTC -> Monday 22:30.
	next := s.Next(time.Date(2024, 3, 8, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 11, 22, 30, 0, 0, time.UTC), next.UTC())

	// Same day before the fire time.
	next = s.Next(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 5, 22, 30, 0, 0, time.UTC), next.UTC())
}

func TestParseHonoursLocation(t *testing.T) {
	sched, err := Parse("0 18 * * *")
	require.NoError(t, err)
	loc := time.FixedZone("EST", -5*3600)

	s := New(Options{Schedule: sched, Location: loc}, zerolog.Nop())
	next := s.Next(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC), next.UTC())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("every tuesday")
	assert.Error(t, err)
}

func TestRunInvokesTickUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	s := New(Options{Schedule: everyFewMillis{}, RunOnStart: true}, zerolog.Nop())

	err := s.Run(ctx, func(context.Context, time.Time) error {
		if calls.Add(1) == 3 {
			cancel()
		}
		return errors.New("tick errors are logged, not fatal")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunStopsDuringStartupDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	s := New(Options{Schedule: everyFewMillis{}, StartupDelay: time.Hour}, zerolog.Nop())
	err := s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
