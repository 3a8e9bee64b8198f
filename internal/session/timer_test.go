package session

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemainingClampsToZero(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 17, Remaining(now.Add(17*time.Second), now))
	assert.Equal(t, 0, Remaining(now, now))
	assert.Equal(t, 0, Remaining(now.Add(-5*time.Second), now))
	// Partial seconds truncate downward.
	assert.Equal(t, 2, Remaining(now.Add(2500*time.Millisecond), now))
}

func TestCountdownSequenceFromDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cd := NewCountdown(clock, zerolog.New(io.Discard))
	deadline := clock.Now().Add(17 * time.Second)

	ticks := make(chan int, 32)
	var zeroCount atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- cd.Run(context.Background(), deadline,
			func(remaining int) { ticks <- remaining },
			func() { zeroCount.Add(1) })
	}()

	waitTick := func() int {
		select {
		case v := <-ticks:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a countdown tick")
			return 0
		}
	}

	require.Equal(t, 17, waitTick())
	for want := 16; want >= 0; want-- {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		require.Equal(t, want, waitTick())
	}

	require.NoError(t, <-done)
	assert.Equal(t, int32(1), zeroCount.Load())
}

func TestCountdownExpiredDeadlineFiresZeroImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cd := NewCountdown(clock, zerolog.New(io.Discard))

	var ticks []int
	fired := 0
	err := cd.Run(context.Background(), clock.Now().Add(-time.Second),
		func(remaining int) { ticks = append(ticks, remaining) },
		func() { fired++ })

	require.NoError(t, err)
	assert.Equal(t, []int{0}, ticks)
	assert.Equal(t, 1, fired)
}

func TestCountdownStopsOnContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cd := NewCountdown(clock, zerolog.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- cd.Run(ctx, clock.Now().Add(time.Minute), nil, func() {
			t.Error("onZero must not fire on cancellation")
		})
	}()

	clock.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not stop on cancel")
	}
}
