package availability_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iliyamo/cinema-booking-core/internal/availability"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

func TestSweeperRunOnceCallsHooks(t *testing.T) {
	ctx := context.Background()
	lm, clk := newManager()
	_, err := lm.TryHold(ctx, "show-s", []string{"S1"}, "booking-s", time.Minute)
	require.NoError(t, err)

	var got []model.Hold
	sw := availability.NewSweeper(lm, time.Second, func(_ context.Context, expired []model.Hold) error {
		got = expired
		return nil
	})

	assert.Empty(t, sw.RunOnce(ctx))
	clk.Advance(2 * time.Minute)
	expired := sw.RunOnce(ctx)
	require.Len(t, expired, 1)
	assert.Equal(t, expired, got)
	assert.Equal(t, "booking-s", got[0].HolderToken)
}

func TestSweeperStopsWithoutLeaking(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	lm, _ := newManager()
	var ticks atomic.Int32
	sw := availability.NewSweeper(lm, 5*time.Millisecond, func(context.Context, []model.Hold) error {
		ticks.Add(1)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- sw.Run(context.Background()) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	sw.Stop()
	sw.Stop()
	require.NoError(t, <-done)
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	lm, _ := newManager()
	ctx, cancel := context.WithCancel(context.Background())
	sw := availability.NewSweeper(lm, time.Hour)

	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
