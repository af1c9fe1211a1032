package mcu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klipper-buffer-stepper/pkg/clocksync"
	"klipper-buffer-stepper/pkg/config"
	"klipper-buffer-stepper/pkg/motion"
)

func newTestSim() *Sim {
	return NewSim(&config.MCUConfig{Name: "EBB", ClockFreq: 64000000}, 160)
}

func TestSimClockTracksHost(t *testing.T) {
	s := newTestSim()
	s.SetDrift(30)
	s.Connect(100)

	for i := 1; i <= 30; i++ {
		s.Sample(100 + float64(i)*clocksync.QUERY_INTERVAL)
	}

	est := s.EstimatedPrintTime(130)
	assert.InDelta(t, 30*(1+30e-6), est, 2e-3)
	assert.True(t, s.ClockSync().IsActive())
}

func TestSimFlushGeneratesSteps(t *testing.T) {
	s := newTestSim()
	s.Connect(0)

	seg := motion.NewSegment("a", 1.0, 0, motion.ComputeProfile(15, 5, 0), 0)
	s.Commit([]motion.Segment{seg})

	require.NoError(t, s.Flush(context.Background(), 0.5))
	assert.Equal(t, int64(0), s.StepPosition(), "segment after flush time is not stepped")

	require.NoError(t, s.Flush(context.Background(), seg.EndTime()))
	assert.Equal(t, int64(15*160), s.StepPosition())
	assert.Equal(t, seg.EndTime(), s.FlushedTo())
	assert.Len(t, s.Segments(), 1)
}

func TestSimFlushCancelled(t *testing.T) {
	s := NewSim(&config.MCUConfig{Name: "EBB", ClockFreq: 64000000, FlushLatency: 5}, 160)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Flush(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "flush of EBB")
}

func TestSimEnableLineIsIdempotent(t *testing.T) {
	s := newTestSim()

	s.MotorEnable(1)
	s.MotorEnable(2)
	s.MotorDisable(3)
	s.MotorDisable(4)

	assert.False(t, s.Enabled())
	assert.Equal(t, []EnableEvent{{PrintTime: 1, Enabled: true}, {PrintTime: 3, Enabled: false}}, s.EnableEvents())
}
