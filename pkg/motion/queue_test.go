package motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterr "klipper-buffer-stepper/pkg/errors"
	"klipper-buffer-stepper/pkg/printtime"
)

type fixedHost float64

func (h fixedHost) Monotonic() float64 { return float64(h) }

type identityClock struct{}

func (identityClock) EstimatedPrintTime(eventtime float64) float64 { return eventtime }

type recordingExecutor struct {
	committed [][]Segment
	flushes   []float64
	flushErr  error
}

func (e *recordingExecutor) Commit(segs []Segment) {
	e.committed = append(e.committed, append([]Segment(nil), segs...))
}

func (e *recordingExecutor) Flush(_ context.Context, printTime float64) error {
	e.flushes = append(e.flushes, printTime)
	return e.flushErr
}

func newTestQueue(t *testing.T) (*Queue, *printtime.Timeline, *recordingExecutor) {
	t.Helper()
	tl, err := printtime.New(fixedHost(1.0), identityClock{}, 0.25)
	require.NoError(t, err)
	exec := &recordingExecutor{}
	return NewQueue(tl, exec), tl, exec
}

func TestQueueAppendAdvancesTimeline(t *testing.T) {
	q, tl, _ := newTestQueue(t)
	start := tl.ComputeMinTime()

	seg := NewSegment("a", start, 0, ComputeProfile(15, 5, 0), 0)
	require.NoError(t, q.Append(seg))

	assert.InDelta(t, start+3.0, tl.NextCommandTime(), 1e-12)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Pending())
}

func TestQueueAppendRejectsEarlySegments(t *testing.T) {
	q, tl, _ := newTestQueue(t)
	start := tl.ComputeMinTime()

	err := q.Append(NewSegment("early", start-0.01, 0, ComputeProfile(1, 5, 0), 0))
	require.Error(t, err)
	assert.True(t, hosterr.Is(err, hosterr.ErrRuntimeQueue))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, start, tl.NextCommandTime(), "rejected append must not move the timeline")
}

func TestQueueFinalizeCommitsBeforeHorizon(t *testing.T) {
	q, tl, exec := newTestQueue(t)
	start := tl.ComputeMinTime()

	first := NewSegment("a", start, 0, ComputeProfile(5, 5, 0), 0)
	require.NoError(t, q.Append(first))
	second := NewSegment("b", tl.NextCommandTime(), 0, ComputeProfile(10, 5, 0), 0)
	require.NoError(t, q.Append(second))

	assert.Equal(t, 1, q.Finalize(second.StartTime))
	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, 1, q.Finalize(second.EndTime()+FinalizePad))
	assert.Equal(t, 0, q.Finalize(second.EndTime()+FinalizePad), "committed segments are not resent")

	want := [][]Segment{{first}, {second}}
	if diff := cmp.Diff(want, exec.committed); diff != "" {
		t.Errorf("committed segments mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueFlush(t *testing.T) {
	q, tl, exec := newTestQueue(t)
	var observed []error
	q.OnFlush(func(d time.Duration, err error) {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		observed = append(observed, err)
	})

	require.NoError(t, q.Flush(context.Background(), 4.5))
	assert.Equal(t, []float64{4.5}, exec.flushes)
	assert.Equal(t, 4.5, tl.LastFlushTime())

	exec.flushErr = errors.New("ack timeout")
	err := q.Flush(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, hosterr.Is(err, hosterr.ErrRuntimeMCU))
	assert.Equal(t, 4.5, tl.LastFlushTime(), "failed flush is not recorded")
	assert.Len(t, observed, 2)
}

func TestQueuePrune(t *testing.T) {
	q, tl, _ := newTestQueue(t)
	start := tl.ComputeMinTime()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Append(NewSegment(id, tl.NextCommandTime(), 0, ComputeProfile(5, 5, 0), 0)))
	}
	q.Finalize(start + 1.5)

	// Only committed segments are eligible, even if they ended long ago.
	assert.Equal(t, 2, q.Prune(start+100))
	require.Equal(t, 1, q.Len())
	last, ok := q.Last()
	require.True(t, ok)
	assert.Equal(t, "c", last.ID)
	assert.Equal(t, 1, q.Pending())
}
