package motion

import (
	"context"
	"fmt"
	"sync"
	"time"

	hosterr "klipper-buffer-stepper/pkg/errors"
	"klipper-buffer-stepper/pkg/pool"
)

// FinalizePad is added to the end of a move to form a finalize horizon
// far enough out that the whole move is committed.
const FinalizePad = 99999.9

var batches = pool.NewSlices[Segment](4, 256)

// Timeline is the part of the command timeline the queue drives.
type Timeline interface {
	NextCommandTime() float64
	AdvanceTo(printTime float64) float64
	NoteFlush(printTime float64)
}

// Executor performs committed segments on the hardware.
type Executor interface {
	// Commit hands over segments that will not change again. The slice
	// is reused after Commit returns; copy what must be kept.
	Commit(segs []Segment)
	// Flush blocks until the hardware has everything up to printTime.
	Flush(ctx context.Context, printTime float64) error
}

// Queue is an in-process arena of segments ordered by start time.
// Segments [0, committed) have been handed to the executor.
type Queue struct {
	mu        sync.Mutex
	timeline  Timeline
	executor  Executor
	segments  []Segment
	committed int

	onFlush func(d time.Duration, err error)
}

// NewQueue creates a queue that schedules against timeline and commits to executor.
func NewQueue(timeline Timeline, executor Executor) *Queue {
	return &Queue{timeline: timeline, executor: executor}
}

// OnFlush registers an observer of flush latency.
func (q *Queue) OnFlush(fn func(d time.Duration, err error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFlush = fn
}

// Append adds seg to the arena and moves the timeline past its end.
// A segment may not start before the timeline's next command time or
// before the previously appended segment.
func (q *Queue) Append(seg Segment) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seg.Duration() < 0 {
		return hosterr.RuntimeErrorQueue("append", fmt.Sprintf("negative duration %.6f", seg.Duration()))
	}
	if next := q.timeline.NextCommandTime(); seg.StartTime < next {
		return hosterr.RuntimeErrorQueue("append",
			fmt.Sprintf("segment at %.6f precedes next command time %.6f", seg.StartTime, next))
	}
	if n := len(q.segments); n > 0 && seg.StartTime < q.segments[n-1].StartTime {
		return hosterr.RuntimeErrorQueue("append",
			fmt.Sprintf("segment at %.6f precedes previous segment at %.6f", seg.StartTime, q.segments[n-1].StartTime))
	}

	q.segments = append(q.segments, seg)
	q.timeline.AdvanceTo(seg.EndTime())
	return nil
}

// Finalize commits every pending segment with a start time before horizon
// and returns how many were committed.
func (q *Queue) Finalize(horizon float64) int {
	q.mu.Lock()
	start := q.committed
	for q.committed < len(q.segments) && q.segments[q.committed].StartTime < horizon {
		q.committed++
	}
	batch := append(batches.Get(), q.segments[start:q.committed]...)
	q.mu.Unlock()
	defer batches.Put(batch)

	if len(batch) > 0 {
		q.executor.Commit(batch)
	}
	return len(batch)
}

// Flush asks the executor to drain committed work up to printTime. It is
// the only queue operation that blocks.
func (q *Queue) Flush(ctx context.Context, printTime float64) error {
	begin := time.Now()
	err := q.executor.Flush(ctx, printTime)

	q.mu.Lock()
	onFlush := q.onFlush
	q.mu.Unlock()
	if onFlush != nil {
		onFlush(time.Since(begin), err)
	}
	if err != nil {
		return hosterr.RuntimeErrorMCU("flush", err)
	}
	q.timeline.NoteFlush(printTime)
	return nil
}

// Prune drops committed segments that ended before printTime and returns
// the number removed.
func (q *Queue) Prune(printTime float64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < q.committed && q.segments[n].EndTime() < printTime {
		n++
	}
	if n == 0 {
		return 0
	}
	q.segments = append(q.segments[:0], q.segments[n:]...)
	q.committed -= n
	return n
}

// Len returns the number of segments in the arena.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.segments)
}

// Pending returns the number of appended but uncommitted segments.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.segments) - q.committed
}

// Segments returns a copy of the arena in insertion order.
func (q *Queue) Segments() []Segment {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Segment, len(q.segments))
	copy(out, q.segments)
	return out
}

// Last returns the most recently appended segment.
func (q *Queue) Last() (Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.segments) == 0 {
		return Segment{}, false
	}
	return q.segments[len(q.segments)-1], true
}
