// Package printtime owns the buffer stepper's command timeline: the
// print time at which the next motion or enable command will be
// scheduled, kept ahead of the controller's estimated clock.
package printtime

import (
	"sync"

	hosterr "klipper-buffer-stepper/pkg/errors"
)

const (
	// MIN_KIN_TIME is the minimum lead over the controller clock for
	// kinematic (step generation) commands.
	MIN_KIN_TIME = 0.100

	// FLUSH_DELAY is the step+dir+step filter window of the step compressor.
	FLUSH_DELAY = 0.001

	// BUFFER_TIME_START is the default minimum buffer when resuming.
	BUFFER_TIME_START = 0.250
)

// HostClock returns the host's monotonic time in seconds.
type HostClock interface {
	Monotonic() float64
}

// ClockProvider maps host time onto the controller's print time.
type ClockProvider interface {
	EstimatedPrintTime(eventtime float64) float64
}

// Timeline is the single owner of next_command_time. It only moves forward.
type Timeline struct {
	mu sync.RWMutex

	host            HostClock
	clock           ClockProvider
	bufferTimeStart float64

	nextCommandTime float64
	lastFlushTime   float64

	onSync func(curtime, estPrintTime, nextCommandTime float64)
}

// New creates a Timeline. A nil clock provider is a fatal construction error.
func New(host HostClock, clock ClockProvider, bufferTimeStart float64) (*Timeline, error) {
	if host == nil {
		return nil, hosterr.RuntimeErrorInit("timeline", "no host clock")
	}
	if clock == nil {
		return nil, hosterr.RuntimeErrorInit("timeline", "no hardware clock provider")
	}
	if bufferTimeStart <= 0 {
		bufferTimeStart = BUFFER_TIME_START
	}
	return &Timeline{host: host, clock: clock, bufferTimeStart: bufferTimeStart}, nil
}

// OnSync registers a callback invoked whenever synchronization moves the
// timeline forward.
func (t *Timeline) OnSync(fn func(curtime, estPrintTime, nextCommandTime float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSync = fn
}

// ComputeMinTime synchronizes against the controller clock at the current
// host time and returns the resulting next_command_time.
func (t *Timeline) ComputeMinTime() float64 {
	return t.CalcPrintTime(t.host.Monotonic())
}

// CalcPrintTime synchronizes against the controller clock as observed at
// host time curtime.
func (t *Timeline) CalcPrintTime(curtime float64) float64 {
	estPrintTime := t.clock.EstimatedPrintTime(curtime)

	t.mu.Lock()
	kinTime := estPrintTime + MIN_KIN_TIME
	if t.lastFlushTime > kinTime {
		kinTime = t.lastFlushTime
	}
	kinTime += FLUSH_DELAY
	minPrintTime := estPrintTime + t.bufferTimeStart
	if kinTime > minPrintTime {
		minPrintTime = kinTime
	}

	advanced := minPrintTime > t.nextCommandTime
	if advanced {
		t.nextCommandTime = minPrintTime
	}
	next := t.nextCommandTime
	onSync := t.onSync
	t.mu.Unlock()

	if advanced && onSync != nil {
		onSync(curtime, estPrintTime, next)
	}
	return next
}

// Advance moves next_command_time forward by delta. Negative deltas are
// treated as zero.
func (t *Timeline) Advance(delta float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if delta > 0 {
		t.nextCommandTime += delta
	}
	return t.nextCommandTime
}

// AdvanceTo raises next_command_time to at least printTime.
func (t *Timeline) AdvanceTo(printTime float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if printTime > t.nextCommandTime {
		t.nextCommandTime = printTime
	}
	return t.nextCommandTime
}

// NextCommandTime returns the earliest print time a new command may use.
func (t *Timeline) NextCommandTime() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextCommandTime
}

// NoteFlush records that everything up to printTime has been sent to the
// controller.
func (t *Timeline) NoteFlush(printTime float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if printTime > t.lastFlushTime {
		t.lastFlushTime = printTime
	}
}

// LastFlushTime returns the latest flushed print time.
func (t *Timeline) LastFlushTime() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastFlushTime
}

// BufferTimeStart returns the configured lead over the controller clock.
func (t *Timeline) BufferTimeStart() float64 {
	return t.bufferTimeStart
}

// Status is a snapshot of the timeline.
type Status struct {
	NextCommandTime    float64 `json:"next_command_time"`
	EstimatedPrintTime float64 `json:"estimated_print_time"`
	BufferTime         float64 `json:"buffer_time"`
	LastFlushTime      float64 `json:"last_flush_time"`
}

// GetStatus returns the timeline state as seen at host time eventtime.
func (t *Timeline) GetStatus(eventtime float64) Status {
	est := t.clock.EstimatedPrintTime(eventtime)

	t.mu.RLock()
	defer t.mu.RUnlock()
	buffer := t.nextCommandTime - est
	if buffer < 0 {
		buffer = 0
	}
	return Status{
		NextCommandTime:    t.nextCommandTime,
		EstimatedPrintTime: est,
		BufferTime:         buffer,
		LastFlushTime:      t.lastFlushTime,
	}
}
