// Edge debouncing for the buffer endstop
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package buttons

import (
	"fmt"
	"sync"
)

// NEVER is a min event time that no edge can reach.
const NEVER = 9999999999999999.0

// State is the debouncer state.
type State int

const (
	StartupGrace State = iota
	Idle
	Triggered
)

func (s State) String() string {
	switch s {
	case StartupGrace:
		return "startup_grace"
	case Idle:
		return "idle"
	case Triggered:
		return "triggered"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result classifies what an edge did.
type Result string

const (
	ResultGrace    Result = "grace"    // arrived before arming; level recorded only
	ResultRepeat   Result = "repeat"   // same level as already recorded
	ResultEarly    Result = "early"    // on-edge before min_event_time
	ResultReleased Result = "released" // off-edge, back to idle
	ResultFired    Result = "fired"    // on-edge accepted, trigger invoked
)

// TriggerFunc is invoked for every accepted on-edge.
type TriggerFunc func(eventtime float64)

// Debouncer turns raw sensor edges into push triggers.
//
// Edges while in StartupGrace only track the sensor level. Once armed an
// on-edge fires when it arrives at or after min_event_time; repeated edges
// of the current level are ignored regardless of timing.
type Debouncer struct {
	mu sync.Mutex

	state        State
	triggered    bool
	minEventTime float64

	eventDelay     float64
	rearmOnTrigger bool

	onTrigger TriggerFunc
	fired     int
}

// New creates a debouncer in StartupGrace. With rearmOnTrigger set, every
// accepted trigger pushes min_event_time eventDelay seconds forward.
func New(eventDelay float64, rearmOnTrigger bool, onTrigger TriggerFunc) *Debouncer {
	return &Debouncer{
		state:          StartupGrace,
		minEventTime:   NEVER,
		eventDelay:     eventDelay,
		rearmOnTrigger: rearmOnTrigger,
		onTrigger:      onTrigger,
	}
}

// Arm leaves StartupGrace. Edges before minEventTime are still ignored.
// The state resumes at the level recorded during the grace window.
func (d *Debouncer) Arm(minEventTime float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.minEventTime = minEventTime
	if d.state != StartupGrace {
		return
	}
	d.state = Idle
	if d.triggered {
		d.state = Triggered
	}
}

// HandleEdge processes one sensor edge to completion.
func (d *Debouncer) HandleEdge(eventtime float64, on bool) Result {
	d.mu.Lock()
	if on == d.triggered {
		d.mu.Unlock()
		return ResultRepeat
	}
	if d.state == StartupGrace {
		d.triggered = on
		d.mu.Unlock()
		return ResultGrace
	}
	if !on {
		d.triggered = false
		d.state = Idle
		d.mu.Unlock()
		return ResultReleased
	}
	if eventtime < d.minEventTime {
		d.mu.Unlock()
		return ResultEarly
	}

	d.triggered = true
	d.state = Triggered
	d.fired++
	if d.rearmOnTrigger {
		d.minEventTime = eventtime + d.eventDelay
	}
	onTrigger := d.onTrigger
	d.mu.Unlock()

	if onTrigger != nil {
		onTrigger(eventtime)
	}
	return ResultFired
}

// State returns the current state.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Triggered returns the recorded sensor level.
func (d *Debouncer) Triggered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.triggered
}

// Armed reports whether the startup grace window has passed.
func (d *Debouncer) Armed() bool {
	return d.State() != StartupGrace
}

// MinEventTime returns the earliest time an on-edge may fire.
func (d *Debouncer) MinEventTime() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minEventTime
}

// Fired returns the number of accepted triggers.
func (d *Debouncer) Fired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}
