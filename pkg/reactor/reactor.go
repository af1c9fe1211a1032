// Package reactor provides the single event-processing context of the
// host: timers, callbacks posted from other goroutines, and the host
// monotonic clock. Everything the buffer stepper does runs on the
// reactor goroutine.
package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	NOW   = 0.0
	NEVER = 9999999999999999.0

	// maxSleep bounds how long the dispatch loop waits without rechecking.
	maxSleep = time.Second
)

var (
	ErrReactorClosed = errors.New("reactor: reactor closed")
	ErrTimeout       = errors.New("reactor: operation timed out")
)

// TimerCallback is called when a timer fires. It receives the event time
// and returns the next wake time; NEVER disables the timer.
type TimerCallback func(eventtime float64) float64

// Timer is a registered timer. Its fields are guarded by the reactor.
type Timer struct {
	callback TimerCallback
	waketime float64
	removed  bool
}

// Completion carries the result of work done on the reactor goroutine.
type Completion struct {
	result interface{}
	done   chan struct{}
	once   sync.Once
}

// NewCompletion returns an incomplete Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Test returns true if the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the result once and wakes any waiters.
func (c *Completion) Complete(result interface{}) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Done is closed once a result is available.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the completion is done or ctx ends.
func (c *Completion) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reactor dispatches timers and posted callbacks on one goroutine.
type Reactor struct {
	mu     sync.Mutex
	timers []*Timer

	asyncQueue chan func(eventtime float64)
	wake       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a new Reactor. Call Run to start dispatching.
func New() *Reactor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		asyncQueue: make(chan func(eventtime float64), 256),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Monotonic returns the host monotonic time in seconds.
func (r *Reactor) Monotonic() float64 {
	return monotonic()
}

// Context is cancelled when the reactor ends.
func (r *Reactor) Context() context.Context {
	return r.ctx
}

// RegisterTimer registers a timer that first fires at waketime.
func (r *Reactor) RegisterTimer(callback TimerCallback, waketime float64) *Timer {
	timer := &Timer{callback: callback, waketime: waketime}
	r.mu.Lock()
	r.timers = append(r.timers, timer)
	r.mu.Unlock()
	r.kick()
	return timer
}

// UnregisterTimer removes a timer.
func (r *Reactor) UnregisterTimer(timer *Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer.removed = true
	timer.waketime = NEVER
	for i, t := range r.timers {
		if t == timer {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
}

// UpdateTimer changes a timer's wake time.
func (r *Reactor) UpdateTimer(timer *Timer, waketime float64) {
	r.mu.Lock()
	if !timer.removed {
		timer.waketime = waketime
	}
	r.mu.Unlock()
	r.kick()
}

// Waketime returns the timer's current wake time.
func (r *Reactor) Waketime(timer *Timer) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return timer.waketime
}

// RegisterCallback runs callback once at waketime and completes the
// returned Completion with its result.
func (r *Reactor) RegisterCallback(callback func(eventtime float64) interface{}, waketime float64) *Completion {
	completion := NewCompletion()
	r.RegisterTimer(func(eventtime float64) float64 {
		completion.Complete(callback(eventtime))
		return NEVER
	}, waketime)
	return completion
}

// RegisterAsyncCallback posts callback from any goroutine to run on the
// reactor goroutine as soon as possible. If the reactor has ended the
// completion is finished with ErrReactorClosed.
func (r *Reactor) RegisterAsyncCallback(callback func(eventtime float64) interface{}) *Completion {
	completion := NewCompletion()
	if r.ctx.Err() != nil {
		completion.Complete(ErrReactorClosed)
		return completion
	}
	fn := func(eventtime float64) {
		completion.Complete(callback(eventtime))
	}
	select {
	case r.asyncQueue <- fn:
	case <-r.ctx.Done():
		completion.Complete(ErrReactorClosed)
	}
	return completion
}

// Run starts the dispatch loop in its own goroutine.
func (r *Reactor) Run() {
	if r.running.Swap(true) {
		return
	}
	r.wg.Add(1)
	go r.dispatchLoop()
}

// End signals the reactor to stop.
func (r *Reactor) End() {
	r.running.Store(false)
	r.cancel()
}

// Wait waits for the dispatch loop to exit.
func (r *Reactor) Wait() {
	r.wg.Wait()
}

func (r *Reactor) kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reactor) dispatchLoop() {
	defer r.wg.Done()

	for {
		if r.ctx.Err() != nil {
			return
		}
		r.processAsyncCallbacks()

		delay := time.Duration(r.checkTimers(r.Monotonic()) * float64(time.Second))
		if delay <= 0 {
			continue
		}
		if delay > maxSleep {
			delay = maxSleep
		}

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case fn := <-r.asyncQueue:
			t.Stop()
			fn(r.Monotonic())
		case <-r.wake:
			t.Stop()
		case <-r.ctx.Done():
			t.Stop()
			return
		}
	}
}

func (r *Reactor) processAsyncCallbacks() {
	for {
		select {
		case fn := <-r.asyncQueue:
			fn(r.Monotonic())
		default:
			return
		}
	}
}

// checkTimers fires due timers and returns the seconds until the next one.
func (r *Reactor) checkTimers(eventtime float64) float64 {
	r.mu.Lock()
	var due []*Timer
	for _, t := range r.timers {
		if eventtime >= t.waketime {
			t.waketime = NEVER
			due = append(due, t)
		}
	}
	r.mu.Unlock()

	for _, t := range due {
		next := t.callback(eventtime)
		r.mu.Lock()
		if !t.removed && next < t.waketime {
			t.waketime = next
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	nextWake := NEVER
	for _, t := range r.timers {
		if t.waketime < nextWake {
			nextWake = t.waketime
		}
	}
	r.mu.Unlock()

	delay := nextWake - r.Monotonic()
	if delay < 0 {
		delay = 0
	}
	return delay
}
