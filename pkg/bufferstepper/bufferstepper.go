// Package bufferstepper drives a filament buffer motor: a sensor edge
// schedules a fixed-length push on a dedicated controller, timed against
// that controller's clock.
package bufferstepper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"klipper-buffer-stepper/pkg/buttons"
	"klipper-buffer-stepper/pkg/config"
	hosterr "klipper-buffer-stepper/pkg/errors"
	"klipper-buffer-stepper/pkg/history"
	"klipper-buffer-stepper/pkg/log"
	"klipper-buffer-stepper/pkg/metrics"
	"klipper-buffer-stepper/pkg/motion"
	"klipper-buffer-stepper/pkg/printtime"
	"klipper-buffer-stepper/pkg/reactor"
)

// Operator-facing messages sent through the respond hook.
const (
	MsgTriggered    = "buffer triggered!"
	MsgStartPushing = "start pushing buffer!"
	MsgPushed       = "buffer pushed!"
)

// Move causes recorded in history.
const (
	CauseTrigger = "trigger"
	CauseCommand = "command"
)

// Reactor is the event-processing context the controller runs in.
type Reactor interface {
	Monotonic() float64
	RegisterTimer(callback reactor.TimerCallback, waketime float64) *reactor.Timer
}

// ClockProvider estimates the controller's print time for a host time.
type ClockProvider interface {
	EstimatedPrintTime(eventtime float64) float64
}

// EnableLine switches the motor driver enable pin at a print time.
type EnableLine interface {
	MotorEnable(printTime float64)
	MotorDisable(printTime float64)
}

// Recorder persists committed moves.
type Recorder interface {
	Record(ctx context.Context, m history.Move) error
}

// Deps are the collaborators resolved once at startup. Reactor, Clock,
// Executor and Enable are required.
type Deps struct {
	Reactor  Reactor
	Clock    ClockProvider
	Executor motion.Executor
	Enable   EnableLine

	History Recorder
	Metrics *metrics.BufferStepperMetrics
	Respond func(msg string)
	OnMove  func(m history.Move)
	Context context.Context
}

// BufferStepper is the controller for one [buffer_stepper NAME] section.
type BufferStepper struct {
	cfg config.BufferStepperConfig

	ctx       context.Context
	reactor   Reactor
	clock     ClockProvider
	enable    EnableLine
	timeline  *printtime.Timeline
	queue     *motion.Queue
	debouncer *buttons.Debouncer
	history   Recorder
	metrics   *metrics.BufferStepperMetrics
	respond   func(string)
	onMove    func(history.Move)
	logger    *log.Logger

	mu         sync.Mutex
	position   float64
	enabled    bool
	moves      int
	lastMove   *history.Move
	readyTimer *reactor.Timer
}

// New builds a controller from its configuration and collaborators.
func New(cfg *config.BufferStepperConfig, deps Deps) (*BufferStepper, error) {
	component := "buffer_stepper " + cfg.Name
	switch {
	case deps.Reactor == nil:
		return nil, hosterr.RuntimeErrorInit(component, "no reactor")
	case deps.Clock == nil:
		return nil, hosterr.RuntimeErrorInit(component, "no controller clock")
	case deps.Executor == nil:
		return nil, hosterr.RuntimeErrorInit(component, "no step executor")
	case deps.Enable == nil:
		return nil, hosterr.RuntimeErrorInit(component, "no enable line")
	}

	timeline, err := printtime.New(deps.Reactor, deps.Clock, cfg.BufferTimeStart)
	if err != nil {
		return nil, err
	}

	b := &BufferStepper{
		cfg:      *cfg,
		ctx:      deps.Context,
		reactor:  deps.Reactor,
		clock:    deps.Clock,
		enable:   deps.Enable,
		timeline: timeline,
		queue:    motion.NewQueue(timeline, deps.Executor),
		history:  deps.History,
		metrics:  deps.Metrics,
		respond:  deps.Respond,
		onMove:   deps.OnMove,
		logger:   log.GetLogger(component),
	}
	if b.ctx == nil {
		b.ctx = context.Background()
	}
	b.debouncer = buttons.New(cfg.EventDelay, cfg.RearmOnTrigger, b.onTrigger)

	timeline.OnSync(func(curtime, est, next float64) {
		b.logger.WithFields(log.Fields{"curtime": curtime, "est": est, "next": next}).
			Debug("timeline synchronized")
	})
	if b.metrics != nil {
		b.queue.OnFlush(func(d time.Duration, err error) {
			b.metrics.RecordFlush(cfg.Name, d, err)
		})
	}
	return b, nil
}

// GetName returns the stepper name.
func (b *BufferStepper) GetName() string {
	return b.cfg.Name
}

// Config returns the decoded configuration.
func (b *BufferStepper) Config() config.BufferStepperConfig {
	return b.cfg
}

// Timeline exposes the command timeline.
func (b *BufferStepper) Timeline() *printtime.Timeline {
	return b.timeline
}

// Queue exposes the motion queue.
func (b *BufferStepper) Queue() *motion.Queue {
	return b.queue
}

// Debouncer exposes the sensor state machine.
func (b *BufferStepper) Debouncer() *buttons.Debouncer {
	return b.debouncer
}

func (b *BufferStepper) respondInfo(msg string) {
	b.logger.Info(msg)
	if b.respond != nil {
		b.respond(msg)
	}
}

// HandleReady starts the startup grace window. Sensor edges are accepted
// once startup_delay has passed.
func (b *BufferStepper) HandleReady() {
	readyTime := b.reactor.Monotonic()
	armAt := readyTime + b.cfg.StartupDelay

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readyTimer != nil {
		return
	}
	b.readyTimer = b.reactor.RegisterTimer(func(eventtime float64) float64 {
		b.debouncer.Arm(eventtime)
		b.logger.WithField("min_event_time", eventtime).Info("sensor armed")
		return reactor.NEVER
	}, armAt)
	b.logger.WithField("arm_at", armAt).Debug("ready, startup grace running")
}

// HandleEdge processes one sensor edge observed at host time eventtime.
func (b *BufferStepper) HandleEdge(eventtime float64, on bool) buttons.Result {
	res := b.debouncer.HandleEdge(eventtime, on)

	entry := b.logger.WithFields(log.Fields{"eventtime": eventtime, "on": on, "result": string(res)})
	if res == buttons.ResultEarly {
		entry.WithField("min_event_time", b.debouncer.MinEventTime()).Debug("edge suppressed")
	} else {
		entry.Debug("endstop state changed")
	}
	if b.metrics != nil {
		b.metrics.RecordEdge(b.cfg.Name, string(res), b.debouncer.Triggered())
	}
	return res
}

func (b *BufferStepper) onTrigger(eventtime float64) {
	b.logger.WithField("eventtime", eventtime).Info("buffer triggered")
	if b.cfg.Debug {
		b.respondInfo(MsgTriggered)
	}
	if err := b.doMove(b.cfg.PushLength, b.cfg.Velocity, b.cfg.Accel, CauseTrigger); err != nil {
		b.logger.WithError(err).Error("triggered push failed")
	}
}

// SyncPrintTime re-synchronizes the timeline against the controller clock.
func (b *BufferStepper) SyncPrintTime() float64 {
	return b.timeline.ComputeMinTime()
}

// DoMove schedules a relative move of distance mm and waits for the
// controller to accept it. The axis position is reset to zero first.
func (b *BufferStepper) DoMove(distance, speed, accel float64) error {
	return b.doMove(distance, speed, accel, CauseCommand)
}

func (b *BufferStepper) doMove(distance, speed, accel float64, cause string) error {
	if speed <= 0 {
		return hosterr.RuntimeErrorQueue("move", "speed must be above zero")
	}
	if accel < 0 {
		return hosterr.RuntimeErrorQueue("move", "accel must not be negative")
	}

	b.respondInfo(MsgStartPushing)
	b.SyncPrintTime()
	b.setPosition(0)

	profile := motion.ComputeProfile(distance, speed, accel)
	start := b.timeline.NextCommandTime()
	seg := motion.NewSegment(xid.New().String(), start, 0, profile, accel)
	if err := b.queue.Append(seg); err != nil {
		return err
	}
	end := b.timeline.NextCommandTime()
	b.queue.Finalize(end + motion.FinalizePad)

	if err := b.queue.Flush(b.ctx, end); err != nil {
		b.logger.WithError(err).WithField("move", seg.ID).Error("flush failed")
		return err
	}
	b.queue.Prune(b.clock.EstimatedPrintTime(b.reactor.Monotonic()))

	move := history.Move{
		ID:           seg.ID,
		Stepper:      b.cfg.Name,
		StartTime:    seg.StartTime,
		AccelT:       seg.AccelT,
		CruiseT:      seg.CruiseT,
		DecelT:       seg.DecelT,
		Distance:     distance,
		Velocity:     speed,
		Acceleration: accel,
		Cause:        cause,
		WallTime:     time.Now(),
	}
	b.mu.Lock()
	b.position = profile.AxisR * profile.Distance()
	b.moves++
	b.lastMove = &move
	position := b.position
	b.mu.Unlock()

	b.logger.WithFields(log.Fields{
		"move":     seg.ID,
		"start":    seg.StartTime,
		"accel_t":  seg.AccelT,
		"cruise_t": seg.CruiseT,
		"decel_t":  seg.DecelT,
		"cause":    cause,
	}).Info("move committed")
	if b.metrics != nil {
		b.metrics.RecordMove(b.cfg.Name, position, end)
	}
	if b.history != nil {
		if err := b.history.Record(b.ctx, move); err != nil {
			b.logger.WithError(err).Warn("move history not recorded")
		}
	}
	if b.onMove != nil {
		b.onMove(move)
	}
	b.respondInfo(MsgPushed)
	return nil
}

// DoEnable switches the motor driver on or off at the next command time.
func (b *BufferStepper) DoEnable(enable bool) {
	next := b.SyncPrintTime()
	if enable {
		b.enable.MotorEnable(next)
	} else {
		b.enable.MotorDisable(next)
	}
	b.mu.Lock()
	b.enabled = enable
	b.mu.Unlock()
	b.SyncPrintTime()
	b.logger.WithFields(log.Fields{"enable": enable, "print_time": next}).Debug("motor enable changed")
}

func (b *BufferStepper) setPosition(pos float64) {
	b.mu.Lock()
	b.position = pos
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.SetPosition(b.cfg.Name, pos)
	}
}

// DoSetPosition overrides the commanded position without moving.
func (b *BufferStepper) DoSetPosition(pos float64) {
	b.setPosition(pos)
}

// GetPosition returns the commanded position as a toolhead-style vector.
func (b *BufferStepper) GetPosition() [4]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return [4]float64{b.position, 0, 0, 0}
}

// SetPosition sets the commanded position from the first axis of newpos.
func (b *BufferStepper) SetPosition(newpos []float64) {
	if len(newpos) > 0 {
		b.DoSetPosition(newpos[0])
	}
}

// GetLastMoveTime re-synchronizes and returns the next command time.
func (b *BufferStepper) GetLastMoveTime() float64 {
	return b.SyncPrintTime()
}

// Dwell delays the next command by delay seconds. Negative delays are
// treated as zero.
func (b *BufferStepper) Dwell(delay float64) {
	b.timeline.Advance(delay)
}

// DripMove moves to the first axis of newpos using the homing acceleration.
func (b *BufferStepper) DripMove(newpos []float64, speed float64) error {
	if len(newpos) == 0 {
		return hosterr.RuntimeErrorQueue("drip move", "no target position")
	}
	return b.DoMove(newpos[0], speed, b.cfg.Accel)
}

// CalcPosition maps stepper positions back to axis coordinates.
func (b *BufferStepper) CalcPosition(stepperPositions map[string]float64) [3]float64 {
	return [3]float64{stepperPositions[b.cfg.Name], 0, 0}
}

// Enabled reports the last commanded enable state.
func (b *BufferStepper) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Status is the externally visible state of a buffer stepper.
type Status struct {
	Name         string           `json:"name"`
	Position     float64          `json:"position"`
	Enabled      bool             `json:"enabled"`
	State        string           `json:"state"`
	Triggered    bool             `json:"triggered"`
	Armed        bool             `json:"armed"`
	MinEventTime float64          `json:"min_event_time"`
	Moves        int              `json:"moves"`
	Triggers     int              `json:"triggers"`
	QueueLength  int              `json:"queue_length"`
	Timeline     printtime.Status `json:"timeline"`
	LastMove     *history.Move    `json:"last_move,omitempty"`
}

// GetStatus returns a snapshot as seen at host time eventtime.
func (b *BufferStepper) GetStatus(eventtime float64) Status {
	minEvent := b.debouncer.MinEventTime()
	if minEvent >= buttons.NEVER {
		minEvent = 0
	}
	st := Status{
		Name:         b.cfg.Name,
		State:        b.debouncer.State().String(),
		Triggered:    b.debouncer.Triggered(),
		Armed:        b.debouncer.Armed(),
		MinEventTime: minEvent,
		Triggers:     b.debouncer.Fired(),
		QueueLength:  b.queue.Len(),
		Timeline:     b.timeline.GetStatus(eventtime),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st.Position = b.position
	st.Enabled = b.enabled
	st.Moves = b.moves
	if b.lastMove != nil {
		last := *b.lastMove
		st.LastMove = &last
	}
	return st
}
