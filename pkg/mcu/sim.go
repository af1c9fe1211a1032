// Package mcu provides the controller collaborators of the buffer stepper:
// a clock provider, a step executor and an enable line. Sim implements all
// three against a simulated controller clock.
package mcu

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"klipper-buffer-stepper/pkg/clocksync"
	"klipper-buffer-stepper/pkg/config"
	"klipper-buffer-stepper/pkg/log"
	"klipper-buffer-stepper/pkg/motion"
	"klipper-buffer-stepper/pkg/reactor"
)

// queryRTT is the simulated round trip of a clock query.
const queryRTT = 0.0004

// EnableEvent is a scheduled change of the stepper enable line.
type EnableEvent struct {
	PrintTime float64 `json:"print_time"`
	Enabled   bool    `json:"enabled"`
}

// Sim is a simulated controller.
type Sim struct {
	name         string
	freq         float64
	driftPPM     float64
	flushLatency time.Duration
	stepsPerMM   float64
	clock        *clocksync.ClockSync
	logger       *log.Logger

	mu         sync.Mutex
	epoch      float64
	segments   []motion.Segment
	accounted  int
	positionMM float64
	flushedTo  float64
	enabled    bool
	events     []EnableEvent
}

// NewSim builds a simulated controller from its config section.
func NewSim(cfg *config.MCUConfig, stepsPerMM float64) *Sim {
	return &Sim{
		name:         cfg.Name,
		freq:         cfg.ClockFreq,
		flushLatency: time.Duration(cfg.FlushLatency * float64(time.Second)),
		stepsPerMM:   stepsPerMM,
		clock:        clocksync.New(cfg.ClockFreq),
		logger:       log.GetLogger("mcu " + cfg.Name),
	}
}

// SetDrift makes the simulated crystal run ppm parts per million fast.
func (s *Sim) SetDrift(ppm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driftPPM = ppm
}

// Name returns the controller name.
func (s *Sim) Name() string {
	return s.name
}

// Connect starts the controller clock at host time now.
func (s *Sim) Connect(now float64) {
	s.mu.Lock()
	s.epoch = now
	s.mu.Unlock()
	s.clock.Connect(0, now)
	s.logger.Info("controller connected at %.6f, clock_freq=%d", now, int64(s.freq))
}

func (s *Sim) readClock(hostTime float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64((hostTime - s.epoch) * s.freq * (1 + s.driftPPM*1e-6))
}

// Sample performs one clock query sent at host time sent.
func (s *Sim) Sample(sent float64) {
	s.clock.NoteQuery()
	clock := s.readClock(sent + queryRTT/2)
	s.clock.HandleClock(uint32(clock), sent, sent+queryRTT)
}

// Start connects the controller and schedules periodic clock queries.
func (s *Sim) Start(r *reactor.Reactor) {
	s.Connect(r.Monotonic())
	r.RegisterTimer(func(eventtime float64) float64 {
		s.Sample(eventtime)
		return eventtime + clocksync.QUERY_INTERVAL
	}, reactor.NOW)
}

// ClockSync exposes the clock estimator.
func (s *Sim) ClockSync() *clocksync.ClockSync {
	return s.clock
}

// EstimatedPrintTime implements the hardware clock provider.
func (s *Sim) EstimatedPrintTime(eventtime float64) float64 {
	return s.clock.EstimatedPrintTime(eventtime)
}

// Commit accepts finalized segments.
func (s *Sim) Commit(segs []motion.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, segs...)
	for _, seg := range segs {
		s.logger.WithFields(log.Fields{
			"id":    seg.ID,
			"start": seg.StartTime,
			"end":   seg.EndTime(),
		}).Debug("segment committed")
	}
}

// Flush waits for the controller to acknowledge everything up to
// printTime and generates the steps of those segments.
func (s *Sim) Flush(ctx context.Context, printTime float64) error {
	if s.flushLatency > 0 {
		t := time.NewTimer(s.flushLatency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "flush of %s up to %.6f", s.name, printTime)
		}
	} else if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "flush of %s up to %.6f", s.name, printTime)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.accounted < len(s.segments) && s.segments[s.accounted].StartTime < printTime {
		seg := s.segments[s.accounted]
		s.positionMM += seg.AxisR * seg.Distance()
		s.accounted++
	}
	if printTime > s.flushedTo {
		s.flushedTo = printTime
	}
	return nil
}

// MotorEnable schedules the enable line on at printTime.
func (s *Sim) MotorEnable(printTime float64) {
	s.setEnable(printTime, true)
}

// MotorDisable schedules the enable line off at printTime.
func (s *Sim) MotorDisable(printTime float64) {
	s.setEnable(printTime, false)
}

func (s *Sim) setEnable(printTime float64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == on {
		return
	}
	s.enabled = on
	s.events = append(s.events, EnableEvent{PrintTime: printTime, Enabled: on})
	s.logger.WithField("print_time", printTime).Debugf("enable line -> %v", on)
}

// Enabled returns the last scheduled enable state.
func (s *Sim) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// EnableEvents returns the enable line schedule.
func (s *Sim) EnableEvents() []EnableEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EnableEvent(nil), s.events...)
}

// Segments returns every committed segment.
func (s *Sim) Segments() []motion.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]motion.Segment(nil), s.segments...)
}

// StepPosition returns the controller step counter after the last flush.
func (s *Sim) StepPosition() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(math.Round(s.positionMM * s.stepsPerMM))
}

// FlushedTo returns the latest acknowledged print time.
func (s *Sim) FlushedTo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushedTo
}
