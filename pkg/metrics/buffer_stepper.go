// Buffer stepper metric set
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/load"
)

// BufferStepperMetrics holds the metrics exported by the buffer stepper host
type BufferStepperMetrics struct {
	Moves           *Counter
	Edges           *Counter
	Triggered       *Gauge
	NextCommandTime *Gauge
	Position        *Gauge
	FlushSeconds    *Histogram
	FlushErrors     *Counter
	HostLoad1       *Gauge

	registry *Registry

	// loadAvg is replaceable in tests
	loadAvg func() (float64, error)
}

// NewBufferStepperMetrics creates and registers the buffer stepper metrics
func NewBufferStepperMetrics() *BufferStepperMetrics {
	m := &BufferStepperMetrics{
		Moves: NewCounter("buffer_stepper_moves_total",
			"Moves committed per buffer stepper"),
		Edges: NewCounter("buffer_stepper_edges_total",
			"Sensor edges per buffer stepper by debounce result"),
		Triggered: NewGauge("buffer_stepper_triggered",
			"Debouncer state (1=triggered, 0=idle or grace)"),
		NextCommandTime: NewGauge("buffer_stepper_next_command_time",
			"Next command time in controller print time seconds"),
		Position: NewGauge("buffer_stepper_position",
			"Commanded axis position in millimeters"),
		FlushSeconds: NewHistogram("buffer_stepper_flush_seconds",
			"Time spent in controller flushes", DefaultBuckets()),
		FlushErrors: NewCounter("buffer_stepper_flush_errors_total",
			"Flushes that returned an error"),
		HostLoad1: NewGauge("host_load1",
			"Host one minute load average"),
		registry: NewRegistry(),
		loadAvg:  loadAverage,
	}
	m.registry.MustRegister(m.Moves, m.Edges, m.Triggered, m.NextCommandTime,
		m.Position, m.FlushSeconds, m.FlushErrors, m.HostLoad1)
	return m
}

func loadAverage() (float64, error) {
	avg, err := load.Avg()
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}

func stepperLabels(name string) Labels {
	return Labels{"stepper": name}
}

// RecordMove counts a committed move and updates the timing gauges
func (m *BufferStepperMetrics) RecordMove(name string, position, nextCommandTime float64) {
	l := stepperLabels(name)
	m.Moves.Inc(l)
	m.Position.Set(l, position)
	m.NextCommandTime.Set(l, nextCommandTime)
}

// RecordEdge counts a sensor edge under its debounce result
func (m *BufferStepperMetrics) RecordEdge(name, result string, triggered bool) {
	m.Edges.Inc(stepperLabels(name).With("result", result))
	v := 0.
	if triggered {
		v = 1
	}
	m.Triggered.Set(stepperLabels(name), v)
}

// SetPosition updates the commanded position gauge
func (m *BufferStepperMetrics) SetPosition(name string, position float64) {
	m.Position.Set(stepperLabels(name), position)
}

// RecordFlush observes a flush duration
func (m *BufferStepperMetrics) RecordFlush(name string, d time.Duration, err error) {
	l := stepperLabels(name)
	m.FlushSeconds.Observe(l, d.Seconds())
	if err != nil {
		m.FlushErrors.Inc(l)
	}
}

// UpdateSystemMetrics refreshes the host gauges
func (m *BufferStepperMetrics) UpdateSystemMetrics() {
	if v, err := m.loadAvg(); err == nil {
		m.HostLoad1.Set(nil, v)
	}
}

// Gather returns all metrics in Prometheus text format
func (m *BufferStepperMetrics) Gather() string {
	m.UpdateSystemMetrics()
	return m.registry.Gather()
}

// Registry returns the internal registry
func (m *BufferStepperMetrics) Registry() *Registry {
	return m.registry
}

var (
	globalMetrics     *BufferStepperMetrics
	globalMetricsOnce sync.Once
)

// GlobalMetrics returns the process-wide metric set
func GlobalMetrics() *BufferStepperMetrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewBufferStepperMetrics()
	})
	return globalMetrics
}
