// Package sensor turns filament buffer sensor hardware into level-change
// edges delivered on the reactor.
package sensor

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"klipper-buffer-stepper/pkg/config"
	"klipper-buffer-stepper/pkg/log"
	"klipper-buffer-stepper/pkg/reactor"
)

// EdgeFunc receives a sensor level observed at host time eventtime.
type EdgeFunc func(eventtime float64, on bool)

// Source produces sensor edges until closed.
type Source interface {
	Name() string
	Start(handler EdgeFunc) error
	Close() error
}

// Poster runs callbacks on the event-processing context.
type Poster interface {
	RegisterAsyncCallback(callback func(eventtime float64) interface{}) *reactor.Completion
}

// Dispatch returns an EdgeFunc that hands every level to handler on the
// reactor, inverted when the pin is active low. The handler sees the
// reactor time at which the edge is processed.
func Dispatch(r Poster, invert bool, handler EdgeFunc) EdgeFunc {
	return func(_ float64, on bool) {
		level := on != invert
		r.RegisterAsyncCallback(func(eventtime float64) interface{} {
			handler(eventtime, level)
			return nil
		})
	}
}

// New builds the source selected in the host section.
func New(host *config.HostConfig, pin config.Pin, clock func() float64) (Source, error) {
	switch host.Sensor {
	case "gpio":
		return NewGPIO(host.GPIOChip, host.GPIOLine, pin.Pullup > 0, clock), nil
	case "serial":
		return OpenSerial(host.SerialDevice, host.SerialBaud, clock)
	case "manual":
		return NewManual(pin.FullName(), clock), nil
	default:
		return nil, errors.Errorf("unknown sensor source %q", host.Sensor)
	}
}

// ParseLevel decodes a textual sensor level.
func ParseLevel(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "triggered", "high":
		return true, nil
	case "0", "off", "open", "low":
		return false, nil
	default:
		return false, errors.Errorf("invalid sensor level %q", s)
	}
}

// Manual is a source driven by Inject, for bench setups and the API.
type Manual struct {
	name  string
	clock func() float64

	mu      sync.Mutex
	handler EdgeFunc
	closed  bool
}

// NewManual creates a manual source.
func NewManual(name string, clock func() float64) *Manual {
	return &Manual{name: name, clock: clock}
}

func (m *Manual) Name() string { return "manual:" + m.name }

func (m *Manual) Start(handler EdgeFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
	return nil
}

// Inject reports a sensor level as if the hardware had changed.
func (m *Manual) Inject(on bool) error {
	m.mu.Lock()
	h, closed := m.handler, m.closed
	m.mu.Unlock()
	if closed {
		return errors.Errorf("%s: source closed", m.Name())
	}
	if h == nil {
		return errors.Errorf("%s: source not started", m.Name())
	}
	h(m.clock(), on)
	return nil
}

func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var logger = log.GetLogger("sensor")
