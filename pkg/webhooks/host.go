package webhooks

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"klipper-buffer-stepper/pkg/bufferstepper"
	hosterr "klipper-buffer-stepper/pkg/errors"
	"klipper-buffer-stepper/pkg/gcode"
	"klipper-buffer-stepper/pkg/history"
	"klipper-buffer-stepper/pkg/reactor"
)

// Host is what the API server drives.
type Host interface {
	Steppers() []string
	Status(ctx context.Context, name string) (bufferstepper.Status, error)
	RunScript(ctx context.Context, script string) error
	Inject(name string, on bool) error
	History(ctx context.Context, stepper string, limit int) ([]history.Move, error)
}

// StatusSource reports the state of one buffer stepper.
type StatusSource interface {
	GetName() string
	GetStatus(eventtime float64) bufferstepper.Status
}

// Injector feeds a sensor level into a stepper, as the manual source does.
type Injector interface {
	Inject(on bool) error
}

// Poster runs work on the reactor goroutine.
type Poster interface {
	RegisterAsyncCallback(callback func(eventtime float64) interface{}) *reactor.Completion
}

// ReactorHost serializes every state access through the reactor so API
// requests never race the motion code.
type ReactorHost struct {
	reactor    Poster
	dispatcher *gcode.Dispatcher

	mu        sync.RWMutex
	steppers  map[string]StatusSource
	injectors map[string]Injector
	store     *history.Store
}

// NewReactorHost creates a host bound to a reactor and command dispatcher.
func NewReactorHost(r Poster, d *gcode.Dispatcher) *ReactorHost {
	return &ReactorHost{
		reactor:    r,
		dispatcher: d,
		steppers:   make(map[string]StatusSource),
		injectors:  make(map[string]Injector),
	}
}

// AddStepper exposes a stepper. inj may be nil when the sensor is hardware.
func (h *ReactorHost) AddStepper(s StatusSource, inj Injector) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steppers[s.GetName()] = s
	if inj != nil {
		h.injectors[s.GetName()] = inj
	}
}

// SetHistory attaches the move store.
func (h *ReactorHost) SetHistory(store *history.Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store = store
}

func (h *ReactorHost) Steppers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.steppers))
	for name := range h.steppers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *ReactorHost) call(ctx context.Context, fn func(eventtime float64) interface{}) (interface{}, error) {
	res, err := h.reactor.RegisterAsyncCallback(fn).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if err, ok := res.(error); ok {
		return nil, err
	}
	return res, nil
}

func (h *ReactorHost) Status(ctx context.Context, name string) (bufferstepper.Status, error) {
	h.mu.RLock()
	s, ok := h.steppers[name]
	h.mu.RUnlock()
	if !ok {
		return bufferstepper.Status{}, errors.Errorf("unknown buffer_stepper %q", name)
	}
	res, err := h.call(ctx, func(eventtime float64) interface{} {
		return s.GetStatus(eventtime)
	})
	if err != nil {
		return bufferstepper.Status{}, err
	}
	return res.(bufferstepper.Status), nil
}

// RunScript runs each line of script on the reactor, stopping at the
// first failure.
func (h *ReactorHost) RunScript(ctx context.Context, script string) error {
	if strings.TrimSpace(script) == "" {
		return hosterr.GCodeMissingParameterError("script", "script")
	}
	lines := strings.Split(script, "\n")
	_, err := h.call(ctx, func(float64) interface{} {
		for _, line := range lines {
			if err := h.dispatcher.Run(line); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (h *ReactorHost) Inject(name string, on bool) error {
	h.mu.RLock()
	inj, ok := h.injectors[name]
	h.mu.RUnlock()
	if !ok {
		return errors.Errorf("buffer_stepper %q has no manual sensor", name)
	}
	return inj.Inject(on)
}

func (h *ReactorHost) History(ctx context.Context, stepper string, limit int) ([]history.Move, error) {
	h.mu.RLock()
	store := h.store
	h.mu.RUnlock()
	if store == nil {
		return nil, errors.New("move history is not enabled")
	}
	return store.Recent(ctx, stepper, limit)
}
