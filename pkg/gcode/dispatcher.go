package gcode

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	hosterr "klipper-buffer-stepper/pkg/errors"
	"klipper-buffer-stepper/pkg/log"
)

// Handler executes a parsed command.
type Handler func(cmd *Command) error

type muxCommand struct {
	key      string
	handlers map[string]Handler
}

// Dispatcher routes command lines to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	mux      map[string]*muxCommand
	help     map[string]string
	respond  func(string)
	logger   *log.Logger
}

// NewDispatcher creates a dispatcher with the built-in HELP command.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		mux:      make(map[string]*muxCommand),
		help:     make(map[string]string),
		logger:   log.GetLogger("gcode"),
	}
	d.Register("HELP", d.cmdHelp, "Report the list of available commands")
	return d
}

// SetRespond installs the sink for operator-facing responses.
func (d *Dispatcher) SetRespond(fn func(string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.respond = fn
}

// RespondInfo sends an informational message through the respond sink.
func (d *Dispatcher) RespondInfo(msg string) {
	d.mu.RLock()
	fn := d.respond
	d.mu.RUnlock()
	d.logger.Debug("respond: %s", msg)
	if fn != nil {
		fn(msg)
	}
}

// Register adds a plain command. A nil handler removes it.
func (d *Dispatcher) Register(name string, handler Handler, desc string) error {
	name = strings.ToUpper(name)
	d.mu.Lock()
	defer d.mu.Unlock()
	if handler == nil {
		delete(d.handlers, name)
		delete(d.help, name)
		return nil
	}
	if _, ok := d.handlers[name]; ok {
		return hosterr.RuntimeErrorInit("gcode", fmt.Sprintf("command %s already registered", name))
	}
	d.handlers[name] = handler
	if desc != "" {
		d.help[name] = desc
	}
	return nil
}

// RegisterMux adds a handler selected by the value of key, as in
// `BUFFER_STEPPER STEPPER=feeder`. An empty value matches commands that
// omit the key.
func (d *Dispatcher) RegisterMux(name, key, value string, handler Handler, desc string) error {
	name = strings.ToUpper(name)
	key = strings.ToUpper(key)
	d.mu.Lock()
	mc, ok := d.mux[name]
	if !ok {
		if _, plain := d.handlers[name]; plain {
			d.mu.Unlock()
			return hosterr.RuntimeErrorInit("gcode", fmt.Sprintf("command %s already registered", name))
		}
		mc = &muxCommand{key: key, handlers: make(map[string]Handler)}
		d.mux[name] = mc
	}
	if mc.key != key {
		d.mu.Unlock()
		return hosterr.RuntimeErrorInit("gcode",
			fmt.Sprintf("mux command %s %s %s may have only one key (%s)", name, key, value, mc.key))
	}
	if _, dup := mc.handlers[value]; dup {
		d.mu.Unlock()
		return hosterr.RuntimeErrorInit("gcode",
			fmt.Sprintf("mux command %s %s %s already registered", name, key, value))
	}
	mc.handlers[value] = handler
	d.mu.Unlock()

	if _, err := d.lookup(name); err != nil {
		return d.Register(name, d.runMux, desc)
	}
	return nil
}

func (d *Dispatcher) lookup(name string) (Handler, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[name]
	if !ok {
		return nil, hosterr.GCodeUnknownCommandError(name)
	}
	return h, nil
}

func (d *Dispatcher) runMux(cmd *Command) error {
	d.mu.RLock()
	mc := d.mux[cmd.Name]
	d.mu.RUnlock()

	value, present := cmd.Get(mc.key)
	d.mu.RLock()
	h, ok := mc.handlers[value]
	d.mu.RUnlock()
	if !ok {
		if !present {
			return hosterr.GCodeMissingParameterError(cmd.Name, mc.key)
		}
		return hosterr.GCodeInvalidParameterError(cmd.Name, mc.key, value, "not a registered value")
	}
	return h(cmd)
}

// Run parses and executes one command line.
func (d *Dispatcher) Run(line string) error {
	cmd, err := Parse(line)
	if err != nil || cmd == nil {
		return err
	}
	h, err := d.lookup(cmd.Name)
	if err != nil {
		return err
	}
	d.mu.RLock()
	cmd.respond = d.respond
	d.mu.RUnlock()

	d.logger.WithField("command", cmd.Name).Debug(strings.TrimSpace(line))
	if err := h(cmd); err != nil {
		d.logger.WithError(err).WithField("command", cmd.Name).Warn("command failed")
		return err
	}
	return nil
}

// Commands returns the registered command names in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) cmdHelp(cmd *Command) error {
	d.mu.RLock()
	var lines []string
	for name, desc := range d.help {
		lines = append(lines, fmt.Sprintf("%-16s: %s", name, desc))
	}
	d.mu.RUnlock()
	sort.Strings(lines)
	cmd.RespondInfo("Available commands:\n" + strings.Join(lines, "\n"))
	return nil
}
