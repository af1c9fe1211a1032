// Package gcode parses command lines and dispatches them to registered
// handlers, including mux commands selected by a key parameter such as
// `BUFFER_STEPPER STEPPER=feeder MOVE=15`.
package gcode

import (
	"regexp"
	"strconv"
	"strings"

	hosterr "klipper-buffer-stepper/pkg/errors"
)

// Command is a parsed command line.
type Command struct {
	Name   string
	Params map[string]string
	Raw    string

	respond func(string)
}

var (
	reParenComment = regexp.MustCompile(`\([^)]*\)`)
	reClassicName  = regexp.MustCompile(`^[A-Z][0-9.]+$`)
)

// Parse parses a command line. Blank and comment-only lines return nil.
//
// Classic commands (G1, M84) take letter-prefixed arguments like X10.
// Extended commands (BUFFER_STEPPER) take KEY=value arguments only.
func Parse(line string) (*Command, error) {
	ln := line
	if idx := strings.IndexByte(ln, ';'); idx >= 0 {
		ln = ln[:idx]
	}
	ln = strings.TrimSpace(reParenComment.ReplaceAllString(ln, " "))
	fields := strings.Fields(ln)
	if len(fields) == 0 {
		return nil, nil
	}

	name := strings.ToUpper(fields[0])
	params := map[string]string{}
	classic := reClassicName.MatchString(name)
	for _, f := range fields[1:] {
		if k, v, ok := strings.Cut(f, "="); ok {
			k = strings.ToUpper(strings.TrimSpace(k))
			if k == "" {
				return nil, hosterr.GCodeParseError(line, "empty parameter name")
			}
			params[k] = strings.TrimSpace(v)
			continue
		}
		if !classic {
			return nil, hosterr.GCodeParseError(line, "malformed parameter '"+f+"'")
		}
		params[strings.ToUpper(f[:1])] = f[1:]
	}
	return &Command{Name: name, Params: params, Raw: line}, nil
}

// Has reports whether the parameter is present.
func (c *Command) Has(name string) bool {
	_, ok := c.Params[name]
	return ok
}

// Get returns the raw parameter value.
func (c *Command) Get(name string) (string, bool) {
	v, ok := c.Params[name]
	return v, ok
}

// RespondInfo sends an informational message to whoever issued the command.
func (c *Command) RespondInfo(msg string) {
	if c.respond != nil {
		c.respond(msg)
	}
}

// Bound restricts a numeric parameter.
type Bound struct {
	op    string
	limit float64
}

// Above requires value > v.
func Above(v float64) Bound { return Bound{">", v} }

// MinVal requires value >= v.
func MinVal(v float64) Bound { return Bound{">=", v} }

// MaxVal requires value <= v.
func MaxVal(v float64) Bound { return Bound{"<=", v} }

// Below requires value < v.
func Below(v float64) Bound { return Bound{"<", v} }

func (b Bound) ok(v float64) bool {
	switch b.op {
	case ">":
		return v > b.limit
	case ">=":
		return v >= b.limit
	case "<=":
		return v <= b.limit
	case "<":
		return v < b.limit
	}
	return true
}

func (c *Command) invalid(name, value, reason string) error {
	return hosterr.GCodeInvalidParameterError(c.Name, name, value, reason)
}

func (c *Command) parseFloat(name, raw string, bounds []Bound) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, c.invalid(name, raw, "not a number")
	}
	for _, b := range bounds {
		if !b.ok(v) {
			return 0, c.invalid(name, raw, "must be "+b.op+" "+strconv.FormatFloat(b.limit, 'f', -1, 64))
		}
	}
	return v, nil
}

// OptionalFloat returns the parameter as a float when present.
func (c *Command) OptionalFloat(name string, bounds ...Bound) (float64, bool, error) {
	raw, ok := c.Params[name]
	if !ok {
		return 0, false, nil
	}
	v, err := c.parseFloat(name, raw, bounds)
	return v, err == nil, err
}

// GetFloat returns the parameter as a float, or def when absent.
// Bounds apply to supplied values only.
func (c *Command) GetFloat(name string, def float64, bounds ...Bound) (float64, error) {
	v, ok, err := c.OptionalFloat(name, bounds...)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// RequireFloat returns the parameter as a float or a missing parameter error.
func (c *Command) RequireFloat(name string, bounds ...Bound) (float64, error) {
	v, ok, err := c.OptionalFloat(name, bounds...)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, hosterr.GCodeMissingParameterError(c.Name, name)
	}
	return v, nil
}

// OptionalInt returns the parameter as an int when present.
func (c *Command) OptionalInt(name string) (int, bool, error) {
	raw, ok := c.Params[name]
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, c.invalid(name, raw, "not an integer")
	}
	return v, true, nil
}

// GetInt returns the parameter as an int, or def when absent.
func (c *Command) GetInt(name string, def int) (int, error) {
	v, ok, err := c.OptionalInt(name)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}
