package gcode

import (
	"strings"
	"testing"

	hosterr "klipper-buffer-stepper/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line   string
		name   string
		params map[string]string
	}{
		{"BUFFER_STEPPER STEPPER=feeder MOVE=15", "BUFFER_STEPPER",
			map[string]string{"STEPPER": "feeder", "MOVE": "15"}},
		{"buffer_stepper stepper=feeder speed=5 ; comment", "BUFFER_STEPPER",
			map[string]string{"STEPPER": "feeder", "SPEED": "5"}},
		{"G1 X10 Y-2.5 (inline) F3000", "G1",
			map[string]string{"X": "10", "Y": "-2.5", "F": "3000"}},
		{"M84", "M84", map[string]string{}},
	}
	for _, tt := range tests {
		cmd, err := Parse(tt.line)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.line, err)
		}
		if cmd.Name != tt.name {
			t.Errorf("Parse(%q): name %q, want %q", tt.line, cmd.Name, tt.name)
		}
		if len(cmd.Params) != len(tt.params) {
			t.Errorf("Parse(%q): params %v, want %v", tt.line, cmd.Params, tt.params)
		}
		for k, v := range tt.params {
			if cmd.Params[k] != v {
				t.Errorf("Parse(%q): %s=%q, want %q", tt.line, k, cmd.Params[k], v)
			}
		}
	}
}

func TestParseBlankAndMalformed(t *testing.T) {
	for _, line := range []string{"", "   ", "; only comment", "(paren only)"} {
		cmd, err := Parse(line)
		if cmd != nil || err != nil {
			t.Errorf("Parse(%q) = %v, %v; want nil, nil", line, cmd, err)
		}
	}
	for _, line := range []string{"BUFFER_STEPPER feeder", "BUFFER_STEPPER =5"} {
		if _, err := Parse(line); !hosterr.Is(err, hosterr.ErrGCodeParse) {
			t.Errorf("Parse(%q): expected parse error, got %v", line, err)
		}
	}
}

func TestFloatGetters(t *testing.T) {
	cmd, _ := Parse("BUFFER_STEPPER STEPPER=feeder SPEED=0 ACCEL=-1 MOVE=abc")

	if _, err := cmd.GetFloat("SPEED", 5, Above(0)); !hosterr.Is(err, hosterr.ErrGCodeInvalidParam) {
		t.Errorf("SPEED=0 should be rejected, got %v", err)
	}
	if _, err := cmd.GetFloat("ACCEL", 0, MinVal(0)); !hosterr.Is(err, hosterr.ErrGCodeInvalidParam) {
		t.Errorf("ACCEL=-1 should be rejected, got %v", err)
	}
	if _, err := cmd.GetFloat("MOVE", 0); err == nil || !strings.Contains(err.Error(), "not a number") {
		t.Errorf("MOVE=abc should be rejected, got %v", err)
	}
	if v, err := cmd.GetFloat("DISTANCE", 15, Above(0)); err != nil || v != 15 {
		t.Errorf("default: got %v, %v", v, err)
	}
	if _, err := cmd.RequireFloat("DISTANCE"); !hosterr.Is(err, hosterr.ErrGCodeMissingParam) {
		t.Errorf("expected missing parameter error, got %v", err)
	}
	if v, ok, err := cmd.OptionalFloat("SET_POSITION"); ok || err != nil || v != 0 {
		t.Errorf("absent optional: got %v, %v, %v", v, ok, err)
	}
}

func TestIntGetters(t *testing.T) {
	cmd, _ := Parse("BUFFER_STEPPER STEPPER=feeder ENABLE=1 SYNC=x")
	if v, ok, err := cmd.OptionalInt("ENABLE"); !ok || err != nil || v != 1 {
		t.Errorf("ENABLE: got %v, %v, %v", v, ok, err)
	}
	if _, err := cmd.GetInt("SYNC", 1); !hosterr.Is(err, hosterr.ErrGCodeInvalidParam) {
		t.Errorf("SYNC=x should be rejected, got %v", err)
	}
	if v, err := cmd.GetInt("MISSING", 7); err != nil || v != 7 {
		t.Errorf("default: got %v, %v", v, err)
	}
}

func TestDispatcherMux(t *testing.T) {
	d := NewDispatcher()
	var got []string
	for _, name := range []string{"feeder", "spare"} {
		name := name
		err := d.RegisterMux("BUFFER_STEPPER", "STEPPER", name, func(cmd *Command) error {
			got = append(got, name+":"+cmd.Params["MOVE"])
			return nil
		}, "Command a buffer stepper")
		if err != nil {
			t.Fatalf("RegisterMux(%s): %v", name, err)
		}
	}

	if err := d.Run("BUFFER_STEPPER STEPPER=spare MOVE=3"); err != nil {
		t.Fatal(err)
	}
	if err := d.Run("buffer_stepper STEPPER=feeder MOVE=15"); err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "spare:3,feeder:15" {
		t.Errorf("unexpected dispatch order %v", got)
	}

	if err := d.Run("BUFFER_STEPPER MOVE=3"); !hosterr.Is(err, hosterr.ErrGCodeMissingParam) {
		t.Errorf("expected missing STEPPER error, got %v", err)
	}
	if err := d.Run("BUFFER_STEPPER STEPPER=nope"); !hosterr.Is(err, hosterr.ErrGCodeInvalidParam) {
		t.Errorf("expected invalid STEPPER error, got %v", err)
	}
	if err := d.Run("NOT_A_COMMAND"); !hosterr.Is(err, hosterr.ErrGCodeUnknownCmd) {
		t.Errorf("expected unknown command error, got %v", err)
	}
}

func TestDispatcherRegistrationConflicts(t *testing.T) {
	d := NewDispatcher()
	noop := func(*Command) error { return nil }

	if err := d.RegisterMux("BUFFER_STEPPER", "STEPPER", "feeder", noop, ""); err != nil {
		t.Fatal(err)
	}
	if err := d.RegisterMux("BUFFER_STEPPER", "STEPPER", "feeder", noop, ""); err == nil {
		t.Error("expected duplicate mux value to fail")
	}
	if err := d.RegisterMux("BUFFER_STEPPER", "NAME", "x", noop, ""); err == nil {
		t.Error("expected second mux key to fail")
	}
	if err := d.Register("HELP", noop, ""); err == nil {
		t.Error("expected duplicate plain command to fail")
	}
	if err := d.RegisterMux("HELP", "X", "1", noop, ""); err == nil {
		t.Error("expected mux over plain command to fail")
	}
}

func TestRespondAndHelp(t *testing.T) {
	d := NewDispatcher()
	var responses []string
	d.SetRespond(func(msg string) { responses = append(responses, msg) })
	d.RegisterMux("BUFFER_STEPPER", "STEPPER", "feeder", func(cmd *Command) error {
		cmd.RespondInfo("buffer pushed!")
		return nil
	}, "Command a buffer stepper")

	if err := d.Run("BUFFER_STEPPER STEPPER=feeder"); err != nil {
		t.Fatal(err)
	}
	if err := d.Run("HELP"); err != nil {
		t.Fatal(err)
	}
	if len(responses) != 2 || responses[0] != "buffer pushed!" {
		t.Fatalf("unexpected responses %q", responses)
	}
	if !strings.Contains(responses[1], "BUFFER_STEPPER") {
		t.Errorf("help should list BUFFER_STEPPER: %q", responses[1])
	}

	d.RespondInfo("direct")
	if responses[len(responses)-1] != "direct" {
		t.Errorf("RespondInfo did not reach sink")
	}
	if cmds := d.Commands(); len(cmds) != 2 || cmds[0] != "BUFFER_STEPPER" {
		t.Errorf("unexpected commands %v", cmds)
	}
}
