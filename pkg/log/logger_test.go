// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(prefix string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(prefix)
	logger.SetWriter(&buf)
	logger.SetColorize(false)
	logger.SetLevel(DEBUG)
	return logger, &buf
}

func TestLoggerBasic(t *testing.T) {
	logger, buf := newTestLogger("test")

	logger.Info("hello %s", "world")

	output := buf.String()
	if !strings.Contains(output, "[INFO ]") {
		t.Errorf("expected INFO level, got: %s", output)
	}
	if !strings.Contains(output, "test:") {
		t.Errorf("expected prefix 'test:', got: %s", output)
	}
	if !strings.Contains(output, "hello world") {
		t.Errorf("expected message 'hello world', got: %s", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := newTestLogger("test")
	logger.SetLevel(WARN)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	output := buf.String()
	if strings.Contains(output, "debug") || strings.Contains(output, "info") {
		t.Errorf("messages below WARN should be filtered, got: %s", output)
	}
	if !strings.Contains(output, "warn") || !strings.Contains(output, "error") {
		t.Errorf("expected warn and error messages, got: %s", output)
	}
}

func TestLoggerFieldsSorted(t *testing.T) {
	logger, buf := newTestLogger("feeder")

	logger.WithFields(Fields{"start": 1.5, "accel_t": 0.0}).WithField("id", "abc").Info("move queued")

	output := buf.String()
	if !strings.Contains(output, "{accel_t=0, id=abc, start=1.5}") {
		t.Errorf("expected sorted fields, got: %s", output)
	}
}

func TestLoggerJSON(t *testing.T) {
	logger, buf := newTestLogger("feeder")
	logger.SetFormat(FormatJSON)

	logger.WithField("position", 15.0).Infof("pushed %d", 1)

	var line jsonLine
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if line.Level != "INFO" || line.Logger != "feeder" || line.Message != "pushed 1" {
		t.Errorf("unexpected entry: %+v", line)
	}
	if line.Fields["position"] != 15.0 {
		t.Errorf("expected position field, got %v", line.Fields)
	}
}

func TestWithPrefixSharesOutput(t *testing.T) {
	parent, buf := newTestLogger("host")
	child := parent.WithPrefix("buttons")

	parent.SetLevel(ERROR)
	child.Warn("dropped")
	child.Error("kept")

	output := buf.String()
	if strings.Contains(output, "dropped") {
		t.Errorf("child should follow parent level, got: %s", output)
	}
	if !strings.Contains(output, "buttons: kept") {
		t.Errorf("expected child prefix, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"WARNING": WARN,
		"error":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Setenv("BUFFER_STEPPER_LOG_LEVEL", "error")
	t.Setenv("BUFFER_STEPPER_LOG_FORMAT", "json")

	logger, _ := newTestLogger("env")
	ConfigureFromEnv(logger)

	if logger.GetLevel() != ERROR {
		t.Errorf("expected ERROR level, got %v", logger.GetLevel())
	}
	if logger.out.outFormat != FormatJSON {
		t.Error("expected JSON format")
	}
}
