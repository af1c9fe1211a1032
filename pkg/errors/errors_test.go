package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestHostErrorFormatting(t *testing.T) {
	err := ConfigOptionError("buffer_stepper feeder", "endstop_pin")
	if !strings.Contains(err.Error(), "CONFIG_OPTION") {
		t.Errorf("expected code in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "endstop_pin") {
		t.Errorf("expected option in message, got %q", err.Error())
	}

	plain := RuntimeError("boom")
	if plain.Error() != "[RUNTIME] boom" {
		t.Errorf("unexpected message %q", plain.Error())
	}
}

func TestIsWalksWrappedErrors(t *testing.T) {
	inner := GCodeInvalidParameterError("BUFFER_STEPPER", "SPEED", "-1", "must be > 0")
	wrapped := fmt.Errorf("command failed: %w", inner)

	if !Is(wrapped, ErrGCodeInvalidParam) {
		t.Error("expected Is to find wrapped code")
	}
	if !IsGCode(wrapped) {
		t.Error("expected IsGCode to be true")
	}
	if IsConfig(wrapped) {
		t.Error("expected IsConfig to be false")
	}

	var hostErr *HostError
	if !stderrors.As(wrapped, &hostErr) {
		t.Fatal("errors.As failed")
	}
	if hostErr.Option != "SPEED" {
		t.Errorf("expected option SPEED, got %q", hostErr.Option)
	}
}

func TestRuntimeErrorMCUUnwraps(t *testing.T) {
	cause := stderrors.New("link down")
	err := RuntimeErrorMCU("flush", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected wrapped cause")
	}
	if !IsRuntime(err) {
		t.Error("expected runtime error")
	}
}

func TestRecoverPanic(t *testing.T) {
	if RecoverPanic(nil) != nil {
		t.Error("nil panic value should produce nil error")
	}

	err := func() (err *HostError) {
		defer func() { err = RecoverPanic(recover()) }()
		panic("queue corrupted")
	}()
	if err == nil || err.Code != ErrRuntime {
		t.Fatalf("expected runtime error, got %v", err)
	}
	if !strings.Contains(err.Message, "queue corrupted") {
		t.Errorf("unexpected message %q", err.Message)
	}
}
