package bufferstepper

import (
	"strconv"

	hosterr "klipper-buffer-stepper/pkg/errors"
	"klipper-buffer-stepper/pkg/gcode"
)

// CommandName is the mux command handled by every buffer stepper.
const CommandName = "BUFFER_STEPPER"

const cmdBufferStepperHelp = "Command a buffer stepper"

// RegisterCommands adds `BUFFER_STEPPER STEPPER=<name>` to the dispatcher.
func (b *BufferStepper) RegisterCommands(d *gcode.Dispatcher) error {
	return d.RegisterMux(CommandName, "STEPPER", b.cfg.Name, b.CmdBufferStepper, cmdBufferStepperHelp)
}

// CmdBufferStepper handles ENABLE, SET_POSITION and MOVE, in that order.
// Every parameter is validated before any of them takes effect.
func (b *BufferStepper) CmdBufferStepper(cmd *gcode.Command) error {
	enable, hasEnable, err := cmd.OptionalInt("ENABLE")
	if err != nil {
		return err
	}
	if hasEnable && enable != 0 && enable != 1 {
		return hosterr.GCodeInvalidParameterError(cmd.Name, "ENABLE", strconv.Itoa(enable), "must be 0 or 1")
	}
	setpos, hasSetpos, err := cmd.OptionalFloat("SET_POSITION")
	if err != nil {
		return err
	}
	speed, err := cmd.GetFloat("SPEED", b.cfg.Velocity, gcode.Above(0))
	if err != nil {
		return err
	}
	accel, err := cmd.GetFloat("ACCEL", b.cfg.Accel, gcode.MinVal(0))
	if err != nil {
		return err
	}
	move, hasMove, err := cmd.OptionalFloat("MOVE", gcode.Above(0))
	if err != nil {
		return err
	}
	sync, err := cmd.GetInt("SYNC", 1)
	if err != nil {
		return err
	}
	if sync != 0 && sync != 1 {
		return hosterr.GCodeInvalidParameterError(cmd.Name, "SYNC", strconv.Itoa(sync), "must be 0 or 1")
	}

	if hasEnable {
		b.DoEnable(enable == 1)
	}
	if hasSetpos {
		b.DoSetPosition(setpos)
	}
	if hasMove {
		return b.DoMove(move, speed, accel)
	}
	return nil
}
