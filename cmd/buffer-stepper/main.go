// buffer-stepper drives filament buffer motors from a buffer sensor.
//
// Usage:
//
//	buffer-stepper run --config ~/printer.cfg [--listen :7130]
//	buffer-stepper check-config --config ~/printer.cfg
//	buffer-stepper profile --distance 15 --velocity 5 --accel 0
//
// A .env file in the working directory is loaded first; see pkg/log for
// the BUFFER_STEPPER_LOG_* variables it may set.
package main

import (
	"github.com/joho/godotenv"

	"klipper-buffer-stepper/pkg/log"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.ConfigureFromEnv(log.Default())
		log.GetLogger("main").Debug("loaded environment from .env")
	}
	Execute()
}
