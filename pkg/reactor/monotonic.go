package reactor

import "time"

var processStart = time.Now()

func fallbackMonotonic() float64 {
	return time.Since(processStart).Seconds()
}
