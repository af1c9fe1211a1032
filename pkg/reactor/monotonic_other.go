//go:build !linux

package reactor

func monotonic() float64 {
	return fallbackMonotonic()
}
