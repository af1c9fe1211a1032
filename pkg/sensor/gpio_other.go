//go:build !linux

package sensor

import "fmt"

// GPIO is only available on linux.
type GPIO struct {
	chip   string
	offset int
}

// NewGPIO creates a source that fails to start on this platform.
func NewGPIO(chip string, offset int, pullup bool, clock func() float64) *GPIO {
	return &GPIO{chip: chip, offset: offset}
}

func (g *GPIO) Name() string { return fmt.Sprintf("gpio:%s/%d", g.chip, g.offset) }

func (g *GPIO) Start(handler EdgeFunc) error {
	return fmt.Errorf("%s: gpio character devices require linux", g.Name())
}

func (g *GPIO) Close() error { return nil }
