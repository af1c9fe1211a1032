//go:build linux

package sensor

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// GPIO watches both edges of a character-device GPIO line.
type GPIO struct {
	chip   string
	offset int
	pullup bool
	clock  func() float64
	line   *gpiocdev.Line
}

// NewGPIO creates a source for line offset on chip, e.g. "gpiochip0".
func NewGPIO(chip string, offset int, pullup bool, clock func() float64) *GPIO {
	return &GPIO{chip: chip, offset: offset, pullup: pullup, clock: clock}
}

func (g *GPIO) Name() string { return fmt.Sprintf("gpio:%s/%d", g.chip, g.offset) }

func (g *GPIO) Start(handler EdgeFunc) error {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(g.clock(), evt.Type == gpiocdev.LineEventRisingEdge)
		}),
	}
	if g.pullup {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	line, err := gpiocdev.RequestLine(g.chip, g.offset, opts...)
	if err != nil {
		return errors.Wrapf(err, "request %s", g.Name())
	}
	g.line = line

	v, err := line.Value()
	if err != nil {
		return errors.Wrapf(err, "read %s", g.Name())
	}
	logger.WithField("source", g.Name()).Infof("initial level %d", v)
	handler(g.clock(), v == 1)
	return nil
}

func (g *GPIO) Close() error {
	if g.line == nil {
		return nil
	}
	return errors.Wrapf(g.line.Close(), "close %s", g.Name())
}
