package sensor

import (
	"bufio"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// Serial reads one sensor level per line ("0"/"1") from a serial device,
// as sent by a small sensor board.
type Serial struct {
	name  string
	port  io.ReadCloser
	clock func() float64

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// OpenSerial opens device at baud.
func OpenSerial(device string, baud int, clock func() float64) (*Serial, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial sensor %s", device)
	}
	return NewSerial(device, port, clock), nil
}

// NewSerial wraps an already open port.
func NewSerial(name string, port io.ReadCloser, clock func() float64) *Serial {
	return &Serial{name: name, port: port, clock: clock}
}

func (s *Serial) Name() string { return "serial:" + s.name }

func (s *Serial) Start(handler EdgeFunc) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scanner := bufio.NewScanner(s.port)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			on, err := ParseLevel(line)
			if err != nil {
				logger.WithField("source", s.Name()).WithError(err).Warn("ignoring line")
				continue
			}
			handler(s.clock(), on)
		}
		if err := scanner.Err(); err != nil {
			logger.WithField("source", s.Name()).WithError(err).Debug("reader stopped")
		}
	}()
	return nil
}

// Close closes the port and waits for the reader to stop.
func (s *Serial) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Wrapf(s.port.Close(), "close %s", s.Name())
		s.wg.Wait()
	})
	return s.closeErr
}
