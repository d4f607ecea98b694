// Package hardware holds the drivers for the kiln's physical I/O: a
// thermocouple bridge on a serial line and the heat relay on a sysfs GPIO.
package hardware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const readCommand = "READ\n"

var (
	ErrReadTimeout = errors.New("thermocouple: read timeout")
	ErrProbe       = errors.New("thermocouple: probe fault")
)

// SerialThermocouple talks to a small MCU that answers "READ\n" with the
// thermocouple temperature as a decimal line, or "ERR <reason>" on a probe
// fault.
type SerialThermocouple struct {
	name string

	mu      sync.Mutex
	port    io.ReadWriteCloser
	pending []byte
}

// OpenSerialThermocouple opens the serial device. Reads give up after
// timeout without data.
func OpenSerialThermocouple(name string, baud int, timeout time.Duration) (*SerialThermocouple, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if timeout > 0 {
		if err := p.SetReadTimeout(timeout); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
		}
	}
	return newSerialThermocouple(name, p), nil
}

func newSerialThermocouple(name string, p io.ReadWriteCloser) *SerialThermocouple {
	return &SerialThermocouple{name: name, port: p}
}

// ReadTemperature requests and parses one reading.
func (s *SerialThermocouple) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = s.pending[:0]
	if _, err := io.WriteString(s.port, readCommand); err != nil {
		return 0, fmt.Errorf("write %s: %w", s.name, err)
	}
	line, err := s.readLine()
	if err != nil {
		return 0, err
	}
	if reason, ok := strings.CutPrefix(line, "ERR"); ok {
		return 0, fmt.Errorf("%w: %s", ErrProbe, strings.TrimSpace(reason))
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("parse reading %q: %w", line, err)
	}
	// MAX31855/MAX6675 firmwares print "nan" for an open thermocouple
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: reading %q", ErrProbe, line)
	}
	return v, nil
}

// readLine returns the next newline-terminated line. go.bug.st/serial
// reports a read timeout as a zero-byte read without error.
func (s *SerialThermocouple) readLine() (string, error) {
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(s.pending[:i]))
			s.pending = s.pending[i+1:]
			return line, nil
		}
		n, err := s.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", s.name, err)
		}
		if n == 0 {
			return "", ErrReadTimeout
		}
		s.pending = append(s.pending, buf[:n]...)
	}
}

func (s *SerialThermocouple) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
