package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"go.bug.st/serial"
)

// ReadInto copies r into out as Input chunks tagged with name until r fails
// or ctx is cancelled. It is meant to run on its own goroutine.
func ReadInto(ctx context.Context, name string, r io.Reader, out chan<- Input) {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case out <- Input{Source: name, Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("console: %s read error: %v", name, err)
			}
			select {
			case out <- Input{Source: name, Closed: true}:
			case <-ctx.Done():
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// SerialPort is a console over a serial line.
type SerialPort struct {
	Name string
	port serial.Port
}

// OpenSerial opens name at baud, 8N1.
func OpenSerial(name string, baud int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	// Discard anything buffered before we were listening.
	if err := port.ResetInputBuffer(); err != nil {
		log.Printf("serial: reset input buffer: %v", err)
	}
	return &SerialPort{Name: name, port: port}, nil
}

func (s *SerialPort) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialPort) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *SerialPort) Close() error                { return s.port.Close() }
