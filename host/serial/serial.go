package serial

import (
	"io"
	"time"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate. FTDI FT232H class adapters reach 12 Mbaud.
	Baud int

	// DataBits is 5 to 8, StopBits 1 or 2
	DataBits uint8
	StopBits uint8

	// ReadTimeout bounds a Read; zero blocks
	ReadTimeout time.Duration
}

// DefaultConfig returns the line used by ws2811 style 2-bit encodings
func DefaultConfig(device string) *Config {
	return &Config{
		Device:   device,
		Baud:     3200000,
		DataBits: 6,
		StopBits: 1,
	}
}

// ControlConfig returns the line for the controller's USB CDC control port.
// CDC ignores the baud rate.
func ControlConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		DataBits:    8,
		StopBits:    1,
		ReadTimeout: 100 * time.Millisecond,
	}
}
