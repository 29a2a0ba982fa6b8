package core

import "pixelgopper/protocol"

// DefaultFifoThreshold is the TX FIFO level at or below which the fill
// interrupt fires. The fill must complete before the remaining bytes drain:
// at 8 Mbaud with 10 line bits per byte, 16 bytes leave 20us.
const DefaultFifoThreshold = 16

// SerialLineConfig is the UART line setup for one channel
type SerialLineConfig struct {
	Baud          uint32
	Frame         protocol.DataFrame
	Invert        bool
	FifoThreshold uint8
}

// SerialPort is a claimed UART with its transmit interrupt bound to the
// handler given at claim time. The handler runs in interrupt context.
type SerialPort interface {
	Configure(cfg SerialLineConfig) error

	// SetPin moves TX to another pin. Only legal while idle.
	SetPin(pin GPIOPin) error

	// FifoSize is the depth of the transmit FIFO
	FifoSize() int

	// FifoFree is the number of bytes that can be enqueued without blocking
	FifoFree() int

	// Enqueue writes one byte to the FIFO. Callers check FifoFree first.
	Enqueue(b byte)

	// While enabled the handler keeps running whenever the FIFO is at or
	// below the threshold, including after it has emptied.
	EnableTxInterrupt()
	DisableTxInterrupt()

	// SendBreak holds the line in break for breakUs, then idle for markUs
	SendBreak(breakUs, markUs uint32)

	// Release disables the interrupt and frees the UART and its pin
	Release()
}

// SerialDriver is the abstract UART interface that core code uses.
type SerialDriver interface {
	// Claim takes ownership of a UART and binds its TX interrupt to handler.
	// Fails if the UART is already claimed or the pin cannot carry it.
	Claim(port uint8, pin GPIOPin, handler func()) (SerialPort, error)
}

// Global singleton used by core code.
var serialDriver SerialDriver

// SetSerialDriver is called by target-specific code to register its driver.
func SetSerialDriver(d SerialDriver) {
	serialDriver = d
}

// MustSerial returns the configured driver or panics if missing.
func MustSerial() SerialDriver {
	if serialDriver == nil {
		panic("serial driver not configured")
	}
	return serialDriver
}
