//go:build rp2040

package main

import (
	"machine"
)

// InitUSB initializes USB serial communication
// TinyGo automatically sets up USB CDC-ACM on RP2040
func InitUSB() {
	// machine.Serial is USB CDC on RP2040, not a UART, so both UARTs stay
	// free for output channels
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteLine writes data and a newline, retrying partial writes
func USBWriteLine(data []byte) error {
	for len(data) > 0 {
		n, err := machine.Serial.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return errUSBStalled
		}
		data = data[n:]
	}
	return machine.Serial.WriteByte('\n')
}
