package core

import "pixelgopper/protocol"

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// PulseChannel is a claimed pulse-train peripheral bound to one output pin
type PulseChannel interface {
	// Transmit starts draining items without waiting for completion. The
	// slice is owned by the peripheral until the done callback runs.
	Transmit(items []protocol.PulseItem) error

	// SetPin moves the output to another pin. Only legal while idle.
	SetPin(pin GPIOPin) error

	// Release stops the peripheral and frees it and its pin
	Release()
}

// PulseDriver is the abstract pulse-train interface that core code uses.
// Platform-specific implementations own the peripheral and its interrupt.
type PulseDriver interface {
	// Claim binds a peripheral to a pin at the given idle level. done is
	// called from interrupt context once a transmitted sequence has drained.
	Claim(peripheral uint8, pin GPIOPin, idleLevel uint8, done func()) (PulseChannel, error)

	// TickNs is the duration of one pulse tick
	TickNs() uint32
}

// Global singleton used by core code.
var pulseDriver PulseDriver

// SetPulseDriver is called by target-specific code to register its driver.
func SetPulseDriver(d PulseDriver) {
	pulseDriver = d
}

// MustPulse returns the configured driver or panics if missing.
func MustPulse() PulseDriver {
	if pulseDriver == nil {
		panic("pulse driver not configured")
	}
	return pulseDriver
}
