// Package sim provides simulated pulse and UART peripherals that run on the
// core clock. Nothing happens on its own: callers advance core time and
// call Poll, which finishes frames and drains FIFOs the way the hardware
// would have in that interval.
package sim

import (
	"errors"

	"pixelgopper/core"
	"pixelgopper/protocol"
)

var (
	ErrNoPeripheral = errors.New("no such peripheral")
	ErrInUse        = errors.New("peripheral already claimed")
	ErrTransmitBusy = errors.New("transmit while a frame is in flight")
)

// PulseStateMachines matches the RP2040: two PIO blocks of four
const PulseStateMachines = 8

// PulseFrame is one transmitted pulse train
type PulseFrame struct {
	Start uint32
	End   uint32
	Pin   core.GPIOPin
	Items []protocol.PulseItem
}

// PulseDriver simulates the pulse-train peripherals
type PulseDriver struct {
	tickNs   uint32
	channels [PulseStateMachines]*PulseChannel
}

// NewPulseDriver creates a driver whose items count tickNs nanosecond ticks
func NewPulseDriver(tickNs uint32) *PulseDriver {
	return &PulseDriver{tickNs: tickNs}
}

func (d *PulseDriver) TickNs() uint32 {
	return d.tickNs
}

// Claim implements core.PulseDriver
func (d *PulseDriver) Claim(peripheral uint8, pin core.GPIOPin, idleLevel uint8, done func()) (core.PulseChannel, error) {
	if int(peripheral) >= len(d.channels) {
		return nil, ErrNoPeripheral
	}
	if d.channels[peripheral] != nil {
		return nil, ErrInUse
	}
	ch := &PulseChannel{d: d, peripheral: peripheral, pin: pin, idle: idleLevel, done: done}
	d.channels[peripheral] = ch
	return ch, nil
}

// Channel returns the claimed channel on a peripheral, or nil
func (d *PulseDriver) Channel(peripheral uint8) *PulseChannel {
	if int(peripheral) >= len(d.channels) {
		return nil
	}
	return d.channels[peripheral]
}

// Poll completes every frame whose last item has gone out by now
func (d *PulseDriver) Poll(now uint32) {
	for _, ch := range d.channels {
		if ch != nil {
			ch.poll(now)
		}
	}
}

// PulseChannel is one simulated state machine
type PulseChannel struct {
	d          *PulseDriver
	peripheral uint8
	pin        core.GPIOPin
	idle       uint8
	done       func()

	busy   bool
	frames []PulseFrame
}

// Transmit queues a frame. It takes Ticks*tickNs of simulated time.
func (c *PulseChannel) Transmit(items []protocol.PulseItem) error {
	if c.busy {
		return ErrTransmitBusy
	}
	var ticks uint64
	for _, it := range items {
		ticks += uint64(it.Ticks())
	}
	now := core.GetTime()
	c.frames = append(c.frames, PulseFrame{
		Start: now,
		End:   now + uint32(ticks*uint64(c.d.tickNs)/1000),
		Pin:   c.pin,
		Items: append([]protocol.PulseItem(nil), items...),
	})
	c.busy = true
	return nil
}

func (c *PulseChannel) poll(now uint32) {
	if !c.busy {
		return
	}
	if core.TimeReached(now, c.frames[len(c.frames)-1].End) {
		c.busy = false
		c.done()
	}
}

func (c *PulseChannel) SetPin(pin core.GPIOPin) error {
	c.pin = pin
	return nil
}

// Release frees the state machine. A frame in flight is abandoned.
func (c *PulseChannel) Release() {
	c.busy = false
	if c.d.channels[c.peripheral] == c {
		c.d.channels[c.peripheral] = nil
	}
}

// IdleLevel returns the level the pin rests at between frames
func (c *PulseChannel) IdleLevel() uint8 {
	return c.idle
}

// Busy reports whether a frame is in flight
func (c *PulseChannel) Busy() bool {
	return c.busy
}

// TakeFrames returns the frames sent since the last call
func (c *PulseChannel) TakeFrames() []PulseFrame {
	frames := c.frames
	if c.busy && len(frames) > 0 {
		// keep the frame in flight for poll
		c.frames = frames[len(frames)-1:]
		return frames[:len(frames)-1]
	}
	c.frames = nil
	return frames
}
