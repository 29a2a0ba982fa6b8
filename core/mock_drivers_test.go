package core

import (
	"errors"

	"pixelgopper/protocol"
)

var errMockClaim = errors.New("peripheral in use")

// mockPulseDriver records transmitted frames; tests complete them with finish
type mockPulseDriver struct {
	tickNs   uint32
	claimErr error
	claimed  map[uint8]*mockPulseChannel
}

func newMockPulseDriver() *mockPulseDriver {
	return &mockPulseDriver{tickNs: 25, claimed: map[uint8]*mockPulseChannel{}}
}

func (d *mockPulseDriver) TickNs() uint32 {
	return d.tickNs
}

func (d *mockPulseDriver) Claim(peripheral uint8, pin GPIOPin, idleLevel uint8, done func()) (PulseChannel, error) {
	if d.claimErr != nil {
		return nil, d.claimErr
	}
	if _, ok := d.claimed[peripheral]; ok {
		return nil, errMockClaim
	}
	ch := &mockPulseChannel{d: d, peripheral: peripheral, pin: pin, idle: idleLevel, done: done}
	d.claimed[peripheral] = ch
	return ch, nil
}

type mockPulseChannel struct {
	d          *mockPulseDriver
	peripheral uint8
	pin        GPIOPin
	idle       uint8
	done       func()

	frames      [][]protocol.PulseItem
	inFlight    bool
	transmitErr error
}

func (c *mockPulseChannel) Transmit(items []protocol.PulseItem) error {
	if c.transmitErr != nil {
		return c.transmitErr
	}
	c.frames = append(c.frames, append([]protocol.PulseItem(nil), items...))
	c.inFlight = true
	return nil
}

func (c *mockPulseChannel) SetPin(pin GPIOPin) error {
	c.pin = pin
	return nil
}

func (c *mockPulseChannel) Release() {
	delete(c.d.claimed, c.peripheral)
}

// finish plays the completion interrupt
func (c *mockPulseChannel) finish() {
	if c.inFlight {
		c.inFlight = false
		c.done()
	}
}

func (c *mockPulseChannel) lastFrame() []protocol.PulseItem {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

// mockSerialDriver hands out ports with a byte FIFO drained by the test
type mockSerialDriver struct {
	claimErr     error
	configureErr error
	fifoSize     int
	claimed      map[uint8]*mockSerialPort
}

func newMockSerialDriver() *mockSerialDriver {
	return &mockSerialDriver{fifoSize: 32, claimed: map[uint8]*mockSerialPort{}}
}

func (d *mockSerialDriver) Claim(port uint8, pin GPIOPin, handler func()) (SerialPort, error) {
	if d.claimErr != nil {
		return nil, d.claimErr
	}
	if _, ok := d.claimed[port]; ok {
		return nil, errMockClaim
	}
	p := &mockSerialPort{d: d, port: port, pin: pin, handler: handler, size: d.fifoSize}
	d.claimed[port] = p
	return p, nil
}

type mockSerialPort struct {
	d       *mockSerialDriver
	port    uint8
	pin     GPIOPin
	handler func()
	cfg     SerialLineConfig
	size    int

	fifo   []byte
	line   []byte
	irq    bool
	breaks int
}

func (p *mockSerialPort) Configure(cfg SerialLineConfig) error {
	if p.d.configureErr != nil {
		return p.d.configureErr
	}
	p.cfg = cfg
	return nil
}

func (p *mockSerialPort) SetPin(pin GPIOPin) error {
	p.pin = pin
	return nil
}

func (p *mockSerialPort) FifoSize() int { return p.size }

func (p *mockSerialPort) FifoFree() int { return p.size - len(p.fifo) }

func (p *mockSerialPort) Enqueue(b byte) {
	if len(p.fifo) >= p.size {
		panic("fifo overflow")
	}
	p.fifo = append(p.fifo, b)
}

func (p *mockSerialPort) EnableTxInterrupt() {
	p.irq = true
	p.fire()
}

func (p *mockSerialPort) DisableTxInterrupt() { p.irq = false }

func (p *mockSerialPort) SendBreak(breakUs, markUs uint32) { p.breaks++ }

func (p *mockSerialPort) Release() {
	delete(p.d.claimed, p.port)
}

// fire raises the TX interrupt when the FIFO is at or below the threshold
func (p *mockSerialPort) fire() {
	if p.irq && len(p.fifo) <= int(p.cfg.FifoThreshold) {
		p.handler()
	}
}

// shift moves up to n bytes from the FIFO onto the line
func (p *mockSerialPort) shift(n int) {
	if n > len(p.fifo) {
		n = len(p.fifo)
	}
	p.line = append(p.line, p.fifo[:n]...)
	p.fifo = p.fifo[n:]
	p.fire()
}

// drain shifts until the interrupt is off and the FIFO is empty
func (p *mockSerialPort) drain() {
	for i := 0; i < 100000 && (p.irq || len(p.fifo) > 0); i++ {
		p.shift(1)
	}
}

// slicePump is a FramePump over fixed values
type slicePump struct {
	values     []uint8
	multiplier uint32
	pos        int
}

func (s *slicePump) StartNewFrame() { s.pos = 0 }
func (s *slicePump) MoreDataToSend() bool { return s.pos < len(s.values) }
func (s *slicePump) FrameLength() int { return len(s.values) }
func (s *slicePump) IntensityMultiplier() uint32 {
	if s.multiplier == 0 {
		return 1
	}
	return s.multiplier
}

func (s *slicePump) NextIntensityToSend() uint8 {
	if s.pos >= len(s.values) {
		return 0
	}
	v := s.values[s.pos]
	s.pos++
	return v
}

// installMocks registers fresh drivers and resets the clock
func installMocks() (*mockPulseDriver, *mockSerialDriver) {
	pd, sd := newMockPulseDriver(), newMockSerialDriver()
	SetPulseDriver(pd)
	SetSerialDriver(sd)
	SetTime(0)
	ClearTimingRing()
	return pd, sd
}
