package sim

import (
	"errors"

	"pixelgopper/core"
)

var ErrBadLineConfig = errors.New("unsupported line configuration")

// UARTs and FIFO depth match the RP2040 PL011
const (
	SerialPorts     = 2
	SerialFifoDepth = 32
)

// SerialFrame is the line traffic between two idle periods
type SerialFrame struct {
	Start uint32
	End   uint32
	Break bool
	Bytes []byte
}

// SerialDriver simulates the UARTs
type SerialDriver struct {
	depth int
	ports [SerialPorts]*SerialPort
}

// NewSerialDriver creates a driver whose ports have depth byte FIFOs
func NewSerialDriver(depth int) *SerialDriver {
	if depth <= 0 {
		depth = SerialFifoDepth
	}
	return &SerialDriver{depth: depth}
}

// Claim implements core.SerialDriver
func (d *SerialDriver) Claim(port uint8, pin core.GPIOPin, handler func()) (core.SerialPort, error) {
	if int(port) >= len(d.ports) {
		return nil, ErrNoPeripheral
	}
	if d.ports[port] != nil {
		return nil, ErrInUse
	}
	p := &SerialPort{d: d, port: port, pin: pin, handler: handler, fifo: newTxFifo(d.depth), last: core.GetTime()}
	d.ports[port] = p
	return p, nil
}

// Port returns the claimed port, or nil
func (d *SerialDriver) Port(port uint8) *SerialPort {
	if int(port) >= len(d.ports) {
		return nil
	}
	return d.ports[port]
}

// Poll shifts out the bytes the line had time for since the last poll
func (d *SerialDriver) Poll(now uint32) {
	for _, p := range d.ports {
		if p != nil {
			p.poll(now)
		}
	}
}

// SerialPort is one simulated UART
type SerialPort struct {
	d       *SerialDriver
	port    uint8
	pin     core.GPIOPin
	handler func()
	cfg     core.SerialLineConfig

	fifo     *txFifo
	irq      bool
	last     uint32
	creditNs uint64
	byteNs   uint64
	holdNs   uint64

	cur      *SerialFrame
	frames   []SerialFrame
	overruns int
}

// Configure implements core.SerialPort
func (p *SerialPort) Configure(cfg core.SerialLineConfig) error {
	if cfg.Baud == 0 || int(cfg.FifoThreshold) >= p.fifo.depth() {
		return ErrBadLineConfig
	}
	p.cfg = cfg
	p.byteNs = uint64(cfg.Frame.LineBits()) * 1000000000 / uint64(cfg.Baud)
	if p.byteNs == 0 {
		p.byteNs = 1
	}
	return nil
}

func (p *SerialPort) SetPin(pin core.GPIOPin) error {
	p.pin = pin
	return nil
}

func (p *SerialPort) FifoSize() int {
	return p.fifo.depth()
}

func (p *SerialPort) FifoFree() int {
	return p.fifo.free()
}

// Enqueue drops the byte and counts an overrun when the FIFO is full
func (p *SerialPort) Enqueue(b byte) {
	if !p.fifo.push(b) {
		p.overruns++
	}
}

func (p *SerialPort) EnableTxInterrupt() {
	p.irq = true
	p.fire()
}

func (p *SerialPort) DisableTxInterrupt() {
	p.irq = false
}

// SendBreak holds the line for the break and mark before the next byte
func (p *SerialPort) SendBreak(breakUs, markUs uint32) {
	p.closeFrame(core.GetTime())
	p.cur = &SerialFrame{Start: core.GetTime(), Break: true}
	p.holdNs += uint64(breakUs+markUs) * 1000
}

// Release abandons queued bytes and frees the UART
func (p *SerialPort) Release() {
	p.irq = false
	p.fifo.reset()
	if p.d.ports[p.port] == p {
		p.d.ports[p.port] = nil
	}
}

// fire runs the TX interrupt while it is enabled and the FIFO is at or
// below the trigger level
func (p *SerialPort) fire() {
	if p.irq && p.fifo.level() <= int(p.cfg.FifoThreshold) {
		p.handler()
	}
}

func (p *SerialPort) poll(now uint32) {
	elapsed := uint64(core.TimeElapsed(p.last, now)) * 1000
	p.last = now
	if p.holdNs > 0 {
		if elapsed <= p.holdNs {
			p.holdNs -= elapsed
			return
		}
		elapsed -= p.holdNs
		p.holdNs = 0
	}
	p.creditNs += elapsed
	for p.creditNs >= p.byteNs {
		b, ok := p.fifo.pop()
		if !ok {
			break
		}
		p.creditNs -= p.byteNs
		if p.cur == nil {
			p.cur = &SerialFrame{Start: now}
		}
		p.cur.Bytes = append(p.cur.Bytes, b)
		p.fire()
	}
	if p.fifo.level() == 0 {
		// an idle line does not bank time
		p.creditNs = 0
		if !p.irq {
			p.closeFrame(now)
		}
	}
}

func (p *SerialPort) closeFrame(now uint32) {
	if p.cur == nil || len(p.cur.Bytes) == 0 {
		return
	}
	p.cur.End = now
	p.frames = append(p.frames, *p.cur)
	p.cur = nil
}

// Config returns the line configuration
func (p *SerialPort) Config() core.SerialLineConfig {
	return p.cfg
}

// Overruns counts bytes dropped by a full FIFO
func (p *SerialPort) Overruns() int {
	return p.overruns
}

// TakeFrames returns the completed line frames since the last call
func (p *SerialPort) TakeFrames() []SerialFrame {
	frames := p.frames
	p.frames = nil
	return frames
}
