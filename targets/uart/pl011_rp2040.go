//go:build rp2040

package uart

// PL011 backend for the byte-serial transport.
// The machine package owns the UART interrupt vectors, so the TX interrupt
// is a timer alarm per port: alarm 1 for UART0, alarm 2 for UART1. Alarm 0
// belongs to the runtime. While enabled the alarm rearms itself every
// fill period and runs the handler whenever TXRIS or TXFE is set.

import (
	"device/rp"
	"machine"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"pixelgopper/core"
)

const (
	uart0Base = 0x40034000
	uart1Base = 0x40038000

	regDR    = 0x000
	regFR    = 0x018
	regIBRD  = 0x024
	regFBRD  = 0x028
	regLCRH  = 0x02c
	regCR    = 0x030
	regIFLS  = 0x034
	regIMSC  = 0x038
	regRIS   = 0x03c
	regICR   = 0x044
	frBUSY   = 1 << 3
	frTXFE   = 1 << 7
	crUARTEN = 1 << 0
	crTXE    = 1 << 8
	risTXRIS = 1 << 5

	resetsBase     = 0x4000c000
	resetsDone     = 0x008
	atomicClear    = 0x3000
	resetUART0     = 22
	ioBank0Base    = 0x40014000
	gpioCtrlOutOvr = 8

	timerBase    = 0x40054000
	timerALARM0  = 0x10 // + 4*n
	timerARMED   = 0x20
	timerRAWL    = 0x28
	timerINTR    = 0x34
	timerINTE    = 0x38
	timerINTF    = 0x3c
	atomicSet    = 0x2000
	firstAlarmNo = 1
)

func reg(addr uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(addr))
}

func now() uint32 {
	return reg(timerBase + timerRAWL).Get()
}

// delayUs spins on the microsecond timer
func delayUs(us uint32) {
	start := now()
	for now()-start < us {
	}
}

// claimed ports by UART number, read by the alarm interrupts
var active [Ports]*Port

// Driver implements core.SerialDriver on UART0 and UART1
type Driver struct {
	clk   uint32
	ports [Ports]*Port
}

// NewDriver installs the fill alarm interrupts. The alarms stay disarmed
// until a port enables its TX interrupt.
func NewDriver() *Driver {
	irq0 := interrupt.New(rp.IRQ_TIMER_IRQ_1, func(interrupt.Interrupt) { fill(0) })
	irq1 := interrupt.New(rp.IRQ_TIMER_IRQ_2, func(interrupt.Interrupt) { fill(1) })
	reg(timerBase + timerINTE + atomicSet).Set(alarmBit(0) | alarmBit(1))
	irq0.Enable()
	irq1.Enable()
	return &Driver{clk: machine.CPUFrequency()}
}

func alarmBit(port uint8) uint32 {
	return 1 << (firstAlarmNo + port)
}

// Claim implements core.SerialDriver
func (d *Driver) Claim(port uint8, pin core.GPIOPin, handler func()) (core.SerialPort, error) {
	if port >= Ports {
		return nil, ErrNoPort
	}
	if n, ok := TxPinPort(uint8(pin)); !ok || n != port {
		return nil, ErrBadPin
	}
	if err := claimPort(port); err != nil {
		return nil, err
	}

	// take the UART out of reset
	bit := uint32(1) << (resetUART0 + port)
	reg(resetsBase + atomicClear).Set(bit)
	for !reg(resetsBase + resetsDone).HasBits(bit) {
	}

	base := uintptr(uart0Base)
	if port == 1 {
		base = uart1Base
	}
	p := &Port{
		d:       d,
		n:       port,
		base:    base,
		pin:     machine.Pin(pin),
		handler: handler,
		level:   txTriggerLevels[0],
		period:  minFillPeriodUs,
	}
	d.ports[port] = p
	active[port] = p
	return p, nil
}

// Port is one claimed PL011
type Port struct {
	d       *Driver
	n       uint8
	base    uintptr
	pin     machine.Pin
	handler func()
	irq     volatile.Register8
	level   int
	period  uint32
	invert  bool
}

func (p *Port) reg(offset uintptr) *volatile.Register32 {
	return reg(p.base + offset)
}

func (p *Port) waitIdle() {
	for p.reg(regFR).HasBits(frBUSY) {
	}
}

// Configure programs baud, frame and trigger level, then routes TX to the pin
func (p *Port) Configure(cfg core.SerialLineConfig) error {
	ibrd, fbrd, err := baudDivisor(p.d.clk, cfg.Baud)
	if err != nil {
		return err
	}
	lcr, err := lineControl(cfg.Frame)
	if err != nil {
		return err
	}
	sel, level := txLevel(cfg.FifoThreshold)

	p.waitIdle()
	p.reg(regCR).Set(0)
	p.reg(regIBRD).Set(ibrd)
	p.reg(regFBRD).Set(fbrd)
	// LCR_H write latches the divisors
	p.reg(regLCRH).Set(lcr)
	p.reg(regIFLS).Set(sel)
	p.reg(regIMSC).Set(0)
	p.reg(regICR).Set(0x7ff)
	p.reg(regCR).Set(crUARTEN | crTXE)

	p.level = level
	p.period = fillPeriodUs(cfg.Baud, cfg.Frame, level)
	p.invert = cfg.Invert
	p.route(p.pin)
	return nil
}

// route gives pin to the UART, inverting the output if asked
func (p *Port) route(pin machine.Pin) {
	pin.Configure(machine.PinConfig{Mode: machine.PinUART})
	var over uint32
	if p.invert {
		over = 1
	}
	ctrl := reg(ioBank0Base + 4 + 8*uintptr(pin))
	ctrl.ReplaceBits(over, 0x3, gpioCtrlOutOvr)
}

// SetPin moves TX to another pin of the same UART
func (p *Port) SetPin(pin core.GPIOPin) error {
	if n, ok := TxPinPort(uint8(pin)); !ok || n != p.n {
		return ErrBadPin
	}
	p.waitIdle()
	p.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	p.pin = machine.Pin(pin)
	p.route(p.pin)
	return nil
}

func (p *Port) FifoSize() int {
	return FifoDepth
}

// FifoFree is a lower bound: the PL011 reports empty and below-trigger,
// not the level itself
func (p *Port) FifoFree() int {
	if p.reg(regFR).HasBits(frTXFE) {
		return FifoDepth
	}
	if p.reg(regRIS).HasBits(risTXRIS) {
		return FifoDepth - p.level
	}
	return 0
}

func (p *Port) Enqueue(b byte) {
	p.reg(regDR).Set(uint32(b))
}

// EnableTxInterrupt forces the alarm interrupt so the first fill runs
// at once; it rearms itself from there
func (p *Port) EnableTxInterrupt() {
	p.irq.Set(1)
	reg(timerBase + timerINTF + atomicSet).Set(alarmBit(p.n))
}

func (p *Port) DisableTxInterrupt() {
	p.irq.Set(0)
	reg(timerBase + timerARMED).Set(alarmBit(p.n))
}

// SendBreak waits for the line to go idle, then drives break and mark
func (p *Port) SendBreak(breakUs, markUs uint32) {
	p.waitIdle()
	p.reg(regLCRH).SetBits(lcrBRK)
	delayUs(breakUs)
	p.reg(regLCRH).ClearBits(lcrBRK)
	delayUs(markUs)
}

// Release disables the UART and frees its pin
func (p *Port) Release() {
	p.DisableTxInterrupt()
	active[p.n] = nil
	p.reg(regCR).Set(0)
	p.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	p.d.ports[p.n] = nil
	releasePort(p.n)
}

// fill runs the alarm interrupt of one port. TXRIS only rises on a
// crossing of the trigger level, so an empty FIFO fires too.
func fill(n uint8) {
	bit := alarmBit(n)
	reg(timerBase + timerINTF + atomicClear).Set(bit)
	reg(timerBase + timerINTR).Set(bit)

	p := active[n]
	if p == nil || p.irq.Get() == 0 {
		return
	}
	if p.reg(regRIS).HasBits(risTXRIS) || p.reg(regFR).HasBits(frTXFE) {
		p.handler()
	}
	// the handler disables the interrupt when the frame is done
	if p.irq.Get() != 0 {
		reg(timerBase + timerALARM0 + 4*uintptr(firstAlarmNo+n)).Set(now() + p.period)
	}
}
