//go:build rp2040

package pio

// PIO pulse-train backend using tinygo-org/pio package
// Each FIFO word is one pulse item: two halves of a level bit and a 15-bit
// duration, MSB first. The state machine clock is the pulse tick.

import (
	"device/rp"
	"machine"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"pixelgopper/core"
	"pixelgopper/protocol"
)

// PulseClockHz is the state machine clock; one cycle is one 25ns tick
const PulseClockHz = 40000000

const tickNs = 1000000000 / PulseClockHz

// buildPulseProgram creates the pulse PIO program using AssemblerV0.
// A half item takes duration+3 cycles, which pioWord compensates.
func buildPulseProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Out(rp2pio.OutDestPins, 1).Encode(),  // 0: out pins, 1 (level)
		asm.Out(rp2pio.OutDestX, 15).Encode(),    // 1: out x, 15 (duration)
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(), // 2: jmp x--, 2
		// .wrap
	}
}

const pulsePIOOrigin = 0 // Load at offset 0 for correct jump addresses

// joined TX FIFO depth in words
const txFifoDepth = 8

// drainPollUs is the retry interval while waiting for the last item
const drainPollUs = 20

// PIO register block, for the interrupt enables and stall flags the pio
// package does not expose
const (
	pio0Base    = 0x50200000
	pio1Base    = 0x50300000
	pioFSTAT    = 0x004
	pioFDEBUG   = 0x008
	pioIRQ0INTE = 0x12c

	fstatTxEmpty  = 24 // + sm
	fdebugTxStall = 24 // + sm
	inteTxNotFull = 4  // + sm
)

func pioReg(pioNum uint8, offset uintptr) *volatile.Register32 {
	base := uintptr(pio0Base)
	if pioNum == 1 {
		base = pio1Base
	}
	return (*volatile.Register32)(unsafe.Pointer(base + offset))
}

// active channels by [pioNum][smNum], read by the FIFO interrupts
var active [2][4]*pulseChannel

// PulseDriver implements core.PulseDriver on the PIO state machines
type PulseDriver struct {
	loaded  [2]bool
	offsets [2]uint8
}

// NewPulseDriver loads nothing until a state machine is claimed; it only
// installs the FIFO interrupts
func NewPulseDriver() *PulseDriver {
	irq0 := interrupt.New(rp.IRQ_PIO0_IRQ_0, func(interrupt.Interrupt) { feed(0) })
	irq0.Enable()
	irq1 := interrupt.New(rp.IRQ_PIO1_IRQ_0, func(interrupt.Interrupt) { feed(1) })
	irq1.Enable()
	return &PulseDriver{}
}

func (d *PulseDriver) TickNs() uint32 {
	return tickNs
}

func pioBlock(pioNum uint8) *rp2pio.PIO {
	if pioNum == 0 {
		return rp2pio.PIO0
	}
	return rp2pio.PIO1
}

// Claim implements core.PulseDriver
func (d *PulseDriver) Claim(peripheral uint8, pin core.GPIOPin, idleLevel uint8, done func()) (core.PulseChannel, error) {
	pioNum, smNum, err := claimStateMachine(peripheral)
	if err != nil {
		return nil, err
	}
	block := pioBlock(pioNum)

	if !d.loaded[pioNum] {
		offset, err := block.AddProgram(buildPulseProgram(), pulsePIOOrigin)
		if err != nil {
			releaseStateMachine(pioNum, smNum)
			return nil, err
		}
		d.offsets[pioNum] = offset
		d.loaded[pioNum] = true
	}

	ch := &pulseChannel{
		pioNum: pioNum,
		smNum:  smNum,
		sm:     block.StateMachine(smNum),
		offset: d.offsets[pioNum],
		idle:   idleLevel,
		done:   done,
	}
	ch.sm.TryClaim()
	if err := ch.configure(machine.Pin(pin)); err != nil {
		releaseStateMachine(pioNum, smNum)
		return nil, err
	}
	ch.timer.Handler = ch.drained
	active[pioNum][smNum] = ch
	return ch, nil
}

type pulseChannel struct {
	pioNum uint8
	smNum  uint8
	sm     rp2pio.StateMachine
	offset uint8
	pin    machine.Pin
	idle   uint8
	done   func()

	words []uint32
	pos   int
	busy  volatile.Register8
	timer core.Timer
	drain uint32
}

// configure sets up the state machine on pin, resting at the idle level
func (ch *pulseChannel) configure(pin machine.Pin) error {
	whole, frac, err := rp2pio.ClkDivFromFrequency(PulseClockHz, machine.CPUFrequency())
	if err != nil {
		return err
	}
	ch.sm.SetEnabled(false)
	ch.pin = pin
	pin.Configure(machine.PinConfig{Mode: ch.sm.PIO().PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetOutPins(pin, 1)
	// MSB first with autopull, so each word is level0, duration0, level1, duration1
	cfg.SetOutShift(false, true, 32)
	cfg.SetFIFOJoin(rp2pio.FifoJoinTx)
	cfg.SetWrap(ch.offset+uint8(len(buildPulseProgram()))-1, ch.offset)
	cfg.SetClkDivIntFrac(whole, frac)

	// Initialize state machine FIRST
	ch.sm.Init(ch.offset, cfg)

	// THEN set pin direction and idle level (must be after Init!)
	ch.sm.SetPindirsConsecutive(pin, 1, true)
	ch.sm.SetPinsConsecutive(pin, 1, ch.idle != 0)

	ch.sm.SetEnabled(true)
	return nil
}

// Transmit converts the items and primes the FIFO; the rest is fed from
// the TX-not-full interrupt
func (ch *pulseChannel) Transmit(items []protocol.PulseItem) error {
	if ch.busy.Get() != 0 {
		return core.ErrBusy
	}
	words := ch.words[:0]
	for _, it := range items {
		words = append(words, pioWord(it))
	}
	ch.words = words
	ch.pos = 0
	ch.drain = drainTicks(items, txFifoDepth)*tickNs/1000 + 1
	ch.busy.Set(1)

	state := interrupt.Disable()
	ch.fill()
	if ch.pos < len(ch.words) {
		pioReg(ch.pioNum, pioIRQ0INTE).SetBits(1 << (inteTxNotFull + ch.smNum))
	}
	interrupt.Restore(state)
	return nil
}

// fill tops up the FIFO. Once the last word is queued it stops the FIFO
// interrupt and arms the drain timer.
func (ch *pulseChannel) fill() {
	for ch.pos < len(ch.words) && !ch.sm.IsTxFIFOFull() {
		ch.sm.TxPut(ch.words[ch.pos])
		ch.pos++
	}
	if ch.pos < len(ch.words) {
		return
	}
	pioReg(ch.pioNum, pioIRQ0INTE).ClearBits(1 << (inteTxNotFull + ch.smNum))
	// The FIFO holds the rest of the frame, so a stall from here on is the end
	pioReg(ch.pioNum, pioFDEBUG).Set(1 << (fdebugTxStall + ch.smNum))
	ch.timer.WakeTime = core.GetTime() + ch.drain
	core.ScheduleTimer(&ch.timer)
}

// feed runs the FIFO interrupt of one PIO block
func feed(pioNum uint8) {
	for _, ch := range active[pioNum] {
		if ch != nil && ch.busy.Get() != 0 && ch.pos < len(ch.words) {
			ch.fill()
		}
	}
}

func (ch *pulseChannel) stalled() bool {
	return pioReg(ch.pioNum, pioFSTAT).HasBits(1<<(fstatTxEmpty+ch.smNum)) &&
		pioReg(ch.pioNum, pioFDEBUG).HasBits(1<<(fdebugTxStall+ch.smNum))
}

// drained runs from the timer dispatch until the program stalls on an
// empty FIFO
func (ch *pulseChannel) drained(t *core.Timer) uint8 {
	if !ch.stalled() {
		t.WakeTime = core.GetTime() + drainPollUs
		return core.SF_RESCHEDULE
	}
	ch.busy.Set(0)
	ch.done()
	return core.SF_DONE
}

func (ch *pulseChannel) SetPin(pin core.GPIOPin) error {
	if ch.busy.Get() != 0 {
		return core.ErrBusy
	}
	ch.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	return ch.configure(machine.Pin(pin))
}

// Release stops the state machine and abandons any frame in flight
func (ch *pulseChannel) Release() {
	pioReg(ch.pioNum, pioIRQ0INTE).ClearBits(1 << (inteTxNotFull + ch.smNum))
	core.CancelTimer(&ch.timer)
	active[ch.pioNum][ch.smNum] = nil
	ch.busy.Set(0)

	ch.sm.SetEnabled(false)
	ch.sm.ClearFIFOs()
	ch.sm.Restart()
	ch.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	releaseStateMachine(ch.pioNum, ch.smNum)
}
