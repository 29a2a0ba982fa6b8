package core

import (
	"sync/atomic"

	"pixelgopper/protocol"
)

// SerialTransportConfig selects the UART and protocol of a serial channel
type SerialTransportConfig struct {
	Channel uint8
	Port    uint8
	Pin     GPIOPin

	Timing         protocol.SerialTiming
	IntensityWidth uint8

	// InvertOutput flips the line polarity on top of the chipset's own
	// inversion, for channels driven through an inverting level shifter.
	InvertOutput bool

	// FifoThreshold is the FIFO level at which the fill interrupt fires.
	// The bytes still queued at that level must outlast the interrupt
	// latency plus one fill, i.e.
	// threshold * line bits per byte / baud > worst-case latency.
	// Zero uses DefaultFifoThreshold.
	FifoThreshold uint8

	MinFrameUs uint32

	// Break and mark-after-break sent before each frame. Zero disables.
	BreakUs uint32
	MarkUs  uint32

	Pump FramePump
}

// SerialTransport streams a frame through a UART FIFO from its transmit
// interrupt. Self-clocked pixel protocols are bit-banged by translating
// each group of intensity bits into a UART byte whose start bit, data bits
// and stop bit together draw the pixel waveform.
type SerialTransport struct {
	cfg   SerialTransportConfig
	table *protocol.SerialTable
	port  SerialPort
	pacer FramePacer

	// Read by the fill interrupt, written only while idle
	width uint8
	slots int
	bits  uint8
	mask  uint32

	state  frameState
	paused uint32
	stats  frameStats
}

// NewSerialTransport creates an unconfigured transport
func NewSerialTransport() *SerialTransport {
	return &SerialTransport{}
}

// Begin claims the UART, binds HandleInterrupt to its transmit interrupt and
// configures baud, data frame, polarity and FIFO threshold.
func (t *SerialTransport) Begin(cfg SerialTransportConfig) error {
	if t.busy() {
		return ErrBusy
	}
	if cfg.Pump == nil {
		return ErrNotConfigured
	}
	if cfg.IntensityWidth == 0 {
		cfg.IntensityWidth = protocol.IntensityWidth8
	}
	if cfg.FifoThreshold == 0 {
		cfg.FifoThreshold = DefaultFifoThreshold
	}
	if serialDriver == nil {
		return &HardwareError{Op: "uart claim"}
	}

	table, err := protocol.NewSerialTable(cfg.Timing)
	if err != nil {
		return err
	}
	if !table.Translated() && cfg.IntensityWidth != protocol.IntensityWidth8 {
		return ErrBadIntensityWidth
	}

	t.Release()
	port, err := serialDriver.Claim(cfg.Port, cfg.Pin, t.HandleInterrupt)
	if err != nil {
		return &HardwareError{Op: "uart claim", Err: err}
	}
	line := SerialLineConfig{
		Baud:          table.Baud(),
		Frame:         table.Frame(),
		Invert:        table.Invert() != cfg.InvertOutput,
		FifoThreshold: cfg.FifoThreshold,
	}
	if err := port.Configure(line); err != nil {
		port.Release()
		return &HardwareError{Op: "uart configure", Err: err}
	}

	t.cfg = cfg
	t.table = table
	t.port = port
	t.pacer = FramePacer{minDuration: cfg.MinFrameUs}
	// the FIFO reads empty while the last byte is still in the shift register
	t.pacer.SetMinGap(table.ResetUs() + table.ByteUs())
	if err := t.setWidth(cfg.IntensityWidth); err != nil {
		t.Release()
		return err
	}
	return nil
}

func (t *SerialTransport) setWidth(width uint8) error {
	if !validWidth(width) {
		return ErrBadIntensityWidth
	}
	t.width = width
	t.slots = t.table.SlotsPerIntensity(width)
	t.bits = t.table.BitsPerSlot()
	t.mask = uint32(1)<<t.bits - 1
	t.cfg.IntensityWidth = width
	return nil
}

// Render resets the pump, sends the optional break and arms the fill
// interrupt. The interrupt then streams the frame.
func (t *SerialTransport) Render() bool {
	if t.port == nil {
		return false
	}
	if state := t.state.Load(); state != StateIdle || t.Paused() {
		t.stats.refuse()
		RecordTiming(EvtFrameRefused, t.cfg.Channel, GetTime(), uint32(state), 0)
		return false
	}
	now := GetTime()
	if !t.pacer.CanStart(now) {
		t.stats.drop()
		RecordTiming(EvtFrameDropped, t.cfg.Channel, now, t.pacer.Elapsed(now), 0)
		return false
	}

	t.cfg.Pump.StartNewFrame()
	t.pacer.RecordStart(now)
	t.stats.started(now)
	if t.cfg.BreakUs != 0 {
		t.port.SendBreak(t.cfg.BreakUs, t.cfg.MarkUs)
	}

	t.state.Store(StateArmed)
	RecordTiming(EvtFrameStart, t.cfg.Channel, now, uint32(t.cfg.Pump.FrameLength()), t.stats.snapshot().FramesSent)
	t.port.EnableTxInterrupt()
	return true
}

// HandleInterrupt refills the FIFO with as many whole intensity values as
// fit, and ends the frame once the pump is exhausted and the FIFO has
// drained. Runs in interrupt context with no allocation and no locks,
// bounded by the FIFO depth.
func (t *SerialTransport) HandleInterrupt() {
	switch t.state.Load() {
	case StateArmed:
		t.state.CompareAndSwap(StateArmed, StateStreaming)
	case StateStreaming:
	default:
		t.port.DisableTxInterrupt()
		return
	}

	pump := t.cfg.Pump
	values := t.port.FifoFree() / t.slots
	if t.table.Translated() {
		mult := pump.IntensityMultiplier()
		step := int(t.bits)
		for ; values > 0 && pump.MoreDataToSend(); values-- {
			v := uint32(pump.NextIntensityToSend()) * mult
			for shift := int(t.width) - step; shift >= 0; shift -= step {
				t.port.Enqueue(t.table.Translate(uint8(v >> uint(shift) & t.mask)))
			}
		}
	} else {
		for ; values > 0 && pump.MoreDataToSend(); values-- {
			t.port.Enqueue(pump.NextIntensityToSend())
		}
	}

	// The frame is over only once the line has taken every queued byte
	if pump.MoreDataToSend() || t.port.FifoFree() < t.port.FifoSize() {
		return
	}
	t.port.DisableTxInterrupt()
	now := GetTime()
	t.pacer.RecordEnd(now)
	d := t.stats.done(now)
	t.state.Store(StateIdle)
	RecordTiming(EvtFrameDone, t.cfg.Channel, now, d, 0)
}

// Pause stops the fill interrupt without losing the frame cursor. Safe in
// any state and idempotent.
func (t *SerialTransport) Pause() {
	if !atomic.CompareAndSwapUint32(&t.paused, 0, 1) {
		return
	}
	if t.port != nil {
		t.port.DisableTxInterrupt()
	}
	if !t.state.CompareAndSwap(StateStreaming, StatePaused) {
		t.state.CompareAndSwap(StateArmed, StatePaused)
	}
	RecordTiming(EvtPause, t.cfg.Channel, GetTime(), uint32(t.state.Load()), 0)
}

// Resume continues a paused frame where it stopped. Idempotent.
func (t *SerialTransport) Resume() {
	if !atomic.CompareAndSwapUint32(&t.paused, 1, 0) {
		return
	}
	if t.state.CompareAndSwap(StatePaused, StateStreaming) && t.port != nil {
		t.port.EnableTxInterrupt()
	}
	RecordTiming(EvtResume, t.cfg.Channel, GetTime(), uint32(t.state.Load()), 0)
}

// Paused reports whether output is paused
func (t *SerialTransport) Paused() bool {
	return atomic.LoadUint32(&t.paused) != 0
}

func (t *SerialTransport) State() FrameState {
	return t.state.Load()
}

// busy reports whether a frame cursor is live, including a paused one
func (t *SerialTransport) busy() bool {
	return t.state.Load() != StateIdle
}

// SetIntensityDataWidth changes the value width. slotsPerValue must match
// the UART bytes the table produces for that width.
func (t *SerialTransport) SetIntensityDataWidth(width uint8, slotsPerValue int) error {
	if t.table == nil {
		return ErrNotConfigured
	}
	if t.busy() {
		return ErrBusy
	}
	if !validWidth(width) || t.table.SlotsPerIntensity(width) != slotsPerValue {
		return ErrBadIntensityWidth
	}
	if !t.table.Translated() && width != protocol.IntensityWidth8 {
		return ErrBadIntensityWidth
	}
	return t.setWidth(width)
}

func (t *SerialTransport) SetMinFrameDuration(us uint32) error {
	if t.busy() {
		return ErrBusy
	}
	t.pacer.SetMinDuration(us)
	t.cfg.MinFrameUs = us
	return nil
}

func (t *SerialTransport) MinFrameDuration() uint32 {
	return t.pacer.MinDuration()
}

func (t *SerialTransport) SetPin(pin GPIOPin) error {
	if t.port == nil {
		return ErrNotConfigured
	}
	if t.busy() {
		return ErrBusy
	}
	if err := t.port.SetPin(pin); err != nil {
		return &HardwareError{Op: "uart pin", Err: err}
	}
	t.cfg.Pin = pin
	return nil
}

// Table returns the live serial table
func (t *SerialTransport) Table() *protocol.SerialTable {
	return t.table
}

// Config returns the configuration in effect
func (t *SerialTransport) Config() SerialTransportConfig {
	return t.cfg
}

func (t *SerialTransport) Stats() TransportStats {
	return t.stats.snapshot()
}

func (t *SerialTransport) Release() {
	if t.port != nil {
		t.port.DisableTxInterrupt()
		t.port.Release()
		t.port = nil
	}
	t.state.Store(StateIdle)
	atomic.StoreUint32(&t.paused, 0)
}
