package core

import (
	"math"

	"pixelgopper/protocol"
)

// MaxInterframeGapUs is the longest configurable gap; the gap is held in
// nanoseconds
const MaxInterframeGapUs = math.MaxUint32 / 1000

// PulseTransportConfig selects the peripheral and protocol of a pulse channel
type PulseTransportConfig struct {
	Channel    uint8
	Peripheral uint8
	Pin        GPIOPin

	Timing         protocol.PulseTiming
	IntensityWidth uint8

	MinFrameUs uint32
	// InterframeGapUs lengthens the idle time after each frame beyond the
	// chipset's reset time. Zero uses the reset time.
	InterframeGapUs uint32

	Pump FramePump
}

// PulseTransport encodes each intensity bit as a pulse item and hands the
// whole frame to a pulse-train peripheral, which drains it unattended.
type PulseTransport struct {
	cfg   PulseTransportConfig
	table *protocol.PulseTable
	hw    PulseChannel
	pacer FramePacer
	items []protocol.PulseItem

	state frameState
	stats frameStats
}

// NewPulseTransport creates an unconfigured transport
func NewPulseTransport() *PulseTransport {
	return &PulseTransport{}
}

// Begin builds the timing table for the driver's tick, claims the
// peripheral and pin, and preallocates the item buffer for the pump's frame.
func (t *PulseTransport) Begin(cfg PulseTransportConfig) error {
	if t.state.Load() != StateIdle {
		return ErrBusy
	}
	if cfg.Pump == nil {
		return ErrNotConfigured
	}
	if cfg.IntensityWidth == 0 {
		cfg.IntensityWidth = protocol.IntensityWidth8
	}
	if !validWidth(cfg.IntensityWidth) {
		return ErrBadIntensityWidth
	}
	if pulseDriver == nil {
		return &HardwareError{Op: "pulse claim"}
	}

	table, err := protocol.NewPulseTable(cfg.Timing, pulseDriver.TickNs())
	if err != nil {
		return err
	}

	t.Release()
	hw, err := pulseDriver.Claim(cfg.Peripheral, cfg.Pin, table.IdleLevel(), t.frameDone)
	if err != nil {
		return &HardwareError{Op: "pulse claim", Err: err}
	}

	t.cfg = cfg
	t.table = table
	t.hw = hw
	t.pacer = FramePacer{minDuration: cfg.MinFrameUs}
	if err := t.applyGap(); err != nil {
		t.Release()
		return err
	}
	t.items = make([]protocol.PulseItem, 0, table.FrameItems(cfg.Pump.FrameLength(), cfg.IntensityWidth))
	return nil
}

// applyGap sizes the interframe gap to the larger of the chipset reset
// time and the configured gap
func (t *PulseTransport) applyGap() error {
	gapNs := uint64(t.cfg.Timing.ResetNs)
	if ns := uint64(t.cfg.InterframeGapUs) * 1000; ns > gapNs {
		gapNs = ns
	}
	if gapNs > math.MaxUint32 {
		return protocol.ErrTickOverflow
	}
	return t.table.SetInterframeGap(uint32(gapNs))
}

func (t *PulseTransport) Render() bool {
	if t.hw == nil {
		return false
	}
	if state := t.state.Load(); state != StateIdle {
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

	items := t.encodeFrame()

	t.state.Store(StateArmed)
	t.stats.started(now)
	if err := t.hw.Transmit(items); err != nil {
		t.state.Store(StateIdle)
		return false
	}
	t.pacer.RecordStart(now)
	// The peripheral may already have finished and returned us to idle
	t.state.CompareAndSwap(StateArmed, StateStreaming)
	RecordTiming(EvtFrameStart, t.cfg.Channel, now, uint32(len(items)), t.stats.snapshot().FramesSent)
	return true
}

// encodeFrame expands the pump's values into the preallocated item buffer:
// start marker, each value MSB first, stop marker, then the gap items.
func (t *PulseTransport) encodeFrame() []protocol.PulseItem {
	pump := t.cfg.Pump
	pump.StartNewFrame()

	items := t.items[:0]
	if start := t.table.Lookup(protocol.SymbolStartBit); !start.IsZero() {
		items = append(items, start)
	}

	zero := t.table.Lookup(protocol.SymbolZeroBit)
	one := t.table.Lookup(protocol.SymbolOneBit)
	mult := pump.IntensityMultiplier()
	top := uint32(1) << (t.cfg.IntensityWidth - 1)
	for pump.MoreDataToSend() {
		v := uint32(pump.NextIntensityToSend()) * mult
		for mask := top; mask != 0; mask >>= 1 {
			if v&mask != 0 {
				items = append(items, one)
			} else {
				items = append(items, zero)
			}
		}
	}

	if stop := t.table.Lookup(protocol.SymbolStopBit); !stop.IsZero() {
		items = append(items, stop)
	}
	gap := t.table.Lookup(protocol.SymbolInterframeGap)
	for i := 0; i < t.table.GapRepeat(); i++ {
		items = append(items, gap)
	}
	t.items = items
	return items
}

// frameDone runs in interrupt context when the peripheral has drained
func (t *PulseTransport) frameDone() {
	now := GetTime()
	d := t.stats.done(now)
	t.state.Store(StateIdle)
	RecordTiming(EvtFrameDone, t.cfg.Channel, now, d, 0)
}

func (t *PulseTransport) State() FrameState {
	return t.state.Load()
}

func (t *PulseTransport) busy() bool {
	return t.state.Load() != StateIdle
}

// SetSymbol replaces one symbol of the timing table
func (t *PulseTransport) SetSymbol(s protocol.Symbol, item protocol.PulseItem) error {
	if t.table == nil {
		return ErrNotConfigured
	}
	if t.busy() {
		return ErrBusy
	}
	t.table.Set(s, item)
	return nil
}

// SetMinFrameDuration updates the pacer and regenerates the interframe gap
func (t *PulseTransport) SetMinFrameDuration(us uint32) error {
	if t.table == nil {
		return ErrNotConfigured
	}
	if t.busy() {
		return ErrBusy
	}
	t.pacer.SetMinDuration(us)
	t.cfg.MinFrameUs = us
	return t.applyGap()
}

func (t *PulseTransport) MinFrameDuration() uint32 {
	return t.pacer.MinDuration()
}

// SetInterframeGap changes the configured gap and regenerates the gap item
func (t *PulseTransport) SetInterframeGap(us uint32) error {
	if t.table == nil {
		return ErrNotConfigured
	}
	if t.busy() {
		return ErrBusy
	}
	old := t.cfg.InterframeGapUs
	t.cfg.InterframeGapUs = us
	if err := t.applyGap(); err != nil {
		t.cfg.InterframeGapUs = old
		t.applyGap()
		return err
	}
	return nil
}

func (t *PulseTransport) SetPin(pin GPIOPin) error {
	if t.hw == nil {
		return ErrNotConfigured
	}
	if t.busy() {
		return ErrBusy
	}
	if err := t.hw.SetPin(pin); err != nil {
		return &HardwareError{Op: "pulse pin", Err: err}
	}
	t.cfg.Pin = pin
	return nil
}

// SetFrameCapacity reallocates the item buffer for frames of up to n values
func (t *PulseTransport) SetFrameCapacity(n int) error {
	if t.table == nil {
		return ErrNotConfigured
	}
	if t.busy() {
		return ErrBusy
	}
	t.items = make([]protocol.PulseItem, 0, t.table.FrameItems(n, t.cfg.IntensityWidth))
	return nil
}

// Table returns the live timing table
func (t *PulseTransport) Table() *protocol.PulseTable {
	return t.table
}

// Config returns the configuration in effect
func (t *PulseTransport) Config() PulseTransportConfig {
	return t.cfg
}

// InterframeGapUs returns the gap actually emitted after each frame
func (t *PulseTransport) InterframeGapUs() uint32 {
	if t.table == nil {
		return 0
	}
	gap := t.table.Lookup(protocol.SymbolInterframeGap)
	return uint32(uint64(gap.Ticks()) * uint64(t.table.GapRepeat()) * uint64(t.table.TickNs()) / 1000)
}

func (t *PulseTransport) Stats() TransportStats {
	return t.stats.snapshot()
}

func (t *PulseTransport) Release() {
	if t.hw != nil {
		t.hw.Release()
		t.hw = nil
	}
	t.state.Store(StateIdle)
}
