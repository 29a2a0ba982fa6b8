package protocol

import "errors"

// MaxPulseTicks is the largest duration one half of a pulse item can hold.
// Matches the 15-bit duration fields of the pulse peripherals.
const MaxPulseTicks = 0x7FFF

var (
	ErrZeroTickLength = errors.New("tick length must be non-zero")
	ErrSymbolUnset    = errors.New("bit symbol has no duration")
	ErrTickOverflow   = errors.New("symbol duration exceeds pulse field")
)

// PulseItem is one (duration, level) pair followed by a second pair.
// Durations are in peripheral ticks.
type PulseItem struct {
	Duration0 uint16
	Level0    uint8
	Duration1 uint16
	Level1    uint8
}

// Ticks returns the total length of the item
func (p PulseItem) Ticks() uint32 {
	return uint32(p.Duration0) + uint32(p.Duration1)
}

// IsZero reports whether the item emits nothing
func (p PulseItem) IsZero() bool {
	return p.Duration0 == 0 && p.Duration1 == 0
}

// Word packs the item into the 32-bit layout consumed by the PIO program:
//
//	bit 31:     level0
//	bits 16-30: duration0
//	bit 15:     level1
//	bits 0-14:  duration1
func (p PulseItem) Word() uint32 {
	return uint32(p.Level0&1)<<31 |
		uint32(p.Duration0&MaxPulseTicks)<<16 |
		uint32(p.Level1&1)<<15 |
		uint32(p.Duration1&MaxPulseTicks)
}

// ItemFromWord is the inverse of Word
func ItemFromWord(w uint32) PulseItem {
	return PulseItem{
		Level0:    uint8(w >> 31),
		Duration0: uint16(w>>16) & MaxPulseTicks,
		Level1:    uint8(w>>15) & 1,
		Duration1: uint16(w) & MaxPulseTicks,
	}
}

// PulseTiming holds the published nanosecond timings of a chipset plus the
// per-symbol tick adjustments measured for the pulse peripheral.
type PulseTiming struct {
	Bit0HighNs uint32
	Bit0LowNs  uint32
	Bit1HighNs uint32
	Bit1LowNs  uint32
	ResetNs    uint32 // minimum latch/reset time after the last bit

	// Added to the truncated ns/tick quotient of each symbol half.
	Bit0HighBias int8
	Bit0LowBias  int8
	Bit1HighBias int8
	Bit1LowBias  int8
	ResetBias    int8

	// Inverted chipsets idle high and encode bits as low pulses
	Inverted bool

	// StartTicks emits a marker at idle level split over both halves before the
	// first bit. Zero disables the marker.
	StartTicks uint16

	DataRateHz uint32
}

// IdleLevel returns the line level between frames
func (t PulseTiming) IdleLevel() uint8 {
	if t.Inverted {
		return 1
	}
	return 0
}

// NsToTicks converts a duration to peripheral ticks, truncating and then
// applying the chipset's bias for this symbol.
func NsToTicks(ns, tickNs uint32, bias int8) (uint16, error) {
	if tickNs == 0 {
		return 0, ErrZeroTickLength
	}
	ticks := int64(ns/tickNs) + int64(bias)
	if ticks < 0 {
		ticks = 0
	}
	if ticks > MaxPulseTicks {
		return 0, ErrTickOverflow
	}
	return uint16(ticks), nil
}

// PulseTable maps symbols to pulse items for one channel
type PulseTable struct {
	items     [NumSymbols]PulseItem
	gapRepeat uint16
	tickNs    uint32
	timing    PulseTiming
}

// NewPulseTable builds the symbol table for a chipset at the given tick length
func NewPulseTable(timing PulseTiming, tickNs uint32) (*PulseTable, error) {
	if tickNs == 0 {
		return nil, ErrZeroTickLength
	}
	if timing.Bit0HighNs == 0 || timing.Bit1HighNs == 0 {
		return nil, ErrSymbolUnset
	}

	t := &PulseTable{tickNs: tickNs, timing: timing}
	active := 1 - timing.IdleLevel()
	idle := timing.IdleLevel()

	zero, err := t.bitItem(timing.Bit0HighNs, timing.Bit0HighBias, timing.Bit0LowNs, timing.Bit0LowBias, active, idle)
	if err != nil {
		return nil, err
	}
	one, err := t.bitItem(timing.Bit1HighNs, timing.Bit1HighBias, timing.Bit1LowNs, timing.Bit1LowBias, active, idle)
	if err != nil {
		return nil, err
	}
	if zero.Duration0 == 0 || one.Duration0 == 0 || zero == one {
		return nil, ErrSymbolUnset
	}
	t.items[SymbolZeroBit] = zero
	t.items[SymbolOneBit] = one

	if timing.StartTicks != 0 {
		half := timing.StartTicks / 2
		t.items[SymbolStartBit] = PulseItem{Duration0: half, Level0: idle, Duration1: timing.StartTicks - half, Level1: idle}
	}

	if err := t.SetInterframeGap(timing.ResetNs); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *PulseTable) bitItem(highNs uint32, highBias int8, lowNs uint32, lowBias int8, active, idle uint8) (PulseItem, error) {
	high, err := NsToTicks(highNs, t.tickNs, highBias)
	if err != nil {
		return PulseItem{}, err
	}
	low, err := NsToTicks(lowNs, t.tickNs, lowBias)
	if err != nil {
		return PulseItem{}, err
	}
	return PulseItem{Duration0: high, Level0: active, Duration1: low, Level1: idle}, nil
}

// Lookup returns the item for a symbol
func (t *PulseTable) Lookup(s Symbol) PulseItem {
	return t.items[s%NumSymbols]
}

// Set replaces the item for one symbol
func (t *PulseTable) Set(s Symbol, item PulseItem) {
	if s >= NumSymbols {
		return
	}
	t.items[s] = item
	if s == SymbolInterframeGap {
		if item.IsZero() {
			t.gapRepeat = 0
		} else {
			t.gapRepeat = 1
		}
	}
}

// SetInterframeGap recomputes the gap entry for a new reset duration.
// Gaps longer than one item are emitted as GapRepeat copies of the gap item.
func (t *PulseTable) SetInterframeGap(ns uint32) error {
	if ns == 0 {
		t.items[SymbolInterframeGap] = PulseItem{}
		t.gapRepeat = 0
		return nil
	}

	ticks := int64(ns/t.tickNs) + int64(t.timing.ResetBias)
	if ticks < 2 {
		ticks = 2
	}

	perItem := int64(2 * MaxPulseTicks)
	repeat := (ticks + perItem - 1) / perItem
	if repeat > 0xFFFF {
		return ErrTickOverflow
	}
	// round up so the split gap is never shorter than asked
	each := (ticks + repeat - 1) / repeat
	half := each / 2

	idle := t.timing.IdleLevel()
	t.items[SymbolInterframeGap] = PulseItem{
		Duration0: uint16(half),
		Level0:    idle,
		Duration1: uint16(each - half),
		Level1:    idle,
	}
	t.gapRepeat = uint16(repeat)
	return nil
}

// GapRepeat is the number of gap items emitted after each frame
func (t *PulseTable) GapRepeat() int {
	return int(t.gapRepeat)
}

// TickNs returns the tick length the table was built for
func (t *PulseTable) TickNs() uint32 {
	return t.tickNs
}

// Timing returns the chipset timing the table was built from
func (t *PulseTable) Timing() PulseTiming {
	return t.timing
}

// IdleLevel returns the line level between frames
func (t *PulseTable) IdleLevel() uint8 {
	return t.timing.IdleLevel()
}

// FrameItems returns the number of items one frame of n intensity values
// occupies at the given bit width.
func (t *PulseTable) FrameItems(n int, width uint8) int {
	count := n*int(width) + int(t.gapRepeat)
	if !t.items[SymbolStartBit].IsZero() {
		count++
	}
	if !t.items[SymbolStopBit].IsZero() {
		count++
	}
	return count
}

// DecodeBit classifies a data item as a zero or one bit
func (t *PulseTable) DecodeBit(item PulseItem) (bit uint8, ok bool) {
	switch item {
	case t.items[SymbolOneBit]:
		return 1, true
	case t.items[SymbolZeroBit]:
		return 0, true
	}
	return 0, false
}

// Decode reassembles intensity values of the given width from a captured
// frame, skipping framing items. Trailing bits that do not fill a whole
// value are reported as an error.
func (t *PulseTable) Decode(items []PulseItem, width uint8) ([]uint32, error) {
	var values []uint32
	var cur uint32
	bits := uint8(0)
	for i, item := range items {
		if i == 0 && item == t.items[SymbolStartBit] && !item.IsZero() {
			continue
		}
		bit, ok := t.DecodeBit(item)
		if !ok {
			if item == t.items[SymbolStopBit] || item == t.items[SymbolInterframeGap] {
				continue
			}
			return values, errors.New("unrecognised pulse item")
		}
		cur = cur<<1 | uint32(bit)
		bits++
		if bits == width {
			values = append(values, cur)
			cur = 0
			bits = 0
		}
	}
	if bits != 0 {
		return values, errors.New("frame ends mid-value")
	}
	return values, nil
}
