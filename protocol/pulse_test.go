package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTickNs = 25

func pulseTable(t *testing.T, c Chipset) *PulseTable {
	t.Helper()
	info, err := c.Info()
	require.NoError(t, err)
	require.NotNil(t, info.Pulse, "%s has no pulse timing", c)
	table, err := NewPulseTable(*info.Pulse, testTickNs)
	require.NoError(t, err)
	return table
}

// encodeValues builds a frame the same way the pulse transport does
func encodeValues(table *PulseTable, values []uint32, width uint8) []PulseItem {
	var items []PulseItem
	if start := table.Lookup(SymbolStartBit); !start.IsZero() {
		items = append(items, start)
	}
	for _, v := range values {
		for bit := int(width) - 1; bit >= 0; bit-- {
			if v&(1<<uint(bit)) != 0 {
				items = append(items, table.Lookup(SymbolOneBit))
			} else {
				items = append(items, table.Lookup(SymbolZeroBit))
			}
		}
	}
	if stop := table.Lookup(SymbolStopBit); !stop.IsZero() {
		items = append(items, stop)
	}
	for i := 0; i < table.GapRepeat(); i++ {
		items = append(items, table.Lookup(SymbolInterframeGap))
	}
	return items
}

func TestPulseItemWord(t *testing.T) {
	item := PulseItem{Duration0: 16, Level0: 1, Duration1: 34, Level1: 0}
	w := item.Word()
	assert.Equal(t, uint32(1<<31|16<<16|34), w)
	assert.Equal(t, item, ItemFromWord(w))

	item = PulseItem{Duration0: MaxPulseTicks, Level0: 0, Duration1: 1, Level1: 1}
	assert.Equal(t, item, ItemFromWord(item.Word()))
}

func TestNsToTicks(t *testing.T) {
	ticks, err := NsToTicks(850, 25, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(34), ticks)

	// truncates before bias
	ticks, err = NsToTicks(890, 25, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(35), ticks)

	ticks, err = NsToTicks(1000, 25, -1)
	require.NoError(t, err)
	assert.Equal(t, uint16(39), ticks)

	ticks, err = NsToTicks(10, 25, -1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), ticks)

	_, err = NsToTicks(1000, 0, 0)
	assert.ErrorIs(t, err, ErrZeroTickLength)

	_, err = NsToTicks(1000000, 25, 0)
	assert.ErrorIs(t, err, ErrTickOverflow)
}

func TestPulseTableWS2812(t *testing.T) {
	table := pulseTable(t, ChipsetWS2812)

	assert.Equal(t, PulseItem{Duration0: 16, Level0: 1, Duration1: 34, Level1: 0}, table.Lookup(SymbolZeroBit))
	assert.Equal(t, PulseItem{Duration0: 32, Level0: 1, Duration1: 18, Level1: 0}, table.Lookup(SymbolOneBit))
	assert.True(t, table.Lookup(SymbolStartBit).IsZero())
	assert.True(t, table.Lookup(SymbolStopBit).IsZero())

	gap := table.Lookup(SymbolInterframeGap)
	assert.Equal(t, PulseItem{Duration0: 1000, Level0: 0, Duration1: 1000, Level1: 0}, gap)
	assert.Equal(t, 1, table.GapRepeat())
	assert.Equal(t, uint8(0), table.IdleLevel())
	assert.Equal(t, uint32(testTickNs), table.TickNs())
}

func TestPulseTableUCS1903Bias(t *testing.T) {
	table := pulseTable(t, ChipsetUCS1903)

	assert.Equal(t, PulseItem{Duration0: 10, Level0: 1, Duration1: 40, Level1: 0}, table.Lookup(SymbolZeroBit))
	assert.Equal(t, PulseItem{Duration0: 39, Level0: 1, Duration1: 11, Level1: 0}, table.Lookup(SymbolOneBit))
	assert.Equal(t, PulseItem{Duration0: 2, Level0: 0, Duration1: 2, Level1: 0}, table.Lookup(SymbolStartBit))

	// 300us / 25ns + 1
	gap := table.Lookup(SymbolInterframeGap)
	assert.Equal(t, uint32(12001), gap.Ticks())
	assert.Equal(t, 1, table.GapRepeat())

	assert.Equal(t, 1+3*8+1, table.FrameItems(3, 8))
}

func TestPulseTableInverted(t *testing.T) {
	table := pulseTable(t, ChipsetTM1814)

	assert.Equal(t, uint8(1), table.IdleLevel())
	zero := table.Lookup(SymbolZeroBit)
	assert.Equal(t, uint8(0), zero.Level0)
	assert.Equal(t, uint8(1), zero.Level1)
	gap := table.Lookup(SymbolInterframeGap)
	assert.Equal(t, uint8(1), gap.Level0)
	assert.Equal(t, uint8(1), gap.Level1)
}

func TestPulseTableConstructionErrors(t *testing.T) {
	info, err := ChipsetWS2812.Info()
	require.NoError(t, err)

	_, err = NewPulseTable(*info.Pulse, 0)
	assert.ErrorIs(t, err, ErrZeroTickLength)

	missing := *info.Pulse
	missing.Bit1HighNs = 0
	_, err = NewPulseTable(missing, testTickNs)
	assert.ErrorIs(t, err, ErrSymbolUnset)

	// both bits collapse to the same item at a coarse tick
	_, err = NewPulseTable(*info.Pulse, 2000)
	assert.ErrorIs(t, err, ErrSymbolUnset)

	long := *info.Pulse
	long.Bit0LowNs = 1000000
	_, err = NewPulseTable(long, testTickNs)
	assert.ErrorIs(t, err, ErrTickOverflow)
}

func TestSetInterframeGapSplitsLongGaps(t *testing.T) {
	table := pulseTable(t, ChipsetWS2812)
	zero := table.Lookup(SymbolZeroBit)

	require.NoError(t, table.SetInterframeGap(2000000))
	assert.Equal(t, 2, table.GapRepeat())
	assert.Equal(t, PulseItem{Duration0: 20000, Duration1: 20000}, table.Lookup(SymbolInterframeGap))
	assert.Equal(t, zero, table.Lookup(SymbolZeroBit), "only the gap entry changes")

	require.NoError(t, table.SetInterframeGap(0))
	assert.Equal(t, 0, table.GapRepeat())
	assert.True(t, table.Lookup(SymbolInterframeGap).IsZero())
}

func TestSplitGapNeverShorterThanAsked(t *testing.T) {
	table := pulseTable(t, ChipsetWS2812)

	// 65535 ticks do not split evenly over two items
	require.NoError(t, table.SetInterframeGap(65535*testTickNs))
	require.Equal(t, 2, table.GapRepeat())
	gap := table.Lookup(SymbolInterframeGap)
	assert.GreaterOrEqual(t, gap.Ticks()*2, uint32(65535))
	assert.LessOrEqual(t, uint32(gap.Duration0), uint32(MaxPulseTicks))
	assert.LessOrEqual(t, uint32(gap.Duration1), uint32(MaxPulseTicks))
}

func TestSetSymbol(t *testing.T) {
	table := pulseTable(t, ChipsetWS2812)

	stop := PulseItem{Duration0: 5, Level0: 0, Duration1: 5, Level1: 0}
	table.Set(SymbolStopBit, stop)
	assert.Equal(t, stop, table.Lookup(SymbolStopBit))
	assert.Equal(t, 2*8+1+1, table.FrameItems(2, 8))

	table.Set(SymbolInterframeGap, PulseItem{})
	assert.Equal(t, 0, table.GapRepeat())

	// out of range symbols are ignored
	table.Set(NumSymbols, stop)
}

func TestPulseRoundTrip(t *testing.T) {
	values8 := []uint32{0x00, 0xFF, 0xA5, 0x5A, 0x01, 0x80, 0xB4}
	values16 := []uint32{0x0000, 0xFFFF, 0xB4B4, 0x1234}

	for _, c := range Chipsets() {
		info, err := c.Info()
		require.NoError(t, err)
		if info.Pulse == nil {
			continue
		}
		t.Run(c.String(), func(t *testing.T) {
			table := pulseTable(t, c)
			values := values8
			if info.IntensityWidth == IntensityWidth16 {
				values = values16
			}
			items := encodeValues(table, values, info.IntensityWidth)
			assert.Equal(t, table.FrameItems(len(values), info.IntensityWidth), len(items))

			decoded, err := table.Decode(items, info.IntensityWidth)
			require.NoError(t, err)
			assert.Equal(t, values, decoded)

			// the same items survive the PIO word packing
			for i, item := range items {
				assert.Equal(t, item, ItemFromWord(item.Word()), "item %d", i)
			}
		})
	}
}

func TestDecodeRejectsPartialValue(t *testing.T) {
	table := pulseTable(t, ChipsetWS2811)
	items := encodeValues(table, []uint32{0xAA}, 8)

	_, err := table.Decode(items[:5], 8)
	assert.Error(t, err)

	_, err = table.Decode([]PulseItem{{Duration0: 3, Level0: 1, Duration1: 3}}, 8)
	assert.Error(t, err)
}

func TestSymbolString(t *testing.T) {
	assert.Equal(t, "ZERO_BIT", SymbolZeroBit.String())
	assert.Equal(t, "INTERFRAME_GAP", SymbolInterframeGap.String())
	assert.Equal(t, "UNKNOWN", NumSymbols.String())
}
