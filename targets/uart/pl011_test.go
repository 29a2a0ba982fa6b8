package uart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelgopper/protocol"
)

const clkPeri = 125000000

func TestTxPinPort(t *testing.T) {
	want := map[uint8]uint8{0: 0, 4: 1, 8: 1, 12: 0, 16: 0, 20: 1, 24: 1, 28: 0}
	for pin, port := range want {
		got, ok := TxPinPort(pin)
		assert.True(t, ok, "pin %d", pin)
		assert.Equal(t, port, got, "pin %d", pin)
	}
	for _, pin := range []uint8{1, 2, 5, 29, 32} {
		_, ok := TxPinPort(pin)
		assert.False(t, ok, "pin %d", pin)
	}
}

func TestBaudDivisor(t *testing.T) {
	ibrd, fbrd, err := baudDivisor(clkPeri, 115200)
	require.NoError(t, err)
	assert.Equal(t, uint32(67), ibrd)
	assert.Equal(t, uint32(52), fbrd)

	// ws2811 over UART: 4 line bits per intensity bit pair at 800 kHz
	ibrd, fbrd, err = baudDivisor(clkPeri, 3200000)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ibrd)
	assert.InDelta(t, 3200000, actualBaud(clkPeri, ibrd, fbrd), 3200000*0.02)

	_, _, err = baudDivisor(clkPeri, 8000000)
	assert.ErrorIs(t, err, ErrBaud, "above clk/16")
	_, _, err = baudDivisor(clkPeri, 0)
	assert.ErrorIs(t, err, ErrBaud)
}

func TestLineControl(t *testing.T) {
	lcr, err := lineControl(protocol.UART8N1)
	require.NoError(t, err)
	assert.Equal(t, uint32(lcrFEN|3<<lcrWLENShft), lcr)

	lcr, err = lineControl(protocol.UART6N2)
	require.NoError(t, err)
	assert.Equal(t, uint32(lcrFEN|lcrSTP2|1<<lcrWLENShft), lcr)

	_, err = lineControl(protocol.DataFrame(9))
	assert.ErrorIs(t, err, protocol.ErrBadDataFrame)
}

func TestTxLevel(t *testing.T) {
	cases := []struct {
		threshold uint8
		sel       uint32
		level     int
	}{
		{0, 0, 4},
		{4, 0, 4},
		{16, 2, 16},
		{20, 2, 16},
		{31, 4, 28},
	}
	for _, c := range cases {
		sel, level := txLevel(c.threshold)
		assert.Equal(t, c.sel, sel, "threshold %d", c.threshold)
		assert.Equal(t, c.level, level, "threshold %d", c.threshold)
	}
}

func TestFillPeriod(t *testing.T) {
	// ucs8903: 16 bytes of 10 line bits at 8 Mbaud last 20us
	assert.Equal(t, uint32(10), fillPeriodUs(8000000, protocol.UART8N1, 16))
	// ws2811: 8 line bits at 3.2 Mbaud
	assert.Equal(t, uint32(20), fillPeriodUs(3200000, protocol.UART6N1, 16))
	// dmx: 11 line bits at 250 kbaud
	assert.Equal(t, uint32(352), fillPeriodUs(250000, protocol.UART8N2, 16))

	assert.Equal(t, uint32(minFillPeriodUs), fillPeriodUs(8000000, protocol.UART8N1, 1))
	assert.Equal(t, uint32(minFillPeriodUs), fillPeriodUs(0, protocol.UART8N1, 16))
}

func TestClaimPort(t *testing.T) {
	portAllocations = [Ports]bool{}
	require.NoError(t, claimPort(1))
	assert.ErrorIs(t, claimPort(1), ErrPortInUse)
	assert.ErrorIs(t, claimPort(2), ErrNoPort)
	releasePort(1)
	assert.NoError(t, claimPort(1))
}
