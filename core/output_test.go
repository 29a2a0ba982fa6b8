package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelgopper/protocol"
)

func ws2812Channel(id, peripheral uint8) ChannelConfig {
	return ChannelConfig{
		ID:         id,
		Chipset:    "ws2812",
		Peripheral: peripheral,
		Pin:        16,
		Pixels:     4,
		Brightness: 255,
		MinFrameUs: 25000,
	}
}

func TestOutputChannelRendersBuffer(t *testing.T) {
	pd, _ := installMocks()
	cfg := ws2812Channel(1, 0)
	cfg.ColorOrder = "grb"
	ch := NewOutputChannel(cfg)
	require.NoError(t, ch.Begin())
	assert.Equal(t, TransportPulse, ch.Config().Transport)
	assert.Len(t, ch.Buffer(), 12)

	n, err := ch.SetIntensities([]byte{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120, 130})
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	require.True(t, ch.Render())
	values, err := pd.claimed[0].frameValues(t)
	require.NoError(t, err)
	assert.Equal(t, []uint32{20, 10, 30, 50, 40, 60, 80, 70, 90, 110, 100, 120}, values)
}

// frameValues decodes the last frame with the ws2812 table
func (c *mockPulseChannel) frameValues(t *testing.T) ([]uint32, error) {
	t.Helper()
	info, err := protocol.ChipsetWS2812.Info()
	require.NoError(t, err)
	table, err := protocol.NewPulseTable(*info.Pulse, c.d.tickNs)
	require.NoError(t, err)
	return table.Decode(c.lastFrame(), 8)
}

func TestOutputChannelBusy(t *testing.T) {
	pd, _ := installMocks()
	ch := NewOutputChannel(ws2812Channel(1, 0))
	require.NoError(t, ch.Begin())
	require.True(t, ch.Render())

	_, err := ch.SetIntensities([]byte{1})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, ch.SetBufferSize(100), ErrBusy)
	assert.Len(t, ch.Buffer(), 12, "resize refused mid-frame")

	res := ch.SetConfig(map[string]interface{}{"brightness": 10.0, "pin": 3.0})
	assert.Empty(t, res.Accepted)
	assert.ErrorIs(t, res.Rejected["brightness"], ErrBusy)
	assert.ErrorIs(t, res.Rejected["pin"], ErrBusy)

	pd.claimed[0].finish()
	require.NoError(t, ch.SetBufferSize(100))
	assert.Len(t, ch.Buffer(), 300)
	assert.Equal(t, 100, ch.GetStatus().Pixels)
}

func TestOutputChannelSetConfigPartial(t *testing.T) {
	installMocks()
	ch := NewOutputChannel(ws2812Channel(1, 0))
	require.NoError(t, ch.Begin())

	res := ch.SetConfig(map[string]interface{}{
		"brightness":   128.0,
		"min_frame_us": 10000.0,
		"color_order":  "grbw",
		"pixels":       -1.0,
		"bogus":        true,
	})
	assert.Equal(t, []string{"brightness", "min_frame_us"}, res.Accepted)
	assert.ErrorIs(t, res.Rejected["color_order"], ErrBadColorOrder)
	assert.ErrorIs(t, res.Rejected["pixels"], ErrBadFieldValue)
	assert.ErrorIs(t, res.Rejected["bogus"], ErrUnknownField)
	assert.False(t, res.OK())

	st := ch.GetStatus()
	assert.Equal(t, uint8(128), st.Brightness)
	assert.Equal(t, uint32(10000), st.MinFrameUs)
	assert.Equal(t, "", st.ColorOrder)
	assert.Equal(t, 4, st.Pixels)
	assert.Equal(t, uint32(25), st.TickNs)
	assert.Equal(t, uint32(50), st.InterframeGapUs)
}

func TestOutputChannelSetConfigRollsBack(t *testing.T) {
	pd, _ := installMocks()
	m := NewOutputManager()
	first, err := m.AddChannel(ws2812Channel(1, 0))
	require.NoError(t, err)
	_, err = m.AddChannel(ws2812Channel(2, 1))
	require.NoError(t, err)

	// peripheral 1 belongs to channel 2
	res := first.SetConfig(map[string]interface{}{"peripheral": 1.0, "brightness": 7.0})
	assert.ErrorIs(t, res.Rejected["peripheral"], ErrHardwareUnavailable)
	assert.Equal(t, []string{"brightness"}, res.Accepted)

	assert.True(t, first.Ready())
	assert.NoError(t, first.Err())
	assert.Equal(t, uint8(0), first.Config().Peripheral)
	assert.Equal(t, uint8(7), first.Config().Brightness)
	assert.Contains(t, pd.claimed, uint8(0))
	assert.True(t, first.Render())
}

func TestOutputChannelSetConfigKeepsGoodFields(t *testing.T) {
	pd, _ := installMocks()
	m := NewOutputManager()
	first, err := m.AddChannel(ws2812Channel(1, 0))
	require.NoError(t, err)
	_, err = m.AddChannel(ws2812Channel(2, 1))
	require.NoError(t, err)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	n, err := first.SetIntensities(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	res := first.SetConfig(map[string]interface{}{"peripheral": 1.0, "pixels": 8.0})
	assert.ErrorIs(t, res.Rejected["peripheral"], ErrHardwareUnavailable)
	assert.Equal(t, []string{"pixels"}, res.Accepted)

	assert.Equal(t, uint8(0), first.Config().Peripheral)
	assert.Equal(t, 8, first.Config().Pixels)
	require.Len(t, first.Buffer(), 8*3)
	assert.Equal(t, data, first.Buffer()[:len(data)], "buffer kept across the failed rebuild")
	assert.True(t, first.Ready())
	assert.Contains(t, pd.claimed, uint8(0))
}

func TestOutputChannelRebuildFieldsRetriedAlone(t *testing.T) {
	installMocks()
	m := NewOutputManager()
	first, err := m.AddChannel(ws2812Channel(1, 0))
	require.NoError(t, err)
	_, err = m.AddChannel(ws2812Channel(2, 1))
	require.NoError(t, err)
	_, err = first.SetIntensities([]byte{9, 8, 7})
	require.NoError(t, err)

	res := first.SetConfig(map[string]interface{}{"peripheral": 1.0, "frame_prepend": "ff"})
	assert.ErrorIs(t, res.Rejected["peripheral"], ErrHardwareUnavailable)
	assert.Equal(t, []string{"frame_prepend"}, res.Accepted)
	assert.Equal(t, "ff", first.Config().FramePrepend)
	assert.Equal(t, []byte{9, 8, 7}, first.Buffer()[:3])
	assert.True(t, first.Ready())
}

func TestOutputChannelResizeKeepsData(t *testing.T) {
	installMocks()
	ch := NewOutputChannel(ws2812Channel(1, 0))
	require.NoError(t, ch.Begin())
	_, err := ch.SetIntensities([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	res := ch.SetConfig(map[string]interface{}{"pixels": 6.0})
	require.True(t, res.OK(), "%v", res.Rejected)
	require.Len(t, ch.Buffer(), 18)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, ch.Buffer()[:6])
	assert.Equal(t, 18, ch.Pump().FrameLength())

	// a rebuild keeps the data too
	res = ch.SetConfig(map[string]interface{}{"chipset": "ws2811"})
	require.True(t, res.OK(), "%v", res.Rejected)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, ch.Buffer()[:6])
}

func TestOutputChannelSwitchesTransport(t *testing.T) {
	installMocks()
	ch := NewOutputChannel(ws2812Channel(1, 0))
	require.NoError(t, ch.Begin())

	res := ch.SetConfig(map[string]interface{}{
		"chipset":   "ucs8903",
		"transport": "serial",
		"pixels":    2.0,
	})
	require.True(t, res.OK(), "%v", res.Rejected)
	assert.Equal(t, []string{"chipset", "pixels", "transport"}, res.Accepted)

	st := ch.GetStatus()
	assert.Equal(t, TransportSerial, st.Transport)
	assert.Equal(t, uint32(8000000), st.Baud)
	assert.Equal(t, uint8(16), st.IntensityWidth)
	assert.Equal(t, uint32(257), ch.Pump().IntensityMultiplier())
	assert.NoError(t, ch.Pause())
	assert.True(t, ch.GetStatus().Paused)
	assert.NoError(t, ch.Resume())

	res = ch.SetConfig(map[string]interface{}{"chipset": "sk6812", "transport": "serial"})
	assert.ErrorIs(t, res.Rejected["chipset"], ErrNoTransport)
	assert.Equal(t, "ucs8903", ch.Config().Chipset)
	assert.True(t, ch.Ready())
}

func TestOutputChannelPauseNeedsSerial(t *testing.T) {
	installMocks()
	ch := NewOutputChannel(ws2812Channel(1, 0))
	require.NoError(t, ch.Begin())
	assert.ErrorIs(t, ch.Pause(), ErrNotSupported)
	assert.ErrorIs(t, ch.Resume(), ErrNotSupported)
}

func TestOutputChannelSerialFraming(t *testing.T) {
	_, sd := installMocks()
	ch := NewOutputChannel(ChannelConfig{
		ID:           3,
		Chipset:      "serial",
		Peripheral:   0,
		Pixels:       3,
		FramePrepend: "aa55",
		FrameAppend:  "ff",
	})
	require.NoError(t, ch.Begin())
	_, err := ch.SetIntensities([]byte{1, 2, 3})
	require.NoError(t, err)

	require.True(t, ch.Render())
	port := sd.claimed[0]
	port.drain()
	assert.Equal(t, []byte{0xAA, 0x55, 1, 2, 3, 0xFF}, port.line)

	bad := NewOutputChannel(ChannelConfig{Chipset: "serial", FramePrepend: "zz"})
	assert.ErrorIs(t, bad.Begin(), ErrBadFieldValue)
}
