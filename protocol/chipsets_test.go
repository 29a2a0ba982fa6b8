package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChipset(t *testing.T) {
	c, err := ParseChipset(" WS2812 ")
	require.NoError(t, err)
	assert.Equal(t, ChipsetWS2812, c)
	assert.Equal(t, "ws2812", c.String())

	_, err = ParseChipset("apa102")
	assert.ErrorIs(t, err, ErrUnknownChipset)

	_, err = ChipsetNone.Info()
	assert.ErrorIs(t, err, ErrUnknownChipset)
	assert.Equal(t, "none", ChipsetNone.String())
}

func TestChipsetInfoIsCopy(t *testing.T) {
	info, err := ChipsetWS2811.Info()
	require.NoError(t, err)
	info.Pulse.ResetNs = 1
	info.Serial.Patterns[0] = 0

	again, err := ChipsetWS2811.Info()
	require.NoError(t, err)
	assert.Equal(t, uint32(300000), again.Pulse.ResetNs)
	assert.Equal(t, byte(0b00110111), again.Serial.Patterns[0])
}

func TestEveryChipsetBuilds(t *testing.T) {
	for _, c := range Chipsets() {
		info, err := c.Info()
		require.NoError(t, err, c.String())
		require.True(t, info.Pulse != nil || info.Serial != nil, c.String())

		name, err := ParseChipset(info.Name)
		require.NoError(t, err)
		assert.Equal(t, c, name)

		if info.Pulse != nil {
			_, err := NewPulseTable(*info.Pulse, testTickNs)
			assert.NoError(t, err, c.String())
		}
		if info.Serial != nil {
			_, err := NewSerialTable(*info.Serial)
			assert.NoError(t, err, c.String())
		}
		assert.Contains(t, []uint8{IntensityWidth8, IntensityWidth16}, info.IntensityWidth)
	}

	dmx, err := ChipsetDMX.Info()
	require.NoError(t, err)
	assert.False(t, dmx.IsPixel())
	assert.Equal(t, uint32(92), dmx.BreakUs)

	sk, err := ChipsetSK6812.Info()
	require.NoError(t, err)
	assert.True(t, sk.IsPixel())
	assert.Equal(t, uint8(4), sk.ChannelsPerPixel)
}
