package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelgopper/config"
)

func runBench(t *testing.T, cfg *config.Config, frames int) *bench {
	t.Helper()
	b := newBench(cfg, nil)
	t.Cleanup(b.close)
	b.run(frames)
	return b
}

func TestBenchDefaultConfigRoundTrips(t *testing.T) {
	b := runBench(t, config.DefaultConfig(), 3)

	require.Len(t, b.reports, 2)
	for _, r := range b.reports {
		assert.Equal(t, 3, r.Frames, "channel %d", r.ID)
		assert.Zero(t, r.Mismatches, "channel %d", r.ID)
		assert.Equal(t, uint32(3), r.Stats.FramesSent)
		assert.NotZero(t, r.WireMaxUs)
	}
	assert.False(t, b.failed())
}

func TestBenchEveryEncoding(t *testing.T) {
	cfg, err := config.LoadYAML([]byte(`
channels:
  - {id: 1, chipset: tm1814, peripheral: 1, pixels: 4}
  - {id: 2, chipset: ucs1903, peripheral: 2, pixels: 4, brightness: 100}
  - {id: 3, chipset: apa106, peripheral: 3, pixels: 2, frame_prepend: "ff00"}
  - {id: 4, chipset: ws2811, transport: serial, peripheral: 0, pixels: 5}
  - {id: 5, chipset: renard, peripheral: 1, pixels: 40}
  - {id: 6, chipset: ws2812, peripheral: 9, pixels: 1}
`))
	require.NoError(t, err)

	b := runBench(t, cfg, 4)
	require.Len(t, b.reports, 5, "channel on a missing peripheral is skipped")
	for _, r := range b.reports {
		assert.Equal(t, 4, r.Frames, "channel %d", r.ID)
		assert.Zero(t, r.Mismatches, "channel %d", r.ID)
	}
	assert.Nil(t, b.byID[6])
	assert.Len(t, b.mgr.Channels(), 6)
}

func TestPatternChangesPerFrame(t *testing.T) {
	a := pattern(make([]byte, 8), 0, 1)
	c := pattern(make([]byte, 8), 1, 1)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, pattern(make([]byte, 8), 0, 1))
}
