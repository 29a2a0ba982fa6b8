package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelgopper/core"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{
		"channels": [
			{"pin": 2, "pixels": 10},
			{"id": 7, "chipset": "sk6812", "pixels": 5, "brightness": 64},
			{"chipset": "dmx", "transport": "serial", "peripheral": 1, "pixels": 512}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, uint32(core.DefaultMinFrameUs), cfg.RefreshUs)
	require.Len(t, cfg.Channels, 3)

	ws := cfg.Channels[0]
	assert.Equal(t, "ws2812", ws.Chipset)
	assert.Equal(t, "grb", ws.ColorOrder)
	assert.Equal(t, uint8(255), ws.Brightness)
	assert.Equal(t, uint32(core.DefaultMinFrameUs), ws.MinFrameUs)

	sk := cfg.Channels[1]
	assert.Equal(t, uint8(7), sk.ID)
	assert.Equal(t, "grbw", sk.ColorOrder)
	assert.Equal(t, uint8(64), sk.Brightness)

	dmx := cfg.Channels[2]
	assert.Equal(t, uint8(2), dmx.ID)
	assert.Equal(t, "", dmx.ColorOrder)
	assert.Equal(t, uint8(1), dmx.Peripheral)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := LoadYAML([]byte(`
refresh_us: 33333
channels:
  - id: 1
    chipset: ucs8903
    transport: serial
    peripheral: 1
    pin: 4
    pixels: 20
    invert: true
    fifo_threshold: 8
    frame_prepend: "00ff"
`))
	require.NoError(t, err)
	assert.Equal(t, uint32(33333), cfg.RefreshUs)
	require.Len(t, cfg.Channels, 1)

	ch := cfg.Channels[0]
	assert.Equal(t, core.TransportSerial, ch.Transport)
	assert.True(t, ch.Invert)
	assert.Equal(t, uint8(8), ch.FifoThreshold)
	assert.Equal(t, "00ff", ch.FramePrepend)
	assert.Equal(t, "grb", ch.ColorOrder)

	_, err = LoadYAML([]byte("channels:\n  - colour: red\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestLoadClampsInterframeGap(t *testing.T) {
	cfg, err := LoadYAML([]byte("channels:\n  - {pixels: 1, interframe_gap_us: 4294967295}\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(core.MaxInterframeGapUs), cfg.Channels[0].InterframeGapUs)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig([]byte(`{"channels": [`))
	assert.Error(t, err)

	_, err = LoadConfig([]byte(`{"channels": [{"pin": 300}]}`))
	assert.Error(t, err, "pin does not fit uint8")

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadPicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "out.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("channels:\n  - pixels: 3\n"), 0o644))
	jsonPath := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"channels":[{"pixels":3}]}`), 0o644))

	fromYAML, err := Load(yamlPath)
	require.NoError(t, err)
	fromJSON, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)
}

func TestDefaultConfigBuilds(t *testing.T) {
	cfg := DefaultConfig()
	require.Len(t, cfg.Channels, 2)

	again, err := LoadConfig([]byte(`{"refresh_us": 25000, "channels": [
		{"id": 0, "chipset": "ws2812", "transport": "pulse", "pin": 2, "pixels": 150, "color_order": "grb", "brightness": 255, "min_frame_us": 25000},
		{"id": 1, "chipset": "ws2811", "transport": "serial", "peripheral": 1, "pin": 4, "pixels": 100, "color_order": "rgb", "brightness": 255, "min_frame_us": 25000}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
