package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelgopper/core"
)

type fakeController struct {
	status  []core.ChannelStatus
	fields  map[string]interface{}
	pixels  []byte
	render  *uint8
	paused  uint8
	reboots int
}

func (f *fakeController) Status(ch *uint8) ([]core.ChannelStatus, error) {
	if ch == nil {
		return f.status, nil
	}
	for _, st := range f.status {
		if st.ID == *ch {
			return []core.ChannelStatus{st}, nil
		}
	}
	return nil, core.ErrNoChannel
}

func (f *fakeController) Set(ch uint8, fields map[string]interface{}) (*core.ControlResponse, error) {
	f.fields = fields
	return &core.ControlResponse{OK: true, Accepted: []string{"brightness"}}, nil
}

func (f *fakeController) SetPixels(ch uint8, data []byte) (int, error) {
	f.pixels = data
	return len(data), nil
}

func (f *fakeController) Render(ch *uint8) (int, error) {
	f.render = ch
	return 1, nil
}

func (f *fakeController) Pause(ch uint8) error  { f.paused = ch; return nil }
func (f *fakeController) Resume(ch uint8) error { return nil }
func (f *fakeController) Reboot() error         { f.reboots++; return nil }

func TestParseLine(t *testing.T) {
	cmd, err := parseLine(`set 1 brightness=64 invert=true color_order=rgb frame_prepend="0011" pin=0x10`)
	require.NoError(t, err)
	assert.Equal(t, "set", cmd.name)
	require.NotNil(t, cmd.channel)
	assert.Equal(t, uint8(1), *cmd.channel)
	assert.Equal(t, map[string]interface{}{
		"brightness":    uint64(64),
		"invert":        true,
		"color_order":   "rgb",
		"frame_prepend": "0011",
		"pin":           uint64(16),
	}, cmd.fields)

	cmd, err = parseLine("render")
	require.NoError(t, err)
	assert.Nil(t, cmd.channel)

	cmd, err = parseLine("   ")
	assert.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestParseLineErrors(t *testing.T) {
	for _, line := range []string{
		"explode",
		"pause",
		"set 1",
		"set 1 brightness",
		"pixels 1 zz",
		"status 300",
		`set 1 "brightness=1`,
		"reboot now",
	} {
		_, err := parseLine(line)
		assert.Error(t, err, line)
	}
	_, err := parseLine("pause")
	assert.ErrorIs(t, err, errUsage)
}

func TestExecuteFillTilesPattern(t *testing.T) {
	fc := &fakeController{status: []core.ChannelStatus{
		{ID: 0, Chipset: "ws2812", Pixels: 3, ColorOrder: "grb"},
		{ID: 1, Chipset: "dmx", Pixels: 4},
	}}
	var out bytes.Buffer

	cmd, err := parseLine("fill 0 ff0010")
	require.NoError(t, err)
	require.NoError(t, execute(fc, cmd, &out))
	assert.Equal(t, []byte{0xff, 0, 0x10, 0xff, 0, 0x10, 0xff, 0, 0x10}, fc.pixels)
	assert.Contains(t, out.String(), "9 intensities written")

	cmd, err = parseLine("fill 1 80")
	require.NoError(t, err)
	require.NoError(t, execute(fc, cmd, &out))
	assert.Equal(t, []byte{0x80, 0x80, 0x80, 0x80}, fc.pixels)

	cmd, err = parseLine("fill 7 80")
	require.NoError(t, err)
	assert.ErrorIs(t, execute(fc, cmd, &out), core.ErrNoChannel)
}

func TestExecutePrintsStatus(t *testing.T) {
	fc := &fakeController{status: []core.ChannelStatus{
		{ID: 2, Chipset: "ucs8903", Transport: "serial", State: "idle", Pixels: 50, Error: "UART already claimed"},
	}}
	var out bytes.Buffer

	cmd, err := parseLine("status")
	require.NoError(t, err)
	require.NoError(t, execute(fc, cmd, &out))
	assert.Contains(t, out.String(), "CHIPSET")
	assert.Contains(t, out.String(), "ucs8903")
	assert.Contains(t, out.String(), "UART already claimed")

	cmd, err = parseLine("pause 2")
	require.NoError(t, err)
	require.NoError(t, execute(fc, cmd, &out))
	assert.Equal(t, uint8(2), fc.paused)

	cmd, err = parseLine("reboot")
	require.NoError(t, err)
	require.NoError(t, execute(fc, cmd, &out))
	assert.Equal(t, 1, fc.reboots)
}
