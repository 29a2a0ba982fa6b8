package serial

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelgopper/core"
)

type capturePort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (c *capturePort) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.New("closed")
	}
	return c.buf.Write(b)
}

func (c *capturePort) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *capturePort) Read(b []byte) (int, error) { return 0, io.EOF }

func (c *capturePort) Flush() error { return nil }

func (c *capturePort) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func fakeDriver(inverted bool) (*UARTDriver, *capturePort, *Config) {
	fp := &capturePort{}
	opened := &Config{}
	d := NewUARTDriver(inverted, "/dev/fake0")
	d.open = func(cfg *Config) (Port, error) {
		*opened = *cfg
		return fp, nil
	}
	return d, fp, opened
}

func TestUARTDriverSendsFrame(t *testing.T) {
	d, fp, opened := fakeDriver(true)
	core.SetSerialDriver(d)

	ch := core.NewOutputChannel(core.ChannelConfig{
		Chipset:    "ws2811",
		Transport:  core.TransportSerial,
		Pixels:     2,
		Brightness: 255,
	})
	require.NoError(t, ch.Begin())
	defer ch.Close()
	assert.Equal(t, Config{Device: "/dev/fake0", Baud: 3200000, DataBits: 6, StopBits: 1}, *opened)

	_, err := ch.SetIntensities([]byte{0x00, 0xFF, 0x1B, 0xE4, 0x80, 0x01})
	require.NoError(t, err)
	require.True(t, ch.Render())

	require.Eventually(t, func() bool {
		return ch.State() == core.StateIdle && len(fp.bytes()) == 6*4
	}, time.Second, time.Millisecond)

	table := ch.Transport().(*core.SerialTransport).Table()
	values, err := table.Decode(fp.bytes(), 8)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x00, 0xFF, 0x1B, 0xE4, 0x80, 0x01}, values)
}

func TestUARTDriverRejectsPolarity(t *testing.T) {
	d, _, _ := fakeDriver(false)
	core.SetSerialDriver(d)

	ch := core.NewOutputChannel(core.ChannelConfig{Chipset: "ucs8903", Transport: core.TransportSerial, Pixels: 1})
	err := ch.Begin()
	assert.ErrorIs(t, err, core.ErrHardwareUnavailable)
	assert.ErrorIs(t, err, ErrInversion)
	assert.Empty(t, d.ports, "port released")

	// an inverting level shifter on the bench cancels the chipset inversion
	ch = core.NewOutputChannel(core.ChannelConfig{Chipset: "ucs8903", Transport: core.TransportSerial, Pixels: 1, Invert: true})
	require.NoError(t, ch.Begin())
	ch.Close()
}

func TestUARTDriverClaim(t *testing.T) {
	d, _, _ := fakeDriver(true)
	done := func() {}

	_, err := d.Claim(1, 0, done)
	assert.ErrorIs(t, err, ErrNoDevice)

	p, err := d.Claim(0, 0, done)
	require.NoError(t, err)
	_, err = d.Claim(0, 0, done)
	assert.ErrorIs(t, err, ErrInUse)

	p.Release()
	p.Release()
	_, err = d.Claim(0, 0, done)
	assert.NoError(t, err)
}

func TestUARTDriverBreakIsCounted(t *testing.T) {
	d, fp, _ := fakeDriver(false)
	core.SetSerialDriver(d)

	ch := core.NewOutputChannel(core.ChannelConfig{Chipset: "dmx", Pixels: 3})
	require.NoError(t, ch.Begin())
	defer ch.Close()
	_, err := ch.SetIntensities([]byte{1, 2, 3})
	require.NoError(t, err)
	require.True(t, ch.Render())

	require.Eventually(t, func() bool {
		return len(fp.bytes()) == 4
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0, 1, 2, 3}, fp.bytes())
	assert.Equal(t, uint32(1), d.ports[0].Breaks())
}
