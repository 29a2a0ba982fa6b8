//go:build rp2040

package main

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"

	"pixelgopper/core"
)

// statusLEDPin carries the on-board WS2812 of RP2040-Zero style boards
const statusLEDPin = machine.GPIO16

// statusRefreshUs is how often channel health is re-read
const statusRefreshUs = 100000

var (
	colorFailed  = color.RGBA{R: 0x20}
	colorPaused  = color.RGBA{B: 0x20}
	colorRunning = color.RGBA{G: 0x20}
	colorIdle    = color.RGBA{R: 0x04, G: 0x04, B: 0x04}
)

// statusLED shows channel health on a single pixel
type statusLED struct {
	dev   ws2812.Device
	timer core.Timer
	mgr   *core.OutputManager
	last  color.RGBA
	shown bool
}

func newStatusLED(pin machine.Pin, mgr *core.OutputManager) *statusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s := &statusLED{dev: ws2812.New(pin), mgr: mgr}
	s.timer.Handler = s.refresh
	s.timer.WakeTime = core.GetTime()
	core.ScheduleTimer(&s.timer)
	return s
}

// healthColor is red when any channel failed, blue when any is paused,
// green once frames have gone out and dim white before that
func healthColor(status []core.ChannelStatus) color.RGBA {
	c := colorIdle
	for _, st := range status {
		switch {
		case st.Error != "":
			return colorFailed
		case st.Paused:
			c = colorPaused
		case st.FramesSent > 0 && c != colorPaused:
			c = colorRunning
		}
	}
	return c
}

// refresh rewrites the pixel when the colour changed. The ws2812 driver
// bit-bangs with interrupts off, so it only writes while every channel is
// idle and no FIFO needs feeding.
func (s *statusLED) refresh(t *core.Timer) uint8 {
	t.WakeTime = core.GetTime() + statusRefreshUs
	status := s.mgr.Status()
	c := healthColor(status)
	if s.shown && c == s.last {
		return core.SF_RESCHEDULE
	}
	for _, st := range status {
		if st.State != core.StateIdle.String() {
			t.WakeTime = core.GetTime() + statusRefreshUs/10
			return core.SF_RESCHEDULE
		}
	}
	if err := s.dev.WriteColors([]color.RGBA{c}); err == nil {
		s.last, s.shown = c, true
	}
	return core.SF_RESCHEDULE
}
