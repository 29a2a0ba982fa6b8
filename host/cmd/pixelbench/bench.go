package main

import (
	"reflect"
	"time"

	"github.com/golang/glog"

	"pixelgopper/config"
	"pixelgopper/core"
	hostserial "pixelgopper/host/serial"
	"pixelgopper/host/sim"
)

// pioTickNs is one PIO cycle at the 40 MHz the firmware clocks the
// pulse state machines at
const pioTickNs = 25

// channelReport collects the round trip results of one channel
type channelReport struct {
	ID         uint8
	Chipset    string
	Transport  string
	Frames     int
	Mismatches int
	Unchecked  int
	WireMaxUs  uint32
	WireSumUs  uint64
	Stats      core.TransportStats
}

func (r *channelReport) wire(us uint32) {
	r.WireSumUs += uint64(us)
	if us > r.WireMaxUs {
		r.WireMaxUs = us
	}
}

// bench runs channels on simulated peripherals, or serial channels on
// USB-UART adapters, and checks every emitted frame decodes back to what
// the pump produced
type bench struct {
	cfg    *config.Config
	pulse  *sim.PulseDriver
	serial *sim.SerialDriver
	uart   *hostserial.UARTDriver
	mgr    *core.OutputManager

	expected map[uint8][][]uint32
	reports  []*channelReport
	byID     map[uint8]*channelReport
	t0       time.Time
}

func newBench(cfg *config.Config, uart *hostserial.UARTDriver) *bench {
	b := &bench{
		cfg:      cfg,
		pulse:    sim.NewPulseDriver(pioTickNs),
		serial:   sim.NewSerialDriver(sim.SerialFifoDepth),
		uart:     uart,
		mgr:      core.NewOutputManager(),
		expected: map[uint8][][]uint32{},
		byID:     map[uint8]*channelReport{},
		t0:       time.Now(),
	}
	core.SetPulseDriver(b.pulse)
	if uart != nil {
		core.SetSerialDriver(uart)
	} else {
		core.SetSerialDriver(b.serial)
	}
	core.SetTime(0)
	core.TimerInit()

	for _, cc := range cfg.Channels {
		ch, err := b.mgr.AddChannel(cc)
		if err != nil {
			glog.Warningf("channel %d (%s) disabled: %v", cc.ID, cc.Chipset, err)
			continue
		}
		c := ch.Config()
		r := &channelReport{ID: c.ID, Chipset: c.Chipset, Transport: c.Transport}
		b.reports = append(b.reports, r)
		b.byID[c.ID] = r
		glog.V(1).Infof("channel %d: %s over %s, %d pixels", c.ID, c.Chipset, c.Transport, c.Pixels)
	}
	return b
}

// pattern fills buf with a walking ramp that differs per frame and channel
func pattern(buf []byte, frame int, id uint8) []byte {
	for i := range buf {
		buf[i] = byte(i*7 + frame*13 + int(id)*31)
	}
	return buf
}

// run renders frames frames, one per refresh period
func (b *bench) run(frames int) {
	for f := 0; f < frames; f++ {
		start := core.GetTime()
		for _, ch := range b.mgr.Channels() {
			if !ch.Ready() || ch.State() != core.StateIdle {
				continue
			}
			if _, err := ch.SetIntensities(pattern(make([]byte, len(ch.Buffer())), f, ch.ID())); err != nil {
				glog.Errorf("channel %d: %v", ch.ID(), err)
				continue
			}
			want := walkPump(ch.Pump())
			if ch.Render() {
				b.expected[ch.ID()] = append(b.expected[ch.ID()], want)
			}
		}
		b.advance(start + b.cfg.RefreshUs)
		b.collect()
	}
	for _, st := range b.mgr.Status() {
		if r := b.byID[st.ID]; r != nil {
			r.Stats = st.TransportStats
		}
	}
}

// walkPump returns the intensities the next frame will carry. The pump
// restarts on Render, so walking it while idle is harmless.
func walkPump(p core.FramePump) []uint32 {
	p.StartNewFrame()
	mult := p.IntensityMultiplier()
	values := make([]uint32, 0, p.FrameLength())
	for p.MoreDataToSend() {
		values = append(values, uint32(p.NextIntensityToSend())*mult)
	}
	return values
}

func (b *bench) busy() bool {
	for _, ch := range b.mgr.Channels() {
		if ch.Ready() && ch.State() != core.StateIdle {
			return true
		}
	}
	return false
}

// advance moves the clock to until and past the end of every frame in
// flight. Simulated time steps a microsecond at a time; with adapters
// attached the core clock follows the wall clock.
func (b *bench) advance(until uint32) {
	limit := until + core.TimerFreq
	for {
		now := core.GetTime()
		if core.TimeReached(now, until) && !b.busy() {
			return
		}
		if core.TimeReached(now, limit) {
			glog.Warningf("frames still in flight at %dus", now)
			return
		}
		if b.uart != nil {
			time.Sleep(100 * time.Microsecond)
			now = uint32(time.Since(b.t0) / time.Microsecond)
		} else {
			now++
		}
		core.SetTime(now)
		b.pulse.Poll(now)
		b.serial.Poll(now)
		core.ProcessTimers()
	}
}

// collect decodes the frames the peripherals emitted since the last call
func (b *bench) collect() {
	for _, ch := range b.mgr.Channels() {
		r := b.byID[ch.ID()]
		if r == nil || !ch.Ready() {
			continue
		}
		width := ch.GetStatus().IntensityWidth
		switch t := ch.Transport().(type) {
		case *core.PulseTransport:
			hw := b.pulse.Channel(ch.Config().Peripheral)
			if hw == nil {
				continue
			}
			for _, f := range hw.TakeFrames() {
				got, err := t.Table().Decode(f.Items, width)
				b.check(ch.ID(), got, err)
				r.wire(f.End - f.Start)
			}
		case *core.SerialTransport:
			if b.uart != nil {
				// bytes left on the wire; count what completed
				n := len(b.expected[ch.ID()])
				r.Frames += n
				r.Unchecked += n
				b.expected[ch.ID()] = nil
				continue
			}
			port := b.serial.Port(ch.Config().Peripheral)
			if port == nil {
				continue
			}
			for _, f := range port.TakeFrames() {
				got, err := t.Table().Decode(f.Bytes, width)
				b.check(ch.ID(), got, err)
				r.wire(f.End - f.Start)
			}
			if n := port.Overruns(); n > 0 {
				glog.Errorf("channel %d: %d FIFO overruns", ch.ID(), n)
			}
		}
	}
}

func (b *bench) check(id uint8, got []uint32, err error) {
	r := b.byID[id]
	r.Frames++
	queue := b.expected[id]
	if len(queue) == 0 {
		glog.Errorf("channel %d: unexpected frame", id)
		r.Mismatches++
		return
	}
	want := queue[0]
	b.expected[id] = queue[1:]
	if err != nil {
		glog.Errorf("channel %d frame %d: decode: %v", id, r.Frames, err)
		r.Mismatches++
		return
	}
	if !reflect.DeepEqual(want, got) {
		glog.Errorf("channel %d frame %d: sent %d values, decoded %d differing", id, r.Frames, len(want), len(got))
		r.Mismatches++
		return
	}
	glog.V(2).Infof("channel %d frame %d: %d values ok", id, r.Frames, len(got))
}

// failed reports whether any channel saw a mismatch
func (b *bench) failed() bool {
	for _, r := range b.reports {
		if r.Mismatches > 0 {
			return true
		}
	}
	return false
}

func (b *bench) close() {
	b.mgr.Close()
}
