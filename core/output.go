package core

import (
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"pixelgopper/protocol"
)

// Transport kinds a channel can be built on
const (
	TransportPulse  = "pulse"
	TransportSerial = "serial"
)

var (
	ErrUnknownField    = errors.New("unknown config field")
	ErrBadFieldValue   = errors.New("invalid value for config field")
	ErrNoTransport     = errors.New("chipset cannot be driven by this transport")
	ErrChannelDisabled = errors.New("channel is not configured")
)

// ChannelConfig is the configuration of one output channel
type ChannelConfig struct {
	ID         uint8  `json:"id" yaml:"id"`
	Chipset    string `json:"chipset" yaml:"chipset"`
	Transport  string `json:"transport,omitempty" yaml:"transport,omitempty"`
	Peripheral uint8  `json:"peripheral" yaml:"peripheral"` // pulse state machine or UART number
	Pin        uint8  `json:"pin" yaml:"pin"`

	// Pixels is the pixel count, or the slot count for serial chipsets
	Pixels     int    `json:"pixels" yaml:"pixels"`
	ColorOrder string `json:"color_order,omitempty" yaml:"color_order,omitempty"`
	Brightness uint8  `json:"brightness" yaml:"brightness"`

	MinFrameUs      uint32 `json:"min_frame_us" yaml:"min_frame_us"`
	InterframeGapUs uint32 `json:"interframe_gap_us,omitempty" yaml:"interframe_gap_us,omitempty"`
	Invert          bool   `json:"invert,omitempty" yaml:"invert,omitempty"`
	FifoThreshold   uint8  `json:"fifo_threshold,omitempty" yaml:"fifo_threshold,omitempty"`

	// Hex encoded byte sequences injected around the pixel data
	FramePrepend string `json:"frame_prepend,omitempty" yaml:"frame_prepend,omitempty"`
	PixelPrepend string `json:"pixel_prepend,omitempty" yaml:"pixel_prepend,omitempty"`
	FrameAppend  string `json:"frame_append,omitempty" yaml:"frame_append,omitempty"`
}

// ConfigResult reports which SetConfig fields took effect
type ConfigResult struct {
	Accepted []string
	Rejected map[string]error
}

// OK reports whether every field was accepted
func (r ConfigResult) OK() bool {
	return len(r.Rejected) == 0
}

// ChannelStatus is the read-back of a channel's live parameters
type ChannelStatus struct {
	ID              uint8  `json:"id"`
	Chipset         string `json:"chipset"`
	Transport       string `json:"transport"`
	State           string `json:"state"`
	Pin             uint8  `json:"pin"`
	Pixels          int    `json:"pixels"`
	ColorOrder      string `json:"color_order,omitempty"`
	Brightness      uint8  `json:"brightness"`
	IntensityWidth  uint8  `json:"intensity_width"`
	MinFrameUs      uint32 `json:"min_frame_us"`
	InterframeGapUs uint32 `json:"interframe_gap_us,omitempty"`
	TickNs          uint32 `json:"tick_ns,omitempty"`
	Baud            uint32 `json:"baud,omitempty"`
	Paused          bool   `json:"paused,omitempty"`
	Error           string `json:"error,omitempty"`

	TransportStats
}

// OutputChannel owns one intensity buffer, its frame pump and the transport
// that renders it.
type OutputChannel struct {
	cfg  ChannelConfig
	info protocol.ChipsetInfo
	buf  []byte

	pump   FramePump
	pixels *PixelSource
	slots  *SerialSource

	transport Transport
	pulse     *PulseTransport
	serial    *SerialTransport

	err error
}

// NewOutputChannel creates a channel. Begin claims its hardware.
func NewOutputChannel(cfg ChannelConfig) *OutputChannel {
	return &OutputChannel{cfg: cfg}
}

// Begin resolves the chipset, builds the pump and transport and claims the
// peripheral. On failure the channel is left unconfigured and Render does
// nothing.
func (c *OutputChannel) Begin() error {
	c.err = c.begin(c.cfg)
	if c.err != nil {
		RecordTiming(EvtBeginFailed, c.cfg.ID, GetTime(), 0, 0)
	}
	return c.err
}

func (c *OutputChannel) begin(cfg ChannelConfig) error {
	c.release()

	chipset, err := protocol.ParseChipset(cfg.Chipset)
	if err != nil {
		return err
	}
	info, err := chipset.Info()
	if err != nil {
		return err
	}
	kind, err := transportKind(cfg.Transport, info)
	if err != nil {
		return err
	}
	framePrepend, err := hex.DecodeString(cfg.FramePrepend)
	if err != nil {
		return ErrBadFieldValue
	}
	pixelPrepend, err := hex.DecodeString(cfg.PixelPrepend)
	if err != nil {
		return ErrBadFieldValue
	}
	frameAppend, err := hex.DecodeString(cfg.FrameAppend)
	if err != nil {
		return ErrBadFieldValue
	}
	if cfg.Pixels < 0 {
		return ErrBadFieldValue
	}

	var pump FramePump
	var pixels *PixelSource
	var slots *SerialSource
	var buf []byte
	if info.IsPixel() {
		order := DefaultColorOrder(info.ChannelsPerPixel)
		if cfg.ColorOrder != "" {
			order, err = ParseColorOrder(cfg.ColorOrder)
			if err != nil {
				return err
			}
			if order.Channels() != int(info.ChannelsPerPixel) {
				return ErrBadColorOrder
			}
		}
		buf = make([]byte, cfg.Pixels*order.Channels())
		copy(buf, c.buf)
		multiplier := uint32(1)
		if info.IntensityWidth == protocol.IntensityWidth16 {
			multiplier = 257
		}
		pixels = NewPixelSource(buf, order, multiplier)
		pixels.SetBrightness(cfg.Brightness)
		pixels.SetFraming(framePrepend, pixelPrepend, frameAppend)
		pump = pixels
	} else {
		mode, err := ParseSerialMode(info.Name)
		if err != nil {
			return err
		}
		n := cfg.Pixels
		if mode == SerialModeDMX && n > DMXMaxSlots {
			n = DMXMaxSlots
		}
		buf = make([]byte, n)
		copy(buf, c.buf)
		slots = NewSerialSource(mode, buf)
		slots.SetFraming(framePrepend, frameAppend)
		pump = slots
	}

	switch kind {
	case TransportPulse:
		t := NewPulseTransport()
		err = t.Begin(PulseTransportConfig{
			Channel:         cfg.ID,
			Peripheral:      cfg.Peripheral,
			Pin:             GPIOPin(cfg.Pin),
			Timing:          *info.Pulse,
			IntensityWidth:  info.IntensityWidth,
			MinFrameUs:      cfg.MinFrameUs,
			InterframeGapUs: cfg.InterframeGapUs,
			Pump:            pump,
		})
		if err != nil {
			return err
		}
		c.pulse, c.transport = t, t
	case TransportSerial:
		t := NewSerialTransport()
		err = t.Begin(SerialTransportConfig{
			Channel:        cfg.ID,
			Port:           cfg.Peripheral,
			Pin:            GPIOPin(cfg.Pin),
			Timing:         *info.Serial,
			IntensityWidth: info.IntensityWidth,
			InvertOutput:   cfg.Invert,
			FifoThreshold:  cfg.FifoThreshold,
			MinFrameUs:     cfg.MinFrameUs,
			BreakUs:        info.BreakUs,
			MarkUs:         info.MarkUs,
			Pump:           pump,
		})
		if err != nil {
			return err
		}
		c.serial, c.transport = t, t
	}

	cfg.Transport = kind
	c.cfg = cfg
	c.info = info
	c.buf = buf
	c.pump = pump
	c.pixels = pixels
	c.slots = slots
	return nil
}

// transportKind picks the pulse transport when the chipset supports both
// and none was requested
func transportKind(requested string, info protocol.ChipsetInfo) (string, error) {
	switch strings.ToLower(requested) {
	case "":
		if info.Pulse != nil {
			return TransportPulse, nil
		}
		return TransportSerial, nil
	case TransportPulse:
		if info.Pulse == nil {
			return "", ErrNoTransport
		}
		return TransportPulse, nil
	case TransportSerial, "uart":
		if info.Serial == nil {
			return "", ErrNoTransport
		}
		return TransportSerial, nil
	}
	return "", ErrNoTransport
}

func (c *OutputChannel) release() {
	if c.transport != nil {
		c.transport.Release()
	}
	c.transport, c.pulse, c.serial = nil, nil, nil
}

// Close releases the channel's hardware
func (c *OutputChannel) Close() {
	c.release()
	c.err = ErrChannelDisabled
}

// ID returns the channel id
func (c *OutputChannel) ID() uint8 {
	return c.cfg.ID
}

// Ready reports whether the channel has working hardware
func (c *OutputChannel) Ready() bool {
	return c.transport != nil
}

// Err returns the error from the last Begin or reconfiguration
func (c *OutputChannel) Err() error {
	return c.err
}

// Config returns the configuration in effect
func (c *OutputChannel) Config() ChannelConfig {
	return c.cfg
}

// Transport returns the channel's transport, nil when unconfigured
func (c *OutputChannel) Transport() Transport {
	return c.transport
}

// Pump returns the channel's frame pump
func (c *OutputChannel) Pump() FramePump {
	return c.pump
}

func (c *OutputChannel) idle() bool {
	return c.transport == nil || c.transport.State() == StateIdle
}

// Buffer returns the intensity buffer. Callers may write it only while
// State is idle; use SetIntensities for a checked copy.
func (c *OutputChannel) Buffer() []byte {
	return c.buf
}

// State returns the transport state, idle when unconfigured
func (c *OutputChannel) State() FrameState {
	if c.transport == nil {
		return StateIdle
	}
	return c.transport.State()
}

// SetIntensities copies data into the buffer, truncating to its length.
// Refused while a frame is in flight.
func (c *OutputChannel) SetIntensities(data []byte) (int, error) {
	if !c.idle() {
		return 0, ErrBusy
	}
	return copy(c.buf, data), nil
}

// SetBufferSize resizes the buffer to n pixels (or slots)
func (c *OutputChannel) SetBufferSize(n int) error {
	if n < 0 {
		return ErrBadFieldValue
	}
	if !c.idle() {
		return ErrBusy
	}
	if c.pump == nil {
		c.cfg.Pixels = n
		return nil
	}

	size := n
	if c.pixels != nil {
		size = n * c.pixels.ColorOrder().Channels()
	} else if c.slots.Mode() == SerialModeDMX && size > DMXMaxSlots {
		size = DMXMaxSlots
	}
	buf := make([]byte, size)
	copy(buf, c.buf)
	if c.pixels != nil {
		c.pixels.SetBuffer(buf)
	} else {
		c.slots.SetBuffer(buf)
	}
	if c.pulse != nil {
		if err := c.pulse.SetFrameCapacity(c.pump.FrameLength()); err != nil {
			return err
		}
	}
	c.buf = buf
	c.cfg.Pixels = n
	return nil
}

// Render asks the transport to start a frame
func (c *OutputChannel) Render() bool {
	if c.transport == nil {
		return false
	}
	return c.transport.Render()
}

// Pause suspends a serial channel mid-frame
func (c *OutputChannel) Pause() error {
	if c.serial == nil {
		return ErrNotSupported
	}
	c.serial.Pause()
	return nil
}

// Resume continues a paused serial channel
func (c *OutputChannel) Resume() error {
	if c.serial == nil {
		return ErrNotSupported
	}
	c.serial.Resume()
	return nil
}

// hardwareFields need the channel rebuilt; the rest apply in place
var hardwareFields = map[string]bool{
	"chipset":        true,
	"transport":      true,
	"peripheral":     true,
	"invert":         true,
	"fifo_threshold": true,
	"frame_prepend":  true,
	"pixel_prepend":  true,
	"frame_append":   true,
}

// SetConfig applies JSON-shaped fields. Each field is accepted or rejected
// on its own; rejected fields keep their previous value. A rebuild that
// fails rolls the channel back to its previous configuration, then retries
// the rebuild fields one at a time so only the ones that fail are rejected.
// The intensity buffer survives both.
func (c *OutputChannel) SetConfig(fields map[string]interface{}) ConfigResult {
	res := ConfigResult{Rejected: map[string]error{}}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	if !c.idle() {
		for _, name := range names {
			c.reject(&res, name, ErrBusy)
		}
		return res
	}

	next := c.cfg
	var rebuild, live []string
	for _, name := range names {
		if err := setField(&next, name, fields[name]); err != nil {
			c.reject(&res, name, err)
			continue
		}
		if hardwareFields[name] || c.transport == nil {
			rebuild = append(rebuild, name)
		} else {
			live = append(live, name)
		}
	}

	if len(rebuild) > 0 {
		prev := c.cfg
		if err := c.begin(next); err != nil {
			c.rollback(prev)
			if c.transport == nil || len(rebuild) == 1 {
				for _, name := range rebuild {
					c.reject(&res, name, err)
				}
			} else {
				c.rebuildEach(&res, rebuild, fields)
			}
		} else {
			c.err = nil
			res.Accepted = append(res.Accepted, rebuild...)
			// live fields were applied by the rebuild
			res.Accepted = append(res.Accepted, live...)
			sort.Strings(res.Accepted)
			return res
		}
	}

	for _, name := range live {
		if c.transport == nil {
			c.reject(&res, name, ErrChannelDisabled)
			continue
		}
		if err := c.applyLive(name, next); err != nil {
			c.reject(&res, name, err)
			continue
		}
		res.Accepted = append(res.Accepted, name)
	}
	sort.Strings(res.Accepted)
	return res
}

// rebuildEach applies rebuild fields one at a time on a working channel,
// rolling back after each one that fails
func (c *OutputChannel) rebuildEach(res *ConfigResult, names []string, fields map[string]interface{}) {
	for _, name := range names {
		prev := c.cfg
		trial := c.cfg
		if err := setField(&trial, name, fields[name]); err != nil {
			c.reject(res, name, err)
			continue
		}
		if err := c.begin(trial); err != nil {
			c.reject(res, name, err)
			c.rollback(prev)
			continue
		}
		res.Accepted = append(res.Accepted, name)
	}
}

// rollback restores the previous working configuration after a failed
// rebuild
func (c *OutputChannel) rollback(prev ChannelConfig) {
	if err := c.begin(prev); err != nil {
		c.err = err
		return
	}
	c.err = nil
}

func (c *OutputChannel) reject(res *ConfigResult, name string, err error) {
	res.Rejected[name] = err
	RecordTiming(EvtConfigReject, c.cfg.ID, GetTime(), uint32(len(res.Rejected)), 0)
}

// applyLive changes one field on the running channel
func (c *OutputChannel) applyLive(name string, next ChannelConfig) error {
	switch name {
	case "id":
		c.cfg.ID = next.ID
	case "pixels":
		return c.SetBufferSize(next.Pixels)
	case "pin":
		if err := c.transport.SetPin(GPIOPin(next.Pin)); err != nil {
			return err
		}
		c.cfg.Pin = next.Pin
	case "min_frame_us":
		if err := c.transport.SetMinFrameDuration(next.MinFrameUs); err != nil {
			return err
		}
		c.cfg.MinFrameUs = next.MinFrameUs
	case "interframe_gap_us":
		if c.pulse == nil {
			return ErrNotSupported
		}
		if err := c.pulse.SetInterframeGap(next.InterframeGapUs); err != nil {
			return err
		}
		c.cfg.InterframeGapUs = next.InterframeGapUs
	case "brightness":
		if c.pixels == nil {
			return ErrNotSupported
		}
		c.pixels.SetBrightness(next.Brightness)
		c.cfg.Brightness = next.Brightness
	case "color_order":
		if c.pixels == nil {
			return ErrNotSupported
		}
		order, err := ParseColorOrder(next.ColorOrder)
		if err != nil {
			return err
		}
		if order.Channels() != c.pixels.ColorOrder().Channels() {
			return ErrBadColorOrder
		}
		c.pixels.SetColorOrder(order)
		c.cfg.ColorOrder = next.ColorOrder
	default:
		return ErrUnknownField
	}
	return nil
}

// GetStatus reads back the live timing parameters and frame counters
func (c *OutputChannel) GetStatus() ChannelStatus {
	st := ChannelStatus{
		ID:         c.cfg.ID,
		Chipset:    c.cfg.Chipset,
		Transport:  c.cfg.Transport,
		State:      c.State().String(),
		Pin:        c.cfg.Pin,
		Pixels:     c.cfg.Pixels,
		ColorOrder: c.cfg.ColorOrder,
		Brightness: c.cfg.Brightness,
		MinFrameUs: c.cfg.MinFrameUs,
	}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	if c.transport == nil {
		return st
	}
	st.TransportStats = c.transport.Stats()
	st.MinFrameUs = c.transport.MinFrameDuration()
	st.IntensityWidth = c.info.IntensityWidth
	if c.pulse != nil {
		st.TickNs = c.pulse.Table().TickNs()
		st.InterframeGapUs = c.pulse.InterframeGapUs()
	}
	if c.serial != nil {
		st.Baud = c.serial.Table().Baud()
		st.Paused = c.serial.Paused()
	}
	return st
}
