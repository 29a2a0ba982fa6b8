package core

import (
	"errors"
	"strings"
)

var ErrBadColorOrder = errors.New("invalid color order")

// ColorOrder maps each transmitted channel of a pixel to its offset in the
// intensity buffer, which always holds pixels as R, G, B(, W).
type ColorOrder struct {
	offsets [4]uint8
	count   uint8
}

// ParseColorOrder accepts permutations such as "grb" or "rgbw"
func ParseColorOrder(s string) (ColorOrder, error) {
	s = strings.ToLower(s)
	if len(s) != 3 && len(s) != 4 {
		return ColorOrder{}, ErrBadColorOrder
	}
	var order ColorOrder
	var seen [4]bool
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte("rgbw", s[i])
		if idx < 0 || idx >= len(s) || seen[idx] {
			return ColorOrder{}, ErrBadColorOrder
		}
		seen[idx] = true
		order.offsets[i] = uint8(idx)
	}
	order.count = uint8(len(s))
	return order, nil
}

// DefaultColorOrder returns the identity order for n channels per pixel
func DefaultColorOrder(n uint8) ColorOrder {
	if n == 0 || n > 4 {
		n = 1
	}
	order := ColorOrder{count: n}
	for i := uint8(0); i < n; i++ {
		order.offsets[i] = i
	}
	return order
}

// Channels returns the number of channels per pixel
func (o ColorOrder) Channels() int {
	return int(o.count)
}

func (o ColorOrder) String() string {
	if o.count == 0 {
		return ""
	}
	b := make([]byte, o.count)
	for i := range b {
		b[i] = "rgbw"[o.offsets[i]]
	}
	return string(b)
}

type pixelPhase uint8

const (
	phaseFramePrepend pixelPhase = iota
	phasePixelPrepend
	phasePixel
	phaseFrameAppend
	phaseDone
)

// PixelSource pumps an intensity buffer of RGB(W) pixels. Each frame is
// the frame prepend bytes, then for every pixel the pixel prepend bytes and
// its channels in color order with brightness applied, then the frame append
// bytes.
type PixelSource struct {
	buf        []byte
	order      ColorOrder
	scale      [256]uint8
	brightness uint8
	multiplier uint32

	framePrepend []byte
	pixelPrepend []byte
	frameAppend  []byte

	phase pixelPhase
	pos   int
	pixel int
	sent  int
}

// NewPixelSource creates a pump over buf. The buffer is shared with the
// producer and must not be written while a frame is in flight.
func NewPixelSource(buf []byte, order ColorOrder, multiplier uint32) *PixelSource {
	if order.count == 0 {
		order = DefaultColorOrder(3)
	}
	if multiplier == 0 {
		multiplier = 1
	}
	s := &PixelSource{buf: buf, order: order, multiplier: multiplier}
	s.SetBrightness(255)
	s.phase = phaseDone
	return s
}

// SetBuffer replaces the intensity buffer. Only legal while the owning
// transport is idle.
func (s *PixelSource) SetBuffer(buf []byte) {
	s.buf = buf
}

// SetColorOrder changes the channel permutation
func (s *PixelSource) SetColorOrder(order ColorOrder) {
	s.order = order
}

// ColorOrder returns the channel permutation
func (s *PixelSource) ColorOrder() ColorOrder {
	return s.order
}

// SetBrightness rebuilds the scale table; 255 passes values through
func (s *PixelSource) SetBrightness(b uint8) {
	s.brightness = b
	for i := range s.scale {
		s.scale[i] = uint8(uint32(i) * uint32(b) / 255)
	}
}

// Brightness returns the current brightness
func (s *PixelSource) Brightness() uint8 {
	return s.brightness
}

// SetFraming sets the bytes sent before the frame, before every pixel and
// after the frame. Nil disables a sequence.
func (s *PixelSource) SetFraming(framePrepend, pixelPrepend, frameAppend []byte) {
	s.framePrepend = framePrepend
	s.pixelPrepend = pixelPrepend
	s.frameAppend = frameAppend
}

// Pixels returns the number of whole pixels in the buffer
func (s *PixelSource) Pixels() int {
	return len(s.buf) / s.order.Channels()
}

// Sent returns the values delivered so far in the current frame
func (s *PixelSource) Sent() int {
	return s.sent
}

func (s *PixelSource) StartNewFrame() {
	s.phase = phaseFramePrepend
	s.pos = 0
	s.pixel = 0
	s.sent = 0
	s.settle()
}

func (s *PixelSource) MoreDataToSend() bool {
	return s.phase != phaseDone
}

func (s *PixelSource) NextIntensityToSend() uint8 {
	var v uint8
	switch s.phase {
	case phaseFramePrepend:
		v = s.framePrepend[s.pos]
	case phasePixelPrepend:
		v = s.pixelPrepend[s.pos]
	case phasePixel:
		v = s.scale[s.buf[s.pixel*s.order.Channels()+int(s.order.offsets[s.pos])]]
	case phaseFrameAppend:
		v = s.frameAppend[s.pos]
	default:
		return 0
	}
	s.pos++
	s.sent++
	s.settle()
	return v
}

func (s *PixelSource) IntensityMultiplier() uint32 {
	return s.multiplier
}

func (s *PixelSource) FrameLength() int {
	return len(s.framePrepend) + len(s.frameAppend) +
		s.Pixels()*(len(s.pixelPrepend)+s.order.Channels())
}

// settle moves the cursor past exhausted or empty phases
func (s *PixelSource) settle() {
	for {
		switch s.phase {
		case phaseFramePrepend:
			if s.pos < len(s.framePrepend) {
				return
			}
			s.phase, s.pos = phasePixelPrepend, 0
		case phasePixelPrepend:
			if s.pixel >= s.Pixels() {
				s.phase, s.pos = phaseFrameAppend, 0
				continue
			}
			if s.pos < len(s.pixelPrepend) {
				return
			}
			s.phase, s.pos = phasePixel, 0
		case phasePixel:
			if s.pos < s.order.Channels() {
				return
			}
			s.pixel++
			s.phase, s.pos = phasePixelPrepend, 0
		case phaseFrameAppend:
			if s.pos < len(s.frameAppend) {
				return
			}
			s.phase = phaseDone
		default:
			return
		}
	}
}
