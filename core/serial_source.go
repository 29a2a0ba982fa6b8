package core

import "errors"

// SerialMode selects the framing a SerialSource applies around channel data
type SerialMode uint8

const (
	SerialModeGeneric SerialMode = iota
	SerialModeDMX
	SerialModeRenard
)

var ErrBadSerialMode = errors.New("unknown serial mode")

// DMX512 allows at most 512 slots after the start code
const DMXMaxSlots = 512

// Renard framing bytes
const (
	renardSync    = 0x7E
	renardAddress = 0x80 // first controller
	renardPad     = 0x7D
	renardEscape  = 0x7F
)

func (m SerialMode) String() string {
	switch m {
	case SerialModeGeneric:
		return "serial"
	case SerialModeDMX:
		return "dmx"
	case SerialModeRenard:
		return "renard"
	}
	return "unknown"
}

// ParseSerialMode maps a chipset name to its serial framing
func ParseSerialMode(name string) (SerialMode, error) {
	switch name {
	case "serial", "generic":
		return SerialModeGeneric, nil
	case "dmx":
		return SerialModeDMX, nil
	case "renard":
		return SerialModeRenard, nil
	}
	return SerialModeGeneric, ErrBadSerialMode
}

type serialPhase uint8

const (
	serialHeader serialPhase = iota
	serialData
	serialFooter
	serialDone
)

// SerialSource pumps raw channel bytes for DMX512, Renard and generic
// serial controllers. Values are sent unscaled.
type SerialSource struct {
	mode   SerialMode
	buf    []byte
	header []byte
	footer []byte

	phase   serialPhase
	pos     int
	pending int16 // second byte of a Renard escape, -1 when none
}

// NewSerialSource creates a pump over buf with the framing for mode
func NewSerialSource(mode SerialMode, buf []byte) *SerialSource {
	s := &SerialSource{mode: mode, buf: buf, phase: serialDone, pending: -1}
	switch mode {
	case SerialModeDMX:
		s.header = []byte{0x00} // start code
	case SerialModeRenard:
		s.header = []byte{renardSync, renardAddress}
	}
	return s
}

// SetFraming replaces the generic header and footer. DMX and Renard frame
// themselves and ignore it.
func (s *SerialSource) SetFraming(header, footer []byte) {
	if s.mode != SerialModeGeneric {
		return
	}
	s.header = header
	s.footer = footer
}

// SetBuffer replaces the channel buffer. Only legal while idle.
func (s *SerialSource) SetBuffer(buf []byte) {
	s.buf = buf
}

// Mode returns the framing mode
func (s *SerialSource) Mode() SerialMode {
	return s.mode
}

func (s *SerialSource) slots() int {
	if s.mode == SerialModeDMX && len(s.buf) > DMXMaxSlots {
		return DMXMaxSlots
	}
	return len(s.buf)
}

func (s *SerialSource) StartNewFrame() {
	s.phase = serialHeader
	s.pos = 0
	s.pending = -1
	s.settle()
}

func (s *SerialSource) MoreDataToSend() bool {
	return s.phase != serialDone
}

func (s *SerialSource) NextIntensityToSend() uint8 {
	if s.pending >= 0 {
		v := uint8(s.pending)
		s.pending = -1
		s.settle()
		return v
	}

	var v uint8
	switch s.phase {
	case serialHeader:
		v = s.header[s.pos]
	case serialData:
		v = s.buf[s.pos]
		if s.mode == SerialModeRenard {
			v = s.renardEscape(v)
		}
	case serialFooter:
		v = s.footer[s.pos]
	default:
		return 0
	}
	s.pos++
	s.settle()
	return v
}

// renardEscape replaces the reserved sync, pad and escape values with a
// two byte sequence and returns the first byte
func (s *SerialSource) renardEscape(v uint8) uint8 {
	switch v {
	case renardPad:
		s.pending = 0x2F
	case renardSync:
		s.pending = 0x30
	case renardEscape:
		s.pending = 0x31
	default:
		return v
	}
	return renardEscape
}

func (s *SerialSource) IntensityMultiplier() uint32 {
	return 1
}

func (s *SerialSource) FrameLength() int {
	n := s.slots()
	if s.mode == SerialModeRenard {
		n *= 2
	}
	return len(s.header) + n + len(s.footer)
}

func (s *SerialSource) settle() {
	if s.pending >= 0 {
		return
	}
	for {
		switch s.phase {
		case serialHeader:
			if s.pos < len(s.header) {
				return
			}
			s.phase, s.pos = serialData, 0
		case serialData:
			if s.pos < s.slots() {
				return
			}
			s.phase, s.pos = serialFooter, 0
		case serialFooter:
			if s.pos < len(s.footer) {
				return
			}
			s.phase = serialDone
		default:
			return
		}
	}
}
