package protocol

import "errors"

var (
	ErrBadDataFrame     = errors.New("unsupported UART data frame")
	ErrBadBitsPerSlot   = errors.New("bits per UART slot must be 1 or 2")
	ErrPatternCount     = errors.New("translation table size does not match bits per slot")
	ErrUnevenLineBits   = errors.New("UART frame does not divide evenly into intensity bits")
	ErrDuplicatePattern = errors.New("translation table has duplicate patterns")
	ErrNoRate           = errors.New("serial timing has no data rate")
)

// DataFrame selects the UART word length and stop bits (no parity)
type DataFrame uint8

const (
	UART5N1 DataFrame = iota
	UART5N2
	UART6N1
	UART6N2
	UART7N1
	UART7N2
	UART8N1
	UART8N2
)

// DataBits returns the word length of the frame
func (f DataFrame) DataBits() uint8 {
	return 5 + uint8(f)/2
}

// StopBits returns 1 or 2
func (f DataFrame) StopBits() uint8 {
	return 1 + uint8(f)%2
}

// LineBits is the number of bit times one UART byte occupies on the wire
func (f DataFrame) LineBits() uint8 {
	return 1 + f.DataBits() + f.StopBits()
}

func (f DataFrame) String() string {
	if f > UART8N2 {
		return "invalid"
	}
	return string([]byte{'0' + f.DataBits(), 'N', '0' + f.StopBits()})
}

// SerialTiming describes how a protocol is carried over a UART.
//
// Translated encodings (Patterns set) send one UART byte per BitsPerSlot
// intensity bits; the UART start and stop bits are part of the pixel
// waveform, so the baud rate is the line bits per intensity bit times the
// pixel data rate. Raw encodings send intensity bytes unchanged at BaudRate.
type SerialTiming struct {
	Frame  DataFrame
	Invert bool

	// ResetNs is the idle line time that latches a frame
	ResetNs uint32

	BitsPerSlot uint8
	Patterns    []byte
	DataRateHz  uint32

	BaudRate uint32
}

// Translated reports whether intensities are converted to line patterns
func (t SerialTiming) Translated() bool {
	return len(t.Patterns) > 0
}

// SerialTable holds the resolved UART parameters for one channel
type SerialTable struct {
	patterns    [4]byte
	bitsPerSlot uint8
	translated  bool
	frame       DataFrame
	invert      bool
	baud        uint32
	lineBits    uint8 // line bits per intensity bit
	resetNs     uint32
}

// NewSerialTable validates a serial timing and derives the baud rate
func NewSerialTable(timing SerialTiming) (*SerialTable, error) {
	if timing.Frame > UART8N2 {
		return nil, ErrBadDataFrame
	}
	t := &SerialTable{
		frame:      timing.Frame,
		invert:     timing.Invert,
		translated: timing.Translated(),
		resetNs:    timing.ResetNs,
	}

	if !t.translated {
		if timing.BaudRate == 0 {
			return nil, ErrNoRate
		}
		t.bitsPerSlot = 8
		t.baud = timing.BaudRate
		return t, nil
	}

	if timing.BitsPerSlot != 1 && timing.BitsPerSlot != 2 {
		return nil, ErrBadBitsPerSlot
	}
	if len(timing.Patterns) != 1<<timing.BitsPerSlot {
		return nil, ErrPatternCount
	}
	if timing.DataRateHz == 0 {
		return nil, ErrNoRate
	}
	lineBits := timing.Frame.LineBits()
	if lineBits%timing.BitsPerSlot != 0 {
		return nil, ErrUnevenLineBits
	}
	for i := range timing.Patterns {
		for j := i + 1; j < len(timing.Patterns); j++ {
			if timing.Patterns[i] == timing.Patterns[j] {
				return nil, ErrDuplicatePattern
			}
		}
	}

	copy(t.patterns[:], timing.Patterns)
	t.bitsPerSlot = timing.BitsPerSlot
	t.lineBits = lineBits / timing.BitsPerSlot
	t.baud = uint32(t.lineBits) * timing.DataRateHz
	return t, nil
}

// Baud returns the UART baud rate
func (t *SerialTable) Baud() uint32 {
	return t.baud
}

// Frame returns the UART data frame
func (t *SerialTable) Frame() DataFrame {
	return t.frame
}

// ResetUs is the idle time after a frame before the next may start,
// rounded up
func (t *SerialTable) ResetUs() uint32 {
	return uint32((uint64(t.resetNs) + 999) / 1000)
}

// ByteUs is the wire time of one UART byte, rounded up
func (t *SerialTable) ByteUs() uint32 {
	if t.baud == 0 {
		return 0
	}
	return uint32((uint64(t.frame.LineBits())*1000000 + uint64(t.baud) - 1) / uint64(t.baud))
}

// Invert reports whether the line must be inverted relative to standard UART idle
func (t *SerialTable) Invert() bool {
	return t.invert
}

// Translated reports whether intensity bits are translated into line patterns
func (t *SerialTable) Translated() bool {
	return t.translated
}

// BitsPerSlot is the number of intensity bits carried per UART byte
func (t *SerialTable) BitsPerSlot() uint8 {
	return t.bitsPerSlot
}

// LineBitsPerIntensityBit returns the bit times one intensity bit spans
func (t *SerialTable) LineBitsPerIntensityBit() uint8 {
	return t.lineBits
}

// SlotsPerIntensity returns the UART bytes needed for one value of the given width
func (t *SerialTable) SlotsPerIntensity(width uint8) int {
	if !t.translated {
		return 1
	}
	return int(width / t.bitsPerSlot)
}

// Translate returns the UART byte for a group of BitsPerSlot intensity bits
func (t *SerialTable) Translate(group uint8) byte {
	return t.patterns[group&3]
}

// SetPattern replaces the UART byte for one bit group
func (t *SerialTable) SetPattern(group uint8, value byte) {
	t.patterns[group&3] = value
}

// Lookup returns the UART byte for the all-zeros and all-ones bit groups.
// Start and stop framing is carried by the UART itself and has no entry.
func (t *SerialTable) Lookup(s Symbol) byte {
	switch s {
	case SymbolZeroBit:
		return t.patterns[0]
	case SymbolOneBit:
		return t.patterns[(1<<t.bitsPerSlot)-1]
	}
	return 0
}

// Demux maps a UART byte back to the bit group it encodes
func (t *SerialTable) Demux(b byte) (group uint8, ok bool) {
	for g := 0; g < 1<<t.bitsPerSlot && t.translated; g++ {
		if t.patterns[g] == b {
			return uint8(g), true
		}
	}
	return 0, false
}

// Decode reassembles intensity values of the given width from a captured
// UART byte stream.
func (t *SerialTable) Decode(stream []byte, width uint8) ([]uint32, error) {
	if !t.translated {
		values := make([]uint32, len(stream))
		for i, b := range stream {
			values[i] = uint32(b)
		}
		return values, nil
	}

	slots := t.SlotsPerIntensity(width)
	if len(stream)%slots != 0 {
		return nil, errors.New("stream ends mid-value")
	}
	values := make([]uint32, 0, len(stream)/slots)
	for i := 0; i < len(stream); i += slots {
		var v uint32
		for _, b := range stream[i : i+slots] {
			g, ok := t.Demux(b)
			if !ok {
				return values, errors.New("unrecognised UART pattern")
			}
			v = v<<t.bitsPerSlot | uint32(g)
		}
		values = append(values, v)
	}
	return values, nil
}
