package protocol

import (
	"errors"
	"strings"
)

// Chipset identifies a supported pixel or serial protocol
type Chipset uint8

const (
	ChipsetNone Chipset = iota
	ChipsetWS2811
	ChipsetWS2812
	ChipsetSK6812
	ChipsetGS8208
	ChipsetUCS1903
	ChipsetTM1814
	ChipsetUCS8903
	ChipsetAPA106
	ChipsetDMX
	ChipsetRenard
	ChipsetSerial
	numChipsets
)

var ErrUnknownChipset = errors.New("unknown chipset")

// ChipsetInfo is the protocol descriptor for one chipset. Pulse is set when
// the chipset can be generated by a pulse-train peripheral, Serial when it
// can be carried over a UART.
type ChipsetInfo struct {
	Name             string
	Pulse            *PulseTiming
	Serial           *SerialTiming
	IntensityWidth   uint8
	ChannelsPerPixel uint8

	// Break and mark-after-break sent before each frame (DMX)
	BreakUs uint32
	MarkUs  uint32
}

// IsPixel reports whether the chipset drives addressable pixels
func (c ChipsetInfo) IsPixel() bool {
	return c.ChannelsPerPixel != 0
}

// Inverted 6N1 patterns for two intensity bits per UART byte, four line bits
// per intensity bit. Index is the bit pair, first transmitted bit in bit 1.
var twoBitPatterns = []byte{
	0b00110111, // 00
	0b00000111, // 01
	0b00110100, // 10
	0b00000100, // 11
}

// Inverted 8N1 patterns for one intensity bit per UART byte, ten line bits
var oneBitPatterns = []byte{
	0b11111100, // 0: 3 high, 7 low
	0b11000000, // 1: 7 high, 3 low
}

var chipsets = [numChipsets]ChipsetInfo{
	ChipsetWS2811: {
		Name: "ws2811",
		Pulse: &PulseTiming{
			Bit0HighNs: 250, Bit0LowNs: 1000,
			Bit1HighNs: 1000, Bit1LowNs: 250,
			ResetNs:    300000,
			DataRateHz: 800000,
		},
		Serial: &SerialTiming{
			Frame: UART6N1, Invert: true,
			BitsPerSlot: 2, Patterns: twoBitPatterns,
			DataRateHz: 800000,
			ResetNs:    300000,
		},
		IntensityWidth:   IntensityWidth8,
		ChannelsPerPixel: 3,
	},
	ChipsetWS2812: {
		Name: "ws2812",
		Pulse: &PulseTiming{
			Bit0HighNs: 400, Bit0LowNs: 850,
			Bit1HighNs: 800, Bit1LowNs: 450,
			ResetNs:    50000,
			DataRateHz: 800000,
		},
		Serial: &SerialTiming{
			Frame: UART6N1, Invert: true,
			BitsPerSlot: 2, Patterns: twoBitPatterns,
			DataRateHz: 800000,
			ResetNs:    50000,
		},
		IntensityWidth:   IntensityWidth8,
		ChannelsPerPixel: 3,
	},
	ChipsetSK6812: {
		Name: "sk6812",
		Pulse: &PulseTiming{
			Bit0HighNs: 300, Bit0LowNs: 900,
			Bit1HighNs: 600, Bit1LowNs: 600,
			ResetNs:    80000,
			DataRateHz: 800000,
		},
		IntensityWidth:   IntensityWidth8,
		ChannelsPerPixel: 4,
	},
	ChipsetGS8208: {
		Name: "gs8208",
		Pulse: &PulseTiming{
			Bit0HighNs: 300, Bit0LowNs: 790,
			Bit1HighNs: 790, Bit1LowNs: 300,
			ResetNs:    280000,
			DataRateHz: 800000,
		},
		Serial: &SerialTiming{
			Frame: UART6N1, Invert: true,
			BitsPerSlot: 2, Patterns: twoBitPatterns,
			DataRateHz: 800000,
			ResetNs:    280000,
		},
		IntensityWidth:   IntensityWidth8,
		ChannelsPerPixel: 3,
	},
	ChipsetUCS1903: {
		Name: "ucs1903",
		Pulse: &PulseTiming{
			Bit0HighNs: 250, Bit0LowNs: 1000,
			Bit1HighNs: 1000, Bit1LowNs: 250,
			ResetNs:      300000,
			Bit1HighBias: -1, Bit1LowBias: 1,
			ResetBias:  1,
			StartTicks: 4,
			DataRateHz: 800000,
		},
		IntensityWidth:   IntensityWidth8,
		ChannelsPerPixel: 3,
	},
	ChipsetTM1814: {
		Name: "tm1814",
		Pulse: &PulseTiming{
			Bit0HighNs: 360, Bit0LowNs: 890,
			Bit1HighNs: 720, Bit1LowNs: 530,
			ResetNs:    300000,
			Inverted:   true,
			DataRateHz: 800000,
		},
		IntensityWidth:   IntensityWidth8,
		ChannelsPerPixel: 4,
	},
	ChipsetUCS8903: {
		Name: "ucs8903",
		Pulse: &PulseTiming{
			Bit0HighNs: 400, Bit0LowNs: 850,
			Bit1HighNs: 800, Bit1LowNs: 450,
			ResetNs:    300000,
			DataRateHz: 800000,
		},
		Serial: &SerialTiming{
			Frame: UART8N1, Invert: true,
			BitsPerSlot: 1, Patterns: oneBitPatterns,
			DataRateHz: 800000,
			ResetNs:    300000,
		},
		IntensityWidth:   IntensityWidth16,
		ChannelsPerPixel: 3,
	},
	ChipsetAPA106: {
		Name: "apa106",
		Pulse: &PulseTiming{
			Bit0HighNs: 350, Bit0LowNs: 1360,
			Bit1HighNs: 1360, Bit1LowNs: 350,
			ResetNs:    50000,
			DataRateHz: 580000,
		},
		IntensityWidth:   IntensityWidth8,
		ChannelsPerPixel: 3,
	},
	ChipsetDMX: {
		Name:           "dmx",
		Serial:         &SerialTiming{Frame: UART8N2, BaudRate: 250000},
		IntensityWidth: IntensityWidth8,
		BreakUs:        92,
		MarkUs:         12,
	},
	ChipsetRenard: {
		Name:           "renard",
		Serial:         &SerialTiming{Frame: UART8N1, BaudRate: 57600},
		IntensityWidth: IntensityWidth8,
	},
	ChipsetSerial: {
		Name:           "serial",
		Serial:         &SerialTiming{Frame: UART8N1, BaudRate: 57600},
		IntensityWidth: IntensityWidth8,
	},
}

// Info returns the descriptor for a chipset. The timings are copies and may
// be modified by the caller.
func (c Chipset) Info() (ChipsetInfo, error) {
	if c == ChipsetNone || c >= numChipsets {
		return ChipsetInfo{}, ErrUnknownChipset
	}
	info := chipsets[c]
	if info.Pulse != nil {
		p := *info.Pulse
		info.Pulse = &p
	}
	if info.Serial != nil {
		s := *info.Serial
		s.Patterns = append([]byte(nil), s.Patterns...)
		info.Serial = &s
	}
	return info, nil
}

func (c Chipset) String() string {
	if c == ChipsetNone || c >= numChipsets {
		return "none"
	}
	return chipsets[c].Name
}

// ParseChipset looks a chipset up by name, case-insensitively
func ParseChipset(name string) (Chipset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c := ChipsetNone + 1; c < numChipsets; c++ {
		if chipsets[c].Name == name {
			return c, nil
		}
	}
	return ChipsetNone, ErrUnknownChipset
}

// Chipsets lists every known chipset
func Chipsets() []Chipset {
	list := make([]Chipset, 0, numChipsets-1)
	for c := ChipsetNone + 1; c < numChipsets; c++ {
		list = append(list, c)
	}
	return list
}
