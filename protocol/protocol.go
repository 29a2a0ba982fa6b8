// Package protocol describes the wire-level shape of addressable pixel chipsets:
// per-symbol pulse timings for pulse-train peripherals and per-bit UART byte
// patterns for serial peripherals used to bit-bang self-clocked protocols.
package protocol

// Version represents the firmware version
const Version = "0.1.0"

// Symbol identifies one entry in a timing table
type Symbol uint8

const (
	SymbolZeroBit Symbol = iota
	SymbolOneBit
	SymbolInterframeGap
	SymbolStartBit
	SymbolStopBit
	NumSymbols
)

func (s Symbol) String() string {
	switch s {
	case SymbolZeroBit:
		return "ZERO_BIT"
	case SymbolOneBit:
		return "ONE_BIT"
	case SymbolInterframeGap:
		return "INTERFRAME_GAP"
	case SymbolStartBit:
		return "START_BIT"
	case SymbolStopBit:
		return "STOP_BIT"
	}
	return "UNKNOWN"
}

// Intensity widths supported by the transports
const (
	IntensityWidth8  = 8
	IntensityWidth16 = 16
)
