package uart

import (
	"errors"

	"pixelgopper/protocol"
)

var (
	ErrNoPort    = errors.New("no such UART")
	ErrPortInUse = errors.New("UART already claimed")
	ErrBadPin    = errors.New("pin cannot carry this UART's TX")
	ErrBaud      = errors.New("baud rate not reachable from the peripheral clock")
)

const (
	// Ports is the number of PL011 UARTs
	Ports = 2

	// FifoDepth is the PL011 TX FIFO depth with FEN set
	FifoDepth = 32

	// maxBaudErrorPermille bounds the divisor rounding error. Bit-banged
	// pixel waveforms have little slack.
	maxBaudErrorPermille = 20

	// minFillPeriodUs keeps a rearmed alarm ahead of the timer
	minFillPeriodUs = 2
)

// PL011 line control bits
const (
	lcrBRK      = 1 << 0
	lcrSTP2     = 1 << 3
	lcrFEN      = 1 << 4
	lcrWLENShft = 5
)

var portAllocations = [Ports]bool{}

func claimPort(port uint8) error {
	if port >= Ports {
		return ErrNoPort
	}
	if portAllocations[port] {
		return ErrPortInUse
	}
	portAllocations[port] = true
	return nil
}

func releasePort(port uint8) {
	portAllocations[port] = false
}

// TxPinPort returns the UART whose TX can be routed to pin. TX sits on
// every fourth GPIO, alternating UART0 and UART1 in pairs.
func TxPinPort(pin uint8) (uint8, bool) {
	if pin > 28 || pin%4 != 0 {
		return 0, false
	}
	return uint8((int(pin)+4)/8) % 2, true
}

// baudDivisor computes the integer and 6-bit fractional divisors for baud
func baudDivisor(clk, baud uint32) (uint32, uint32, error) {
	if baud == 0 {
		return 0, 0, ErrBaud
	}
	div := uint32(uint64(clk) * 8 / uint64(baud))
	ibrd := div >> 7
	fbrd := ((div & 0x7f) + 1) / 2
	if ibrd == 0 || ibrd > 0xffff {
		return 0, 0, ErrBaud
	}
	got := actualBaud(clk, ibrd, fbrd)
	diff := int64(got) - int64(baud)
	if diff < 0 {
		diff = -diff
	}
	if diff*1000 > int64(baud)*maxBaudErrorPermille {
		return 0, 0, ErrBaud
	}
	return ibrd, fbrd, nil
}

// actualBaud is the rate the divisors produce
func actualBaud(clk, ibrd, fbrd uint32) uint32 {
	return uint32(uint64(clk) * 4 / uint64(64*ibrd+fbrd))
}

// lineControl returns LCR_H for the frame with the FIFOs enabled
func lineControl(frame protocol.DataFrame) (uint32, error) {
	if frame > protocol.UART8N2 {
		return 0, protocol.ErrBadDataFrame
	}
	lcr := uint32(lcrFEN) | uint32(frame.DataBits()-5)<<lcrWLENShft
	if frame.StopBits() == 2 {
		lcr |= lcrSTP2
	}
	return lcr, nil
}

// txTriggerLevels are the FIFO levels selectable by TXIFLSEL
var txTriggerLevels = [...]int{4, 8, 16, 24, 28}

// txLevel picks the highest trigger level not above threshold, so the
// interrupt never fires later than asked. Below the lowest level the
// lowest is used.
func txLevel(threshold uint8) (uint32, int) {
	sel := 0
	for i, level := range txTriggerLevels {
		if level <= int(threshold) {
			sel = i
		}
	}
	return uint32(sel), txTriggerLevels[sel]
}

// fillPeriodUs is the fill alarm interval for a port. At the trigger level
// the FIFO still holds level bytes; refilling twice in that time leaves
// half of it as slack for interrupt latency.
func fillPeriodUs(baud uint32, frame protocol.DataFrame, level int) uint32 {
	if baud == 0 {
		return minFillPeriodUs
	}
	us := uint32(uint64(level) * uint64(frame.LineBits()) * 1000000 / uint64(baud) / 2)
	if us < minFillPeriodUs {
		return minFillPeriodUs
	}
	return us
}
