package pio

import (
	"errors"

	"pixelgopper/protocol"
)

var (
	ErrNoStateMachine    = errors.New("no such PIO state machine")
	ErrStateMachineInUse = errors.New("PIO state machine already claimed")
)

// StateMachines is the number of pulse peripherals: 2 PIO blocks of 4
const StateMachines = 8

var (
	// PIO allocation tracking, [pioNum][smNum]
	pioAllocations = [2][4]bool{}
)

// claimStateMachine maps a peripheral number onto a PIO block and state
// machine: 0-3 are PIO0, 4-7 PIO1
func claimStateMachine(peripheral uint8) (uint8, uint8, error) {
	if peripheral >= StateMachines {
		return 0, 0, ErrNoStateMachine
	}
	pioNum, smNum := peripheral/4, peripheral%4
	if pioAllocations[pioNum][smNum] {
		return 0, 0, ErrStateMachineInUse
	}
	pioAllocations[pioNum][smNum] = true
	return pioNum, smNum, nil
}

func releaseStateMachine(pioNum, smNum uint8) {
	pioAllocations[pioNum][smNum] = false
}

// GetPIOAllocationStatus returns PIO allocation status for debugging
func GetPIOAllocationStatus() [2][4]bool {
	return pioAllocations
}

// halfOverhead is the cycles the program spends on "out pins" and "out x"
// before the delay loop of each half item
const halfOverhead = 3

// pioWord packs an item for the pulse program, taking the per-half
// instruction overhead out of each duration. Halves shorter than the
// overhead come out at the overhead.
func pioWord(item protocol.PulseItem) uint32 {
	item.Duration0 = loopCount(item.Duration0)
	item.Duration1 = loopCount(item.Duration1)
	return item.Word()
}

func loopCount(d uint16) uint16 {
	if d <= halfOverhead {
		return 0
	}
	return d - halfOverhead
}

// drainTicks is how long the last FIFO-depth items take once queued
func drainTicks(items []protocol.PulseItem, depth int) uint32 {
	if len(items) > depth {
		items = items[len(items)-depth:]
	}
	var ticks uint32
	for _, it := range items {
		ticks += it.Ticks()
	}
	return ticks
}
