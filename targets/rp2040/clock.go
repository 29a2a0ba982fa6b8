//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"pixelgopper/core"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x28 // Raw timer low word
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// GetHardwareTime reads the RP2040 hardware timer
// Returns the low 32 bits of the 1MHz microsecond counter
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// UpdateSystemTime updates the core timer with hardware time
// Called from the main loop before timers are dispatched
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
