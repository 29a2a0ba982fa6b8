//go:build tinygo

package core

import "sync/atomic"

// Written by the main loop from the hardware timer, read from interrupt
// handlers when they stamp frame completion.
var systemMicros uint32

func getSystemTicks() uint32 {
	return atomic.LoadUint32(&systemMicros)
}

func setSystemTicks(us uint32) {
	atomic.StoreUint32(&systemMicros, us)
}
