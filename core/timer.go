package core

// TimerFreq is the rate of the system clock. The RP2040 timer counts
// microseconds, so ticks and microseconds are interchangeable.
const TimerFreq = 1000000

var bootTime uint32

// GetTime returns the current system time in microseconds
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(us uint32) {
	setSystemTicks(us)
}

// AdvanceTime moves the system time forward, wrapping at 32 bits
func AdvanceTime(us uint32) {
	setSystemTicks(getSystemTicks() + us)
}

// GetUptime returns microseconds since TimerInit
func GetUptime() uint32 {
	return GetTime() - bootTime
}

// TimeElapsed returns the microseconds from since to now across a counter wrap
func TimeElapsed(since, now uint32) uint32 {
	return now - since
}

// TimeReached reports whether now is at or past deadline. Valid while the two
// are less than half the counter range apart.
func TimeReached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// TimerInit initializes the system timer
func TimerInit() {
	bootTime = GetTime()
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
