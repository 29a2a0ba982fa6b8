//go:build !tinygo

package core

// irqState stands in for the saved interrupt mask on regular Go
type irqState uintptr

// disableInterrupts is a no-op on regular Go; host drivers deliver their
// callbacks from the goroutine that drives them.
func disableInterrupts() irqState {
	return 0
}

func restoreInterrupts(irqState) {}
