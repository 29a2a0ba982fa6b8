package core

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrHardwareUnavailable means the peripheral or pin could not be
	// claimed or configured. The channel stays unconfigured.
	ErrHardwareUnavailable = errors.New("output hardware unavailable")

	// ErrBusy means the operation needs the transport idle and a frame is
	// outstanding. The engine refuses rather than stopping the frame.
	ErrBusy = errors.New("frame in progress")

	ErrNotConfigured     = errors.New("transport not configured")
	ErrBadIntensityWidth = errors.New("unsupported intensity width")
	ErrNotSupported      = errors.New("operation not supported by transport")
)

// HardwareError wraps a driver failure from Begin. It matches
// ErrHardwareUnavailable with errors.Is.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrHardwareUnavailable.Error()
	}
	return e.Op + ": " + ErrHardwareUnavailable.Error() + ": " + e.Err.Error()
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

func (e *HardwareError) Is(target error) bool {
	return target == ErrHardwareUnavailable
}

// FrameState is the ownership word shared by a transport and its interrupt.
// The main loop owns the frame cursor and buffer in StateIdle; the
// peripheral or interrupt handler owns them otherwise.
type FrameState uint32

const (
	StateIdle FrameState = iota
	StateArmed
	StateStreaming
	StatePaused
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// frameState is read and written with sync/atomic so ownership changes are
// visible across the main loop and interrupt context.
type frameState struct {
	v uint32
}

func (s *frameState) Load() FrameState {
	return FrameState(atomic.LoadUint32(&s.v))
}

func (s *frameState) Store(state FrameState) {
	atomic.StoreUint32(&s.v, uint32(state))
}

func (s *frameState) CompareAndSwap(old, new FrameState) bool {
	return atomic.CompareAndSwapUint32(&s.v, uint32(old), uint32(new))
}

// TransportStats are the frame counters of one transport
type TransportStats struct {
	FramesSent     uint32 `json:"frames_sent"`
	FramesDropped  uint32 `json:"frames_dropped"`  // denied by the pacer
	FramesRefused  uint32 `json:"frames_refused"`  // previous frame outstanding
	LastFrameStart uint32 `json:"last_frame_start"`
	LastFrameUs    uint32 `json:"last_frame_us"`
}

// frameStats is updated from both the main loop and completion interrupts
type frameStats struct {
	sent, dropped, refused uint32
	lastStart, lastUs      uint32
}

func (f *frameStats) drop() {
	atomic.AddUint32(&f.dropped, 1)
}

func (f *frameStats) refuse() {
	atomic.AddUint32(&f.refused, 1)
}

func (f *frameStats) started(now uint32) {
	atomic.StoreUint32(&f.lastStart, now)
}

func (f *frameStats) done(now uint32) uint32 {
	d := now - atomic.LoadUint32(&f.lastStart)
	atomic.StoreUint32(&f.lastUs, d)
	atomic.AddUint32(&f.sent, 1)
	return d
}

func (f *frameStats) snapshot() TransportStats {
	return TransportStats{
		FramesSent:     atomic.LoadUint32(&f.sent),
		FramesDropped:  atomic.LoadUint32(&f.dropped),
		FramesRefused:  atomic.LoadUint32(&f.refused),
		LastFrameStart: atomic.LoadUint32(&f.lastStart),
		LastFrameUs:    atomic.LoadUint32(&f.lastUs),
	}
}

// Transport turns frames from a FramePump into a waveform on one pin
type Transport interface {
	// Render starts a frame if the pacer allows it and the previous frame
	// has finished. Never blocks on transmission.
	Render() bool

	State() FrameState

	SetMinFrameDuration(us uint32) error
	MinFrameDuration() uint32

	SetPin(pin GPIOPin) error

	Stats() TransportStats

	// Release frees the peripheral. The transport must be begun again
	// before further use.
	Release()
}

func validWidth(width uint8) bool {
	return width == 8 || width == 16
}
