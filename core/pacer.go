package core

// DefaultMinFrameUs is the minimum interval between frame starts when a
// channel does not configure one (40 frames per second).
const DefaultMinFrameUs = 25000

// FramePacer enforces a minimum interval between frame starts and, for
// transports that report it, a minimum idle gap after a frame ends. It is the
// only backpressure in the engine: a render that arrives early is dropped,
// never queued. Times are microseconds from GetTime and may wrap.
type FramePacer struct {
	minDuration uint32
	lastStart   uint32
	started     bool

	minGap  uint32
	lastEnd uint32
	ended   bool
}

// NewFramePacer creates a pacer with the given minimum frame interval
func NewFramePacer(minUs uint32) *FramePacer {
	return &FramePacer{minDuration: minUs}
}

// CanStart reports whether a frame may start at now. The first frame is
// always allowed.
func (p *FramePacer) CanStart(now uint32) bool {
	if !p.started {
		return true
	}
	if p.ended && now-p.lastEnd < p.minGap {
		return false
	}
	return now-p.lastStart >= p.minDuration
}

// RecordStart notes that a frame actually started at now
func (p *FramePacer) RecordStart(now uint32) {
	p.lastStart = now
	p.started = true
	p.ended = false
}

// RecordEnd notes that the last frame left the wire at now. The next start
// must wait the minimum gap from here.
func (p *FramePacer) RecordEnd(now uint32) {
	p.lastEnd = now
	p.ended = true
}

// SetMinGap sets the idle time required after a recorded end
func (p *FramePacer) SetMinGap(us uint32) {
	p.minGap = us
}

// SetMinDuration changes the minimum interval. Takes effect on the next
// CanStart.
func (p *FramePacer) SetMinDuration(us uint32) {
	p.minDuration = us
}

// MinDuration returns the minimum interval in microseconds
func (p *FramePacer) MinDuration() uint32 {
	return p.minDuration
}

// LastStart returns the time of the last recorded frame start
func (p *FramePacer) LastStart() (uint32, bool) {
	return p.lastStart, p.started
}

// Elapsed returns the microseconds since the last recorded start
func (p *FramePacer) Elapsed(now uint32) uint32 {
	if !p.started {
		return 0
	}
	return now - p.lastStart
}

// Reset forgets the last start so the next frame is allowed immediately
func (p *FramePacer) Reset() {
	p.lastStart = 0
	p.started = false
	p.lastEnd = 0
	p.ended = false
}
