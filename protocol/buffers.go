package protocol

import "errors"

// ErrLineTooLong is returned by LineBuffer.Next for a line that did not fit
var ErrLineTooLong = errors.New("control line too long")

// ControlLineMax bounds one control line, enough for a 1024 pixel RGBW
// intensity update in hex
const ControlLineMax = 8448

// FifoBuffer is a byte ring used between the USB reader and the main loop
type FifoBuffer struct {
	buf   []byte
	read  int
	count int
}

// NewFifoBuffer creates a FifoBuffer holding up to capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns how much that was
func (f *FifoBuffer) Write(data []byte) int {
	n := 0
	for _, b := range data {
		if f.count == len(f.buf) {
			break
		}
		f.buf[(f.read+f.count)%len(f.buf)] = b
		f.count++
		n++
	}
	return n
}

// Read moves up to len(data) bytes out of the buffer
func (f *FifoBuffer) Read(data []byte) int {
	n := f.Peek(data)
	f.Pop(n)
	return n
}

// Peek copies up to len(data) bytes without consuming them
func (f *FifoBuffer) Peek(data []byte) int {
	n := 0
	for n < len(data) && n < f.count {
		data[n] = f.buf[(f.read+n)%len(f.buf)]
		n++
	}
	return n
}

// At returns the byte i positions from the front
func (f *FifoBuffer) At(i int) byte {
	return f.buf[(f.read+i)%len(f.buf)]
}

// Available returns the number of buffered bytes
func (f *FifoBuffer) Available() int {
	return f.count
}

// Free returns the room left
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.count
}

// Pop drops n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	if n > f.count {
		n = f.count
	}
	f.read = (f.read + n) % len(f.buf)
	f.count -= n
}

// Truncate drops the n most recently written bytes
func (f *FifoBuffer) Truncate(n int) {
	if n > f.count {
		n = f.count
	}
	f.count -= n
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.count == 0
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.count = 0
}

// LineBuffer frames newline terminated control lines out of a byte stream.
// A line that outgrows the buffer is discarded up to its newline and
// reported once as ErrLineTooLong.
type LineBuffer struct {
	fifo       *FifoBuffer
	partial    int // bytes of the unterminated line
	discarding bool
	marks      []int // offsets of discarded lines not yet reported
	dropped    uint32
}

// NewLineBuffer creates a LineBuffer holding up to capacity bytes
func NewLineBuffer(capacity int) *LineBuffer {
	return &LineBuffer{fifo: NewFifoBuffer(capacity)}
}

// Write takes received bytes. It always consumes all of data.
func (l *LineBuffer) Write(data []byte) int {
	for _, b := range data {
		if l.discarding {
			if b == '\n' {
				l.discarding = false
			}
			continue
		}
		if l.fifo.Free() == 0 {
			l.fifo.Truncate(l.partial)
			l.partial = 0
			l.marks = append(l.marks, l.fifo.Available())
			l.dropped++
			l.discarding = b != '\n'
			continue
		}
		l.fifo.Write([]byte{b})
		if b == '\n' {
			l.partial = 0
		} else {
			l.partial++
		}
	}
	return len(data)
}

// Next returns the next complete line without its terminator. It returns
// nil, nil when no complete line is buffered. Blank lines are skipped.
func (l *LineBuffer) Next() ([]byte, error) {
	for {
		if len(l.marks) > 0 && l.marks[0] == 0 {
			l.marks = l.marks[1:]
			return nil, ErrLineTooLong
		}
		end := -1
		for i := 0; i < l.fifo.Available()-l.partial; i++ {
			if l.fifo.At(i) == '\n' {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, nil
		}
		line := make([]byte, end)
		l.fifo.Peek(line)
		l.fifo.Pop(end + 1)
		for i := range l.marks {
			l.marks[i] -= end + 1
		}
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) > 0 {
			return line, nil
		}
	}
}

// Dropped returns how many lines were discarded for length
func (l *LineBuffer) Dropped() uint32 {
	return l.dropped
}

// Reset discards everything buffered
func (l *LineBuffer) Reset() {
	l.fifo.Reset()
	l.partial = 0
	l.discarding = false
	l.marks = nil
}
