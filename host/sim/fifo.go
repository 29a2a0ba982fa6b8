package sim

// txFifo is the transmit FIFO of a simulated UART. One slot is kept free to
// tell full from empty, so the buffer is one byte larger than the FIFO.
type txFifo struct {
	buf   []byte
	read  int
	write int
}

func newTxFifo(depth int) *txFifo {
	return &txFifo{buf: make([]byte, depth+1)}
}

// push appends b, returning false when the FIFO is full
func (f *txFifo) push(b byte) bool {
	next := (f.write + 1) % len(f.buf)
	if next == f.read {
		return false
	}
	f.buf[f.write] = b
	f.write = next
	return true
}

// pop removes the oldest byte
func (f *txFifo) pop() (byte, bool) {
	if f.read == f.write {
		return 0, false
	}
	b := f.buf[f.read]
	f.read = (f.read + 1) % len(f.buf)
	return b, true
}

// level returns the number of queued bytes
func (f *txFifo) level() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

func (f *txFifo) free() int {
	return len(f.buf) - 1 - f.level()
}

func (f *txFifo) depth() int {
	return len(f.buf) - 1
}

func (f *txFifo) reset() {
	f.read, f.write = 0, 0
}
