package serial

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"pixelgopper/core"
)

var (
	ErrNoDevice  = errors.New("no adapter for this port")
	ErrInUse     = errors.New("adapter already claimed")
	ErrInversion = errors.New("adapter TX polarity is fixed in its EEPROM")
)

// DefaultFifoDepth is the emulated TX FIFO. The adapter's own buffering
// sits behind it.
const DefaultFifoDepth = 64

// UARTDriver implements core.SerialDriver on USB-UART adapters, one device
// per port number. A writer goroutine stands in for the TX interrupt: while
// the interrupt is enabled it calls the handler whenever the FIFO is empty
// and writes what the handler queued.
type UARTDriver struct {
	devices    []string
	invertedTx bool
	depth      int
	open       func(*Config) (Port, error)

	mu    sync.Mutex
	ports map[uint8]*UARTPort
}

// NewUARTDriver creates a driver over the given devices. invertedTx says
// whether the adapters' TX line has been inverted in their EEPROM.
func NewUARTDriver(invertedTx bool, devices ...string) *UARTDriver {
	return &UARTDriver{
		devices:    devices,
		invertedTx: invertedTx,
		depth:      DefaultFifoDepth,
		open:       Open,
		ports:      map[uint8]*UARTPort{},
	}
}

// Claim implements core.SerialDriver. The device is opened by Configure.
func (d *UARTDriver) Claim(port uint8, pin core.GPIOPin, handler func()) (core.SerialPort, error) {
	if int(port) >= len(d.devices) {
		return nil, ErrNoDevice
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ports[port]; ok {
		return nil, ErrInUse
	}
	p := &UARTPort{
		d:       d,
		index:   port,
		device:  d.devices[port],
		handler: handler,
		pending: make([]byte, 0, d.depth),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	d.ports[port] = p
	go p.writer()
	return p, nil
}

// UARTPort is one claimed adapter
type UARTPort struct {
	d       *UARTDriver
	index   uint8
	device  string
	handler func()

	mu   sync.Mutex
	port Port
	cfg  core.SerialLineConfig

	// only touched by the writer goroutine and the handler it calls
	pending []byte

	irq    int32
	holdUs uint32
	breaks uint32
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
}

// Configure opens the adapter at the requested line settings
func (p *UARTPort) Configure(cfg core.SerialLineConfig) error {
	if cfg.Invert != p.d.invertedTx {
		return ErrInversion
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port != nil {
		p.port.Close()
		p.port = nil
	}
	port, err := p.d.open(&Config{
		Device:   p.device,
		Baud:     int(cfg.Baud),
		DataBits: cfg.Frame.DataBits(),
		StopBits: cfg.Frame.StopBits(),
	})
	if err != nil {
		return fmt.Errorf("configure %s: %w", p.device, err)
	}
	p.port = port
	p.cfg = cfg
	glog.V(1).Infof("%s: %d baud %s inverted=%v", p.device, cfg.Baud, cfg.Frame, cfg.Invert)
	return nil
}

// SetPin is a no-op: an adapter has one TX pin
func (p *UARTPort) SetPin(pin core.GPIOPin) error {
	return nil
}

func (p *UARTPort) FifoSize() int {
	return cap(p.pending)
}

func (p *UARTPort) FifoFree() int {
	return cap(p.pending) - len(p.pending)
}

// Enqueue drops bytes that do not fit, as a full hardware FIFO would
func (p *UARTPort) Enqueue(b byte) {
	if len(p.pending) < cap(p.pending) {
		p.pending = append(p.pending, b)
	}
}

func (p *UARTPort) EnableTxInterrupt() {
	atomic.StoreInt32(&p.irq, 1)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *UARTPort) DisableTxInterrupt() {
	atomic.StoreInt32(&p.irq, 0)
}

// SendBreak idles the line for the break and mark before the next write.
// Adapters cannot hold TX low on demand, so receivers that need a real
// break will not see one.
func (p *UARTPort) SendBreak(breakUs, markUs uint32) {
	atomic.StoreUint32(&p.holdUs, breakUs+markUs)
	if atomic.AddUint32(&p.breaks, 1) == 1 {
		glog.Warningf("%s: break emulated as idle line", p.device)
	}
}

// Breaks counts SendBreak calls
func (p *UARTPort) Breaks() uint32 {
	return atomic.LoadUint32(&p.breaks)
}

// Release stops the writer and closes the adapter
func (p *UARTPort) Release() {
	p.d.mu.Lock()
	if p.d.ports[p.index] == p {
		delete(p.d.ports, p.index)
	}
	p.d.mu.Unlock()

	select {
	case <-p.quit:
		return
	default:
		close(p.quit)
	}
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port != nil {
		p.port.Close()
		p.port = nil
	}
}

func (p *UARTPort) writer() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case <-p.wake:
		}

		for atomic.LoadInt32(&p.irq) == 1 {
			p.handler()
			if hold := atomic.SwapUint32(&p.holdUs, 0); hold > 0 {
				time.Sleep(time.Duration(hold) * time.Microsecond)
			}
			if err := p.flush(); err != nil {
				glog.Errorf("%s: write: %v", p.device, err)
				atomic.StoreInt32(&p.irq, 0)
			}
			select {
			case <-p.quit:
				return
			default:
			}
		}
		// the handler may have queued a tail before disabling
		if err := p.flush(); err != nil {
			glog.Errorf("%s: write: %v", p.device, err)
		}
	}
}

func (p *UARTPort) flush() error {
	if len(p.pending) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		p.pending = p.pending[:0]
		return core.ErrNotConfigured
	}
	_, err := p.port.Write(p.pending)
	p.pending = p.pending[:0]
	return err
}
