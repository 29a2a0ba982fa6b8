package mcu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"pixelgopper/core"
	"pixelgopper/host/serial"
)

var (
	ErrNotConnected = errors.New("not connected to controller")
	ErrTimeout      = errors.New("timed out waiting for controller response")
)

// DefaultTimeout bounds one request/response exchange
const DefaultTimeout = 2 * time.Second

// MCU represents a connection to a pixel controller's control port
type MCU struct {
	mu      sync.Mutex
	port    serial.Port
	pending []byte
	timeout time.Duration

	// Connection state
	connected bool
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{timeout: DefaultTimeout}
}

// SetTimeout changes how long a request waits for its response
func (m *MCU) SetTimeout(d time.Duration) {
	m.timeout = d
}

// Connect connects to a controller's USB CDC port
func (m *MCU) Connect(device string) error {
	port, err := serial.Open(serial.ControlConfig(device))
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.ConnectPort(port)
	return nil
}

// ConnectPort uses an already open port
func (m *MCU) ConnectPort(port serial.Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.port = port
	m.pending = nil
	m.connected = true
}

// Close closes the connection to the controller
func (m *MCU) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.port.Close()
}

// IsConnected returns whether the controller is connected
func (m *MCU) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// logLine is unsolicited debug output from the controller
type logLine struct {
	Log *string `json:"log"`
}

// Do sends one request and waits for its response. A response with ok
// false is returned along with an error carrying its message.
func (m *MCU) Do(req core.ControlRequest) (*core.ControlResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}

	data, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Op, err)
	}
	if _, err := m.port.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("send %s request: %w", req.Op, err)
	}

	deadline := time.Now().Add(m.timeout)
	for {
		line, err := m.readLine(deadline)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", req.Op, err)
		}
		var l logLine
		if json.Unmarshal(line, &l) == nil && l.Log != nil {
			glog.Infof("controller: %s", *l.Log)
			continue
		}
		var resp core.ControlResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("%s: bad response %q: %w", req.Op, line, err)
		}
		if !resp.OK {
			return &resp, fmt.Errorf("%s: %s", req.Op, resp.Error)
		}
		return &resp, nil
	}
}

// readLine returns the next non-empty line from the port
func (m *MCU) readLine(deadline time.Time) ([]byte, error) {
	buf := make([]byte, 256)
	for {
		if i := bytes.IndexByte(m.pending, '\n'); i >= 0 {
			line := bytes.TrimSpace(m.pending[:i])
			m.pending = m.pending[i+1:]
			if len(line) > 0 {
				return line, nil
			}
			continue
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		n, err := m.port.Read(buf)
		m.pending = append(m.pending, buf[:n]...)
		if err != nil && err != io.EOF {
			return nil, err
		}
		if n == 0 {
			// timed out read; let the deadline decide
			time.Sleep(time.Millisecond)
		}
	}
}

func channelRef(ch uint8) *uint8 {
	return &ch
}

// Status reads back every channel, or one when ch is set
func (m *MCU) Status(ch *uint8) ([]core.ChannelStatus, error) {
	resp, err := m.Do(core.ControlRequest{Op: "status", Channel: ch})
	if err != nil {
		return nil, err
	}
	return resp.Status, nil
}

// Set applies config fields to a channel. The response lists accepted and
// rejected fields even when err is set.
func (m *MCU) Set(ch uint8, fields map[string]interface{}) (*core.ControlResponse, error) {
	return m.Do(core.ControlRequest{Op: "set", Channel: channelRef(ch), Fields: fields})
}

// SetPixels writes intensities to a channel and returns how many were taken
func (m *MCU) SetPixels(ch uint8, data []byte) (int, error) {
	resp, err := m.Do(core.ControlRequest{
		Op:      "pixels",
		Channel: channelRef(ch),
		Data:    fmt.Sprintf("%x", data),
	})
	if err != nil {
		return 0, err
	}
	return resp.Written, nil
}

// Render starts a frame on one channel, or all when ch is nil, and returns
// how many frames went out
func (m *MCU) Render(ch *uint8) (int, error) {
	resp, err := m.Do(core.ControlRequest{Op: "render", Channel: ch})
	if err != nil {
		return 0, err
	}
	return resp.Started, nil
}

func (m *MCU) Pause(ch uint8) error {
	_, err := m.Do(core.ControlRequest{Op: "pause", Channel: channelRef(ch)})
	return err
}

func (m *MCU) Resume(ch uint8) error {
	_, err := m.Do(core.ControlRequest{Op: "resume", Channel: channelRef(ch)})
	return err
}

// Reboot restarts the controller and closes the connection
func (m *MCU) Reboot() error {
	if _, err := m.Do(core.ControlRequest{Op: "reboot"}); err != nil {
		return err
	}
	return m.Close()
}
