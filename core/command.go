package core

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

var (
	ErrUnknownOp      = errors.New("unknown control op")
	ErrNoChannel      = errors.New("no such channel")
	ErrBadRequest     = errors.New("malformed control request")
	ErrFieldsRejected = errors.New("some config fields were rejected")
)

// ControlRequest is one line of the host control protocol, e.g.
//
//	{"op":"set","channel":1,"fields":{"brightness":64}}
//	{"op":"pixels","channel":1,"data":"ff0000"}
type ControlRequest struct {
	Op      string                 `json:"op"`
	Channel *uint8                 `json:"channel,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Data    string                 `json:"data,omitempty"` // hex intensities
}

// ControlResponse answers one ControlRequest
type ControlResponse struct {
	OK       bool              `json:"ok"`
	Error    string            `json:"error,omitempty"`
	Accepted []string          `json:"accepted,omitempty"`
	Rejected map[string]string `json:"rejected,omitempty"`
	Status   []ChannelStatus   `json:"status,omitempty"`
	Started  int               `json:"started,omitempty"`
	Written  int               `json:"written,omitempty"`
}

// ControlHandler runs one op against the manager, filling in resp
type ControlHandler func(m *OutputManager, req *ControlRequest, resp *ControlResponse) error

// ControlRegistry maps op names to handlers
type ControlRegistry struct {
	mu  sync.RWMutex
	ops map[string]ControlHandler
}

var globalControl = NewControlRegistry()

// NewControlRegistry creates a registry holding the built-in ops
func NewControlRegistry() *ControlRegistry {
	r := &ControlRegistry{ops: make(map[string]ControlHandler)}
	r.Register("status", controlStatus)
	r.Register("set", controlSet)
	r.Register("pixels", controlPixels)
	r.Register("render", controlRender)
	r.Register("pause", controlPause)
	r.Register("resume", controlResume)
	return r
}

// RegisterControl adds an op to the global registry
func RegisterControl(op string, handler ControlHandler) {
	globalControl.Register(op, handler)
}

// Register adds or replaces an op
func (r *ControlRegistry) Register(op string, handler ControlHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op] = handler
}

// Lookup returns the handler for op
func (r *ControlRegistry) Lookup(op string) (ControlHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.ops[op]
	return h, ok
}

// Ops lists the registered op names
func (r *ControlRegistry) Ops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleControl decodes one JSON request line, runs it and returns the
// encoded response. It must run on the same thread as the timer dispatch.
func (m *OutputManager) HandleControl(line []byte) []byte {
	var req ControlRequest
	var resp ControlResponse

	if err := json.Unmarshal(line, &req); err != nil {
		resp.Error = ErrBadRequest.Error() + ": " + err.Error()
	} else if h, ok := globalControl.Lookup(req.Op); !ok {
		resp.Error = ErrUnknownOp.Error() + ": " + req.Op
	} else if err := h(m, &req, &resp); err != nil {
		resp.Error = err.Error()
	} else {
		resp.OK = true
	}

	out, err := json.Marshal(&resp)
	if err != nil {
		return []byte(`{"ok":false,"error":"encode response"}`)
	}
	return out
}

// target returns the addressed channel
func (m *OutputManager) target(req *ControlRequest) (*OutputChannel, error) {
	if req.Channel == nil {
		return nil, ErrNoChannel
	}
	ch := m.Channel(*req.Channel)
	if ch == nil {
		return nil, ErrNoChannel
	}
	return ch, nil
}

func controlStatus(m *OutputManager, req *ControlRequest, resp *ControlResponse) error {
	if req.Channel == nil {
		resp.Status = m.Status()
		return nil
	}
	ch, err := m.target(req)
	if err != nil {
		return err
	}
	resp.Status = []ChannelStatus{ch.GetStatus()}
	return nil
}

func controlSet(m *OutputManager, req *ControlRequest, resp *ControlResponse) error {
	ch, err := m.target(req)
	if err != nil {
		return err
	}
	if len(req.Fields) == 0 {
		return ErrBadRequest
	}
	res := ch.SetConfig(req.Fields)
	resp.Accepted = res.Accepted
	if res.OK() {
		return nil
	}
	resp.Rejected = make(map[string]string, len(res.Rejected))
	for name, err := range res.Rejected {
		resp.Rejected[name] = err.Error()
	}
	return ErrFieldsRejected
}

func controlPixels(m *OutputManager, req *ControlRequest, resp *ControlResponse) error {
	ch, err := m.target(req)
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(req.Data)
	if err != nil {
		return ErrBadFieldValue
	}
	n, err := ch.SetIntensities(data)
	resp.Written = n
	return err
}

// controlRender renders one channel, or all of them when none is named
func controlRender(m *OutputManager, req *ControlRequest, resp *ControlResponse) error {
	if req.Channel == nil {
		resp.Started = m.Render()
		return nil
	}
	ch, err := m.target(req)
	if err != nil {
		return err
	}
	if !ch.Ready() {
		return ErrChannelDisabled
	}
	if ch.Render() {
		resp.Started = 1
	}
	return nil
}

func controlPause(m *OutputManager, req *ControlRequest, resp *ControlResponse) error {
	ch, err := m.target(req)
	if err != nil {
		return err
	}
	return ch.Pause()
}

func controlResume(m *OutputManager, req *ControlRequest, resp *ControlResponse) error {
	ch, err := m.target(req)
	if err != nil {
		return err
	}
	return ch.Resume()
}
