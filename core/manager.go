package core

// OutputManager owns the configured channels and drives their renders
type OutputManager struct {
	channels []*OutputChannel
	timer    Timer
	period   uint32
	running  bool
}

// NewOutputManager creates an empty manager
func NewOutputManager() *OutputManager {
	return &OutputManager{}
}

// AddChannel creates and begins a channel. A channel whose hardware cannot
// be claimed is kept, so its status reports the failure, but it is skipped
// by Render. Begin is not retried.
func (m *OutputManager) AddChannel(cfg ChannelConfig) (*OutputChannel, error) {
	ch := NewOutputChannel(cfg)
	err := ch.Begin()
	m.channels = append(m.channels, ch)
	if err != nil {
		DebugAsync("[OUTPUT] channel " + itoa(int(cfg.ID)) + " disabled: " + err.Error())
	}
	return ch, err
}

// Channel returns the channel with the given id, or nil
func (m *OutputManager) Channel(id uint8) *OutputChannel {
	for _, ch := range m.channels {
		if ch.ID() == id {
			return ch
		}
	}
	return nil
}

// Channels returns every channel, configured or not
func (m *OutputManager) Channels() []*OutputChannel {
	return m.channels
}

// Render asks every ready channel for a frame and returns how many started
func (m *OutputManager) Render() int {
	started := 0
	for _, ch := range m.channels {
		if ch.Ready() && ch.Render() {
			started++
		}
	}
	return started
}

// ScheduleRender renders all channels every periodUs from the timer
// dispatch. The channel pacers still decide whether each frame goes out.
func (m *OutputManager) ScheduleRender(periodUs uint32) {
	if periodUs == 0 {
		periodUs = DefaultMinFrameUs
	}
	m.period = periodUs
	m.timer.Handler = m.renderTimer
	m.timer.WakeTime = GetTime()
	m.running = true
	ScheduleTimer(&m.timer)
}

// StopRender cancels the scheduled render
func (m *OutputManager) StopRender() {
	if !m.running {
		return
	}
	CancelTimer(&m.timer)
	m.running = false
}

func (m *OutputManager) renderTimer(t *Timer) uint8 {
	m.Render()
	t.WakeTime += m.period
	// Skip missed periods instead of rendering a burst
	if now := GetTime(); TimeReached(now, t.WakeTime) {
		t.WakeTime = now + m.period
	}
	return SF_RESCHEDULE
}

// Status returns the status of every channel
func (m *OutputManager) Status() []ChannelStatus {
	status := make([]ChannelStatus, 0, len(m.channels))
	for _, ch := range m.channels {
		status = append(status, ch.GetStatus())
	}
	return status
}

// Close stops rendering and releases all hardware
func (m *OutputManager) Close() {
	m.StopRender()
	for _, ch := range m.channels {
		ch.Close()
	}
}
