//go:build rp2040

package main

import (
	"encoding/json"
	"errors"
	"machine"
	"runtime"
	"time"

	"pixelgopper/config"
	"pixelgopper/core"
	"pixelgopper/protocol"
	"pixelgopper/targets/pio"
	"pixelgopper/targets/uart"
)

var errUSBStalled = errors.New("usb write stalled")

var (
	// Control lines from the host, filled by usbReaderLoop
	lines = protocol.NewLineBuffer(protocol.ControlLineMax)

	// Debug counters
	msgerrors     uint32
	writeFailures uint32

	// Set by the reboot op, acted on once the response is out
	pendingReset bool
)

func main() {
	// CRITICAL: Disable watchdog on boot to clear any previous state
	// This prevents issues with watchdog persisting across resets
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	// Initialize USB CDC immediately
	InitUSB()

	UpdateSystemTime()
	core.TimerInit()
	core.SetDebugWriter(writeLog)
	core.InitAsyncDebug()

	// Register the output peripherals
	core.SetPulseDriver(pio.NewPulseDriver())
	core.SetSerialDriver(uart.NewDriver())

	cfg := config.DefaultConfig()
	mgr := core.NewOutputManager()
	for _, ch := range cfg.Channels {
		// A channel that fails to claim its hardware stays visible in status
		mgr.AddChannel(ch)
	}
	mgr.ScheduleRender(cfg.RefreshUs)
	newStatusLED(statusLEDPin, mgr)

	core.RegisterControl("reboot", func(*core.OutputManager, *core.ControlRequest, *core.ControlResponse) error {
		pendingReset = true
		return nil
	})

	// Start USB reader goroutine
	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					lines.Reset()
				}
			}()

			UpdateSystemTime()
			handleLines(mgr)
			if pendingReset {
				mgr.Close()
				reset()
			}

			core.ProcessTimers()
		}()

		// Yield to the USB reader
		runtime.Gosched()
	}
}

// handleLines answers every complete control line
func handleLines(mgr *core.OutputManager) {
	for {
		line, err := lines.Next()
		if err != nil {
			msgerrors++
			resp, _ := json.Marshal(core.ControlResponse{Error: err.Error()})
			writeUSB(resp)
			continue
		}
		if line == nil {
			return
		}
		writeUSB(mgr.HandleControl(line))
	}
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop() {
	// Recover from panics to prevent a firmware crash
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			// Restart the reader loop
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		for USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				msgerrors++
				break
			}
			lines.Write([]byte{b})
		}
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB sends one response line. After repeated failures the host is
// assumed gone and pending input is dropped.
func writeUSB(data []byte) {
	if err := USBWriteLine(data); err != nil {
		writeFailures++
		if writeFailures > 10 {
			writeFailures = 0
			lines.Reset()
		}
		return
	}
	writeFailures = 0
}

type logLine struct {
	Log string `json:"log"`
}

// writeLog forwards debug output to the host as a JSON line
func writeLog(msg string) {
	data, err := json.Marshal(logLine{Log: msg})
	if err != nil {
		return
	}
	writeUSB(data)
}

// reset triggers a watchdog reset, which handles USB re-enumeration better
// than a core reset
func reset() {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
		return
	}
	if err := machine.Watchdog.Start(); err != nil {
		return
	}
	// Wait for reset (should happen in ~1ms)
	for {
		time.Sleep(1 * time.Millisecond)
	}
}
