package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/shlex"

	"pixelgopper/core"
)

var errUsage = errors.New("usage")

// controller is the part of mcu.MCU the shell drives
type controller interface {
	Status(ch *uint8) ([]core.ChannelStatus, error)
	Set(ch uint8, fields map[string]interface{}) (*core.ControlResponse, error)
	SetPixels(ch uint8, data []byte) (int, error)
	Render(ch *uint8) (int, error)
	Pause(ch uint8) error
	Resume(ch uint8) error
	Reboot() error
}

// command is one parsed shell line
type command struct {
	name    string
	channel *uint8
	fields  map[string]interface{}
	data    []byte
}

var usage = map[string]string{
	"status": "status [ch]",
	"set":    "set <ch> <field>=<value>...",
	"pixels": "pixels <ch> <hex>",
	"fill":   "fill <ch> <hex per pixel>",
	"render": "render [ch]",
	"pause":  "pause <ch>",
	"resume": "resume <ch>",
	"reboot": "reboot",
}

// stringFields are sent as given; hex byte strings would otherwise parse
// as numbers
var stringFields = map[string]bool{
	"chipset":       true,
	"transport":     true,
	"color_order":   true,
	"frame_prepend": true,
	"pixel_prepend": true,
	"frame_append":  true,
}

// parseLine splits a line shell-style and parses it. A blank line gives
// nil.
func parseLine(line string) (*command, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return nil, nil
	}
	return parseArgs(args)
}

func parseArgs(args []string) (*command, error) {
	cmd := &command{name: args[0]}
	rest := args[1:]
	help, known := usage[cmd.name]
	if !known {
		return nil, fmt.Errorf("unknown command %q", cmd.name)
	}
	bad := func() (*command, error) {
		return nil, fmt.Errorf("%w: %s", errUsage, help)
	}

	switch cmd.name {
	case "status", "render":
		if len(rest) > 1 {
			return bad()
		}
		if len(rest) == 1 {
			ch, err := parseChannel(rest[0])
			if err != nil {
				return nil, err
			}
			cmd.channel = &ch
		}
	case "reboot":
		if len(rest) != 0 {
			return bad()
		}
	case "pause", "resume":
		if len(rest) != 1 {
			return bad()
		}
		ch, err := parseChannel(rest[0])
		if err != nil {
			return nil, err
		}
		cmd.channel = &ch
	case "pixels", "fill":
		if len(rest) != 2 {
			return bad()
		}
		ch, err := parseChannel(rest[0])
		if err != nil {
			return nil, err
		}
		cmd.channel = &ch
		cmd.data, err = hex.DecodeString(rest[1])
		if err != nil || len(cmd.data) == 0 {
			return nil, fmt.Errorf("bad hex data %q", rest[1])
		}
	case "set":
		if len(rest) < 2 {
			return bad()
		}
		ch, err := parseChannel(rest[0])
		if err != nil {
			return nil, err
		}
		cmd.channel = &ch
		cmd.fields = make(map[string]interface{}, len(rest)-1)
		for _, kv := range rest[1:] {
			name, value, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return bad()
			}
			cmd.fields[name] = parseValue(name, value)
		}
	}
	return cmd, nil
}

func parseChannel(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("bad channel %q", s)
	}
	return uint8(n), nil
}

// parseValue types a field value the way the controller expects it.
// Values that fit no type are sent as strings and rejected there.
func parseValue(name, value string) interface{} {
	if stringFields[name] {
		return value
	}
	if b, err := strconv.ParseBool(value); err == nil && name == "invert" {
		return b
	}
	if n, err := strconv.ParseUint(value, 0, 64); err == nil {
		return n
	}
	return value
}

// repeatPattern tiles pattern over size bytes
func repeatPattern(pattern []byte, size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

// bufferSize is the intensity count behind a channel's pixel count
func bufferSize(st core.ChannelStatus) int {
	if n := len(st.ColorOrder); n > 0 {
		return st.Pixels * n
	}
	return st.Pixels
}

// execute runs cmd and prints its result to w
func execute(c controller, cmd *command, w io.Writer) error {
	switch cmd.name {
	case "status":
		status, err := c.Status(cmd.channel)
		if err != nil {
			return err
		}
		printStatus(w, status)
	case "set":
		resp, err := c.Set(*cmd.channel, cmd.fields)
		if resp != nil {
			for _, name := range resp.Accepted {
				fmt.Fprintf(w, "  %s: ok\n", name)
			}
			for name, reason := range resp.Rejected {
				fmt.Fprintf(w, "  %s: %s\n", name, reason)
			}
		}
		return err
	case "pixels":
		n, err := c.SetPixels(*cmd.channel, cmd.data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d intensities written\n", n)
	case "fill":
		status, err := c.Status(cmd.channel)
		if err != nil {
			return err
		}
		if len(status) != 1 {
			return fmt.Errorf("channel %d not found", *cmd.channel)
		}
		n, err := c.SetPixels(*cmd.channel, repeatPattern(cmd.data, bufferSize(status[0])))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d intensities written\n", n)
	case "render":
		n, err := c.Render(cmd.channel)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d frames started\n", n)
	case "pause":
		return c.Pause(*cmd.channel)
	case "resume":
		return c.Resume(*cmd.channel)
	case "reboot":
		return c.Reboot()
	}
	return nil
}

func printStatus(out io.Writer, status []core.ChannelStatus) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CH\tCHIPSET\tTRANSPORT\tSTATE\tPIXELS\tBRIGHT\tSENT\tDROPPED\tERROR")
	for _, st := range status {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			st.ID, st.Chipset, st.Transport, st.State, st.Pixels, st.Brightness,
			st.FramesSent, st.FramesDropped, st.Error)
	}
	w.Flush()
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "\nAvailable commands:")
	for _, name := range []string{"status", "set", "pixels", "fill", "render", "pause", "resume", "reboot"} {
		fmt.Fprintf(w, "  %s\n", usage[name])
	}
	fmt.Fprintln(w, "  help")
	fmt.Fprintln(w, "  quit/exit/q")
	fmt.Fprintln(w)
}
