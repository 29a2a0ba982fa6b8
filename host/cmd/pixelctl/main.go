// Command pixelctl drives a pixel controller over its USB control port,
// either one command from the arguments or interactively.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"

	"pixelgopper/host/mcu"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Controller USB serial device")
	timeout = flag.Duration("timeout", mcu.DefaultTimeout, "Response timeout")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	conn := mcu.NewMCU()
	conn.SetTimeout(*timeout)
	if err := conn.Connect(*device); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if flag.NArg() > 0 {
		cmd, err := parseArgs(flag.Args())
		if err == nil {
			err = execute(conn, cmd, os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			glog.Flush()
			os.Exit(1)
		}
		return
	}

	// Interactive command loop
	fmt.Printf("Connected to %s (type 'help' for available commands, 'quit' to exit)\n", *device)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "quit", "exit", "q":
			return
		case "help", "?":
			printHelp(os.Stdout)
			continue
		}

		cmd, err := parseLine(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if cmd == nil {
			continue
		}
		if err := execute(conn, cmd, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if !conn.IsConnected() {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}
