// Command pixelbench renders test frames through the output engine on
// simulated peripherals and checks that every waveform decodes back to the
// intensities that were sent.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/golang/glog"

	"pixelgopper/config"
	hostserial "pixelgopper/host/serial"
)

var (
	configPath = flag.String("config", "", "Channel configuration (.json, .yaml); built-in default when empty")
	frames     = flag.Int("frames", 10, "Frames to render per channel")
	devices    = flag.String("device", "", "Comma separated USB-UART devices for serial channels, by peripheral number")
	invertedTx = flag.Bool("inverted-tx", false, "Adapter TX polarity is inverted in its EEPROM")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	var uart *hostserial.UARTDriver
	if *devices != "" {
		uart = hostserial.NewUARTDriver(*invertedTx, strings.Split(*devices, ",")...)
	}

	b := newBench(cfg, uart)
	defer b.close()
	glog.Infof("rendering %d frames every %dus", *frames, cfg.RefreshUs)
	b.run(*frames)

	printReport(b.reports)
	if b.failed() {
		glog.Flush()
		os.Exit(1)
	}
}

func printReport(reports []*channelReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CH\tCHIPSET\tTRANSPORT\tFRAMES\tBAD\tUNCHECKED\tDROPPED\tWIRE AVG us\tWIRE MAX us")
	for _, r := range reports {
		avg := uint64(0)
		if checked := r.Frames - r.Unchecked; checked > 0 {
			avg = r.WireSumUs / uint64(checked)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.ID, r.Chipset, r.Transport, r.Frames, r.Mismatches, r.Unchecked,
			r.Stats.FramesDropped, avg, r.WireMaxUs)
	}
	w.Flush()
}
