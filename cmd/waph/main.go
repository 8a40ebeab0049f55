// Command waph is the pulse-height transformer: it subscribes to raw
// waveform frames, applies pole-zero correction and trapezoidal
// shaping, and publishes the resulting peak-height/baseline event
// frames.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ec-jrc/abcd-waveforms/internal/worker"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var cfg worker.Config
	fs := worker.NewFlagSet("waph", &cfg)
	if err := fs.Parse(args); err != nil {
		if err.Error() == "pflag: help requested" {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	worker.ResolveVerbosity(fs, &cfg)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "waph: missing configuration file argument")
		return 2
	}
	cfg.ConfigPath = fs.Arg(0)

	status := worker.NewStatus(worker.KindPulseHeight, cfg)

	term := new(worker.Terminate)
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-interrupts
		term.Request()
	}()

	worker.Run(status, "waph", term, time.Duration(cfg.BasePeriodMS)*time.Millisecond)
	return 0
}
