// Command waps is the pulse-shape-discrimination/timing transformer:
// it subscribes to raw waveform frames, computes short/long/extra gate
// charge integrals (with an optional constant-fraction discriminator
// fine timestamp), and publishes event frames.
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
	fs := worker.NewFlagSet("waps", &cfg)
	if err := fs.Parse(args); err != nil {
		if err.Error() == "pflag: help requested" {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	worker.ResolveVerbosity(fs, &cfg)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "waps: missing configuration file argument")
		return 2
	}
	cfg.ConfigPath = fs.Arg(0)

	status := worker.NewStatus(worker.KindPSD, cfg)

	term := new(worker.Terminate)
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-interrupts
		term.Request()
	}()

	worker.Run(status, "waps", term, time.Duration(cfg.BasePeriodMS)*time.Millisecond)
	return 0
}
