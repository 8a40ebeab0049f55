// Package telemetry builds the status-channel heartbeat payload and the
// verbose diagnostic dumps a transformer worker emits, generalizing the
// teacher's own Heartbeat/ServerStatus/spew.Sdump idiom from its RPC
// server to a broker-less pub/sub worker.
package telemetry

import (
	"time"

	"github.com/davecgh/go-spew/spew"
)

// Heartbeat is the periodic liveness record, mirroring the teacher's
// own Heartbeat{Running, Time, DataMB} shape generalized to a DSP
// worker's own throughput metrics.
type Heartbeat struct {
	Running            bool
	Time               float64
	EventsEmitted      uint64
	WaveformsForwarded uint64
	WarnCount          uint64
	ErrCount           uint64
}

// Accumulator tracks the wall-clock time since the last heartbeat was
// taken, so Time reports the interval since the previous heartbeat.
// It holds no counters of its own.
type Accumulator struct {
	last time.Time
}

// NewAccumulator starts a fresh interval clock.
func NewAccumulator() *Accumulator {
	return &Accumulator{last: time.Now()}
}

// Take produces a Heartbeat from the given counters and resets the
// interval clock. Only the clock is reset; the counters are reported
// exactly as passed in and are not zeroed here.
func (a *Accumulator) Take(running bool, events, waveforms, warnings, errs uint64) Heartbeat {
	now := time.Now()
	elapsed := now.Sub(a.last).Seconds()
	a.last = now
	return Heartbeat{
		Running:            running,
		Time:               elapsed,
		EventsEmitted:      events,
		WaveformsForwarded: waveforms,
		WarnCount:          warnings,
		ErrCount:           errs,
	}
}

// Dumper is satisfied by *log.Logger and by testing.T, so verbose
// dumps can be exercised without a real logger.
type Dumper interface {
	Printf(format string, args ...interface{})
}

// Dump renders value with spew, matching the teacher's own
// `log.Printf("GOT ...: %v", spew.Sdump(state))` verbose-diagnostic
// idiom, gated on verbosity so it only runs at level 2 (-V).
func Dump(d Dumper, verbosity int, label string, value interface{}) {
	if verbosity < 2 {
		return
	}
	d.Printf("%s: %s", label, spew.Sdump(value))
}
