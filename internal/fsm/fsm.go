// Package fsm implements the generic deterministic state-machine
// runtime shared by every worker: a numeric-id state table, a
// cooperative single-threaded driver loop, and the terminate-flag
// wiring used to turn OS signals into a clean shutdown.
package fsm

import (
	"sync/atomic"
	"time"
)

// State id numbering convention: 1xx initialization, 2xx steady state,
// 3xx acquisition, 4xx restart, 8xx shutdown, 9xx error.
const (
	IDStop uint32 = 899
)

// State is one node of the state table: a numeric id (equality is by
// id only, per the contract), a human-readable description for
// logging, and the action invoked each tick. Action receives the
// worker's context value and returns the next State.
type State[T any] struct {
	ID          uint32
	Description string
	Action      func(ctx T) State[T]
}

// Equal compares two states by id only, matching "state equality uses
// the numeric id only."
func (s State[T]) Equal(other State[T]) bool {
	return s.ID == other.ID
}

// IsStop reports whether s is the terminal Stop state.
func (s State[T]) IsStop() bool {
	return s.ID == IDStop
}

// Terminate is the one process-global the driver loop reads: an
// atomic flag flipped by a signal handler and checked once per tick.
type Terminate struct {
	flag atomic.Bool
}

// Request marks termination; the next tick switches into the shutdown
// chain.
func (t *Terminate) Request() { t.flag.Store(true) }

// Requested reports and clears the flag in one step, matching "clear
// the flag so the shutdown path runs to completion" — the driver only
// needs to force the shutdown path once.
func (t *Terminate) Requested() bool {
	return t.flag.Swap(false)
}

// Run drives the state machine starting from start until it reaches
// the Stop state (by id). onTerminate, if non-nil and the terminate
// flag is observed set, is called to obtain the forced next state
// (typically a teardown entry point such as ClearMemory) instead of
// running current's own action for that tick. basePeriod is the fixed
// per-tick sleep.
func Run[T any](ctx T, start State[T], term *Terminate, onTerminate func() State[T], basePeriod time.Duration, sleep func(time.Duration)) {
	if sleep == nil {
		sleep = time.Sleep
	}
	current := start
	for {
		if term != nil && term.Requested() && onTerminate != nil {
			current = onTerminate()
		}
		if current.IsStop() {
			return
		}
		current = current.Action(ctx)
		sleep(basePeriod)
	}
}
