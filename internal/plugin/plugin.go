// Package plugin loads the selection/analysis shared library that lets
// user code accept, reject, or enrich events at runtime. The ABI is
// three fixed C symbols: select_init, select_event, select_close.
package plugin

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Event mirrors the fields of an event record that the plug-in may
// observe and, for flags, modify in place before the verdict decides
// whether it is published.
type Event struct {
	Timestamp uint64
	Qshort    uint16
	Qlong     uint16
	Baseline  uint16
	Channel   uint8
	Flags     uint8
}

// selectEventFunc is the Go shape of the C ABI's
// select_event(samples_number, samples, baseline_end, timestamp,
// qshort_scaled, qlong_scaled, baseline, channel, pileup, event*,
// user_data*) -> bool.
type selectEventFunc func(samplesNumber int32, samples uintptr, baselineEnd int32, timestamp uint64,
	qshortScaled, qlongScaled, baseline float64, channel uint8, pileup int32,
	event uintptr, userData uintptr) int32

// selectCloseFunc is the Go shape of select_close(user_data*) -> i32.
type selectCloseFunc func(userData uintptr) int32

// Selector owns a loaded plug-in (or the trivial identity default) for
// the worker's whole lifetime. Close must be called exactly once.
type Selector struct {
	handle   uintptr
	userData uintptr
	closed   bool

	selectEvent selectEventFunc
	selectClose selectCloseFunc
}

// trivialSelectEvent and trivialSelectClose implement the "no plug-in
// supplied" identity described in the ABI contract: select_event always
// accepts, select_init returns null, select_close returns zero.
func trivialSelectEvent(int32, uintptr, int32, uint64, float64, float64, float64, uint8, int32, uintptr, uintptr) int32 {
	return 1
}

func trivialSelectClose(uintptr) int32 { return 0 }

// Load opens the plug-in at path and binds its three fixed symbols. An
// empty path returns the trivial identity selector. A present but
// unresolvable symbol is fatal, per the ABI contract ("the loader must
// resolve all three symbols up front").
func Load(path string) (*Selector, error) {
	if path == "" {
		s := &Selector{selectEvent: trivialSelectEvent, selectClose: trivialSelectClose}
		return s, nil
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("plugin: dlopen %s: %w", path, err)
	}

	var selectInit func() uintptr
	var selectEvent selectEventFunc
	var selectClose selectCloseFunc

	if err := registerAll(handle, &selectInit, &selectEvent, &selectClose); err != nil {
		return nil, err
	}

	s := &Selector{
		handle:      handle,
		selectEvent: selectEvent,
		selectClose: selectClose,
	}
	s.userData = selectInit()
	return s, nil
}

// registerAll resolves all three symbols before binding any of them,
// so a missing symbol fails loudly instead of leaving a partially
// functional Selector.
func registerAll(handle uintptr,
	selectInit *func() uintptr,
	selectEvent *selectEventFunc,
	selectClose *selectCloseFunc,
) error {
	initSym, err := purego.Dlsym(handle, "select_init")
	if err != nil {
		return fmt.Errorf("plugin: resolving select_init: %w", err)
	}
	eventSym, err := purego.Dlsym(handle, "select_event")
	if err != nil {
		return fmt.Errorf("plugin: resolving select_event: %w", err)
	}
	closeSym, err := purego.Dlsym(handle, "select_close")
	if err != nil {
		return fmt.Errorf("plugin: resolving select_close: %w", err)
	}
	purego.RegisterFunc(selectInit, initSym)
	purego.RegisterFunc(selectEvent, eventSym)
	purego.RegisterFunc(selectClose, closeSym)
	return nil
}

// Select invokes select_event for a single candidate event, passing
// the raw sample window and the scaled floating-point features exactly
// as the C ABI does. samples and ev are passed by address across the
// ABI boundary (matching the original's `const uint16_t*`/`event*`
// opaque pointers); the plug-in may modify ev.Flags in place before
// this returns. The returned bool is the plug-in's accept/reject
// verdict.
func (s *Selector) Select(samplesNumber int, samples []uint16, baselineEnd int32, timestamp uint64,
	qshortScaled, qlongScaled, baseline float64, channel uint8, pileup bool, ev *Event) bool {
	var samplesPtr uintptr
	if len(samples) > 0 {
		samplesPtr = uintptr(unsafe.Pointer(&samples[0]))
	}
	pileupFlag := int32(0)
	if pileup {
		pileupFlag = 1
	}
	verdict := s.selectEvent(int32(samplesNumber), samplesPtr, baselineEnd, timestamp,
		qshortScaled, qlongScaled, baseline, channel, pileupFlag, uintptr(unsafe.Pointer(ev)), s.userData)
	return verdict != 0
}

// Close calls select_close exactly once and releases the library
// handle. Calling Close more than once is a no-op.
func (s *Selector) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	if s.selectClose != nil {
		s.selectClose(s.userData)
	}
	if s.handle != 0 {
		return purego.Dlclose(s.handle)
	}
	return nil
}
