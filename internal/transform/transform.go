// Package transform implements the two waveform-to-event DSP chains:
// RunPSD (short/long/extra gate integration with optional
// constant-fraction discriminator timing) and RunPulseHeight
// (pole-zero correction plus trapezoidal shaping). Both walk an
// incoming concatenated-waveform-frames buffer, emit a
// concatenated-event-frames buffer, and optionally forward waveforms
// annotated with diagnostic gate traces.
package transform

import (
	"math"

	"github.com/ec-jrc/abcd-waveforms/internal/channel"
	"github.com/ec-jrc/abcd-waveforms/internal/dsp"
	"github.com/ec-jrc/abcd-waveforms/internal/frame"
	"github.com/ec-jrc/abcd-waveforms/internal/plugin"
)

// Config holds the CLI-derived options shared by both DSP chains.
type Config struct {
	DisableShift       bool
	FractionalBits      uint
	EnableForward      bool
	EnableGates        bool
	VarianceMode       bool
	VarianceMultiplier float64
}

// Stats accumulates the per-call counters the status channel reports.
type Stats struct {
	WaveformsSeen      int
	EventsEmitted      int
	WaveformsForwarded int
	Warnings           int
}

// Scratch holds one channel's DSP working buffers, reused across
// waveforms rather than reallocated per event (the systems-quality
// improvement over the source noted in the design notes).
type Scratch struct {
	integral  []uint64
	curve     []float64
	smooth    []float64
	monitor   []float64
	poleZero  []float64
	trapezoid []float64
}

func (s *Scratch) ensure(n int) {
	s.integral = ensureU64(s.integral, n)
	s.curve = ensureF64(s.curve, n)
	s.smooth = ensureF64(s.smooth, n)
	s.monitor = ensureF64(s.monitor, n)
	s.poleZero = ensureF64(s.poleZero, n)
	s.trapezoid = ensureF64(s.trapezoid, n)
}

func ensureF64(s []float64, n int) []float64 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]float64, n)
}

func ensureU64(s []uint64, n int) []uint64 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]uint64, n)
}

// ScratchPool is the per-channel scratch map threaded through the
// worker's Status value, keyed by channel id.
type ScratchPool map[uint8]*Scratch

// Get returns the Scratch for ch, creating it on first use.
func (p ScratchPool) Get(ch uint8) *Scratch {
	s, ok := p[ch]
	if !ok {
		s = &Scratch{}
		p[ch] = s
	}
	return s
}

// curveAt reads curve[i], treating a negative index as the
// conventional "cumulative value before the start of the array",
// which is zero. This is the one place this package diverges from a
// literal port of the source, which dereferences the negative index
// directly (undefined behaviour in C); the convention matches how
// every other cumulative-sum-derived curve in this package is defined
// at its left boundary.
func curveAt(curve []float64, i int) float64 {
	if i < 0 {
		return 0
	}
	return curve[i]
}

// saturateU16 clamps v into [0, 0xFFFF], mirroring the source's
// shift-then-saturate integer scaling.
func saturateU16(v int64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

// windowsInBounds checks that every integration window implied by
// baselineEnd and p lies inside [0, n), enforcing global invariant 2
// ("integration windows lie inside the sample array").
func windowsInBounds(baselineEnd, n int, p channel.Parameters) bool {
	if baselineEnd < 1 || baselineEnd > n {
		return false
	}
	shortEnd := baselineEnd + int(p.GateShort) - 1
	longEnd := baselineEnd + int(p.GateLong) - 1
	if shortEnd < 0 || shortEnd >= n || longEnd < 0 || longEnd >= n {
		return false
	}
	if p.GateExtra != 0 {
		extraEnd := baselineEnd + int(p.GateExtra) - 1
		if extraEnd < 0 || extraEnd >= n {
			return false
		}
	}
	return true
}

// Warner receives a human-readable diagnostic for a skipped or
// degraded event; nil is a valid no-op sink.
type Warner func(format string, args ...interface{})

func warn(w Warner, format string, args ...interface{}) {
	if w != nil {
		w(format, args...)
	}
}

// RunPSD implements the `waps` DSP chain (short/long/extra gate
// integration, optional CFD timing) over one incoming concatenated
// waveform message, returning newly-allocated event and (optionally)
// forwarded-waveform buffers.
func RunPSD(input []byte, channels *channel.Table, sel *plugin.Selector, cfg Config, scratch ScratchPool, stats *Stats, w Warner) (events, waveforms []byte) {
	offset := 0
	for offset+frame.WaveformHeaderSize < len(input) {
		wf, next, err := frame.DecodeWaveform(input, offset)
		if err != nil {
			break
		}
		offset = next
		stats.WaveformsSeen++

		n := int(wf.SamplesNumber)
		params, ok := channels.Get(wf.Channel)
		if !ok {
			stats.Warnings++
			warn(w, "channel %d is not active", wf.Channel)
			continue
		}

		baselineEnd := int(params.Pretrigger) - int(params.Pregate)
		if !windowsInBounds(baselineEnd, n, params) {
			stats.Warnings++
			warn(w, "channel %d: integration window out of range for %d samples", wf.Channel, n)
			continue
		}

		sc := scratch.Get(wf.Channel)
		sc.ensure(n)

		dsp.CumulativeSum(wf.Samples, sc.integral)
		baseline := float64(sc.integral[baselineEnd-1]) / float64(baselineEnd)
		dsp.IntegralBaselineSubtract(sc.integral, baseline, sc.curve)

		timestamp := wf.Timestamp
		if !cfg.DisableShift {
			timestamp <<= cfg.FractionalBits
		}

		monitorMin, monitorMax := 0.0, 0.0
		if params.CFDEnabled {
			dsp.RunningMean(sc.curve, params.CFDSmoothSamples, sc.smooth)
			dsp.CFDMonitor(sc.smooth, int(params.CFDDelay), params.CFDFraction, sc.monitor)

			if ext, extErr := dsp.FindExtrema(sc.monitor, 0, n); extErr == nil {
				monitorMin, monitorMax = ext.Min, ext.Max
				left, right := ext.MinIndex, ext.MaxIndex
				if left > right {
					left, right = right, left
				}
				if coarse, coarseErr := dsp.ZeroCrossingCoarse(sc.monitor, left, right); coarseErr == nil {
					if fine, fineErr := dsp.ZeroCrossingFine(sc.monitor, coarse, params.CFDZeroCrossingSamples); fineErr == nil {
						fineTimestamp := uint64(math.Floor(fine * float64(uint64(1)<<cfg.FractionalBits)))
						timestamp += fineTimestamp

						// Open question resolved: if the recomputed
						// baseline_end falls outside [1,N), keep the old
						// value silently (matches the source exactly).
						newBaselineEnd := coarse - int(params.Pregate)
						if newBaselineEnd > 0 && newBaselineEnd < n && windowsInBounds(newBaselineEnd, n, params) {
							baselineEnd = newBaselineEnd
							baseline = float64(sc.integral[baselineEnd-1]) / float64(baselineEnd)
						}
					}
				}
			}
		}

		qshort := sc.curve[baselineEnd+int(params.GateShort)-1] - curveAt(sc.curve, baselineEnd-2)
		qlong := sc.curve[baselineEnd+int(params.GateLong)-1] - curveAt(sc.curve, baselineEnd-2)
		var qextra float64
		if params.GateExtra != 0 {
			qextra = sc.curve[baselineEnd+int(params.GateExtra)-1] - curveAt(sc.curve, baselineEnd-2)
		}

		sign := 1.0
		if params.PulsePolarity == channel.Negative {
			sign = -1.0
		}

		longQshort := int64(math.Round(qshort * sign))
		longQlong := int64(math.Round(qlong * sign))
		longQextra := int64(math.Round(qextra * sign))
		scaledQshort := (qshort * sign) / math.Pow(4, float64(params.ChargeSensitivity))
		scaledQlong := (qlong * sign) / math.Pow(4, float64(params.ChargeSensitivity))

		shift := uint(2 * params.ChargeSensitivity)
		intQshort := saturateU16(longQshort >> shift)
		intQlong := saturateU16(longQlong >> shift)
		intQextra := uint16(int16(longQextra >> shift))

		intBaseline := uint16(math.Round(baseline))
		if cfg.VarianceMode {
			if v, vErr := dsp.Variance(wf.Samples, baselineEnd, baseline); vErr == nil {
				intBaseline = saturateU16(int64(math.Round(v * cfg.VarianceMultiplier)))
			}
		}

		baselineOrQextra := intBaseline
		if params.GateExtra != 0 {
			baselineOrQextra = intQextra
		}

		ev := frame.Event{
			Timestamp:        timestamp,
			Qshort:           intQshort,
			Qlong:            intQlong,
			BaselineOrQextra: baselineOrQextra,
			Channel:          wf.Channel,
			Flags:            0,
		}

		// Pile-up flagging is left unset: the source's own pile-up
		// detector is never wired in (the call is commented out in both
		// transformer binaries), so there is no grounded algorithm to
		// port.
		const pileup = false

		selected := true
		if sel != nil {
			pev := plugin.Event{Timestamp: ev.Timestamp, Qshort: ev.Qshort, Qlong: ev.Qlong, Baseline: ev.BaselineOrQextra, Channel: ev.Channel, Flags: ev.Flags}
			selected = sel.Select(n, wf.Samples, int32(baselineEnd), timestamp, scaledQshort, scaledQlong, baseline, wf.Channel, pileup, &pev)
			ev.Flags = pev.Flags
		}

		if selected {
			wire := frame.EncodeEvent(ev)
			events = append(events, wire[:]...)
			stats.EventsEmitted++
		}

		if selected && cfg.EnableForward {
			if cfg.EnableGates {
				waveforms = appendPSDGateWaveform(waveforms, wf, params, baselineEnd, sc.monitor, monitorMin, monitorMax)
			} else {
				waveforms = frame.EncodeWaveform(waveforms, wf)
			}
			stats.WaveformsForwarded++
		}
	}
	return events, waveforms
}

// appendPSDGateWaveform rebuilds wf with three synthetic gate lanes:
// a short-gate mask, a long-gate mask, and the CFD monitor trace
// normalized to u8 (zero if CFD was not run for this channel).
func appendPSDGateWaveform(dst []byte, wf frame.Waveform, p channel.Parameters, baselineEnd int, monitor []float64, monitorMin, monitorMax float64) []byte {
	n := int(wf.SamplesNumber)
	gates := make([]byte, 3*n)
	shortGate := gates[0:n]
	longGate := gates[n : 2*n]
	cfdGate := gates[2*n : 3*n]

	delta := monitorMax - monitorMin
	for i := 0; i < n; i++ {
		if i >= baselineEnd && i < baselineEnd+int(p.GateShort) {
			shortGate[i] = 255
		}
		if i >= baselineEnd && i < baselineEnd+int(p.GateLong) {
			longGate[i] = 255
		}
		if p.CFDEnabled && delta != 0 {
			cfdGate[i] = byte((monitor[i] - monitorMin) / delta * 255)
		}
	}

	out := wf
	out.GatesNumber = 3
	out.Gates = gates
	return frame.EncodeWaveform(dst, out)
}

// RunPulseHeight implements the `waph` DSP chain (pole-zero correction
// + trapezoidal shaping) over one incoming concatenated waveform
// message.
func RunPulseHeight(input []byte, channels *channel.Table, sel *plugin.Selector, cfg Config, scratch ScratchPool, stats *Stats, w Warner) (events, waveforms []byte) {
	offset := 0
	for offset+frame.WaveformHeaderSize < len(input) {
		wf, next, err := frame.DecodeWaveform(input, offset)
		if err != nil {
			break
		}
		offset = next
		stats.WaveformsSeen++

		n := int(wf.SamplesNumber)
		params, ok := channels.Get(wf.Channel)
		if !ok {
			stats.Warnings++
			warn(w, "channel %d is not active", wf.Channel)
			continue
		}
		if params.PeakingTime >= n {
			stats.Warnings++
			warn(w, "channel %d: peaking_time out of range for %d samples", wf.Channel, n)
			continue
		}
		if params.BaselineWindow >= n {
			stats.Warnings++
			warn(w, "channel %d: baseline_window out of range for %d samples", wf.Channel, n)
			continue
		}

		sc := scratch.Get(wf.Channel)
		sc.ensure(n)

		if err := dsp.PoleZeroCorrection(wf.Samples, params.DecayTime, dsp.Polarity(params.PulsePolarity), sc.poleZero); err != nil {
			stats.Warnings++
			warn(w, "channel %d: pole-zero correction failed: %v", wf.Channel, err)
			continue
		}
		if err := dsp.TrapezoidalFilter(sc.poleZero, params.TrapezoidRisetime, params.TrapezoidFlattop, dsp.Polarity(params.PulsePolarity), sc.trapezoid); err != nil {
			stats.Warnings++
			warn(w, "channel %d: trapezoidal filter failed: %v", wf.Channel, err)
			continue
		}

		trapExtrema, extErr := dsp.FindExtrema(sc.trapezoid, 0, n)
		if extErr != nil {
			stats.Warnings++
			warn(w, "channel %d: %v", wf.Channel, extErr)
			continue
		}
		trapezoidBase, trapezoidHeight := trapExtrema.Min, trapExtrema.Max
		trapezoidRange := trapExtrema.Max - trapExtrema.Min

		peakHeight := sc.trapezoid[params.PeakingTime]

		var baselineValue float64
		if params.BaselineWindow > 0 {
			for i := 0; i < params.BaselineWindow; i++ {
				baselineValue += sc.trapezoid[i]
			}
		}

		peakHeight -= baselineValue
		trapezoidHeight -= baselineValue

		rescale := float64(uint(1) << params.TrapezoidRescaling)
		rescaledTrapezoidHeight := trapezoidHeight / rescale
		rescaledPeakHeight := peakHeight / rescale

		intTrapezoidHeight := saturateU16(int64(rescaledTrapezoidHeight))
		intPeakHeight := saturateU16(int64(rescaledPeakHeight))

		var intBaseline uint16
		if params.BaselineWindow == 0 {
			intBaseline = uint16(int16(math.Round(sc.trapezoid[0])))
		} else {
			intBaseline = uint16(int16(math.Round(baselineValue)))
		}

		timestamp := wf.Timestamp
		if !cfg.DisableShift {
			timestamp <<= cfg.FractionalBits
		}

		ev := frame.Event{
			Timestamp:        timestamp,
			Qshort:           intTrapezoidHeight,
			Qlong:            intPeakHeight,
			BaselineOrQextra: intBaseline,
			Channel:          wf.Channel,
			Flags:            0,
		}

		const pileup = false
		scaledTrapezoidHeight := rescaledTrapezoidHeight
		scaledPeakHeight := rescaledPeakHeight

		selected := true
		if sel != nil {
			pev := plugin.Event{Timestamp: ev.Timestamp, Qshort: ev.Qshort, Qlong: ev.Qlong, Baseline: ev.BaselineOrQextra, Channel: ev.Channel, Flags: ev.Flags}
			selected = sel.Select(n, wf.Samples, 0, timestamp, scaledTrapezoidHeight, scaledPeakHeight, baselineValue, wf.Channel, pileup, &pev)
			ev.Flags = pev.Flags
		}

		if selected {
			wire := frame.EncodeEvent(ev)
			events = append(events, wire[:]...)
			stats.EventsEmitted++
		}

		if selected && cfg.EnableForward {
			if cfg.EnableGates {
				waveforms = appendPulseHeightGateWaveform(waveforms, wf, sc.poleZero, sc.trapezoid, trapezoidBase, trapezoidRange)
			} else {
				waveforms = frame.EncodeWaveform(waveforms, wf)
			}
			stats.WaveformsForwarded++
		}
	}
	return events, waveforms
}

// appendPulseHeightGateWaveform rebuilds wf with two synthetic gate
// lanes: the pole-zero compensated curve and the trapezoid output,
// each normalized to the dynamic range of int8 over their own extrema.
// trapezoidBase/trapezoidRange are the trapezoid curve's own min and
// (max-min), computed before the baseline-window correction is folded
// into the event's height fields.
func appendPulseHeightGateWaveform(dst []byte, wf frame.Waveform, poleZero, trapezoid []float64, trapezoidBase, trapezoidRange float64) []byte {
	n := int(wf.SamplesNumber)
	gates := make([]byte, 2*n)
	compensatedGate := gates[0:n]
	filteredGate := gates[n : 2*n]

	pulseExtrema, err := dsp.FindExtrema(poleZero, 0, n)
	var pulseBase, pulseRange float64
	if err == nil {
		pulseBase = pulseExtrema.Min
		pulseRange = pulseExtrema.Max - pulseExtrema.Min
	}

	for i := 0; i < n; i++ {
		if pulseRange != 0 {
			compensatedGate[i] = byte(int8((poleZero[i] - pulseBase) / pulseRange * 127))
		}
		if trapezoidRange != 0 {
			filteredGate[i] = byte(int8((trapezoid[i] - trapezoidBase) / trapezoidRange * 127))
		}
	}

	out := wf
	out.GatesNumber = 2
	out.Gates = gates
	return frame.EncodeWaveform(dst, out)
}
