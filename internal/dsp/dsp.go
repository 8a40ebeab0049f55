// Package dsp implements the pure, deterministic, out-of-place numeric
// filters shared by the waveform transformers: pole-zero correction,
// trapezoidal shaping, cumulative-sum/baseline-subtract integration,
// running-mean smoothing, extrema search, constant-fraction timing and
// its zero-crossing interpolation, and signal variance.
//
// Every primitive takes a read-only sample slice plus parameters and
// writes to a distinct, pre-allocated output slice of equal length.
// Indices before the array clamp to x[0]; indices after the array
// clamp to x[N-1].
package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Polarity is the two-valued pulse-polarity tag. For negative pulses
// the DSP chain operates on INT16_MAX - sample.
type Polarity int

const (
	Positive Polarity = iota
	Negative
)

// MaxInt16 mirrors the C INT16_MAX used as the reflection constant for
// negative-polarity pulses.
const MaxInt16 = 32767

// reflect returns x reflected around MaxInt16 for negative polarity, or
// x unchanged for positive polarity.
func reflect(x uint16, p Polarity) float64 {
	if p == Negative {
		return float64(MaxInt16) - float64(x)
	}
	return float64(x)
}

// clampIndex clamps i into [0, n-1], implementing the "before the array
// clamps to x[0]; after the array clamps to x[N-1]" boundary policy.
func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// PoleZeroCorrection computes y[n] = y[n-1] + (x[n] - f*x[n-1]),
// f = exp(-1/decayTime), reflecting the input first for negative
// polarity. y[0] = 0. dst must have the same length as x.
func PoleZeroCorrection(x []uint16, decayTime float64, polarity Polarity, dst []float64) error {
	n := len(x)
	if len(dst) != n {
		return fmt.Errorf("dsp: PoleZeroCorrection dst length %d != input length %d", len(dst), n)
	}
	if n == 0 {
		return nil
	}
	factor := math.Exp(-1.0 / decayTime)

	xf := func(i int) float64 { return reflect(x[clampIndex(i, n)], polarity) }

	dst[0] = 0
	for i := 1; i < n; i++ {
		dst[i] = dst[i-1] + (xf(i) - factor*xf(i-1))
	}
	return nil
}

// TrapezoidalFilter computes the trapezoidal shaper with rise time k
// and flat-top m (so l = k+m): y[n] = y[n-1] + (x[n]-x[n-k]) -
// (x[n-l]-x[n-k-l]). Negative polarity negates the input-difference
// terms. y[0] = 0.
func TrapezoidalFilter(x []float64, riseTime, flatTop int, polarity Polarity, dst []float64) error {
	n := len(x)
	if len(dst) != n {
		return fmt.Errorf("dsp: TrapezoidalFilter dst length %d != input length %d", len(dst), n)
	}
	if n == 0 {
		return nil
	}
	k := riseTime
	l := riseTime + flatTop

	xf := func(i int) float64 { return x[clampIndex(i, n)] }

	sign := 1.0
	if polarity == Negative {
		sign = -1.0
	}

	dst[0] = 0
	for i := 1; i < n; i++ {
		term := (xf(i) - xf(i-k)) - (xf(i-l) - xf(i-k-l))
		dst[i] = dst[i-1] + sign*term
	}
	return nil
}

// CumulativeSum computes S[n] = sum_{i=0..n} x[i].
func CumulativeSum(x []uint16, dst []uint64) error {
	if len(dst) != len(x) {
		return fmt.Errorf("dsp: CumulativeSum dst length %d != input length %d", len(dst), len(x))
	}
	var total uint64
	for i, v := range x {
		total += uint64(v)
		dst[i] = total
	}
	return nil
}

// IntegralBaselineSubtract computes C[n] = S[n] - (n+1)*baseline.
func IntegralBaselineSubtract(s []uint64, baseline float64, dst []float64) error {
	if len(dst) != len(s) {
		return fmt.Errorf("dsp: IntegralBaselineSubtract dst length %d != input length %d", len(dst), len(s))
	}
	for i, v := range s {
		dst[i] = float64(v) - float64(i+1)*baseline
	}
	return nil
}

// RunningMean computes the odd-window (W) running mean of the
// cumulative-sum curve s, with tapered boundaries at both ends,
// entirely from the cumulative sum (constant time per sample).
func RunningMean(s []float64, window int, dst []float64) error {
	n := len(s)
	if len(dst) != n {
		return fmt.Errorf("dsp: RunningMean dst length %d != input length %d", len(dst), n)
	}
	if n == 0 {
		return nil
	}
	h := window / 2
	hd := float64(h)
	wd := float64(h*2 + 1)

	for i := 0; i <= h && i < n; i++ {
		dst[i] = s[clampIndex(i+h, n)] / (float64(i) + hd + 1.0)
	}
	for i := h + 1; i <= n-h-1 && i < n; i++ {
		dst[i] = (s[i+h] - s[i-h-1]) / wd
	}
	for i := n - h; i < n; i++ {
		if i < 0 {
			continue
		}
		lo := clampIndex(i-h-1, n)
		dst[i] = (s[n-1] - s[lo]) / (float64(n-i) + hd)
	}
	return nil
}

// Extrema is the result of a linear scan for the minimum and maximum
// of a window, along with their (first-occurrence) indices.
type Extrema struct {
	MinIndex int
	MaxIndex int
	Min      float64
	Max      float64
}

// FindExtrema scans x[start:end) for its minimum and maximum, returning
// the first index at which each occurs. It fails if start >= end or x
// is empty.
func FindExtrema(x []float64, start, end int) (Extrema, error) {
	if start >= end || len(x) == 0 || end > len(x) {
		return Extrema{}, fmt.Errorf("dsp: FindExtrema invalid range [%d,%d) over length %d", start, end, len(x))
	}
	window := x[start:end]
	minI := floats.MinIdx(window)
	maxI := floats.MaxIdx(window)
	return Extrema{
		MinIndex: start + minI,
		MaxIndex: start + maxI,
		Min:      window[minI],
		Max:      window[maxI],
	}, nil
}

// CFDMonitor computes m[i] = fraction*x[i-delay] - x[i], with
// delay-shifted indices clamped to the array boundaries.
func CFDMonitor(x []float64, delay int, fraction float64, dst []float64) error {
	n := len(x)
	if len(dst) != n {
		return fmt.Errorf("dsp: CFDMonitor dst length %d != input length %d", len(dst), n)
	}
	for i := 0; i < n; i++ {
		delayed := x[clampIndex(i-delay, n)]
		dst[i] = fraction*delayed - x[i]
	}
	return nil
}

// ZeroCrossingCoarse bisects [l,r] on a monotonic sign-changing
// interval of x, terminating when r-l<=1 or the midpoint is exactly
// zero, and returns that midpoint index.
func ZeroCrossingCoarse(x []float64, l, r int) (int, error) {
	if l > r || l < 0 || r >= len(x) {
		return 0, fmt.Errorf("dsp: ZeroCrossingCoarse invalid range [%d,%d] over length %d", l, r, len(x))
	}
	for {
		m := (l + r) / 2
		mid := x[m]
		d := r - l
		if mid == 0 || d <= 1 {
			return m, nil
		}
		if x[l]*mid > 0 {
			l = m
		} else {
			r = m
		}
	}
}

// ZeroCrossingFine interpolates the fine (sub-sample) zero crossing
// around the coarse index using an ordinary-least-squares line fit
// over a window of 2*(zcSamples/2)+1 samples (an even zcSamples is
// rounded up to the next odd number), returning -intercept/slope. It fails if the window would
// run outside the array. If zcSamples < 2 it returns coarseIndex
// unchanged.
func ZeroCrossingFine(x []float64, coarseIndex, zcSamples int) (float64, error) {
	if zcSamples < 2 {
		return float64(coarseIndex), nil
	}
	w := (zcSamples/2)*2 + 1
	halfW := w / 2
	lo := coarseIndex - halfW
	hi := coarseIndex + halfW // inclusive
	if lo < 0 || hi >= len(x) {
		return 0, fmt.Errorf("dsp: ZeroCrossingFine window [%d,%d] outside length %d", lo, hi, len(x))
	}

	xs := make([]float64, 0, w)
	ys := make([]float64, 0, w)
	for i := lo; i <= hi; i++ {
		xs = append(xs, float64(i))
		ys = append(ys, x[i])
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if beta == 0 {
		return 0, fmt.Errorf("dsp: ZeroCrossingFine degenerate fit, slope is zero")
	}
	return -alpha / beta, nil
}

// Variance computes sum((x[i]-baseline)^2) / (n-1) over x[0:n].
func Variance(x []uint16, n int, baseline float64) (float64, error) {
	if n <= 1 || n > len(x) {
		return 0, fmt.Errorf("dsp: Variance invalid window n=%d over length %d", n, len(x))
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(x[i]) - baseline
		sum += d * d
	}
	return sum / float64(n-1), nil
}
