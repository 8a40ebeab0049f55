package dsp

import (
	"math"
	"testing"
)

func float64Near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// P2: pole-zero correction of a decaying exponential step returns a
// constant after the first sample.
func TestPoleZeroCorrectionConstantAfterFirstSample(t *testing.T) {
	const tau = 20.0
	const amplitude = 5000.0
	n := 64
	x := make([]uint16, n)
	for i := range x {
		x[i] = uint16(amplitude * math.Exp(-float64(i)/tau))
	}
	dst := make([]float64, n)
	if err := PoleZeroCorrection(x, tau, Positive, dst); err != nil {
		t.Fatalf("PoleZeroCorrection: %v", err)
	}
	want := dst[1]
	for i := 2; i < n; i++ {
		if !float64Near(dst[i], want, want*0.05+5) {
			t.Errorf("dst[%d] = %v, want ~%v (constant)", i, dst[i], want)
		}
	}
}

// P3: the trapezoidal filter's step response has an exact plateau of
// length m+1 at height k (the rise time), starting at sample n0+k-1
// for a step that begins at n0.
func TestTrapezoidalFilterStepResponsePlateau(t *testing.T) {
	const k, m = 5, 3
	const n0 = 20
	n := 60
	x := make([]float64, n)
	for i := n0; i < n; i++ {
		x[i] = 1 // unit step starting well clear of both array edges
	}
	dst := make([]float64, n)
	if err := TrapezoidalFilter(x, k, m, Positive, dst); err != nil {
		t.Fatalf("TrapezoidalFilter: %v", err)
	}

	plateauStart := n0 + k - 1
	for i := plateauStart; i <= plateauStart+m; i++ {
		if !float64Near(dst[i], k, 1e-9) {
			t.Errorf("dst[%d] = %v, want %v (plateau)", i, dst[i], float64(k))
		}
	}
	// Immediately before the plateau, the ramp must still be rising
	// (strictly below the plateau height).
	if dst[plateauStart-1] >= k {
		t.Errorf("dst[%d] = %v, want < %v (still ramping)", plateauStart-1, dst[plateauStart-1], float64(k))
	}
	// Immediately after, the response must fall away from the plateau.
	if dst[plateauStart+m+1] >= k {
		t.Errorf("dst[%d] = %v, want < %v (falling edge)", plateauStart+m+1, dst[plateauStart+m+1], float64(k))
	}
}

// P5: cumulative sum then integral-baseline-subtract with
// baseline=S[k-1]/k yields C[k-1]=0.
func TestCumulativeSumBaselineSubtractZero(t *testing.T) {
	n := 20
	x := make([]uint16, n)
	for i := range x {
		x[i] = uint16(1000 + i*7)
	}
	s := make([]uint64, n)
	if err := CumulativeSum(x, s); err != nil {
		t.Fatalf("CumulativeSum: %v", err)
	}
	const k = 8
	baseline := float64(s[k-1]) / float64(k)
	c := make([]float64, n)
	if err := IntegralBaselineSubtract(s, baseline, c); err != nil {
		t.Fatalf("IntegralBaselineSubtract: %v", err)
	}
	if !float64Near(c[k-1], 0, 1e-9) {
		t.Errorf("C[k-1] = %v, want 0", c[k-1])
	}
}

// P4: running mean over a constant signal returns that constant at
// every interior index, and boundaries deviate by less than the
// constant value.
func TestRunningMeanConstantSignal(t *testing.T) {
	n := 40
	const value = 1000.0
	s := make([]uint64, n)
	for i := range s {
		s[i] = uint64(value) * uint64(i+1)
	}
	cs := make([]float64, n)
	for i, v := range s {
		cs[i] = float64(v)
	}
	dst := make([]float64, n)
	const window = 7
	if err := RunningMean(cs, window, dst); err != nil {
		t.Fatalf("RunningMean: %v", err)
	}
	h := window / 2
	for i := h + 1; i < n-h-1; i++ {
		if !float64Near(dst[i], value, 1e-6) {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], value)
		}
	}
	for i := 0; i <= h; i++ {
		if math.Abs(dst[i]-value) >= value {
			t.Errorf("boundary dst[%d] = %v deviates >= %v from constant", i, dst[i], value)
		}
	}
	for i := n - h; i < n; i++ {
		if math.Abs(dst[i]-value) >= value {
			t.Errorf("boundary dst[%d] = %v deviates >= %v from constant", i, dst[i], value)
		}
	}
}

func TestFindExtremaInvalidRange(t *testing.T) {
	if _, err := FindExtrema([]float64{1, 2, 3}, 2, 2); err == nil {
		t.Error("expected error for start==end")
	}
	if _, err := FindExtrema(nil, 0, 0); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestFindExtremaBasic(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	e, err := FindExtrema(x, 0, len(x))
	if err != nil {
		t.Fatalf("FindExtrema: %v", err)
	}
	if e.Min != 1 || e.MinIndex != 1 {
		t.Errorf("min = %v at %d, want 1 at 1", e.Min, e.MinIndex)
	}
	if e.Max != 9 || e.MaxIndex != 5 {
		t.Errorf("max = %v at %d, want 9 at 5", e.Max, e.MaxIndex)
	}
}

// P6: zero-crossing bisection on a strictly sign-changing monotone
// array returns an index within +-1 of the true crossing.
func TestZeroCrossingCoarseMonotone(t *testing.T) {
	n := 50
	x := make([]float64, n)
	trueCrossing := 25
	for i := range x {
		x[i] = float64(i - trueCrossing)
	}
	idx, err := ZeroCrossingCoarse(x, 0, n-1)
	if err != nil {
		t.Fatalf("ZeroCrossingCoarse: %v", err)
	}
	if diff := idx - trueCrossing; diff < -1 || diff > 1 {
		t.Errorf("idx = %d, want within +-1 of %d", idx, trueCrossing)
	}
}

// S4-style check: fine zero crossing on a line sampled around a known
// crossing recovers that crossing closely.
func TestZeroCrossingFineLinear(t *testing.T) {
	n := 50
	x := make([]float64, n)
	const trueCrossing = 24.25
	for i := range x {
		x[i] = float64(i) - trueCrossing
	}
	fine, err := ZeroCrossingFine(x, 24, 7)
	if err != nil {
		t.Fatalf("ZeroCrossingFine: %v", err)
	}
	if !float64Near(fine, trueCrossing, 1e-6) {
		t.Errorf("fine = %v, want %v", fine, trueCrossing)
	}
}

func TestZeroCrossingFineWindowOutsideArray(t *testing.T) {
	x := make([]float64, 10)
	if _, err := ZeroCrossingFine(x, 1, 9); err == nil {
		t.Error("expected error for window outside array")
	}
}

func TestVarianceConstantSignalIsZero(t *testing.T) {
	x := make([]uint16, 10)
	for i := range x {
		x[i] = 500
	}
	v, err := Variance(x, 10, 500)
	if err != nil {
		t.Fatalf("Variance: %v", err)
	}
	if v != 0 {
		t.Errorf("variance = %v, want 0", v)
	}
}

func TestPoleZeroNegativePolarityReflects(t *testing.T) {
	n := 10
	x := make([]uint16, n)
	for i := range x {
		x[i] = uint16(1000 - i*10)
	}
	xNeg := make([]uint16, n)
	for i, v := range x {
		xNeg[i] = uint16(MaxInt16) - v
	}
	dstPos := make([]float64, n)
	dstFromNeg := make([]float64, n)
	if err := PoleZeroCorrection(x, 50, Positive, dstPos); err != nil {
		t.Fatal(err)
	}
	if err := PoleZeroCorrection(xNeg, 50, Negative, dstFromNeg); err != nil {
		t.Fatal(err)
	}
	for i := range dstPos {
		if !float64Near(dstPos[i], dstFromNeg[i], 1e-9) {
			t.Errorf("index %d: positive %v != negative-of-reflected %v", i, dstPos[i], dstFromNeg[i])
		}
	}
}
