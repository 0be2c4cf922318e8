// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

var testSmootherConfig = SmootherConfig{
	DeltaThreshold: 1000,
	DecayFactor:    0.1,
	EpsilonFloor:   1e-5,
	FloorThreshold: 1,
	Sigma:          1.5,
}

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(1.5)
	if len(k) != 13 {
		t.Fatalf("kernel len = %d, want 13 (radius 6)", len(k))
	}
	if sum := floats.Sum(k); math.Abs(sum-1) > 1e-12 {
		t.Errorf("kernel sum = %g, want 1", sum)
	}
	if floats.MaxIdx(k) != 6 {
		t.Errorf("kernel peak at %d, want centre", floats.MaxIdx(k))
	}
	for i := 0; i < 6; i++ {
		if k[i] != k[12-i] {
			t.Errorf("kernel not symmetric at %d", i)
		}
	}

	if got := gaussianKernel(0); len(got) != 1 || got[0] != 1 {
		t.Errorf("gaussianKernel(0) = %v, want identity", got)
	}
}

func TestUpdateRules(t *testing.T) {
	tests := []struct {
		name   string
		start  float64
		amp    float64
		paused bool
		want   float64
	}{
		{"snap up from zero", 0, 5000, false, 5000},
		{"snap up", 2000, 4000, false, 4000},
		{"hold small rise", 2000, 2500, false, 2000},
		{"decay on drop", 5000, 100, false, 4500},
		{"decay on small drop", 5000, 4999, false, 4500},
		{"decay when paused", 5000, 9000, true, 4500},
		{"zero stays floored", 0, 0, false, 1e-5},
		{"quiet rise floors", 0, 500, false, 1e-5},
		{"decay below threshold floors", 1.05, 0, false, 1e-5},
		{"floor decays and re-floors", 1e-5, 0, false, 1e-5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSmoother(1, testSmootherConfig)
			s.points[0] = tt.start
			if err := s.Update([]float64{tt.amp}, tt.paused); err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if got := s.Points()[0]; math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("point = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestPausedDecayMonotonic(t *testing.T) {
	s := NewSmoother(8, testSmootherConfig)
	raw := []float64{0, 2000, 4000, 8000, 16000, 32000, 64000, 128000}
	if err := s.Update(raw, false); err != nil {
		t.Fatal(err)
	}

	prev := s.Points()
	for _i := 0; _i < 200; _i++ {
		if err := s.Update(raw, true); err != nil {
			t.Fatal(err)
		}
		cur := s.Points()
		for i := range cur {
			if cur[i] > prev[i] {
				t.Fatalf("bin %d rose while paused: %g -> %g", i, prev[i], cur[i])
			}
			if cur[i] < testSmootherConfig.EpsilonFloor {
				t.Fatalf("bin %d below floor: %g", i, cur[i])
			}
		}
		prev = cur
	}
	for i, v := range prev {
		if v != testSmootherConfig.EpsilonFloor {
			t.Errorf("bin %d = %g after long pause, want floor", i, v)
		}
	}
}

func TestUpdateIdempotentBelowThreshold(t *testing.T) {
	s := NewSmoother(4, testSmootherConfig)
	if err := s.Update([]float64{3000, 6000, 0, 12000}, false); err != nil {
		t.Fatal(err)
	}

	// Same raw input again: no bin is below its state and no delta exceeds the threshold.
	before := s.Points()
	if err := s.Update([]float64{3000, 6000, 0, 12000}, false); err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(before, s.Points()) {
		t.Errorf("repeat update changed state: %v -> %v", before, s.Points())
	}
}

func TestUpdateRejectsBadInput(t *testing.T) {
	s := NewSmoother(3, testSmootherConfig)
	if err := s.Update([]float64{1, 2}, false); err == nil {
		t.Error("Update() with wrong length expected error")
	}

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := s.Update([]float64{5000, bad, 5000}, false)
		if !errors.Is(err, ErrNumericFault) {
			t.Errorf("Update(%v) error = %v, want ErrNumericFault", bad, err)
		}
	}
	for i, v := range s.Points() {
		if v != 0 {
			t.Errorf("bin %d = %g, state changed by rejected input", i, v)
		}
	}
}

func TestSmoothPreservesConstant(t *testing.T) {
	for _, n := range []int{1, 3, 64} {
		s := NewSmoother(n, testSmootherConfig)
		for i := range s.points {
			s.points[i] = 7
		}
		for i, v := range s.Smooth(nil) {
			if math.Abs(v-7) > 1e-9 {
				t.Errorf("n=%d bin %d = %g, want 7", n, i, v)
			}
		}
	}
}

func TestSmoothSpreadsImpulse(t *testing.T) {
	s := NewSmoother(64, testSmootherConfig)
	s.points[36] = 1

	out := s.Smooth(nil)
	if floats.MaxIdx(out) != 36 {
		t.Errorf("smoothed peak at %d, want 36", floats.MaxIdx(out))
	}
	if math.Abs(floats.Sum(out)-1) > 1e-12 {
		t.Errorf("smoothed mass = %g, want 1", floats.Sum(out))
	}
	for i, v := range out {
		if d := i - 36; (d > 6 || d < -6) && v != 0 {
			t.Errorf("bin %d = %g, outside kernel radius", i, v)
		}
	}
	if out[35] != out[37] {
		t.Errorf("impulse response not symmetric: %g vs %g", out[35], out[37])
	}
}

func TestReflect(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{0, 5, 0},
		{-1, 5, 0},
		{-2, 5, 1},
		{5, 5, 4},
		{6, 5, 3},
		{-3, 1, 0},
		{4, 2, 0},
	}
	for _, tt := range tests {
		if got := reflect(tt.i, tt.n); got != tt.want {
			t.Errorf("reflect(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestResetAndResize(t *testing.T) {
	s := NewSmoother(4, testSmootherConfig)
	_ = s.Update([]float64{5000, 5000, 5000, 5000}, false)

	s.Reset()
	for i, v := range s.Points() {
		if v != 0 {
			t.Errorf("after Reset bin %d = %g", i, v)
		}
	}

	s.Resize(16)
	if s.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", s.Len())
	}
	s.Resize(2)
	if s.Len() != 2 || s.Points()[0] != 0 {
		t.Errorf("Resize(2) = %v", s.Points())
	}
	if s.Config() != testSmootherConfig {
		t.Errorf("Config() = %+v after Resize", s.Config())
	}
}

func TestDecibel(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1, 0},
		{0.1, -20},
		{10, 20},
		{0, MinDecibel},
		{-3, MinDecibel},
		{1e-9, MinDecibel},
		{math.NaN(), MinDecibel},
	}
	for _, tt := range tests {
		if got := Decibel(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Decibel(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}

	got := Decibels([]float64{1, 0.01}, nil)
	if len(got) != 2 || math.Abs(got[1]+40) > 1e-9 {
		t.Errorf("Decibels() = %v", got)
	}
}

func BenchmarkSmootherTick(b *testing.B) {
	s := NewSmoother(64, testSmootherConfig)
	raw := make([]float64, 64)
	for i := range raw {
		raw[i] = float64(i * 500)
	}
	dst := make([]float64, 64)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = s.Update(raw, false)
		dst = s.Smooth(dst)
	}
}
