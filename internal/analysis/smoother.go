// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// SmootherConfig holds the empirically tuned shaping constants.
type SmootherConfig struct {
	DeltaThreshold float64 // Differences above this are adopted immediately.
	DecayFactor    float64 // Fraction removed from a decaying bin each update.
	EpsilonFloor   float64 // Value stored instead of anything below FloorThreshold.
	FloorThreshold float64 // See EpsilonFloor.
	Sigma          float64 // Gaussian sigma across bins; 0 disables the pass.
}

// Smoother owns the per-bin state that persists between frames and turns
// noisy raw bin values into a stable display sequence.
type Smoother struct {
	cfg    SmootherConfig
	points []float64
	kernel []float64 // Normalized Gaussian taps, centre at len/2.
}

// NewSmoother returns a smoother for n bins with all state at zero.
func NewSmoother(n int, cfg SmootherConfig) *Smoother {
	return &Smoother{
		cfg:    cfg,
		points: make([]float64, n),
		kernel: gaussianKernel(cfg.Sigma),
	}
}

// gaussianKernel samples a zero-mean normal density out to 4σ and normalizes
// the taps to sum to one.
func gaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	radius := int(4*sigma + 0.5)
	norm := distuv.Normal{Mu: 0, Sigma: sigma}
	kernel := make([]float64, 2*radius+1)
	for j := range kernel {
		kernel[j] = norm.Prob(float64(j - radius))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// Len returns the number of bins.
func (s *Smoother) Len() int { return len(s.points) }

// Update folds one frame of raw bin values into the stored state. When paused
// is true every bin decays regardless of its new value. Non-finite input is
// rejected with ErrNumericFault before any state changes.
func (s *Smoother) Update(raw []float64, paused bool) error {
	if len(raw) != len(s.points) {
		return fmt.Errorf("smoother: got %d values for %d bins", len(raw), len(s.points))
	}
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNumericFault
		}
	}

	for n, amp := range raw {
		p := s.points[n]
		switch {
		case paused || (p > 0 && amp < p):
			p -= p * s.cfg.DecayFactor
		case math.Abs(p-amp) > s.cfg.DeltaThreshold:
			p = amp
		}
		if p < s.cfg.FloorThreshold {
			p = s.cfg.EpsilonFloor
		}
		s.points[n] = p
	}
	return nil
}

// Points returns a copy of the stored per-bin values before smoothing.
func (s *Smoother) Points() []float64 {
	out := make([]float64, len(s.points))
	copy(out, s.points)
	return out
}

// Smooth writes the Gaussian-smoothed state into dst (allocated if too
// short) and returns it. Edges use reflection, so a constant state stays
// constant.
func (s *Smoother) Smooth(dst []float64) []float64 {
	n := len(s.points)
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	radius := len(s.kernel) / 2
	for i := 0; i < n; i++ {
		var acc float64
		for j, w := range s.kernel {
			acc += w * s.points[reflect(i+j-radius, n)]
		}
		dst[i] = acc
	}
	return dst
}

// reflect maps an out-of-range index back into [0, n) mirroring about the
// edges (d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// Reset zeroes every bin.
func (s *Smoother) Reset() {
	clear(s.points)
}

// Resize changes the bin count and zeroes the state.
func (s *Smoother) Resize(n int) {
	if cap(s.points) >= n {
		s.points = s.points[:n]
	} else {
		s.points = make([]float64, n)
	}
	s.Reset()
}

// Config returns the shaping constants the smoother was built with.
func (s *Smoother) Config() SmootherConfig { return s.cfg }
