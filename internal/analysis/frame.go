// SPDX-License-Identifier: MIT
/*
Package analysis turns a short slice of decoded audio into a fixed set of
perceptually spaced, temporally smoothed bar heights.

The stages are independent and allocation-free once warmed up:
  - FrameComputer: window of samples -> magnitude spectrum (gonum FFT)
  - BinMapper:     spectrum -> one raw value per log-spaced BinTable entry
  - Smoother:      raw values -> decayed/snapped per-bin state + Gaussian pass

None of the types are safe for concurrent use; the engine owns one of each
on its worker goroutine.
*/
package analysis

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	// ErrEmptyWindow is returned when the playback position has no samples
	// left to analyse (end of track, or a track shorter than one window).
	ErrEmptyWindow = errors.New("analysis: empty window")

	// ErrNumericFault marks a non-finite value anywhere in the pipeline.
	ErrNumericFault = errors.New("analysis: non-finite value")
)

// Spectrum holds parallel frequency (Hz) and magnitude sequences for the
// non-negative half of a real DFT. Index k is frequency k·rate/N.
type Spectrum struct {
	Freqs []float64
	Mags  []float64
}

// Len returns the number of coefficients.
func (s Spectrum) Len() int { return len(s.Mags) }

// WindowAt returns the count samples analysed for positionMs, starting at
// round(positionMs/1000 × rate). Near the end of the buffer the slice is
// shorter; past it, nil.
func WindowAt(samples []float64, sampleRate float64, positionMs int64, count int) []float64 {
	start := int(math.Round(float64(positionMs) / 1000 * sampleRate))
	if start < 0 {
		start = 0
	}
	if count <= 0 || start >= len(samples) {
		return nil
	}
	end := start + count
	if end > len(samples) {
		end = len(samples)
	}
	return samples[start:end]
}

// FrameComputer performs one analysis step. It keeps a single FFT plan and
// workspace and only rebuilds them when the window length changes, which in
// steady state happens only for the short tail window at the end of a track.
type FrameComputer struct {
	window WindowFunc

	fft      *fourier.FFT
	n        int
	input    []float64
	coeffs   []complex128
	winCoefs []float64
	spectrum Spectrum
}

// NewFrameComputer returns a computer that applies the given window function
// before the transform.
func NewFrameComputer(window WindowFunc) *FrameComputer {
	return &FrameComputer{window: window}
}

// Compute transforms samples into a magnitude spectrum with magnitude
// (2/N)·|X_k|. The returned Spectrum aliases internal buffers and is only
// valid until the next call.
func (c *FrameComputer) Compute(samples []float64, sampleRate float64) (Spectrum, error) {
	n := len(samples)
	if n == 0 {
		return Spectrum{}, ErrEmptyWindow
	}
	c.prepare(n)

	for i, s := range samples {
		c.input[i] = s * c.winCoefs[i]
	}
	c.fft.Coefficients(c.coeffs, c.input)

	scale := 2 / float64(n)
	for k, v := range c.coeffs {
		c.spectrum.Mags[k] = scale * cmplx.Abs(v)
		c.spectrum.Freqs[k] = c.fft.Freq(k) * sampleRate
	}
	return c.spectrum, nil
}

func (c *FrameComputer) prepare(n int) {
	if c.fft != nil && c.n == n {
		return
	}
	if c.fft == nil {
		c.fft = fourier.NewFFT(n)
	} else {
		c.fft.Reset(n)
	}
	c.n = n
	half := n/2 + 1
	c.input = resize(c.input, n)
	c.winCoefs = resize(c.winCoefs, n)
	c.window.coefficients(c.winCoefs)
	if cap(c.coeffs) >= half {
		c.coeffs = c.coeffs[:half]
	} else {
		c.coeffs = make([]complex128, half)
	}
	c.spectrum.Freqs = resize(c.spectrum.Freqs, half)
	c.spectrum.Mags = resize(c.spectrum.Mags, half)
}

func resize(s []float64, n int) []float64 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]float64, n)
}
