// SPDX-License-Identifier: MIT
package player

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrTrackUnreadable wraps any failure to open or decode a track.
	ErrTrackUnreadable = errors.New("player: track unreadable")

	// ErrNoTrack is returned when nothing has been loaded yet.
	ErrNoTrack = errors.New("player: no track loaded")
)

// State is the transport state of a deck.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Track is a fully decoded mono track. Samples stay in the source's integer
// scale (a 16-bit file peaks near 32767). A Track is never mutated once built.
type Track struct {
	Path       string
	Samples    []float64
	SampleRate float64
	Peak       float64 // max |sample| over the whole track
	BitDepth   int
	Channels   int // channel count of the source before downmixing
}

// NewTrack downmixes interleaved samples to mono by averaging each frame and
// computes the peak amplitude.
func NewTrack(path string, interleaved []float64, sampleRate float64, bitDepth, channels int) (*Track, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %g", sampleRate)
	}

	mono := interleaved
	if channels > 1 {
		frames := len(interleaved) / channels
		mono = make([]float64, frames)
		for i := range mono {
			mono[i] = floats.Sum(interleaved[i*channels:(i+1)*channels]) / float64(channels)
		}
	}

	return &Track{
		Path:       path,
		Samples:    mono,
		SampleRate: sampleRate,
		Peak:       floats.Norm(mono, math.Inf(1)),
		BitDepth:   bitDepth,
		Channels:   channels,
	}, nil
}

// DurationMs returns the track length in milliseconds.
func (t *Track) DurationMs() int64 {
	return int64(float64(len(t.Samples)) * 1000 / t.SampleRate)
}

// Duration returns the track length.
func (t *Track) Duration() time.Duration {
	return time.Duration(float64(len(t.Samples)) / t.SampleRate * float64(time.Second))
}

// FullScale returns the magnitude of the largest sample the source bit depth
// can represent, used to map samples into [-1, 1] for output.
func (t *Track) FullScale() float64 {
	if t.BitDepth <= 0 {
		return 1
	}
	return math.Ldexp(1, t.BitDepth-1)
}
