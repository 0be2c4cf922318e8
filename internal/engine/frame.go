// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"spectra/internal/analysis"
)

// State is the analysis loop state.
type State int32

const (
	// Idle: no track loaded yet.
	Idle State = iota
	// Animating: computing and publishing frames for the loaded track.
	Animating
	// Stopped: the track ended, was unreadable, or produced a numeric
	// fault. Frames are all zero until a new track is loaded.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Animating:
		return "animating"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Frame is one published visualizer vector. Frames are immutable once stored
// in a Slot.
type Frame struct {
	Seq        uint64
	Time       time.Time
	State      State
	TrackPath  string
	PositionMs int64
	Values     []float64 // len == resolution, smoothed bins divided by Peak
	Peak       float64
}

// Decibels returns the decibel view of Values.
func (f *Frame) Decibels() []float64 {
	return analysis.Decibels(f.Values, nil)
}

// Slot is a single-frame, last-write-wins handoff between the analysis worker
// and any number of readers. Readers never block the writer and always see a
// whole frame.
type Slot struct {
	frame  atomic.Pointer[Frame]
	notify chan struct{}
}

func NewSlot() *Slot {
	return &Slot{notify: make(chan struct{}, 1)}
}

// Store replaces the current frame and signals Notify without blocking.
func (s *Slot) Store(f *Frame) {
	s.frame.Store(f)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Load returns the latest frame, or nil before the first Store.
func (s *Slot) Load() *Frame {
	return s.frame.Load()
}

// Notify receives at most one pending signal per batch of stores.
func (s *Slot) Notify() <-chan struct{} {
	return s.notify
}
