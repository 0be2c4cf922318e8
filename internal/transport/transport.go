// SPDX-License-Identifier: MIT
package transport

import (
	"spectra/internal/analysis"
	"spectra/internal/engine"
)

// Transport defines a generic interface for sending visualizer frames and
// axis metadata. Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message types.
const (
	TypeFrame = "frame"
	TypeAxis  = "axis"
)

// FrameMessage is the wire form of an engine.Frame.
type FrameMessage struct {
	Type       string    `json:"type"`
	Seq        uint64    `json:"seq"`
	Time       int64     `json:"time"` // Unix milliseconds.
	State      string    `json:"state"`
	Track      string    `json:"track,omitempty"`
	PositionMs int64     `json:"position_ms"`
	Values     []float64 `json:"values"`
	Decibels   []float64 `json:"decibels,omitempty"`
	Peak       float64   `json:"peak"`
}

// NewFrameMessage converts f, optionally attaching the decibel view.
func NewFrameMessage(f *engine.Frame, withDecibels bool) FrameMessage {
	m := FrameMessage{
		Type:       TypeFrame,
		Seq:        f.Seq,
		Time:       f.Time.UnixMilli(),
		State:      f.State.String(),
		Track:      f.TrackPath,
		PositionMs: f.PositionMs,
		Values:     f.Values,
		Peak:       f.Peak,
	}
	if withDecibels {
		m.Decibels = f.Decibels()
	}
	return m
}

// AxisMessage describes the bin layout so clients can label their axis.
type AxisMessage struct {
	Type        string          `json:"type"`
	Ticks       []analysis.Tick `json:"ticks"`
	Frequencies []float64       `json:"frequencies"`
}

func NewAxisMessage(table *analysis.BinTable) AxisMessage {
	return AxisMessage{
		Type:        TypeAxis,
		Ticks:       table.Ticks(),
		Frequencies: table.Frequencies(),
	}
}
