// SPDX-License-Identifier: MIT
/*
Package engine runs the analysis loop: a single worker that, on a fixed
wall-clock cadence, reads the player's position, computes a spectrum, maps it
onto the bin table, smooths it and publishes the result into a Slot.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/floats"

	"spectra/internal/analysis"
	"spectra/internal/config"
	"spectra/internal/log"
	"spectra/internal/player"
)

// Stats are cumulative loop counters.
type Stats struct {
	Ticks    uint64 // Frames published.
	Faults   uint64 // Numeric faults (including recovered panics).
	Overruns uint64 // Ticks that took longer than the interval.
	Reloads  uint64 // Tracks successfully picked up.
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for frame timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSlot publishes into an existing slot.
func WithSlot(s *Slot) Option {
	return func(e *Engine) { e.slot = s }
}

type Engine struct {
	log     log.Logger
	now     func() time.Time
	src     player.Source
	changed <-chan struct{}
	slot    *Slot

	// Owned by whoever holds tickMu.
	tickMu   sync.Mutex
	cfg      config.AnalysisConfig
	computer *analysis.FrameComputer
	mapper   *analysis.BinMapper
	smoother *analysis.Smoother
	raw      []float64
	smoothed []float64
	track    *player.Track
	size     int // window length in samples for the current track
	loaded   bool
	seq      uint64

	table    atomic.Pointer[analysis.BinTable]
	interval atomic.Int64
	state    atomic.Int32
	pending  atomic.Pointer[config.AnalysisConfig]

	ticks, faults, overruns, reloads atomic.Uint64
}

// New builds an engine for src. The first track is picked up on the first
// tick.
func New(cfg config.AnalysisConfig, src player.Source, opts ...Option) (*Engine, error) {
	if src == nil {
		return nil, errors.New("engine: nil source")
	}
	e := &Engine{
		log: log.For("engine"),
		now: time.Now,
		src: src,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.slot == nil {
		e.slot = NewSlot()
	}
	if err := e.configure(cfg); err != nil {
		return nil, err
	}
	e.changed = src.Subscribe()
	return e, nil
}

// validate checks everything configure can fail on.
func validate(cfg config.AnalysisConfig) (analysis.WindowFunc, *analysis.BinTable, error) {
	if err := cfg.Validate(); err != nil {
		return 0, nil, err
	}
	window, err := analysis.ParseWindowFunc(cfg.Window)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	table, err := analysis.NewBinTable(cfg.Resolution, cfg.MinFrequency, cfg.MaxFrequency)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return window, table, nil
}

// configure rebuilds the pipeline and zeroes all bin state.
func (e *Engine) configure(cfg config.AnalysisConfig) error {
	window, table, err := validate(cfg)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.computer = analysis.NewFrameComputer(window)
	e.mapper = analysis.NewBinMapper(table, cfg.Sensitivity)

	sc := analysis.SmootherConfig{
		DeltaThreshold: cfg.DeltaThreshold,
		DecayFactor:    cfg.DecayFactor,
		EpsilonFloor:   cfg.EpsilonFloor,
		FloorThreshold: cfg.FloorThreshold,
		Sigma:          cfg.SmoothingSigma,
	}
	if e.smoother != nil && e.smoother.Config() == sc {
		e.smoother.Resize(cfg.Resolution)
	} else {
		e.smoother = analysis.NewSmoother(cfg.Resolution, sc)
	}
	if e.track != nil {
		e.size = cfg.WindowSamples(e.track.SampleRate)
	}
	e.raw = e.raw[:0]
	e.smoothed = e.smoothed[:0]
	e.table.Store(table)
	e.interval.Store(int64(cfg.TickInterval))
	return nil
}

// Reconfigure validates cfg and schedules it for the start of the next tick.
// Applying it resets every bin.
func (e *Engine) Reconfigure(cfg config.AnalysisConfig) error {
	if _, _, err := validate(cfg); err != nil {
		return err
	}
	e.pending.Store(&cfg)
	return nil
}

func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	if old := State(e.state.Swap(int32(s))); old != s {
		e.log.Infof("state %s -> %s", old, s)
	}
}

// Slot returns the slot frames are published into.
func (e *Engine) Slot() *Slot { return e.slot }

// Table returns the current bin table.
func (e *Engine) Table() *analysis.BinTable { return e.table.Load() }

// Interval returns the current tick cadence.
func (e *Engine) Interval() time.Duration { return time.Duration(e.interval.Load()) }

func (e *Engine) Stats() Stats {
	return Stats{
		Ticks:    e.ticks.Load(),
		Faults:   e.faults.Load(),
		Overruns: e.overruns.Load(),
		Reloads:  e.reloads.Load(),
	}
}

// Run ticks until ctx is cancelled. A tick that overruns the interval is
// followed immediately by at most one more; missed ticks are not queued.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Infof("analysis loop started (%v, %d bins)", interval, e.Table().Len())
	e.Tick()

	for {
		select {
		case <-ctx.Done():
			e.log.Infof("analysis loop stopped after %d ticks", e.ticks.Load())
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			e.Tick()
			if elapsed := time.Since(start); elapsed > interval {
				e.overruns.Add(1)
				e.log.Debugf("tick took %v (interval %v)", elapsed, interval)
			}
			if next := e.Interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Tick runs one iteration synchronously and returns the published frame.
// Concurrent calls are serialized.
func (e *Engine) Tick() *Frame {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if cfg := e.pending.Swap(nil); cfg != nil {
		if err := e.configure(*cfg); err != nil {
			e.log.Errorf("reconfigure failed: %v", err)
		} else {
			e.log.Infof("reconfigured: %d bins, %g-%g Hz", cfg.Resolution, cfg.MinFrequency, cfg.MaxFrequency)
		}
	}

	select {
	case <-e.changed:
		e.reload()
	default:
		if !e.loaded {
			e.reload()
		}
	}

	values := make([]float64, e.smoother.Len())
	var pos int64
	if e.State() == Animating {
		var err error
		if pos, err = e.analyse(values); err != nil {
			clear(values)
			e.fail(err)
		}
	}

	e.seq++
	f := &Frame{
		Seq:        e.seq,
		Time:       e.now(),
		State:      e.State(),
		PositionMs: pos,
		Values:     values,
	}
	if e.track != nil {
		f.TrackPath = e.track.Path
		f.Peak = e.track.Peak
	}
	e.slot.Store(f)
	e.ticks.Add(1)
	return f
}

// reload picks up the source's current track with fresh bin state.
func (e *Engine) reload() {
	e.loaded = true
	e.smoother.Reset()

	t, err := e.src.Track()
	switch {
	case err == nil:
		e.track = t
		e.size = e.cfg.WindowSamples(t.SampleRate)
		e.reloads.Add(1)
		e.log.Debugf("track %s: %d samples, peak %.0f, window %d", t.Path, len(t.Samples), t.Peak, e.size)
		e.setState(Animating)
	case errors.Is(err, player.ErrNoTrack):
		e.track = nil
		e.setState(Idle)
	default:
		e.track = nil
		e.log.Warnf("track unreadable: %v", err)
		e.setState(Stopped)
	}
}

func (e *Engine) fail(err error) {
	if errors.Is(err, analysis.ErrEmptyWindow) {
		e.log.Debugf("no samples left at the current position")
	} else {
		e.faults.Add(1)
		e.log.Warnf("numeric fault: %v", err)
	}
	e.setState(Stopped)
}

// analyse runs window -> spectrum -> bins -> smoothing into dst.
func (e *Engine) analyse(dst []float64) (pos int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: recovered: %v", analysis.ErrNumericFault, r)
		}
	}()

	t := e.track
	paused := e.src.State() != player.Playing
	pos = e.src.PositionMs()

	window := analysis.WindowAt(t.Samples, t.SampleRate, pos, e.size)
	spectrum, err := e.computer.Compute(window, t.SampleRate)
	if err != nil {
		return pos, err
	}

	width := analysis.BinWidth(t.SampleRate, e.cfg.WindowLength, e.cfg.Resolution)
	e.raw = e.mapper.Map(spectrum, width, e.raw)
	if err := e.smoother.Update(e.raw, paused); err != nil {
		return pos, err
	}
	e.smoothed = e.smoother.Smooth(e.smoothed)

	floats.ScaleTo(dst, 1/t.Peak, e.smoothed)
	for _, v := range dst {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return pos, fmt.Errorf("%w: normalizing by peak %g", analysis.ErrNumericFault, t.Peak)
		}
	}
	return pos, nil
}
