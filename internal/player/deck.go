// SPDX-License-Identifier: MIT
/*
Package player owns the currently loaded track and the transport clock that
says where in it playback is. It is the sample source the analysis engine
reads from and the thing the TUI and the audio output drive.
*/
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spectra/internal/log"
)

// Speed limits for SetSpeed.
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// Source is the narrow view of a player the analysis engine needs.
type Source interface {
	// Track returns the loaded track, ErrNoTrack, or the last load failure
	// wrapped in ErrTrackUnreadable.
	Track() (*Track, error)
	PositionMs() int64
	State() State
	// Subscribe returns a capacity-1 channel that receives a coalesced signal
	// whenever the loaded track changes.
	Subscribe() <-chan struct{}
}

// Snapshot is a consistent copy of the deck's transport state.
type Snapshot struct {
	State      State
	PositionMs int64
	DurationMs int64
	Speed      float64
	Path       string
}

// DecodeFunc turns a path into a Track.
type DecodeFunc func(ctx context.Context, path string) (*Track, error)

// Deck is a Source with transport controls. Position advances from a
// wall-clock anchor while playing, scaled by speed. It is safe for concurrent
// use.
type Deck struct {
	mu sync.Mutex

	now    func() time.Time
	decode DecodeFunc
	log    log.Logger

	track   *Track
	loadErr error
	state   State
	speed   float64
	basePos float64 // ms at anchor
	anchor  time.Time
	ended   bool // playback ran off the end since the last Play or load

	subs []chan struct{}
}

// DeckOption configures a Deck.
type DeckOption func(*Deck)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DeckOption {
	return func(d *Deck) { d.now = now }
}

// WithDecoder replaces Decode.
func WithDecoder(fn DecodeFunc) DeckOption {
	return func(d *Deck) { d.decode = fn }
}

func NewDeck(opts ...DeckOption) *Deck {
	d := &Deck{
		now:    time.Now,
		decode: Decode,
		log:    log.For("player"),
		speed:  1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load decodes path and makes it the current track, stopped at the start.
// On failure the previous track is dropped and the error is kept so Track
// reports it. Subscribers are notified either way.
func (d *Deck) Load(ctx context.Context, path string) error {
	t, err := d.decode(ctx, path)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTrackUnreadable, err)
		d.log.Errorf("failed to load %s: %v", path, err)

		d.mu.Lock()
		d.track, d.loadErr = nil, err
		d.resetLocked()
		d.mu.Unlock()
		d.notify()
		return err
	}

	d.log.Infof("loaded %s (%.1fs, %g Hz, %d ch, peak %.0f)",
		path, t.Duration().Seconds(), t.SampleRate, t.Channels, t.Peak)
	d.LoadTrack(t)
	return nil
}

// LoadTrack installs an already decoded track.
func (d *Deck) LoadTrack(t *Track) {
	d.mu.Lock()
	d.track, d.loadErr = t, nil
	d.resetLocked()
	d.mu.Unlock()
	d.notify()
}

func (d *Deck) resetLocked() {
	d.state = Stopped
	d.ended = false
	d.basePos = 0
	d.anchor = d.now()
}

func (d *Deck) Track() (*Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return nil, d.loadErr
	}
	if d.track == nil {
		return nil, ErrNoTrack
	}
	return d.track, nil
}

func (d *Deck) PositionMs() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.positionLocked())
}

func (d *Deck) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positionLocked()
	return d.state
}

// Snapshot reads every transport field under one lock.
func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		PositionMs: int64(d.positionLocked()),
		State:      d.state,
		Speed:      d.speed,
	}
	if d.track != nil {
		s.DurationMs = d.track.DurationMs()
		s.Path = d.track.Path
	}
	return s
}

// positionLocked advances the clock and stops the deck at the end of the
// track.
func (d *Deck) positionLocked() float64 {
	if d.track == nil {
		return 0
	}
	pos := d.basePos
	if d.state == Playing {
		pos += float64(d.now().Sub(d.anchor)) / float64(time.Millisecond) * d.speed
	}
	end := float64(d.track.DurationMs())
	if pos >= end {
		pos = end
		if d.state == Playing {
			d.state = Stopped
			d.basePos = end
			d.ended = true
			d.log.Debugf("reached end of %s", d.track.Path)
		}
	}
	return pos
}

// rebaseLocked folds elapsed play time into basePos.
func (d *Deck) rebaseLocked() {
	d.basePos = d.positionLocked()
	d.anchor = d.now()
}

// Play starts or resumes playback. A deck stopped at the end restarts from
// the beginning. Subscribers see any play after the track ran out, including
// one after a seek back or a Stop, as the track being loaded again.
func (d *Deck) Play() error {
	d.mu.Lock()
	if d.track == nil {
		d.mu.Unlock()
		return ErrNoTrack
	}
	d.rebaseLocked()
	if d.basePos >= float64(d.track.DurationMs()) {
		d.basePos = 0
		d.ended = true
	}
	restart := d.ended
	d.ended = false
	d.state = Playing
	d.mu.Unlock()

	if restart {
		d.notify()
	}
	return nil
}

func (d *Deck) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Playing {
		return
	}
	d.rebaseLocked()
	if d.state == Playing {
		d.state = Paused
	}
}

// Toggle pauses a playing deck and plays anything else.
func (d *Deck) Toggle() error {
	if d.State() == Playing {
		d.Pause()
		return nil
	}
	return d.Play()
}

// Stop halts playback and rewinds to the start.
func (d *Deck) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Stopped
	d.basePos = 0
	d.anchor = d.now()
}

// Seek moves to ms, clamped to the track.
func (d *Deck) Seek(ms int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seekLocked(float64(ms))
}

// SeekBy moves relative to the current position.
func (d *Deck) SeekBy(deltaMs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seekLocked(d.positionLocked() + float64(deltaMs))
}

func (d *Deck) seekLocked(ms float64) {
	if d.track == nil {
		return
	}
	end := float64(d.track.DurationMs())
	d.basePos = min(max(ms, 0), end)
	d.anchor = d.now()
}

// SetSpeed changes the playback rate without moving the position.
func (d *Deck) SetSpeed(x float64) error {
	if x < MinSpeed || x > MaxSpeed {
		return fmt.Errorf("speed %.2f out of range [%.2f, %.2f]", x, MinSpeed, MaxSpeed)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rebaseLocked()
	d.speed = x
	return nil
}

func (d *Deck) Speed() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speed
}

func (d *Deck) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

func (d *Deck) notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
