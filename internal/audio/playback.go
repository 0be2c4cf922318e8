// SPDX-License-Identifier: MIT
/*
Package audio plays the loaded track through PortAudio so the listener hears
what the visualizer shows.

Thread Safety:
  - The output callback owns the render cursor; nothing else touches it
  - The deck is read through its own locking snapshot accessors
  - Locks OS thread during audio processing
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"spectra/internal/config"
	"spectra/internal/log"
	"spectra/internal/player"
)

// MaxDrift is how far the render cursor may wander from the deck position
// before it jumps back. Seeks always exceed it.
const MaxDrift = 250 * time.Millisecond

// Playhead is the part of a deck the renderer reads.
type Playhead interface {
	Snapshot() player.Snapshot
	Track() (*player.Track, error)
}

// renderer converts the deck's track into output frames. It is driven by one
// goroutine only.
type renderer struct {
	deck       Playhead
	sampleRate float64
	channels   int

	track  *player.Track
	cursor float64 // fractional index into track.Samples
}

func newRenderer(deck Playhead, sampleRate float64, channels int) *renderer {
	if channels < 1 {
		channels = 1
	}
	return &renderer{deck: deck, sampleRate: sampleRate, channels: channels}
}

// render fills out with interleaved frames. Anything other than a playing
// deck renders silence.
func (r *renderer) render(out []float32) {
	snap := r.deck.Snapshot()
	t, err := r.deck.Track()
	if err != nil || t == nil || snap.State != player.Playing || len(t.Samples) == 0 {
		clear(out)
		r.track = nil
		return
	}

	expected := float64(snap.PositionMs) / 1000 * t.SampleRate
	limit := MaxDrift.Seconds() * t.SampleRate
	if t != r.track || math.Abs(r.cursor-expected) > limit {
		r.track = t
		r.cursor = expected
	}

	step := t.SampleRate / r.sampleRate * snap.Speed
	scale := 1 / t.FullScale()
	frames := len(out) / r.channels
	for i := 0; i < frames; i++ {
		var v float32
		if idx := int(r.cursor + 0.5); idx < len(t.Samples) {
			v = float32(t.Samples[idx] * scale)
		}
		for c := 0; c < r.channels; c++ {
			out[i*r.channels+c] = v
		}
		r.cursor += step
	}
	clear(out[frames*r.channels:])
}

// Playback owns a PortAudio output stream rendering the deck.
type Playback struct {
	log      log.Logger
	cfg      config.PlaybackConfig
	device   *portaudio.DeviceInfo
	latency  time.Duration
	renderer *renderer

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPlayback resolves the output device. PortAudio must be initialized.
func NewPlayback(cfg config.PlaybackConfig, deck Playhead) (*Playback, error) {
	if deck == nil {
		return nil, errors.New("playback: deck cannot be nil")
	}
	device, err := OutputDevice(cfg.OutputDevice)
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}

	p := &Playback{
		log:      log.For("playback"),
		cfg:      cfg,
		device:   device,
		renderer: newRenderer(deck, device.DefaultSampleRate, min(2, device.MaxOutputChannels)),
	}
	if cfg.LowLatency {
		p.latency = device.DefaultLowOutputLatency
	} else {
		p.latency = device.DefaultHighOutputLatency
	}
	return p, nil
}

// Start opens and starts the output stream.
func (p *Playback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return nil
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Channels: p.renderer.channels,
			Device:   p.device,
			Latency:  p.latency,
		},
		FramesPerBuffer: p.cfg.FramesPerBuffer,
		SampleRate:      p.renderer.sampleRate,
	}

	stream, err := portaudio.OpenStream(params, p.process)
	if err != nil {
		return fmt.Errorf("playback: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("playback: start stream: %w", err)
	}
	p.stream = stream
	p.log.Infof("playing on %s (%d ch, %.0f Hz, latency %s)",
		p.device.Name, p.renderer.channels, p.renderer.sampleRate, p.latency)
	return nil
}

// Stop stops and closes the stream. It is safe to call more than once.
func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	stream := p.stream
	p.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}

// Close stops playback.
func (p *Playback) Close() error {
	return p.Stop()
}

// process is the output callback.
func (p *Playback) process(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.renderer.render(out)
}
