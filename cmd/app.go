package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"spectra/internal/audio"
	"spectra/internal/config"
	"spectra/internal/engine"
	"spectra/internal/log"
	"spectra/internal/player"
	"spectra/internal/transport"
	"spectra/internal/transport/udp"
	"spectra/internal/tui"
)

// RunVisualizer loads the track, starts the analysis loop, the configured
// sinks and playback, then blocks in the terminal UI (or until ctx is done
// with --no-tui).
func RunVisualizer(ctx context.Context, opts *Options) error {
	cfg := opts.Config
	l := log.For("app")

	deck := player.NewDeck()
	if opts.Track != "" {
		// A bad track still opens the visualizer, stopped.
		if err := deck.Load(ctx, opts.Track); err != nil {
			l.Errorf("%v", err)
		} else if err := deck.Play(); err != nil {
			l.Warnf("play: %v", err)
		}
	}

	eng, err := engine.New(cfg.Analysis, deck)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Errorf("analysis loop: %v", err)
		}
	}()

	sinks, err := startSinks(cfg, eng, opts.Verbose)
	if err == nil && cfg.Playback.Enabled {
		var pb io.Closer
		if pb, err = startPlayback(cfg.Playback, deck); err == nil {
			sinks = append(sinks, pb)
		}
	}

	if err == nil {
		if opts.NoTUI {
			l.Infof("running headless, press Ctrl+C to stop")
			<-ctx.Done()
		} else {
			err = tui.Run(ctx, tui.NewModel(eng, deck))
		}
	}

	// ==================== SHUTDOWN ====================

	cancel()
	wg.Wait()
	for i := len(sinks) - 1; i >= 0; i-- {
		if cerr := sinks[i].Close(); cerr != nil {
			l.Warnf("shutdown: %v", cerr)
		}
	}
	s := eng.Stats()
	l.Infof("ticks %d, faults %d, overruns %d, reloads %d", s.Ticks, s.Faults, s.Overruns, s.Reloads)
	return err
}

// startSinks starts the network transports. On error, everything already
// started is closed.
func startSinks(cfg *config.Config, eng *engine.Engine, logFrames bool) (closers []io.Closer, err error) {
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
			closers = nil
		}
	}()

	var sinks []transport.Transport
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, func() any {
			return transport.NewAxisMessage(eng.Table())
		})
		if err := ws.Start(); err != nil {
			ws.Close()
			return closers, fmt.Errorf("websocket: %w", err)
		}
		sinks = append(sinks, ws)
	}
	if logFrames {
		sinks = append(sinks, transport.NewLoggingTransport())
	}
	if len(sinks) > 0 {
		pump, err := transport.NewPump(eng.Slot(), cfg.Analysis.TickInterval, true, sinks...)
		if err != nil {
			return closers, err
		}
		pump.Start()
		closers = append(closers, pump)
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return closers, err
		}
		closers = append(closers, sender)
		pub, err := udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, eng.Slot())
		if err != nil {
			return closers, err
		}
		pub.Start()
		closers = append(closers, pub)
	}
	return closers, nil
}

type playbackCloser struct{ pb *audio.Playback }

func (c playbackCloser) Close() error {
	return errors.Join(c.pb.Close(), audio.Terminate())
}

func startPlayback(cfg config.PlaybackConfig, deck *player.Deck) (io.Closer, error) {
	if err := audio.Initialize(); err != nil {
		return nil, err
	}
	pb, err := audio.NewPlayback(cfg, deck)
	if err == nil {
		err = pb.Start()
	}
	if err != nil {
		audio.Terminate()
		return nil, err
	}
	return playbackCloser{pb}, nil
}
