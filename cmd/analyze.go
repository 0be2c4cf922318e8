package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"spectra/internal/analysis"
	"spectra/internal/config"
	"spectra/internal/engine"
	"spectra/internal/player"
	"spectra/internal/transport"
)

// simClock advances only when told to, so headless runs are as fast as the
// analysis allows and repeatable.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Analyze plays opts.Track on a simulated clock, one tick interval per frame,
// and writes every published frame to out.
func Analyze(ctx context.Context, opts *Options, out io.Writer) error {
	cfg := opts.Config.Analysis
	clock := &simClock{now: time.Unix(0, 0)}

	deck := player.NewDeck(player.WithClock(clock.Now))
	if err := deck.Load(ctx, opts.Track); err != nil {
		return err
	}
	deck.Seek(opts.From.Milliseconds())
	if err := deck.Play(); err != nil {
		return err
	}

	eng, err := engine.New(cfg, deck, engine.WithClock(clock.Now))
	if err != nil {
		return err
	}

	end := deck.Snapshot().DurationMs
	if opts.Duration > 0 {
		end = min(end, (opts.From + opts.Duration).Milliseconds())
	}

	w := bufio.NewWriter(out)
	defer w.Flush()

	row := textRow
	if opts.Format == FormatJSON {
		enc := json.NewEncoder(w)
		if err := enc.Encode(transport.NewAxisMessage(eng.Table())); err != nil {
			return err
		}
		row = func(w *bufio.Writer, f *engine.Frame, decibels bool) error {
			return enc.Encode(transport.NewFrameMessage(f, decibels))
		}
	} else {
		fmt.Fprintf(w, "# %s: %d bins, %.0f-%.0f Hz, %s window, every %s\n",
			opts.Track, cfg.Resolution, cfg.MinFrequency, cfg.MaxFrequency, cfg.Window, cfg.TickInterval)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := eng.Tick()
		if err := row(w, f, opts.Decibels); err != nil {
			return err
		}
		if f.State != engine.Animating || deck.State() != player.Playing || f.PositionMs >= end {
			break
		}
		clock.Advance(cfg.TickInterval)
	}

	if s := eng.Stats(); s.Faults > 0 {
		return fmt.Errorf("analysis stopped after %d ticks: %w", s.Ticks, analysis.ErrNumericFault)
	}
	return nil
}

// textRow writes "seq position state v0 v1 ...".
func textRow(w *bufio.Writer, f *engine.Frame, decibels bool) error {
	fmt.Fprintf(w, "%d %d %s", f.Seq, f.PositionMs, f.State)
	values := f.Values
	verb := " %.4g"
	if decibels {
		values = f.Decibels()
		verb = " %.1f"
	}
	for _, v := range values {
		fmt.Fprintf(w, verb, v)
	}
	_, err := w.WriteString("\n")
	return err
}

// PrintTicks writes the bin table and its axis labels.
func PrintTicks(cfg config.AnalysisConfig, out io.Writer) error {
	table, err := analysis.NewBinTable(cfg.Resolution, cfg.MinFrequency, cfg.MaxFrequency)
	if err != nil {
		return err
	}
	labels := make(map[int]string)
	for _, t := range table.Ticks() {
		labels[t.Index] = t.Label
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BIN\tHZ\tLABEL")
	for i, hz := range table.Frequencies() {
		fmt.Fprintf(tw, "%d\t%.1f\t%s\n", i, hz, labels[i])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "\nbin width: %.2f Hz at %d Hz\n",
		analysis.BinWidth(player.FFmpegSampleRate, cfg.WindowLength, cfg.Resolution), player.FFmpegSampleRate)
	return err
}
