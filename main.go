package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"spectra/cmd"
	"spectra/internal/audio"
	"spectra/internal/log"
	"spectra/pkg/build"
)

// main is the entry point for the spectrum visualizer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and merge the config file
//   - Route logs (to a file or nowhere while the TUI owns the terminal)
//
// 2. Concurrent Phase (Hot Path):
//   - Analysis loop, sinks, playback and the TUI, or a one-off command
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop sinks and playback, report loop statistics
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Unlinked development builds keep the defaults.
	buildErr := build.Initialize()

	opts, err := cmd.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		return err
	}
	if opts.Command == cmd.CommandNone {
		return nil
	}

	closeLog, err := setupLogging(opts)
	if err != nil {
		return err
	}
	defer closeLog()
	if buildErr != nil {
		log.Debugf("build info: %v", buildErr)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch opts.Command {
	case cmd.CommandList:
		return audio.ListDevices(os.Stdout)
	case cmd.CommandTicks:
		return cmd.PrintTicks(opts.Config.Analysis, os.Stdout)
	case cmd.CommandAnalyze:
		return cmd.Analyze(ctx, opts, os.Stdout)
	default:
		// ==================== SHUTDOWN PHASE (Cold Path) ====================
		// RunVisualizer returns once ctx is cancelled or the user quits, after
		// closing everything it started.
		return cmd.RunVisualizer(ctx, opts)
	}
}

// setupLogging applies the configured level and picks the log destination.
func setupLogging(opts *cmd.Options) (func(), error) {
	level, _ := log.ParseLevel(opts.Config.LogLevel)
	log.SetLevel(level)

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		return func() { f.Close() }, nil
	}
	if opts.Command == cmd.CommandRun && !opts.NoTUI {
		log.SetOutput(io.Discard)
	}
	return func() {}, nil
}
