package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spectra/internal/config"
)

func TestParseArgsDefaults(t *testing.T) {
	opts, err := ParseArgs([]string{"song.wav"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if opts.Command != CommandRun || opts.Track != "song.wav" {
		t.Errorf("ParseArgs() = %+v", opts)
	}
	if opts.Config.Analysis != config.DefaultAnalysis() {
		t.Errorf("Analysis = %+v, want defaults", opts.Config.Analysis)
	}
	if opts.Config.Playback.Enabled || opts.Config.Transport.WebSocketEnabled || opts.Config.Transport.UDPEnabled {
		t.Errorf("optional sinks enabled by default: %+v", opts.Config)
	}
}

func TestParseArgsOverrides(t *testing.T) {
	opts, err := ParseArgs([]string{
		"-n", "32", "--min-freq", "40", "--max-freq", "16000", "--window-length", "0.1",
		"--window", "blackman", "--sensitivity", "5", "-p", "-d", "3",
		"--ws", ":9000", "--udp", "127.0.0.1:7000", "-v", "--no-tui",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	a := opts.Config.Analysis
	if a.Resolution != 32 || a.MinFrequency != 40 || a.MaxFrequency != 16000 ||
		a.WindowLength != 0.1 || a.Window != "blackman" || a.Sensitivity != 5 {
		t.Errorf("Analysis = %+v", a)
	}
	if p := opts.Config.Playback; !p.Enabled || p.OutputDevice != 3 {
		t.Errorf("Playback = %+v", p)
	}
	tr := opts.Config.Transport
	if !tr.WebSocketEnabled || tr.WebSocketAddress != ":9000" || !tr.UDPEnabled || tr.UDPTargetAddress != "127.0.0.1:7000" {
		t.Errorf("Transport = %+v", tr)
	}
	if opts.Config.LogLevel != "debug" || !opts.Verbose || !opts.NoTUI || opts.Track != "" {
		t.Errorf("Options = %+v", opts)
	}
}

func TestParseArgsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectra.yaml")
	yaml := "log_level: warn\nanalysis:\n  resolution: 128\n  sensitivity: 2\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := ParseArgs([]string{"ticks", "-f", path, "--sensitivity", "7"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if opts.Command != CommandTicks || opts.ConfigPath != path {
		t.Errorf("ParseArgs() = %+v", opts)
	}
	a := opts.Config.Analysis
	if a.Resolution != 128 || a.Sensitivity != 7 || a.MinFrequency != config.DefaultMinFrequency {
		t.Errorf("Analysis = %+v", a)
	}
	if opts.Config.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", opts.Config.LogLevel)
	}
}

func TestParseArgsSubcommands(t *testing.T) {
	opts, err := ParseArgs([]string{"list"}, &bytes.Buffer{})
	if err != nil || opts.Command != CommandList {
		t.Errorf("list = %+v, %v", opts, err)
	}

	opts, err = ParseArgs([]string{"analyze", "a.wav", "--from", "1s", "--duration", "500ms", "--db", "--format", "json"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	if opts.Command != CommandAnalyze || opts.Track != "a.wav" || opts.From != time.Second ||
		opts.Duration != 500*time.Millisecond || !opts.Decibels || opts.Format != FormatJSON {
		t.Errorf("analyze = %+v", opts)
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid resolution", []string{"-n", "0"}},
		{"inverted range", []string{"--min-freq", "500", "--max-freq", "100"}},
		{"unknown window", []string{"--window", "triangle-ish"}},
		{"analyze without track", []string{"analyze"}},
		{"analyze bad format", []string{"analyze", "a.wav", "--format", "xml"}},
		{"two tracks", []string{"a.wav", "b.wav"}},
		{"missing config file", []string{"-f", "/nonexistent/spectra.yaml"}},
		{"unknown flag", []string{"--bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(tt.args, &bytes.Buffer{}); err == nil {
				t.Errorf("ParseArgs(%v) expected error", tt.args)
			}
		})
	}
}

func TestParseArgsVersion(t *testing.T) {
	var out bytes.Buffer
	opts, err := ParseArgs([]string{"--version"}, &out)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if opts.Command != CommandNone {
		t.Errorf("Command = %q, want none", opts.Command)
	}
	if !strings.Contains(out.String(), "dev") {
		t.Errorf("version output = %q", out.String())
	}
}
