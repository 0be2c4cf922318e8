// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults for
// the analysis pipeline.
const (
	// Analysis defaults.
	DefaultResolution     = 64                    // Number of visual bins
	DefaultMinFrequency   = 20.0                  // Lowest bin (Hz)
	DefaultMaxFrequency   = 20000.0               // Highest bin (Hz)
	DefaultWindowLength   = 0.05                  // Seconds of audio per analysis window
	DefaultWindow         = "rectangular"         // FFT window function
	DefaultSensitivity    = 10.0                  // High-bin boost shaping constant
	DefaultDeltaThreshold = 1000.0                // Jumps above this are adopted immediately
	DefaultDecayFactor    = 0.1                   // Fraction removed per decaying tick
	DefaultEpsilonFloor   = 1e-5                  // Smallest stored bin value
	DefaultFloorThreshold = 1.0                   // Values below this collapse to the floor
	DefaultSmoothingSigma = 1.5                   // Gaussian sigma across bins
	DefaultTickInterval   = 33 * time.Millisecond // ~30Hz

	// Playback defaults.
	DefaultOutputDevice    = MinDeviceID
	DefaultFramesPerBuffer = 1024
	DefaultLowLatency      = false

	// Transport defaults.
	DefaultWebSocketAddress = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond

	// Limits.
	MinDeviceID     = -1 // -1 represents system default device
	MaxResolution   = 4096
	MaxBufferFrames = 8192
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (forces debug log level).
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	LogFile   string          `yaml:"log_file"`  // Write logs here instead of stderr (used by the TUI).
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectral analysis pipeline settings.
	Playback  PlaybackConfig  `yaml:"playback"`  // Audio output settings.
	Transport TransportConfig `yaml:"transport"` // Network visual sinks.
}

// AnalysisConfig holds everything the analysis loop needs. It is static for
// the lifetime of an engine; swapping it resets all per-bin state.
type AnalysisConfig struct {
	Resolution     int           `yaml:"resolution"`      // Number of visual bins.
	MinFrequency   float64       `yaml:"min_frequency"`   // Lowest bin frequency (Hz).
	MaxFrequency   float64       `yaml:"max_frequency"`   // Highest bin frequency (Hz).
	WindowLength   float64       `yaml:"window_length"`   // Analysis window length (seconds).
	Window         string        `yaml:"window"`          // Window function name (e.g. "hann", "rectangular").
	Sensitivity    float64       `yaml:"sensitivity"`     // Progressive high-frequency boost.
	DeltaThreshold float64       `yaml:"delta_threshold"` // Snap threshold between stored and new values.
	DecayFactor    float64       `yaml:"decay_factor"`    // Fraction of the stored value removed per decaying tick.
	EpsilonFloor   float64       `yaml:"epsilon_floor"`   // Positive floor keeping decibel conversion finite.
	FloorThreshold float64       `yaml:"floor_threshold"` // Stored values below this collapse to EpsilonFloor.
	SmoothingSigma float64       `yaml:"smoothing_sigma"` // Gaussian sigma across the bin axis (0 disables).
	TickInterval   time.Duration `yaml:"tick_interval"`   // Wall-clock period between analysis ticks.
}

// PlaybackConfig holds settings for rendering the loaded track to an output device.
type PlaybackConfig struct {
	Enabled         bool `yaml:"enabled"`           // Play through PortAudio while visualizing.
	OutputDevice    int  `yaml:"output_device"`     // PortAudio device index (-1 for default).
	FramesPerBuffer int  `yaml:"frames_per_buffer"` // Frames per output callback.
	LowLatency      bool `yaml:"low_latency"`       // Request low latency settings from the device.
}

// TransportConfig holds settings related to sending frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames on /ws.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target "host:port" for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// DefaultAnalysis returns the analysis settings the visualizer ships with.
func DefaultAnalysis() AnalysisConfig {
	return AnalysisConfig{
		Resolution:     DefaultResolution,
		MinFrequency:   DefaultMinFrequency,
		MaxFrequency:   DefaultMaxFrequency,
		WindowLength:   DefaultWindowLength,
		Window:         DefaultWindow,
		Sensitivity:    DefaultSensitivity,
		DeltaThreshold: DefaultDeltaThreshold,
		DecayFactor:    DefaultDecayFactor,
		EpsilonFloor:   DefaultEpsilonFloor,
		FloorThreshold: DefaultFloorThreshold,
		SmoothingSigma: DefaultSmoothingSigma,
		TickInterval:   DefaultTickInterval,
	}
}

// Default returns a complete configuration with built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Analysis: DefaultAnalysis(),
		Playback: PlaybackConfig{
			Enabled:         false,
			OutputDevice:    DefaultOutputDevice,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddress: DefaultWebSocketAddress,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// WindowSamples returns round(sampleRate × WindowLength).
func (a AnalysisConfig) WindowSamples(sampleRate float64) int {
	n := sampleRate*a.WindowLength + 0.5
	if n < 0 {
		return 0
	}
	return int(n)
}
