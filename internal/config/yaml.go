// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"spectra/internal/analysis"
	applog "spectra/internal/log"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultPath is the config file searched for when no path is given.
const DefaultPath = "config.yaml"

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the working directory for DefaultPath. If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that every field is usable by the pipeline.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}

	if c.Playback.FramesPerBuffer <= 0 || c.Playback.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: playback.frames_per_buffer must be in 1..%d, got %d",
			ErrInvalid, MaxBufferFrames, c.Playback.FramesPerBuffer)
	}
	if c.Playback.OutputDevice < MinDeviceID {
		return fmt.Errorf("%w: playback.output_device must be >= %d", ErrInvalid, MinDeviceID)
	}

	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("%w: transport.udp_target_address must be set when UDP is enabled", ErrInvalid)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("%w: transport.udp_send_interval must be positive when UDP is enabled", ErrInvalid)
		}
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		return fmt.Errorf("%w: transport.websocket_address must be set when websocket is enabled", ErrInvalid)
	}

	return nil
}

// Validate checks the analysis settings on their own. The engine calls it
// again on every reconfigure.
func (a AnalysisConfig) Validate() error {
	switch {
	case a.Resolution < 1 || a.Resolution > MaxResolution:
		return fmt.Errorf("%w: analysis.resolution must be in 1..%d, got %d", ErrInvalid, MaxResolution, a.Resolution)
	case a.MinFrequency <= 0:
		return fmt.Errorf("%w: analysis.min_frequency must be positive, got %g", ErrInvalid, a.MinFrequency)
	case a.MaxFrequency <= a.MinFrequency:
		return fmt.Errorf("%w: analysis.max_frequency (%g) must exceed min_frequency (%g)",
			ErrInvalid, a.MaxFrequency, a.MinFrequency)
	case a.WindowLength <= 0:
		return fmt.Errorf("%w: analysis.window_length must be positive, got %g", ErrInvalid, a.WindowLength)
	case a.DecayFactor <= 0 || a.DecayFactor > 1:
		return fmt.Errorf("%w: analysis.decay_factor must be in (0, 1], got %g", ErrInvalid, a.DecayFactor)
	case a.EpsilonFloor <= 0:
		return fmt.Errorf("%w: analysis.epsilon_floor must be positive, got %g", ErrInvalid, a.EpsilonFloor)
	case a.DeltaThreshold < 0:
		return fmt.Errorf("%w: analysis.delta_threshold must not be negative, got %g", ErrInvalid, a.DeltaThreshold)
	case a.SmoothingSigma < 0:
		return fmt.Errorf("%w: analysis.smoothing_sigma must not be negative, got %g", ErrInvalid, a.SmoothingSigma)
	case a.TickInterval <= 0:
		return fmt.Errorf("%w: analysis.tick_interval must be positive, got %s", ErrInvalid, a.TickInterval)
	}
	if _, err := analysis.ParseWindowFunc(a.Window); err != nil {
		return fmt.Errorf("%w: analysis.window: %v", ErrInvalid, err)
	}
	return nil
}

// applyEnvOverrides lets deployments tweak a few settings without a file.
// Malformed values are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Debugf("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Debugf("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_RESOLUTION
	if val, ok := os.LookupEnv("ENV_RESOLUTION"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Analysis.Resolution = n
			applog.Debugf("configuration: Overriding analysis.resolution from env: %d", n)
		}
	}

	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
		applog.Debugf("configuration: Overriding transport.websocket_address from env: %s", val)
	}

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Debugf("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Debugf("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			applog.Debugf("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}
