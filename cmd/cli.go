package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"spectra/internal/config"
	"spectra/pkg/build"
)

// Command names the action selected on the command line.
type Command string

const (
	CommandNone    Command = "" // help or version was printed
	CommandRun     Command = "run"
	CommandList    Command = "list"
	CommandTicks   Command = "ticks"
	CommandAnalyze Command = "analyze"
)

// Output formats for the analyze command.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options is the parsed command line merged over the config file.
type Options struct {
	Command    Command
	Track      string
	ConfigPath string
	LogFile    string
	Verbose    bool
	NoTUI      bool

	// analyze
	From     time.Duration
	Duration time.Duration
	Decibels bool
	Format   string

	Config *config.Config
}

// overrides holds flag values that win over the config file when set.
type overrides struct {
	resolution   int
	minFreq      float64
	maxFreq      float64
	windowLength float64
	window       string
	sensitivity  float64
	play         bool
	device       int
	ws           string
	udp          string
}

// ParseArgs parses args (without the program name). Help and version output
// goes to out.
func ParseArgs(args []string, out io.Writer) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var ov overrides

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [track]",
		Short:         buildInfo.Description,
		Version:       buildInfo.VersionString(),
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			if len(args) == 1 {
				options.Track = args[0]
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Merge the config file with explicitly set flags before any command runs.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(options.ConfigPath)
		if err != nil {
			return err
		}
		ov.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		options.Config = cfg
		return nil
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio output devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
		},
	}

	ticksCmd := &cobra.Command{
		Use:   "ticks",
		Short: "Print the bin frequencies and axis labels",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandTicks
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <track>",
		Short: "Run the analysis headless and print one row per frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.Format != FormatText && options.Format != FormatJSON {
				return fmt.Errorf("unknown format %q (want %s or %s)", options.Format, FormatText, FormatJSON)
			}
			options.Command = CommandAnalyze
			options.Track = args[0]
			return nil
		},
	}
	analyzeCmd.Flags().DurationVar(&options.From, "from", 0,
		"Track position to start from")
	analyzeCmd.Flags().DurationVar(&options.Duration, "duration", 0,
		"Length of track time to analyze (0 = until the end)")
	analyzeCmd.Flags().BoolVar(&options.Decibels, "db", false,
		"Print values in decibels")
	analyzeCmd.Flags().StringVar(&options.Format, "format", FormatText,
		"Output format: text or json")

	rootCmd.AddCommand(listCmd, ticksCmd, analyzeCmd)

	pf := rootCmd.PersistentFlags()

	// General
	pf.StringVarP(&options.ConfigPath, "config", "f", "",
		"Path to a YAML config file (default ./"+config.DefaultPath+" when present)")
	pf.BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show debug output")
	pf.StringVar(&options.LogFile, "log-file", "",
		"Write logs to this file (the visualizer discards them otherwise)")
	pf.BoolVar(&options.NoTUI, "no-tui", false,
		"Serve frames to transports without drawing the visualizer")

	// Analysis
	pf.IntVarP(&ov.resolution, "resolution", "n", config.DefaultResolution,
		"Number of frequency bins")
	pf.Float64Var(&ov.minFreq, "min-freq", config.DefaultMinFrequency,
		"Lowest bin frequency in Hz")
	pf.Float64Var(&ov.maxFreq, "max-freq", config.DefaultMaxFrequency,
		"Highest bin frequency in Hz")
	pf.Float64Var(&ov.windowLength, "window-length", config.DefaultWindowLength,
		"Analysis window in seconds")
	pf.StringVar(&ov.window, "window", config.DefaultWindow,
		"Window function (rectangular, hann, hamming, blackman, ...)")
	pf.Float64Var(&ov.sensitivity, "sensitivity", config.DefaultSensitivity,
		"High-frequency boost")

	// Playback
	pf.BoolVarP(&ov.play, "play", "p", false,
		"Play the track through an output device")
	pf.IntVarP(&ov.device, "device", "d", config.DefaultOutputDevice,
		"Output device ID. Use 'list' command to see available devices.")

	// Transports
	pf.StringVar(&ov.ws, "ws", "",
		"Serve frames over WebSocket on this address, e.g. :8080")
	pf.StringVar(&ov.udp, "udp", "",
		"Send binary frames over UDP to host:port")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

func (ov *overrides) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("resolution") {
		cfg.Analysis.Resolution = ov.resolution
	}
	if flags.Changed("min-freq") {
		cfg.Analysis.MinFrequency = ov.minFreq
	}
	if flags.Changed("max-freq") {
		cfg.Analysis.MaxFrequency = ov.maxFreq
	}
	if flags.Changed("window-length") {
		cfg.Analysis.WindowLength = ov.windowLength
	}
	if flags.Changed("window") {
		cfg.Analysis.Window = ov.window
	}
	if flags.Changed("sensitivity") {
		cfg.Analysis.Sensitivity = ov.sensitivity
	}
	if flags.Changed("play") {
		cfg.Playback.Enabled = ov.play
	}
	if flags.Changed("device") {
		cfg.Playback.OutputDevice = ov.device
	}
	if flags.Changed("ws") {
		cfg.Transport.WebSocketEnabled = ov.ws != ""
		cfg.Transport.WebSocketAddress = ov.ws
	}
	if flags.Changed("udp") {
		cfg.Transport.UDPEnabled = ov.udp != ""
		cfg.Transport.UDPTargetAddress = ov.udp
	}
	if flags.Changed("verbose") {
		cfg.LogLevel = "debug"
	}
}
