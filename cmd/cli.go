package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"iocapture/internal/config"
	"iocapture/pkg/build"
)

// Commands selected on the command line.
const (
	CommandRun  = "run"
	CommandList = "list"
)

// Invocation is the parsed command line.
type Invocation struct {
	Command string
	Config  *config.Config
	Pick    bool // list: choose a device interactively.
}

type flagValues struct {
	configPath      string
	deviceID        int
	inputChannels   int
	outputChannels  int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	record          bool
	output          string
	outputDir       string
	loopback        bool
	simulate        bool
	tui             bool
	verbose         bool
	logJSON         bool
	wsAddr          string
	metricsAddr     string
	natsURL         string
}

// ParseArgs parses args (without the program name). A nil Invocation with a
// nil error means cobra already handled the request, as with --help.
func ParseArgs(args []string) (*Invocation, error) {
	buildInfo := build.Get()
	var (
		flags flagValues
		inv   *Invocation
		pick  bool
	)

	load := func(cmd *cobra.Command, command string) error {
		cfg, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd.Flags(), &flags, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		inv = &Invocation{Command: command, Config: cfg, Pick: pick}
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandRun)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandList)
		},
	}
	listCmd.Flags().BoolVar(&pick, "pick", false, "Choose a device and sample rate interactively")
	rootCmd.AddCommand(listCmd)

	pf := rootCmd.PersistentFlags()

	pf.StringVar(&flags.configPath, "config", "",
		"Path to a YAML config file (default: ./config.yaml if present)")

	// Audio Device Configuration
	pf.IntVarP(&flags.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.inputChannels, "channels", "c", config.DefaultInputChannels,
		"Number of channels to capture (1=mono, 2=stereo)")
	pf.IntVar(&flags.outputChannels, "output-channels", config.DefaultOutputChannels,
		"Number of loopback output channels, 0 for input only")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use the device's low latency settings")
	pf.BoolVar(&flags.simulate, "simulate", false,
		"Use a simulated device instead of audio hardware")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record audio from the specified input device")
	pf.StringVarP(&flags.output, "output", "o", "",
		"Output file name. Default is capture-YYYYMMDD-HHMMSS.wav in the output directory")
	pf.StringVar(&flags.outputDir, "output-dir", config.DefaultOutputDir,
		"Directory for generated recording file names")

	// Loopback and surfaces
	pf.BoolVar(&flags.loopback, "loopback", false,
		"Route captured input to the output device")
	pf.BoolVarP(&flags.tui, "tui", "t", false,
		"Show the terminal control panel")
	pf.StringVar(&flags.wsAddr, "ws-addr", "",
		"Serve level frames over WebSocket on this address")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address")
	pf.StringVar(&flags.natsURL, "nats-url", "",
		"Publish engine events to this NATS server")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.BoolVar(&flags.logJSON, "log-json", false,
		"Write JSON log lines to stderr")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return inv, nil
}

// applyFlags copies explicitly set flags over the loaded configuration so
// that file and environment values survive unless overridden.
func applyFlags(fs *pflag.FlagSet, f *flagValues, cfg *config.Config) {
	set := fs.Changed

	if set("device") {
		cfg.Audio.InputDevice = f.deviceID
	}
	if set("channels") {
		cfg.Audio.InputChannels = f.inputChannels
	}
	if set("output-channels") {
		cfg.Audio.OutputChannels = f.outputChannels
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if set("simulate") {
		cfg.Audio.Simulate = f.simulate
	}
	if set("record") {
		cfg.Recording.Enabled = f.record
	}
	if set("output") {
		cfg.Recording.File = f.output
	}
	if set("output-dir") {
		cfg.Recording.OutputDir = f.outputDir
	}
	if set("loopback") {
		cfg.Loopback.Enabled = f.loopback
	}
	if set("tui") {
		cfg.TUI = f.tui
	}
	if set("ws-addr") {
		cfg.Transport.WebSocketAddr = f.wsAddr
	}
	if set("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if set("nats-url") {
		cfg.NATS.URL = f.natsURL
	}
	if set("verbose") && f.verbose {
		cfg.LogLevel = "debug"
	}
	if set("log-json") {
		cfg.LogJSON = f.logJSON
	}
}
