package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lixenwraith/keel/config"
)

// version is stamped by the release build; dev builds keep the default.
var version = "dev"

func main() {
	var (
		configPath string
		flags      flagOverrides
	)

	root := &cobra.Command{
		Use:     "keel",
		Short:   "Game client runtime demo (terminal front end)",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd, &flags)
			if err != nil {
				return err
			}
			return runApp(cfg, false)
		},
	}

	headless := &cobra.Command{
		Use:   "headless",
		Short: "Run the runtime without a display (logic, audio, network loops only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd, &flags)
			if err != nil {
				return err
			}
			return runApp(cfg, true)
		},
	}
	root.AddCommand(headless)

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "TOML config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	pf.StringVar(&flags.debugAddr, "debug-addr", "", "debug HTTP listen address")
	pf.IntVar(&flags.frameRate, "frame-rate", 0, "render-side frame rate (Hz)")
	pf.StringVar(&flags.renderQuality, "render-quality", "", "target render quality (auto|low|medium|high)")
	pf.BoolVar(&flags.benchmark, "benchmark", false, "mark frames for timing capture")
	pf.BoolVar(&flags.mute, "mute", false, "disable audio cues")
	pf.IntVar(&flags.stress, "stress", 0, "synthetic input stress level")
	pf.StringVar(&flags.telemetryTo, "telemetry-addr", "", "UDP address for frame telemetry")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// flagOverrides holds flag values that beat the config file when set.
type flagOverrides struct {
	logLevel      string
	debugAddr     string
	frameRate     int
	renderQuality string
	benchmark     bool
	mute          bool
	stress        int
	telemetryTo   string
}

func loadConfig(path string, cmd *cobra.Command, f *flagOverrides) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("debug-addr") {
		cfg.DebugAddr = f.debugAddr
	}
	if cmd.Flags().Changed("frame-rate") {
		cfg.FrameRate = f.frameRate
	}
	if cmd.Flags().Changed("render-quality") {
		cfg.RenderQuality = f.renderQuality
	}
	if cmd.Flags().Changed("benchmark") {
		cfg.Benchmark = f.benchmark
	}
	if cmd.Flags().Changed("mute") {
		cfg.Mute = f.mute
	}
	if cmd.Flags().Changed("stress") {
		cfg.StressLevel = f.stress
	}
	if cmd.Flags().Changed("telemetry-addr") {
		cfg.TelemetryTo = f.telemetryTo
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
