package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds runtime tunables. Zero values mean "unspecified"; Load
// fills them from Default before applying the file, and cmd flags
// override the result.
type Config struct {
	LogLevel  string `toml:"log_level"`  // debug|info|warn|error
	DebugAddr string `toml:"debug_addr"` // debug HTTP listen address, empty = off

	FrameRate int `toml:"frame_rate"` // render-side consume rate, Hz

	// RenderQuality is resolved by the graphics side; unrecognized
	// values fall back to "auto" with a logged error, not a Validate
	// failure, so a stale config file cannot keep the app from coming
	// up.
	RenderQuality string `toml:"render_quality"` // auto|low|medium|high
	Benchmark     bool   `toml:"benchmark"`      // mark frames for timing capture

	Mute        bool   `toml:"mute"`
	ShowLoadDot bool   `toml:"show_load_dot"`
	GyroEnabled bool   `toml:"gyro_enabled"`
	StressLevel int    `toml:"stress_level"` // synthetic input devices, 0 = off
	TelemetryTo string `toml:"telemetry_to"` // UDP host:port for frame stats, empty = off
}

// Default returns production-safe defaults.
func Default() Config {
	return Config{
		LogLevel:      "info",
		FrameRate:     60,
		RenderQuality: "auto",
		ShowLoadDot:   true,
		GyroEnabled:   true,
	}
}

// Load reads a TOML config file over the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot operate with.
func (c *Config) Validate() error {
	if c.FrameRate < 1 || c.FrameRate > 480 {
		return fmt.Errorf("frame_rate %d out of range [1,480]", c.FrameRate)
	}
	if c.StressLevel < 0 || c.StressLevel > 64 {
		return fmt.Errorf("stress_level %d out of range [0,64]", c.StressLevel)
	}
	switch c.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
