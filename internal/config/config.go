package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Dicklesworthstone/hwdash/internal/shutdown"
)

// EnvPrefix prefixes every environment override, e.g. HWDASH_INTERVAL.
const EnvPrefix = "HWDASH"

// Config carries runtime options for hwdash.
type Config struct {
	Interval     time.Duration
	RankInterval time.Duration
	Debounce     time.Duration

	TopSlots    int
	PeakRising  float64
	PeakFalling float64

	EnableGPU      bool
	EnableDiskMeta bool

	ShutdownMode   string
	IdleSamples    int
	IdleTempC      float64
	IdleUtil       float64
	ArmShutdown    bool
	ShutdownDryRun bool

	LogLevel    string
	LogFile     string
	MetricsAddr string
	JSONStream  bool

	// ConfigFile is the file that was read, empty when none was found.
	ConfigFile string
}

func Default() Config {
	return Config{
		Interval:       time.Second,
		RankInterval:   3 * time.Second,
		Debounce:       250 * time.Millisecond,
		TopSlots:       3,
		PeakRising:     95,
		PeakFalling:    90,
		EnableGPU:      true,
		EnableDiskMeta: true,
		ShutdownMode:   shutdown.ModeThermal,
		IdleSamples:    shutdown.DefaultIdleSamples,
		IdleTempC:      50,
		IdleUtil:       10,
		LogLevel:       "info",
		LogFile:        defaultLogFile(),
	}
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "hwdash", "hwdash.log")
}

// Load resolves configuration from, in decreasing priority, command-line
// flags, HWDASH_* environment variables, an optional hwdash.yaml (the
// --config path, else the working directory, else the user config dir)
// and the defaults. It returns pflag.ErrHelp when -h was given.
func Load(args []string) (Config, error) {
	def := Default()
	fs := flagSet(def)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("config: bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hwdash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "hwdash"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := Config{
		Interval:       v.GetDuration("interval"),
		RankInterval:   v.GetDuration("rank-interval"),
		Debounce:       v.GetDuration("debounce"),
		TopSlots:       v.GetInt("top"),
		PeakRising:     v.GetFloat64("peak-rising"),
		PeakFalling:    v.GetFloat64("peak-falling"),
		EnableGPU:      v.GetBool("gpu"),
		EnableDiskMeta: v.GetBool("disk-meta"),
		ShutdownMode:   v.GetString("shutdown-mode"),
		IdleSamples:    v.GetInt("idle-samples"),
		IdleTempC:      v.GetFloat64("idle-temp"),
		IdleUtil:       v.GetFloat64("idle-util"),
		ArmShutdown:    v.GetBool("arm"),
		ShutdownDryRun: v.GetBool("dry-run"),
		LogLevel:       v.GetString("log-level"),
		LogFile:        v.GetString("log-file"),
		MetricsAddr:    v.GetString("metrics-addr"),
		JSONStream:     v.GetBool("json-stream"),
		ConfigFile:     v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the sampler cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("config: interval must be positive, got %s", c.Interval)
	case c.RankInterval <= 0:
		return fmt.Errorf("config: rank-interval must be positive, got %s", c.RankInterval)
	case c.Debounce <= 0:
		return fmt.Errorf("config: debounce must be positive, got %s", c.Debounce)
	case c.TopSlots < 1:
		return fmt.Errorf("config: top must be at least 1, got %d", c.TopSlots)
	case c.PeakFalling >= c.PeakRising:
		return fmt.Errorf("config: peak-falling (%g) must be below peak-rising (%g)", c.PeakFalling, c.PeakRising)
	case c.IdleSamples < 1:
		return fmt.Errorf("config: idle-samples must be at least 1, got %d", c.IdleSamples)
	case c.ShutdownMode != shutdown.ModeThermal && c.ShutdownMode != shutdown.ModeFan:
		return fmt.Errorf("config: unknown shutdown-mode %q", c.ShutdownMode)
	}
	return nil
}

// flagSet declares every flag with def as its default.
func flagSet(def Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("hwdash", pflag.ContinueOnError)
	fs.String("config", "", "path to a hwdash.yaml config file")
	fs.Duration("interval", def.Interval, "primary sampling interval")
	fs.Duration("rank-interval", def.RankInterval, "top process ranking interval")
	fs.Duration("debounce", def.Debounce, "quiet period after a resize before sampling resumes")
	fs.Int("top", def.TopSlots, "number of top CPU consumers shown")
	fs.Float64("peak-rising", def.PeakRising, "percent above which a peak is counted")
	fs.Float64("peak-falling", def.PeakFalling, "percent below which a new peak may be counted")
	fs.Bool("gpu", def.EnableGPU, "enable GPU telemetry via nvidia-smi")
	fs.Bool("disk-meta", def.EnableDiskMeta, "enable disk metadata enumeration")
	fs.String("shutdown-mode", def.ShutdownMode, "idle predicate: thermal|fan")
	fs.Int("idle-samples", def.IdleSamples, "consecutive idle samples before shutdown")
	fs.Float64("idle-temp", def.IdleTempC, "thermal mode: GPU temperature below which it is idle")
	fs.Float64("idle-util", def.IdleUtil, "thermal mode: GPU utilisation below which it is idle")
	fs.Bool("arm", def.ArmShutdown, "arm idle shutdown at startup")
	fs.Bool("dry-run", def.ShutdownDryRun, "log the shutdown command instead of running it")
	fs.String("log-level", def.LogLevel, "log level: debug|info|warn|error")
	fs.String("log-file", def.LogFile, "log file path")
	fs.String("metrics-addr", def.MetricsAddr, "serve Prometheus metrics on this address (empty disables)")
	fs.Bool("json-stream", def.JSONStream, "stream NDJSON emissions instead of the TUI")
	return fs
}
