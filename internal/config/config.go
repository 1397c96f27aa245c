package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dshills/scriptbridge/internal/config/loader"
	"github.com/dshills/scriptbridge/internal/event"
	"github.com/dshills/scriptbridge/internal/logging"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "SCRIPTBRIDGE_"

// Config is the complete scriptbridge configuration.
type Config struct {
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Script  ScriptConfig  `mapstructure:"script"`
	Host    HostConfig    `mapstructure:"host"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Autorun AutorunConfig `mapstructure:"autorun"`
}

// BridgeConfig configures the event bridge.
type BridgeConfig struct {
	// SingleSlot selects the legacy depth-one queue.
	SingleSlot bool `mapstructure:"single_slot"`
	// Drain lists the kinds whose signals wait for the consumer to finish.
	Drain []string `mapstructure:"drain"`
	// ThreadName names the consumer OS thread.
	ThreadName string `mapstructure:"thread_name"`
	// ShutdownTimeout bounds how long shutdown waits for the consumer.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ScriptConfig configures the Lua runtime.
type ScriptConfig struct {
	Dir        string `mapstructure:"dir"`
	MainModule string `mapstructure:"main_module"`
}

// HostConfig configures the simulated host.
type HostConfig struct {
	FrameRate int    `mapstructure:"frame_rate"`
	RAMSize   uint32 `mapstructure:"ram_size"`
	// Frames stops the simulation after this many frames; zero runs forever.
	Frames uint64 `mapstructure:"frames"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// AutorunConfig configures the autorun directory watcher. An empty Dir
// disables it.
type AutorunConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Drain:           []string{event.KindStop.String()},
			ThreadName:      "Lua thread",
			ShutdownTimeout: 5 * time.Second,
		},
		Script: ScriptConfig{
			MainModule: "dolphin",
		},
		Host: HostConfig{
			FrameRate: 60,
			RAMSize:   24 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Autorun: AutorunConfig{
			Debounce: 100 * time.Millisecond,
		},
	}
}

// Option configures Load.
type Option func(*options)

type options struct {
	file      string
	fs        loader.FileSystem
	envPrefix string
	overrides map[string]any
}

// WithFile reads settings from a TOML or YAML file. A missing file is not
// an error.
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithFileSystem reads the config file through fsys.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithEnvPrefix changes the environment variable prefix. An empty prefix
// disables the environment layer.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithOverrides applies m above every other layer. Keys are sections, as in
// the file.
func WithOverrides(m map[string]any) Option {
	return func(o *options) {
		o.overrides = loader.DeepMerge(o.overrides, m)
	}
}

// Load builds and validates a Config.
func Load(opts ...Option) (*Config, error) {
	o := options{fs: loader.OS, envPrefix: EnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	var sources []loader.Loader
	if o.file != "" {
		fl, err := loader.NewFileLoaderWithFS(o.fs, o.file)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fl)
	}
	if o.envPrefix != "" {
		sources = append(sources, loader.NewEnvLoader(o.envPrefix))
	}
	if o.overrides != nil {
		sources = append(sources, loader.Static(o.overrides))
	}

	merged, err := loader.MergeAll(sources...)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := Decode(merged, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes a settings map onto cfg. Keys absent from m keep their
// current values.
func Decode(m map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ZeroFields:       true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := c.DrainKinds(); err != nil {
		add("bridge.drain", "%v", err)
	}
	if c.Bridge.ShutdownTimeout < 0 {
		add("bridge.shutdown_timeout", "must not be negative")
	}

	if c.Script.MainModule == "" {
		add("script.main_module", "must not be empty")
	}

	if c.Host.FrameRate < 1 || c.Host.FrameRate > 1000 {
		add("host.frame_rate", "must be between 1 and 1000, got %d", c.Host.FrameRate)
	}
	if c.Host.RAMSize == 0 || c.Host.RAMSize > 0x40000000 {
		add("host.ram_size", "must be between 1 and %d bytes, got %d", 0x40000000, c.Host.RAMSize)
	}

	if !logging.ValidLogLevel(c.Logging.Level) {
		add("logging.level", "unknown level %q", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		add("logging.format", "must be console or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Addr != "" && (c.Metrics.Path == "" || c.Metrics.Path[0] != '/') {
		add("metrics.path", "must start with /")
	}

	if c.Autorun.Debounce < 0 {
		add("autorun.debounce", "must not be negative")
	}

	return errors.Join(errs...)
}

// DrainKinds parses Bridge.Drain.
func (c *Config) DrainKinds() ([]event.Kind, error) {
	kinds := make([]event.Kind, 0, len(c.Bridge.Drain))
	for _, name := range c.Bridge.Drain {
		k, err := event.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %s", event.ErrUnknownKind, name)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logging.LoggerConfig {
	lc := logging.DefaultLoggerConfig()
	lc.Level = logging.ParseLogLevel(c.Logging.Level)
	lc.Format = c.Logging.Format
	return lc
}
