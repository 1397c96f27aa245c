package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/scriptbridge/internal/app"
	"github.com/dshills/scriptbridge/internal/config"
	"github.com/dshills/scriptbridge/internal/console"
	"github.com/dshills/scriptbridge/internal/host"
	"github.com/dshills/scriptbridge/internal/logging"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
	noColor    bool
}

func newRootCommand() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:   "scriptbridge",
		Short: "Run Lua scripts against a simulated host",
		Long: `scriptbridge runs a Lua script session on a dedicated thread and feeds it
events from a simulated host: frame ticks, scripts to evaluate and a stop
request on shutdown.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}
	root.SetVersionTemplate("scriptbridge {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "config file (.toml or .yaml)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: console, json")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newRunCommand(&g), newEvalCommand(&g), newVersionCommand())
	return root
}

// loadConfig merges the config file, the environment and any flags the
// user set.
func loadConfig(g *globalFlags, overrides map[string]any) (*config.Config, error) {
	if overrides == nil {
		overrides = make(map[string]any)
	}
	logs := make(map[string]any)
	if g.logLevel != "" {
		logs["level"] = g.logLevel
	}
	if g.logFormat != "" {
		logs["format"] = g.logFormat
	}
	if len(logs) > 0 {
		overrides["logging"] = logs
	}

	opts := []config.Option{config.WithOverrides(overrides)}
	if g.configFile != "" {
		if _, err := os.Stat(g.configFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		opts = append(opts, config.WithFile(g.configFile))
	}
	return config.Load(opts...)
}

// set records a flag value under section.key if the user changed it.
func set(cmd *cobra.Command, m map[string]any, flag, section, key string, value any) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	sec, ok := m[section].(map[string]any)
	if !ok {
		sec = make(map[string]any)
		m[section] = sec
	}
	sec[key] = value
}

func newApplication(cfg *config.Config, rw io.ReadWriter) (*app.Application, *logging.Logger, error) {
	log := logging.NewLogger(cfg.LoggerConfig())
	a, err := app.New(app.Options{
		Config:  cfg,
		Logger:  log,
		Alerter: host.NewConsoleAlerter(os.Stderr, log),
		Console: rw,
	})
	return a, log, err
}

func newRunCommand(g *globalFlags) *cobra.Command {
	var (
		scriptDir   string
		mainModule  string
		frames      uint64
		frameRate   int
		metricsAddr string
		autorunDir  string
		singleSlot  bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the simulated host and the script session",
		Example: `  scriptbridge run --script-dir ./lua
  scriptbridge run --frames 600 --metrics-addr :9100
  scriptbridge run --console`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := make(map[string]any)
			set(cmd, overrides, "script-dir", "script", "dir", scriptDir)
			set(cmd, overrides, "main-module", "script", "main_module", mainModule)
			set(cmd, overrides, "frames", "host", "frames", frames)
			set(cmd, overrides, "frame-rate", "host", "frame_rate", frameRate)
			set(cmd, overrides, "metrics-addr", "metrics", "addr", metricsAddr)
			set(cmd, overrides, "autorun-dir", "autorun", "dir", autorunDir)
			set(cmd, overrides, "single-slot", "bridge", "single_slot", singleSlot)

			cfg, err := loadConfig(g, overrides)
			if err != nil {
				return err
			}

			var rw io.ReadWriter
			if interactive {
				stdio, restore, err := console.Stdio()
				if err != nil {
					return err
				}
				defer restore()
				rw = stdio
			}

			a, log, err := newApplication(cfg, rw)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			return a.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&scriptDir, "script-dir", "", "directory searched for Lua modules and init.lua")
	f.StringVar(&mainModule, "main-module", "", "module whose main() runs the session")
	f.Uint64Var(&frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	f.IntVar(&frameRate, "frame-rate", 0, "frames per second")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&autorunDir, "autorun-dir", "", "evaluate Lua files dropped into this directory")
	f.BoolVar(&singleSlot, "single-slot", false, "use the legacy single-slot event queue")
	f.BoolVar(&interactive, "console", false, "start an interactive Lua prompt")
	return cmd
}

func newEvalCommand(g *globalFlags) *cobra.Command {
	var (
		file      string
		scriptDir string
	)

	cmd := &cobra.Command{
		Use:   "eval [lua...]",
		Short: "Evaluate one script in a fresh session and exit",
		Example: `  scriptbridge eval "print('hello')"
  scriptbridge eval --file patch.lua`,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := strings.Join(args, " ")
			if file != "" {
				if src != "" {
					return errors.New("pass either a script or --file, not both")
				}
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				src = string(data)
			}
			if strings.TrimSpace(src) == "" {
				return errors.New("nothing to evaluate")
			}

			overrides := make(map[string]any)
			set(cmd, overrides, "script-dir", "script", "dir", scriptDir)
			cfg, err := loadConfig(g, overrides)
			if err != nil {
				return err
			}

			a, log, err := newApplication(cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			return a.Eval(src)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the script from a file")
	cmd.Flags().StringVar(&scriptDir, "script-dir", "", "directory searched for Lua modules and init.lua")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scriptbridge version %s\n", version)
			fmt.Fprintf(out, "commit: %s\n", commit)
			fmt.Fprintf(out, "built: %s\n", date)
			fmt.Fprintf(out, "go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
