package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/config"
	"github.com/dshills/stepviz/internal/logging"
)

// flagPaths maps command flags to the config keys they override.
var flagPaths = map[string]string{
	"ui":            "ui.mode",
	"theme":         "ui.theme",
	"no-highlight":  "ui.highlight",
	"trace":         "trace.dir",
	"dir":           "trace.dir",
	"sqlite":        "trace.sqlite",
	"auto":          "session.auto_play",
	"delay":         "session.step_delay",
	"snippets-file": "snippets.path",
}

// app holds what every command shares once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "stepviz",
		Short: "Step through JavaScript snippets line by line",
		Long: `stepviz instruments a JavaScript snippet, runs it in a sandbox and pauses
before every line. Variables, console output and data structures are shown
as they change.

Settings are read from ~/.config/stepviz/config.toml, STEPVIZ_* environment
variables and command line flags, later sources winning.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "configuration file (toml or yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(a),
		newInstrumentCmd(a),
		newTraceCmd(a),
		newSnippetsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	var opts []config.Option
	if a.configPath != "" {
		opts = append(opts, config.WithFile(a.configPath))
	}
	if a.logLevel != "" {
		opts = append(opts, config.WithOverride("log.level", a.logLevel))
	}
	if a.verbose {
		opts = append(opts, config.WithOverride("log.level", "debug"))
	}

	var ferr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		path, ok := flagPaths[f.Name]
		if !ok || ferr != nil {
			return
		}
		value, err := flagValue(f)
		if err != nil {
			ferr = fmt.Errorf("--%s: %w", f.Name, err)
			return
		}
		opts = append(opts, config.WithOverride(path, value))
	})
	if ferr != nil {
		return ferr
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	logger.Debug("configuration loaded",
		zap.String("source", cfg.Source),
		zap.String("ui", cfg.UI.Mode),
		zap.String("trace_dir", cfg.Trace.Dir))
	return nil
}

// flagValue converts a set flag into a config value.
func flagValue(f *pflag.Flag) (any, error) {
	if f.Value.Type() != "bool" {
		return f.Value.String(), nil
	}
	v, err := strconv.ParseBool(f.Value.String())
	if err != nil {
		return nil, err
	}
	// no-highlight is the inverse of ui.highlight.
	if f.Name == "no-highlight" {
		return !v, nil
	}
	return v, nil
}
