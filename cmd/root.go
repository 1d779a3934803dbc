package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/cwbudde/polyroot/internal/config"
)

var (
	logLevel   string
	logFormat  string
	configPath string

	// cfg is loaded before any subcommand runs
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "polyroot",
	Short: "Robust nonlinear root finding with a Newton-family polyalgorithm",
	Long: `polyroot solves square nonlinear systems F(u, p) = 0 by trying an ordered
list of Newton, trust-region and quasi-Newton candidates, falling back to the
next one on failure and reporting the least-bad result when none succeeds.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		handler, err := newLogHandler(os.Stderr, logFormat, level)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(handler))

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		slog.Debug("Configuration loaded", "path", configPath,
			"preset", cfg.Solver.Preset, "path", cfg.Solver.Path, "store", cfg.Store.Dir)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "polyroot.yaml", "Config file (YAML or JSON); missing files are ignored")
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// newLogHandler returns a colored console handler for "text" and a JSON
// handler for "json".
func newLogHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	switch format {
	case "text", "":
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	}
	return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
}
