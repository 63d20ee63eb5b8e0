package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blip/internal/transport"
	"github.com/srg/blip/pkg/config"
)

// parseLogLevel accepts the four levels the CLI exposes
func parseLogLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// loadConfig reads --config and applies the persistent flags that were set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("helper") {
		cfg.Helper, _ = flags.GetString("helper")
	}
	if flags.Changed("transport") {
		kind, _ := flags.GetString("transport")
		cfg.Transport = transport.Kind(kind)
	}
	if flags.Changed("iface") {
		cfg.Iface, _ = flags.GetInt("iface")
	}
	if flags.Changed("names-file") {
		cfg.NamesFile, _ = flags.GetString("names-file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose; with neither set only the
// configured level from the file applies, and without a file the CLI stays quiet.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level := logrus.PanicLevel
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		level = cfg.LogLevel
	}

	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		l, err := parseLogLevel(s)
		if err != nil {
			return nil, err
		}
		level = l
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logrus.DebugLevel
	}

	cfg.LogLevel = level
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

// setup is the common prologue of every command
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// logDuration is used by the interactive loops for their final summary
func logDuration(logger *logrus.Logger, what string, started time.Time) {
	logger.WithField("elapsed", time.Since(started).Truncate(time.Millisecond)).Info(what)
}
