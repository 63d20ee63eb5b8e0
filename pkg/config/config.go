package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blip/btle"
	"github.com/srg/blip/gatt"
	"github.com/srg/blip/internal/bledb"
	"github.com/srg/blip/internal/transport"
	"github.com/srg/blip/scanner"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel logrus.Level `yaml:"log_level" json:"log_level" default:"4"` // info

	// Helper is the helper command line, e.g. "sudo /usr/lib/bluepy-helper"
	Helper      string         `yaml:"helper" json:"helper" default:"bluepy-helper"`
	Transport   transport.Kind `yaml:"transport" json:"transport" default:"pipe"`
	StderrLines uint32         `yaml:"stderr_lines" json:"stderr_lines" default:"64"`
	Iface       int            `yaml:"iface" json:"iface" default:"0"`

	ScanTimeout         time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	DisconnectTimeout   time.Duration `yaml:"disconnect_timeout" json:"disconnect_timeout" default:"10s"`
	NotificationTimeout time.Duration `yaml:"notification_timeout" json:"notification_timeout" default:"1s"`
	MTU                 int           `yaml:"mtu" json:"mtu" default:"23"`

	// NamesFile is an optional uuids.json merged over the built-in names
	NamesFile    string `yaml:"names_file" json:"names_file"`
	OutputFormat string `yaml:"output_format" json:"output_format" default:"table"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults; an empty path yields the defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by the decoder
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case transport.KindPipe, transport.KindPTY:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want pipe or pty)", c.Transport))
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q (want table or json)", c.OutputFormat))
	}
	if c.MTU != 0 && (c.MTU < 23 || c.MTU > 517) {
		errs = append(errs, fmt.Errorf("mtu %d out of range 23..517", c.MTU))
	}
	if _, _, err := transport.ParseCommand(c.Helper); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// TransportFactory builds the helper factory described by the config
func (c *Config) TransportFactory(logger *logrus.Logger) (transport.Factory, error) {
	path, args, err := transport.ParseCommand(c.Helper)
	if err != nil {
		return nil, err
	}
	opts := transport.DefaultOptions()
	opts.HelperPath = path
	opts.HelperArgs = args
	opts.Kind = c.Transport
	opts.StderrLines = c.StderrLines
	return transport.NewFactory(opts, logger), nil
}

// Names returns the built-in names, with NamesFile merged over them when set
func (c *Config) Names() (*btle.NameTable, error) {
	if c.NamesFile == "" {
		return bledb.Builtin().Table(), nil
	}
	reg, err := bledb.LoadFile(c.NamesFile)
	if err != nil {
		return nil, err
	}
	return reg.Table(), nil
}

// ConnectOptions returns connection options for address
func (c *Config) ConnectOptions(address, addrType string, logger *logrus.Logger) (*gatt.ConnectOptions, error) {
	factory, err := c.TransportFactory(logger)
	if err != nil {
		return nil, err
	}
	names, err := c.Names()
	if err != nil {
		return nil, err
	}

	opts := gatt.DefaultConnectOptions()
	opts.Address = address
	if addrType != "" {
		opts.AddrType = addrType
	}
	opts.Iface = c.Iface
	opts.ConnectTimeout = c.ConnectTimeout
	opts.DisconnectTimeout = c.DisconnectTimeout
	opts.MTU = c.MTU
	opts.Transport = factory
	opts.Names = names
	return opts, nil
}

// ScannerOptions returns scanner options on the configured controller
func (c *Config) ScannerOptions(logger *logrus.Logger) (*scanner.Options, error) {
	factory, err := c.TransportFactory(logger)
	if err != nil {
		return nil, err
	}
	opts := scanner.DefaultOptions()
	opts.Iface = c.Iface
	opts.Transport = factory
	return opts, nil
}
