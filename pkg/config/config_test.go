package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "bluepy-helper", cfg.Helper)
	assert.Equal(t, transport.KindPipe, cfg.Transport)
	assert.EqualValues(t, 64, cfg.StderrLines)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.DisconnectTimeout)
	assert.Equal(t, time.Second, cfg.NotificationTimeout)
	assert.Equal(t, 23, cfg.MTU)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.logLevel, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "blip.yaml", `
log_level: debug
helper: sudo /usr/lib/bluepy-helper
transport: pty
iface: 1
connect_timeout: 5s
output_format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "sudo /usr/lib/bluepy-helper", cfg.Helper)
	assert.Equal(t, transport.KindPTY, cfg.Transport)
	assert.Equal(t, 1, cfg.Iface)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout, "unset keys keep their defaults")
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"bad yaml", "log_level: [", "failed to parse"},
		{"bad level", "log_level: loud", "failed to parse"},
		{"bad transport", "transport: serial", `unknown transport "serial"`},
		{"bad format", "output_format: xml", `unknown output format "xml"`},
		{"bad mtu", "mtu: 1000", "mtu 1000 out of range"},
		{"bad helper", `helper: "unterminated`, "invalid helper command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "blip.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_ConnectOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Iface = 2
	cfg.MTU = 185

	opts, err := cfg.ConnectOptions("aa:bb:cc:dd:ee:ff", btle.AddrTypeRandom, nil)
	require.NoError(t, err)

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", opts.Address)
	assert.Equal(t, btle.AddrTypeRandom, opts.AddrType)
	assert.Equal(t, 2, opts.Iface)
	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 185, opts.MTU)
	assert.NotNil(t, opts.Transport)
	assert.Equal(t, "Battery Level", opts.Names.Lookup(btle.UUIDFromInt(0x2a19)))

	opts, err = cfg.ConnectOptions("aa:bb:cc:dd:ee:ff", "", nil)
	require.NoError(t, err)
	assert.Equal(t, btle.AddrTypePublic, opts.AddrType)
}

func TestConfig_NamesFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NamesFile = writeFile(t, "uuids.json", `{"characteristic_UUIDs": [[10777, "battery_level", "Charge"]]}`)

	names, err := cfg.Names()
	require.NoError(t, err)
	assert.Equal(t, "Charge", names.Lookup(btle.UUIDFromInt(0x2a19)))
	assert.Equal(t, "Battery Service", names.Lookup(btle.UUIDFromInt(0x180f)))

	cfg.NamesFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = cfg.Names()
	assert.Error(t, err)
}

func TestConfig_ScannerOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Iface = 1

	opts, err := cfg.ScannerOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, opts.Iface)
	assert.NotNil(t, opts.Transport)

	cfg.Helper = ""
	_, err = cfg.ScannerOptions(nil)
	assert.Error(t, err)
}
