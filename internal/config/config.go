// Package config loads blemon settings from an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/blemon/internal/connection"
	goble "github.com/srg/blemon/internal/device/go-ble"
	"github.com/srg/blemon/internal/notify"
	"github.com/srg/blemon/internal/permission"
	"github.com/srg/blemon/internal/scanner"
)

// Permission modes
const (
	PermissionAuto    = "auto"    // capability check on linux, granted elsewhere
	PermissionGranted = "granted" // never ask
	PermissionPrompt  = "prompt"  // ask the user once per run
)

type AdapterConfig struct {
	HCIDevice   int           `yaml:"hci_device"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type ConnectConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	Policy    string `yaml:"policy" default:"latest"`
	QueueSize uint32 `yaml:"queue_size" default:"16"`
}

type PermissionConfig struct {
	Mode string `yaml:"mode" default:"auto"`
}

// PlatformConfig overrides the detected host platform.
type PlatformConfig struct {
	OS      string `yaml:"os"`
	Version int    `yaml:"version"`
}

type ScanConfig struct {
	Services  []string `yaml:"services"`
	AllowList []string `yaml:"allow"`
	BlockList []string `yaml:"block"`
}

// Config is the merged configuration: struct defaults, then the file, then flags.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	LogFile    string           `yaml:"log_file"`
	Adapter    AdapterConfig    `yaml:"adapter"`
	Connect    ConnectConfig    `yaml:"connect"`
	Notify     NotifyConfig     `yaml:"notify"`
	Permission PermissionConfig `yaml:"permission"`
	Platform   PlatformConfig   `yaml:"platform"`
	Scan       ScanConfig       `yaml:"scan"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns ~/.config/blemon/config.yaml, or "" when the user config
// directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "blemon", "config.yaml")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

// Validate rejects unknown enum values and negative numbers.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	policy, err := notify.ParsePolicy(c.Notify.Policy)
	if err != nil {
		return err
	}
	if policy == notify.PolicyQueue && c.Notify.QueueSize == 0 {
		return fmt.Errorf("notify.queue_size must be > 0 for the %q policy", notify.PolicyQueue)
	}
	switch c.Permission.Mode {
	case PermissionAuto, PermissionGranted, PermissionPrompt:
	default:
		return fmt.Errorf("invalid permission mode: %s (must be %s, %s, or %s)",
			c.Permission.Mode, PermissionAuto, PermissionGranted, PermissionPrompt)
	}
	if c.Adapter.HCIDevice < 0 {
		return fmt.Errorf("adapter.hci_device must be >= 0")
	}
	if c.Adapter.DialTimeout < 0 || c.Connect.Timeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.Platform.Version < 0 {
		return fmt.Errorf("platform.version must be >= 0")
	}
	return nil
}

func parseLevel(s string) (logrus.Level, error) {
	switch s {
	case "":
		return logrus.PanicLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// NewLogger builds the logger described by LogLevel and LogFile. An empty level is
// silent. The returned closer releases the log file and is never nil.
func (c *Config) NewLogger(fallback io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	var closer io.Closer = nopCloser{}
	switch {
	case c.LogFile != "":
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
		closer = f
	case fallback != nil:
		logger.SetOutput(fallback)
	}
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// HostPlatform returns the configured platform, falling back to the running OS.
func (c *Config) HostPlatform() permission.Platform {
	if c.Platform.OS == "" {
		return permission.HostPlatform()
	}
	return permission.Platform{OS: c.Platform.OS, Version: c.Platform.Version}
}

func (c *Config) ProviderOptions() goble.Options {
	return goble.Options{HCIDevice: c.Adapter.HCIDevice, DialTimeout: c.Adapter.DialTimeout}
}

func (c *Config) ConnectionOptions() *connection.Options {
	return &connection.Options{ConnectTimeout: c.Connect.Timeout}
}

func (c *Config) NotifyOptions() *notify.Options {
	policy, _ := notify.ParsePolicy(c.Notify.Policy)
	return &notify.Options{Policy: policy, QueueSize: c.Notify.QueueSize}
}

func (c *Config) ScannerOptions() *scanner.Options {
	return &scanner.Options{
		ServiceUUIDs: c.Scan.Services,
		AllowList:    c.Scan.AllowList,
		BlockList:    c.Scan.BlockList,
	}
}

// Checker selects the permission checker for the configured mode. prompter backs
// the interactive modes and may be nil, in which case requests are denied.
func (c *Config) Checker(prompter permission.Prompter) permission.Checker {
	switch c.Permission.Mode {
	case PermissionGranted:
		return &permission.StaticChecker{Granted: true}
	case PermissionPrompt:
		return permission.NewPromptChecker(prompter)
	default:
		if c.HostPlatform().OS == "linux" {
			return permission.NewCapabilityChecker(prompter)
		}
		return &permission.StaticChecker{Granted: true}
	}
}
