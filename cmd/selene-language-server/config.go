package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jackTabsCode/selene-language-server/langserver"
	"github.com/jackTabsCode/selene-language-server/selene"
	"github.com/jackTabsCode/selene-language-server/telemetry"
)

const (
	// DefaultConfigFileName is looked up as selene-language-server.yaml.
	DefaultConfigFileName = "selene-language-server"
	envPrefix             = "SELENE_LS"
)

// Config holds all configuration for the language server.
// Priority: CLI flags > env vars > config file > defaults
type Config struct {
	Linter    LinterConfig    `mapstructure:"linter"`
	QuickFix  QuickFixConfig  `mapstructure:"quickfix"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LinterConfig controls how selene is run.
type LinterConfig struct {
	// Path is the selene executable, resolved through PATH when bare.
	Path string `mapstructure:"path"`

	// Delivery is how buffers reach selene: stdin or file.
	Delivery string `mapstructure:"delivery"`

	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`

	// TempDir holds buffers for file delivery (default: OS temp dir)
	TempDir string `mapstructure:"temp_dir"`

	// DisplayStyle is passed as --display-style; newer selene builds also
	// speak Json2.
	DisplayStyle string `mapstructure:"display_style"`
}

type QuickFixConfig struct {
	WholeFile bool `mapstructure:"whole_file"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // stderr when empty
}

// TelemetryConfig selects where lint spans and metrics go. The stdout
// exporters write to the log sink.
type TelemetryConfig struct {
	TraceExporter  string `mapstructure:"trace_exporter"`  // none, stdout, otlp
	MetricExporter string `mapstructure:"metric_exporter"` // none, stdout
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
}

// LoadConfig reads configuration from the config file, the environment and
// any flags already bound to v.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, DefaultConfigFileName))
		}
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("linter.path", selene.DefaultPath)
	v.SetDefault("linter.delivery", string(selene.DeliveryStdin))
	v.SetDefault("linter.timeout", selene.DefaultTimeout)
	v.SetDefault("linter.max_concurrent", selene.DefaultMaxConcurrent)
	v.SetDefault("linter.temp_dir", "")
	v.SetDefault("linter.display_style", selene.DefaultDisplayStyle)

	v.SetDefault("quickfix.whole_file", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("telemetry.trace_exporter", telemetry.ExporterNone)
	v.SetDefault("telemetry.metric_exporter", telemetry.ExporterNone)
	v.SetDefault("telemetry.otlp_endpoint", telemetry.DefaultOTLPEndpoint)
	v.SetDefault("telemetry.otlp_insecure", true)
}

// Validate checks the configuration for values selene cannot run with.
func (c *Config) Validate() error {
	if c.Linter.Path == "" {
		return errors.New("linter.path must not be empty")
	}
	if _, err := selene.ParseDelivery(c.Linter.Delivery); err != nil {
		return fmt.Errorf("linter.delivery: %w", err)
	}
	if c.Linter.Timeout <= 0 {
		return fmt.Errorf("linter.timeout must be positive, got %s", c.Linter.Timeout)
	}
	if c.Linter.MaxConcurrent <= 0 {
		return fmt.Errorf("linter.max_concurrent must be positive, got %d", c.Linter.MaxConcurrent)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if err := c.telemetryConfig().Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

func (c *Config) runnerConfig() selene.Config {
	// Validate has already accepted the delivery.
	delivery, _ := selene.ParseDelivery(c.Linter.Delivery)
	return selene.Config{
		Path:          c.Linter.Path,
		Delivery:      delivery,
		Timeout:       c.Linter.Timeout,
		MaxConcurrent: c.Linter.MaxConcurrent,
		TempDir:       c.Linter.TempDir,
		DisplayStyle:  c.Linter.DisplayStyle,
	}
}

func (c *Config) serverOptions() langserver.Options {
	return langserver.Options{WholeFileQuickFix: c.QuickFix.WholeFile}
}

func (c *Config) telemetryConfig() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.TraceExporter = strings.ToLower(c.Telemetry.TraceExporter)
	cfg.MetricExporter = strings.ToLower(c.Telemetry.MetricExporter)
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	return cfg
}
