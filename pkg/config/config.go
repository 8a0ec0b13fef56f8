package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/modeld/modeld/pkg/telemetry"
)

// Environment variable overrides, applied after the file is parsed.
const (
	EnvFolder     = "MODELD_FOLDER"
	EnvMetadataDB = "MODELD_METADATA_DB"
	EnvLogLevel   = "MODELD_LOG_LEVEL"
)

// Config is the root service configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Metadata MetadataConfig `yaml:"metadata"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServiceConfig identifies the deployment.
type ServiceConfig struct {
	Name        string `yaml:"name" validate:"required"`
	Environment string `yaml:"environment" validate:"oneof=development staging production"`
}

// StorageConfig locates the on-disk model root.
type StorageConfig struct {
	// Folder is the root under which each instance gets a subfolder.
	Folder string `yaml:"folder" validate:"required"`
	// Watch enables filesystem-driven reconciliation of the root.
	Watch bool `yaml:"watch"`
}

// QueueConfig sizes the in-process worker pool.
type QueueConfig struct {
	Workers int `yaml:"workers" validate:"min=1,max=256"`
	Buffer  int `yaml:"buffer" validate:"min=1,max=65536"`
}

// MetadataConfig configures the catalog database.
type MetadataConfig struct {
	// Enabled controls whether the catalog is wired at all.
	Enabled bool `yaml:"enabled"`
	// Path is the SQLite database file.
	Path string `yaml:"path" validate:"required_if=Enabled true"`
}

// LoggingConfig mirrors the telemetry logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"oneof=console json"`
	Output string `yaml:"output"`
}

// MetricsConfig mirrors the telemetry metrics settings.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
}

// TracingConfig mirrors the telemetry tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"min=0,max=1"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "modeld",
			Environment: "development",
		},
		Storage: StorageConfig{
			Folder: "./models",
			Watch:  true,
		},
		Queue: QueueConfig{
			Workers: 4,
			Buffer:  64,
		},
		Metadata: MetadataConfig{
			Enabled: true,
			Path:    "./modeld.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			SamplingRate: 1.0,
			Insecure:     true,
		},
	}
}

// Load reads the configuration from path, falling back to defaults for
// unset fields, then applies environment overrides and validates. An
// empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvFolder); v != "" {
		c.Storage.Folder = v
	}
	if v := os.Getenv(EnvMetadataDB); v != "" {
		c.Metadata.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Telemetry maps the flat service settings onto a telemetry config.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = c.Service.Name
	tcfg.ServiceVersion = version
	tcfg.Environment = c.Service.Environment

	tcfg.Logging.Level = c.Logging.Level
	tcfg.Logging.Format = c.Logging.Format
	if c.Logging.Output != "" {
		tcfg.Logging.Output = c.Logging.Output
	}

	tcfg.Metrics.Enabled = c.Metrics.Enabled
	if c.Metrics.ListenAddress != "" {
		tcfg.Metrics.ListenAddress = c.Metrics.ListenAddress
	}
	if c.Metrics.Path != "" {
		tcfg.Metrics.Path = c.Metrics.Path
	}

	tcfg.Tracing.Enabled = c.Tracing.Enabled
	if c.Tracing.Exporter != "" {
		tcfg.Tracing.Exporter = c.Tracing.Exporter
	}
	tcfg.Tracing.Endpoint = c.Tracing.Endpoint
	tcfg.Tracing.SamplingRate = c.Tracing.SamplingRate
	tcfg.Tracing.Insecure = c.Tracing.Insecure

	return tcfg
}
