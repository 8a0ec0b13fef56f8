package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default configuration is invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modeld.yaml")
	content := `
service:
  name: modeld-test
  environment: production
storage:
  folder: /srv/models
  watch: false
queue:
  workers: 8
  buffer: 128
metadata:
  enabled: true
  path: /srv/modeld.db
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Service.Name != "modeld-test" || cfg.Service.Environment != "production" {
		t.Errorf("unexpected service config: %+v", cfg.Service)
	}
	if cfg.Storage.Folder != "/srv/models" || cfg.Storage.Watch {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Queue.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Queue.Workers)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	// Unset sections keep their defaults.
	if cfg.Metrics.ListenAddress != ":9090" {
		t.Errorf("expected default metrics address, got %s", cfg.Metrics.ListenAddress)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvFolder, "/env/models")
	t.Setenv(EnvMetadataDB, "/env/catalog.db")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Storage.Folder != "/env/models" {
		t.Errorf("expected env folder override, got %s", cfg.Storage.Folder)
	}
	if cfg.Metadata.Path != "/env/catalog.db" {
		t.Errorf("expected env metadata override, got %s", cfg.Metadata.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env level override, got %s", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid log level to fail validation")
	}

	cfg = Default()
	cfg.Queue.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero workers to fail validation")
	}

	cfg = Default()
	cfg.Tracing.SamplingRate = 2
	if err := cfg.Validate(); err == nil {
		t.Error("expected out-of-range sampling rate to fail validation")
	}
}

func TestTelemetryMapping(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "collector:4317"

	tcfg := cfg.Telemetry("1.2.3")
	if tcfg.ServiceVersion != "1.2.3" {
		t.Errorf("expected version to carry over, got %s", tcfg.ServiceVersion)
	}
	if tcfg.Logging.Level != "debug" || tcfg.Metrics.Enabled || !tcfg.Tracing.Enabled {
		t.Errorf("unexpected telemetry mapping: %+v", tcfg)
	}
	if tcfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("expected endpoint to carry over, got %s", tcfg.Tracing.Endpoint)
	}
}
