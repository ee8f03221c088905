package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
upstream:
  websocket_url: "ws://backend:8000/ws/devices"
  base_url: "http://backend:8000"
  reconnect_delay_ms: 5000
api:
  host: "127.0.0.1"
  port: 9090
journal:
  max_entries: 200
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upstream.WebSocketURL != "ws://backend:8000/ws/devices" {
		t.Errorf("Upstream.WebSocketURL = %q, want %q", cfg.Upstream.WebSocketURL, "ws://backend:8000/ws/devices")
	}
	if cfg.Upstream.ReconnectDelayMS != 5000 {
		t.Errorf("Upstream.ReconnectDelayMS = %d, want 5000", cfg.Upstream.ReconnectDelayMS)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Journal.MaxEntries != 200 {
		t.Errorf("Journal.MaxEntries = %d, want 200", cfg.Journal.MaxEntries)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
upstream:
  websocket_url: "ws://backend:8000/ws/devices"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upstream.ReconnectDelayMS != 3000 {
		t.Errorf("default ReconnectDelayMS = %d, want 3000", cfg.Upstream.ReconnectDelayMS)
	}
	if cfg.Journal.MaxEntries != 500 {
		t.Errorf("default Journal.MaxEntries = %d, want 500", cfg.Journal.MaxEntries)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	content := `
upstream:
  websocket_url: "ws://backend:8000/ws/devices"
`
	t.Setenv("POWERMIRROR_API_PORT", "7070")
	t.Setenv("POWERMIRROR_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 7070 {
		t.Errorf("API.Port = %d, want 7070 from env", cfg.API.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q from env", cfg.Logging.Level, "debug")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing websocket url",
			mutate:  func(c *Config) { c.Upstream.WebSocketURL = "" },
			wantErr: true,
		},
		{
			name:    "websocket url wrong scheme",
			mutate:  func(c *Config) { c.Upstream.WebSocketURL = "http://backend:8000/ws" },
			wantErr: true,
		},
		{
			name:    "zero reconnect delay",
			mutate:  func(c *Config) { c.Upstream.ReconnectDelayMS = 0 },
			wantErr: true,
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without topic",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Topic = ""
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = ""
			},
			wantErr: true,
		},
		{
			name:    "zero journal entries",
			mutate:  func(c *Config) { c.Journal.MaxEntries = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
