package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFilename)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
service:
  name: demo
toolbox:
  processors:
    - type: printer
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "demo" {
					t.Error("service.name not parsed")
				}
				if cfg.Service.LogLevel != "info" || cfg.Service.LogFormat != "json" {
					t.Error("service defaults not applied")
				}
				if cfg.Controller.CycleTime != DefaultCycleTime {
					t.Errorf("cycle_time = %v, want %v", cfg.Controller.CycleTime, DefaultCycleTime)
				}
				if cfg.Toolbox() == nil {
					t.Fatal("toolbox section missing")
				}
				if cfg.ProcessorConfig() != nil {
					t.Error("processor_config should be absent")
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
state:
  path: ${RUNS_DB}
api:
  enabled: true
  api_key: ${TESSERA_TEST_KEY}
processor_config:
  source:
    endpoint: ${TESSERA_TEST_ENDPOINT}
`,
			env: map[string]string{
				"RUNS_DB":               "/tmp/runs.db",
				"TESSERA_TEST_KEY":      "secret123",
				"TESSERA_TEST_ENDPOINT": "https://api.example.com",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.State.Path != "/tmp/runs.db" {
					t.Errorf("state.path = %q", cfg.State.Path)
				}
				if cfg.API.APIKey != "secret123" {
					t.Errorf("api.api_key = %q", cfg.API.APIKey)
				}
				v, err := cfg.GetPath("source:endpoint")
				if err != nil {
					t.Fatalf("GetPath: %v", err)
				}
				if v != "https://api.example.com" {
					t.Errorf("endpoint = %v", v)
				}
			},
		},
		{
			name: "cycle time override",
			yaml: `
controller:
  cycle_time: 50ms
service:
  log_level: DEBUG
  log_format: text
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Controller.CycleTime != 50*time.Millisecond {
					t.Errorf("cycle_time = %v", cfg.Controller.CycleTime)
				}
				if cfg.Service.LogLevel != "debug" || cfg.Service.LogFormat != "text" {
					t.Errorf("service = %+v", cfg.Service)
				}
			},
		},
		{
			name: "run schedule",
			yaml: "controller:\n  schedule:\n    every: 5m\n    jitter: 10s\n",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Controller.Schedule.Every != 5*time.Minute || cfg.Controller.Schedule.Jitter != 10*time.Second {
					t.Errorf("schedule = %+v", cfg.Controller.Schedule)
				}
			},
		},
		{
			name:    "jitter without interval",
			yaml:    "controller:\n  schedule:\n    jitter: 10s\n",
			wantErr: "needs controller.schedule.every",
		},
		{
			name:    "unset api key env var",
			yaml:    "api:\n  enabled: true\n  api_key: ${TESSERA_UNSET_VAR_FOR_TEST}\n",
			wantErr: "TESSERA_UNSET_VAR_FOR_TEST",
		},
		{
			name:    "scoped token without scopes",
			yaml:    "api:\n  enabled: true\n  tokens:\n    - token: abc\n",
			wantErr: "at least one scope",
		},
		{
			name: "scoped tokens",
			yaml: "api:\n  enabled: true\n  tokens:\n    - token: abc\n      scopes: [run:ro]\n",
			checkFn: func(t *testing.T, cfg *Config) {
				if len(cfg.API.Tokens) != 1 || cfg.API.Tokens[0].Scopes[0] != "run:ro" {
					t.Errorf("tokens = %+v", cfg.API.Tokens)
				}
			},
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "log_level",
		},
		{
			name:    "toolbox must be a mapping",
			yaml:    "toolbox: [a, b]\n",
			wantErr: "toolbox must be a mapping",
		},
		{
			name:    "invalid yaml",
			yaml:    "service: [\n",
			wantErr: "parse yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, t.TempDir(), tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if cfg.SourcePath != path {
				t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: from-dir\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Service.Name != "from-dir" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v", err)
	}
}
