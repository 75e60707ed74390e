package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultFilename is looked up when Load is given a directory.
const DefaultFilename = "config.yaml"

// Load reads, verifies and parses a configuration file.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if err := VerifyIntegrity(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// ResolvePath returns the absolute config file path. A directory resolves
// to the config.yaml inside it.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFilename)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", DefaultFilename, absPath)
		}
	}
	return absPath, nil
}

// Parse decodes a configuration document, applying defaults and
// environment interpolation, and validates it.
func Parse(data []byte) (*Config, error) {
	root, err := ParseNode([]byte(interpolateEnv(string(data))))
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := root.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Root = root
	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Controller.CycleTime == 0 {
		cfg.Controller.CycleTime = defaults.Controller.CycleTime
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	cfg.Service.LogFormat = strings.ToLower(cfg.Service.LogFormat)
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Controller.CycleTime < 0 {
		return fmt.Errorf("controller.cycle_time must not be negative")
	}
	if sched := cfg.Controller.Schedule; sched.Every < 0 || sched.Jitter < 0 {
		return fmt.Errorf("controller.schedule durations must not be negative")
	} else if sched.Every == 0 && sched.Jitter > 0 {
		return fmt.Errorf("controller.schedule.jitter needs controller.schedule.every")
	}
	if cfg.State.Retention < 0 {
		return fmt.Errorf("state.retention must not be negative")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey); len(matches) > 1 {
			return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
		}
		for i, tok := range cfg.API.Tokens {
			if strings.TrimSpace(tok.Token) == "" {
				return fmt.Errorf("api.tokens[%d]: token is empty", i)
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.tokens[%d]: at least one scope is required", i)
			}
		}
	}

	if tb := cfg.Toolbox(); tb != nil && !tb.IsMap() {
		return fmt.Errorf("%s must be a mapping", ToolboxKey)
	}
	if pc := cfg.ProcessorConfig(); pc != nil && !pc.IsMap() {
		return fmt.Errorf("%s must be a mapping", ProcessorConfigKey)
	}
	return nil
}
