package config

import "time"

// Config represents the complete tessera configuration file.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	State      StateConfig      `yaml:"state"`
	API        APIConfig        `yaml:"api,omitempty"`
	Controller ControllerConfig `yaml:"controller"`

	// Root is the whole document. The toolbox and processor sections are
	// read from it through the Node accessors rather than typed structs.
	Root *Node `yaml:"-"`
	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines run journal settings. An empty path disables the journal.
type StateConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
	// Tokens are additional bearer tokens limited to the listed scopes.
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken is a scoped bearer token.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// ControllerConfig defines run controller settings.
type ControllerConfig struct {
	CycleTime time.Duration  `yaml:"cycle_time"`
	Schedule  ScheduleConfig `yaml:"schedule,omitempty"`
}

// ScheduleConfig starts runs periodically while serving. A zero Every
// disables it.
type ScheduleConfig struct {
	Every  time.Duration `yaml:"every"`
	Jitter time.Duration `yaml:"jitter"`
}

// ChecksumManifest represents the .checksums file format.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

const (
	// ToolboxKey holds processors, connections and the run queue.
	ToolboxKey = "toolbox"
	// ProcessorConfigKey holds one sub-tree per processor instance name.
	ProcessorConfigKey = "processor_config"
)

// DefaultCycleTime is the controller polling interval when none is configured.
const DefaultCycleTime = 500 * time.Millisecond

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "tessera",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8090",
		},
		Controller: ControllerConfig{
			CycleTime: DefaultCycleTime,
		},
	}
}

// Toolbox returns the toolbox section, or nil when absent.
func (c *Config) Toolbox() *Node {
	return c.Root.Sub(ToolboxKey)
}

// ProcessorConfig returns the per-instance processor section, or nil when absent.
func (c *Config) ProcessorConfig() *Node {
	return c.Root.Sub(ProcessorConfigKey)
}
