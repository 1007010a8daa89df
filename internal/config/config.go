package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Connection kinds for a server configuration.
const (
	ConnectionLocal = "local"
	ConnectionSSH   = "ssh"
	ConnectionHTTP  = "http"
)

// Queue systems a server may submit jobs through.
const (
	QueueBasic = "basic"
	QueuePBS   = "pbs"
	QueueSGE   = "sge"
	QueueSlurm = "slurm"
)

// Duration is a wrapper around time.Duration that can be marshaled to/from JSON
type Duration time.Duration

// MarshalJSON implements json.Marshaler interface
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler interface
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ServerConfig is the named attribute set of one remote execution server.
// It is a plain value; name uniqueness is enforced by the registry, not here.
type ServerConfig struct {
	Name           string            `json:"name" yaml:"name" mapstructure:"name"`
	Connection     string            `json:"connection" yaml:"connection" mapstructure:"connection"` // local, ssh, http
	Host           string            `json:"host,omitempty" yaml:"host" mapstructure:"host"`
	Port           int               `json:"port,omitempty" yaml:"port" mapstructure:"port"`
	Username       string            `json:"username,omitempty" yaml:"username" mapstructure:"username"`
	Authentication string            `json:"authentication,omitempty" yaml:"authentication" mapstructure:"authentication"` // password, public_key, agent
	WorkingDir     string            `json:"working_dir,omitempty" yaml:"working_dir" mapstructure:"working_dir"`
	Queue          string            `json:"queue,omitempty" yaml:"queue" mapstructure:"queue"` // basic, pbs, sge, slurm
	SubmitCommand  string            `json:"submit_command,omitempty" yaml:"submit_command" mapstructure:"submit_command"`
	QueryCommand   string            `json:"query_command,omitempty" yaml:"query_command" mapstructure:"query_command"`
	KillCommand    string            `json:"kill_command,omitempty" yaml:"kill_command" mapstructure:"kill_command"`
	Env            map[string]string `json:"env,omitempty" yaml:"env" mapstructure:"env"`
	UpdateInterval Duration          `json:"update_interval,omitempty" yaml:"update_interval" mapstructure:"update_interval"`
	Created        time.Time         `json:"created,omitempty" yaml:"-" mapstructure:"created"`
}

// IsLocal reports whether the server runs jobs on the local host.
func (s *ServerConfig) IsLocal() bool {
	return s.Connection == "" || s.Connection == ConnectionLocal
}

// Address returns the host:port pair for remote connections.
func (s *ServerConfig) Address() string {
	if s.Port <= 0 {
		return s.Host
	}
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate normalizes a server configuration in place.
func (s *ServerConfig) Validate() error {
	if s.Connection == "" {
		s.Connection = ConnectionLocal
	}
	switch s.Connection {
	case ConnectionLocal, ConnectionSSH, ConnectionHTTP:
	default:
		return fmt.Errorf("invalid connection kind: %s (must be one of: local, ssh, http)", s.Connection)
	}
	if s.Queue == "" {
		s.Queue = QueueBasic
	}
	if s.Connection == ConnectionSSH && s.Port <= 0 {
		s.Port = 22
	}
	return nil
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log-dir"` // Custom log directory
	MaxSize       int    `json:"max_size" mapstructure:"max-size"`         // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"`   // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max-age"`           // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// Config represents the main configuration structure
type Config struct {
	DataDir    string `json:"data_dir" mapstructure:"data-dir"`
	ServersDir string `json:"servers_dir" mapstructure:"servers-dir"`

	// Watch the servers directory for configuration files dropped in at runtime
	WatchServersDir bool `json:"watch_servers_dir" mapstructure:"watch-servers-dir"`

	// Timeout applied when opening server connections
	ConnectTimeout Duration `json:"connect_timeout" mapstructure:"connect-timeout"`

	// Logging configuration
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`
}

// DefaultServerConfig returns the built-in fallback server configuration.
// The registry appends it when no other load source yields an entry.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Name:       "local",
		Connection: ConnectionLocal,
		Queue:      QueueBasic,
		WorkingDir: "~/",
		Created:    time.Now(),
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:         "", // Will be set to ~/.execd by the caller
		ServersDir:      "",
		WatchServersDir: false,
		ConnectTimeout:  Duration(30 * time.Second),
		Logging: &LogConfig{
			Level:         "info",
			EnableFile:    false,
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10, // 10MB
			MaxBackups:    5,  // 5 backup files
			MaxAge:        30, // 30 days
			Compress:      true,
			JSONFormat:    false,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ConnectTimeout.Duration() <= 0 {
		c.ConnectTimeout = Duration(30 * time.Second)
	}
	if c.Logging == nil {
		c.Logging = DefaultConfig().Logging
	}
	if c.Logging.Filename == "" {
		c.Logging.Filename = "main.log"
	}
	return nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes configuration to a JSON file
func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
