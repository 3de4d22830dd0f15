package config

import "time"

// Config represents the complete clibridge configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Program ProgramConfig `yaml:"program"`
	State   StateConfig   `yaml:"state"`
	History HistoryConfig `yaml:"history"`
	API     APIConfig     `yaml:"api,omitempty"`

	// Path is the absolute path of the loaded file. Relative paths in the
	// file are resolved against its directory.
	Path string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// ProgramConfig describes the wrapped executable and its OpenCLI document.
type ProgramConfig struct {
	// Executable is a program name looked up in PATH, or a path. Paths
	// containing a separator are resolved against the config directory.
	Executable string            `yaml:"executable"`
	Spec       string            `yaml:"spec"`
	WorkingDir string            `yaml:"working_dir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Timeout    time.Duration     `yaml:"timeout"`
	KillGrace  time.Duration     `yaml:"kill_grace"`

	// SuccessCodes lists non-zero exit codes reported as success.
	SuccessCodes []int `yaml:"success_codes,omitempty"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig controls the invocation log.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Defaults returns a Config with the documented defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "clibridge",
			LogLevel: "info",
		},
		Program: ProgramConfig{
			Timeout:   30 * time.Second,
			KillGrace: 5 * time.Second,
		},
		State: StateConfig{
			Path: "./data/clibridge.db",
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
