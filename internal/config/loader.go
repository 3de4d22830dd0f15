package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/clibridge/internal/storage"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates a configuration file.
// When a .checksums manifest sits next to the file, the config file and the
// spec file it names must match their recorded hashes.
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// LoadUnverified is Load without the checksum verification. It is meant for
// re-locking after intentional edits.
func LoadUnverified(configPath string) (*Config, error) {
	return load(configPath, false)
}

func load(configPath string, verify bool) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg = applyConfigDefaults(cfg)
	resolvePaths(cfg)

	if verify {
		if err := verifyLockedFiles(cfg); err != nil {
			return nil, err
		}
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", absPath, err)
	}
	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Dir returns the directory relative paths are resolved against.
func (c *Config) Dir() string {
	if c.Path == "" {
		return "."
	}
	return filepath.Dir(c.Path)
}

// applyConfigDefaults restores defaults for settings explicitly set empty.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)

	if cfg.Program.Timeout == 0 {
		cfg.Program.Timeout = defaults.Program.Timeout
	}
	if cfg.Program.KillGrace == 0 {
		cfg.Program.KillGrace = defaults.Program.KillGrace
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	return cfg
}

func resolvePaths(cfg *Config) {
	dir := cfg.Dir()
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	cfg.Program.Spec = abs(cfg.Program.Spec)
	cfg.Program.WorkingDir = abs(cfg.Program.WorkingDir)
	if strings.ContainsRune(cfg.Program.Executable, filepath.Separator) || strings.Contains(cfg.Program.Executable, "/") {
		cfg.Program.Executable = abs(filepath.FromSlash(cfg.Program.Executable))
	}
	if cfg.State.Path != storage.MemoryPath {
		cfg.State.Path = abs(cfg.State.Path)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validate rejects it where a value is required.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Program.Executable == "" {
		return fmt.Errorf("program.executable is required")
	}
	if cfg.Program.Spec == "" {
		return fmt.Errorf("program.spec is required")
	}
	if cfg.Program.Timeout < 0 {
		return fmt.Errorf("program.timeout must not be negative")
	}
	if cfg.Program.KillGrace < 0 {
		return fmt.Errorf("program.kill_grace must not be negative")
	}
	for k, v := range cfg.Program.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return fmt.Errorf("program.env: invalid variable name %q", k)
		}
		if err := unresolved("program.env."+k, v); err != nil {
			return err
		}
	}
	for _, code := range cfg.Program.SuccessCodes {
		if code <= 0 || code > 255 {
			return fmt.Errorf("program.success_codes: %d is not a non-zero exit status", code)
		}
	}

	if cfg.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			return fmt.Errorf("api.listen: %w", err)
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth: api_key or tokens required when api is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if err := unresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	return nil
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}
