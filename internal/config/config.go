package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProjectFile is the per-directory override file name.
const ProjectFile = ".sandboxconfig"

// Config holds all configurable sandbox settings.
type Config struct {
	Model          string   `json:"model"`
	APIKeyEnv      string   `json:"api_key_env"` // environment variable holding the key
	Operator       string   `json:"operator"`
	Listen         string   `json:"listen"`
	MirrorDir      string   `json:"mirror_dir"` // empty disables the on-disk preview mirror
	LogLevel       string   `json:"log_level"`
	TemplatePack   string   `json:"template_pack"`
	IgnorePatterns []string `json:"ignore_patterns"`
	DefaultFormat  string   `json:"default_format"` // "markdown" | "json"
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		Model:          "gemini-2.5-flash",
		APIKeyEnv:      "API_KEY",
		Operator:       "system_operator",
		Listen:         "127.0.0.1:8080",
		LogLevel:       "info",
		DefaultFormat:  "markdown",
		IgnorePatterns: []string{},
	}
}

// GlobalPath is $XDG_CONFIG_HOME/sandbox/config.json, falling back to
// ~/.config/sandbox/config.json.
func GlobalPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "sandbox", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sandbox", "config.json"), nil
}

// LoadGlobal reads the global config file.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads the project config at path (ProjectFile when empty).
// Returns nil (no error) if the file is absent.
func LoadProject(path string) (*Config, error) {
	if path == "" {
		path = ProjectFile
	}
	return loadFile(path, false)
}

// Load merges the global config with the project config at projectPath.
func Load(projectPath string) (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject(projectPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.DefaultFormat = strings.ToLower(strings.TrimSpace(cfg.DefaultFormat))
	return cfg, cfg.Validate()
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer == nil {
			continue
		}
		override(&result.Model, layer.Model)
		override(&result.APIKeyEnv, layer.APIKeyEnv)
		override(&result.Operator, layer.Operator)
		override(&result.Listen, layer.Listen)
		override(&result.MirrorDir, layer.MirrorDir)
		override(&result.LogLevel, layer.LogLevel)
		override(&result.TemplatePack, layer.TemplatePack)
		override(&result.DefaultFormat, layer.DefaultFormat)
		if len(layer.IgnorePatterns) > 0 {
			result.IgnorePatterns = layer.IgnorePatterns
		}
	}
	return result
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the enumerated fields. Case is ignored.
func (c Config) Validate() error {
	switch strings.ToLower(c.DefaultFormat) {
	case "markdown", "json":
	default:
		return fmt.Errorf("default_format must be markdown or json, got %q", c.DefaultFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// APIKey reads the key from the configured environment variable.
func (c Config) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
