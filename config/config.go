// Package config loads LinguaFlow server configuration from YAML files
// with first-match discovery and environment fallbacks for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "linguaflow.yaml"
	homeConfigName    = "config.yaml"
)

// Config is the top-level server configuration file shape.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Provider  ProviderConfig  `yaml:"provider"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	CORSOrigin string `yaml:"cors_origin,omitempty"`
	MaxBody    int64  `yaml:"max_body,omitempty"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// ProviderConfig selects the LLM provider backing translation.
type ProviderConfig struct {
	Name   string `yaml:"name,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// SessionsConfig tunes server-side session housekeeping.
type SessionsConfig struct {
	// PurgeSchedule is a UTC cron expression for the expired-session sweep.
	PurgeSchedule string `yaml:"purge_schedule,omitempty"`
}

// TelemetryConfig holds OTLP trace export settings.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

// Default returns the built-in configuration used when no file is found.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Database: DatabaseConfig{
			Path: "linguaflow.db",
		},
		Provider: ProviderConfig{
			Name:  "openai",
			Model: "gpt-4o",
		},
		Sessions: SessionsConfig{
			PurgeSchedule: "0 * * * *",
		},
	}
}

// DiscoverPath resolves the config file location with first-match
// semantics: an explicit path, then ./linguaflow.yaml, then
// ~/.linguaflow/config.yaml.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, ".linguaflow", homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// If explicit path is set, not found is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads and validates configuration. When explicitPath is empty and
// no file is discovered, it returns the defaults. The provider API key
// falls back to LINGUAFLOW_API_KEY when unset in the file.
func Load(explicitPath string) (Config, error) {
	cfg := Default()

	path, found, err := DiscoverPath(explicitPath)
	if err != nil {
		return Config{}, err
	}
	if found {
		loaded, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = merge(cfg, loaded)
	}

	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("LINGUAFLOW_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads one YAML config file.
func LoadFile(path string) (Config, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Provider.Name) == "" {
		return errors.New("provider name is required")
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		return errors.New("provider model is required")
	}
	return nil
}

// ListenAddr formats the host:port pair for net.Listen.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// merge overlays non-zero fields from loaded onto base.
func merge(base, loaded Config) Config {
	out := base
	if loaded.Server.Host != "" {
		out.Server.Host = loaded.Server.Host
	}
	if loaded.Server.Port != 0 {
		out.Server.Port = loaded.Server.Port
	}
	if loaded.Server.CORSOrigin != "" {
		out.Server.CORSOrigin = loaded.Server.CORSOrigin
	}
	if loaded.Server.MaxBody != 0 {
		out.Server.MaxBody = loaded.Server.MaxBody
	}
	if loaded.Database.Path != "" {
		out.Database.Path = loaded.Database.Path
	}
	if loaded.Provider.Name != "" {
		out.Provider.Name = loaded.Provider.Name
	}
	if loaded.Provider.APIKey != "" {
		out.Provider.APIKey = loaded.Provider.APIKey
	}
	if loaded.Provider.Model != "" {
		out.Provider.Model = loaded.Provider.Model
	}
	if loaded.Sessions.PurgeSchedule != "" {
		out.Sessions.PurgeSchedule = loaded.Sessions.PurgeSchedule
	}
	if loaded.Telemetry.Endpoint != "" {
		out.Telemetry.Endpoint = loaded.Telemetry.Endpoint
	}
	if loaded.Telemetry.ServiceName != "" {
		out.Telemetry.ServiceName = loaded.Telemetry.ServiceName
	}
	if loaded.Telemetry.Insecure {
		out.Telemetry.Insecure = true
	}
	return out
}
