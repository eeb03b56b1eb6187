package web

import (
	"encoding/json"
	"os"

	"github.com/atlasgrowth23/lapermits/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Server   config.ServerConfig `json:"server"`
	Auth     AuthConfig          `json:"auth"`
	Features FeatureConfig       `json:"features"`
}

// AuthConfig contains API key settings
type AuthConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"api_key"`
}

// FeatureConfig contains feature toggles
type FeatureConfig struct {
	CuratedByDefault bool `json:"curated_by_default"`
	MetricsEnabled   bool `json:"metrics_enabled"`
}

// ConfigFrom derives the server configuration from the process config
func ConfigFrom(cfg config.Config) Config {
	return Config{
		Server: cfg.Server,
		Auth: AuthConfig{
			Enabled: cfg.Server.APIKey != "",
			APIKey:  cfg.Server.APIKey,
		},
		Features: FeatureConfig{
			MetricsEnabled: true,
		},
	}
}

// LoadConfig overlays a JSON file onto base
func LoadConfig(filename string, base Config) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}

	cfg := base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Auth.Enabled && cfg.Auth.APIKey == "" {
		cfg.Auth.Enabled = false
	}
	return cfg, nil
}
