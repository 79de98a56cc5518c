// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Rize    RizeConfig    `toml:"rize"`
	Exist   ExistConfig   `toml:"exist"`
	Sync    SyncConfig    `toml:"sync"`
	Journal JournalConfig `toml:"journal"`
	Metrics MetricsConfig `toml:"metrics"`
}

// RizeConfig maps source API settings.
type RizeConfig struct {
	Endpoint *string `toml:"endpoint"`
}

// ExistConfig maps destination API settings.
type ExistConfig struct {
	BaseURL  *string `toml:"base-url"`
	TokenURL *string `toml:"token-url"`
	Group    *string `toml:"group"`
}

// SyncConfig maps sync behaviour settings.
type SyncConfig struct {
	Timezone *string        `toml:"timezone"`
	Timeout  *time.Duration `toml:"timeout"`
	Backfill *bool          `toml:"backfill"`
}

// JournalConfig maps the local sync journal settings.
type JournalConfig struct {
	Enabled *bool   `toml:"enabled"`
	Path    *string `toml:"path"`
}

// MetricsConfig maps the Prometheus textfile output.
type MetricsConfig struct {
	Textfile *string `toml:"textfile"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
