package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the chronokv host binary.
type Config struct {
	Store StoreConfig
	Log   LogConfig
}

// StoreConfig selects and locates the ordered-store backend.
type StoreConfig struct {
	Backend string // memory, bolt, badger
	Path    string // store file (bolt) or directory (badger)
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("CHRONOKV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("chronokv")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/chronokv/")
	v.AddConfigPath("$HOME/.chronokv/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Store: StoreConfig{
			Backend: v.GetString("store.backend"),
			Path:    v.GetString("store.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	switch cfg.Store.Backend {
	case "memory", "bolt", "badger":
	default:
		return nil, fmt.Errorf("invalid store.backend: %q", cfg.Store.Backend)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "bolt")
	v.SetDefault("store.path", "./data/chronokv.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
