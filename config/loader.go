package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Loader reads configuration from a JSON file with DOCROOM_* environment
// overrides.
type Loader struct {
	configPath string
}

func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load returns the file's configuration merged over defaults, or plain
// defaults when the file does not exist.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(l.configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(l.configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("DOCROOM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
