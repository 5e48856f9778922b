package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// SaveUpdates merges the given keys into the config file at path, creating
// the file when missing. Saved values take effect on the next restart; the
// running process keeps its loaded configuration.
func SaveUpdates(path string, updates map[string]any) error {
	v := viper.New()
	v.SetConfigFile(path)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config: %w", err)
		}
	}

	for k, val := range updates {
		v.Set(k, val)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("unable to write config: %w", err)
	}
	return nil
}
