package utils

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// LoadConfig makes values from an optional .env file in path visible to viper,
// alongside the process environment.
func LoadConfig(path string) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// CreateFolder creates every given directory, including parents.
func CreateFolder(folderPath ...string) error {
	for _, folder := range folderPath {
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return fmt.Errorf("create folder %s: %w", folder, err)
		}
	}
	return nil
}
