package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Logging  LoggingConfig
}

type DatabaseConfig struct {
	URL string
}

type ImportConfig struct {
	Dir          string
	State        string
	DocType      string
	ModelVersion string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads configuration from an optional config.yaml plus the
// environment. DATABASE_URL keeps working as-is because the migration has
// always taken its connection string from that variable.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("REGFLAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("database.url", "DATABASE_URL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("import.dir", ".")
	viper.SetDefault("import.state", "NY")
	viper.SetDefault("import.docType", "regulation")
	viper.SetDefault("import.modelVersion", "gpt-5-nano-2025-08-07")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.outputPath", "stdout")
}
