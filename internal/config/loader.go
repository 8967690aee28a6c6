package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"epingest/internal/support/exception"
	"epingest/internal/support/logger"
)

// Load reads configuration from the YAML file at path, after loading a .env
// file (if present) so that ${VAR} placeholders in the YAML can reference it.
// YAML values overlay the defaults from NewConfig.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.Newf(stage, err, "read config file %s", path)
	}
	return Parse(raw)
}

// Parse expands environment placeholders in raw YAML and unmarshals it over
// the defaults.
func Parse(raw []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(raw))

	cfg := NewConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, exception.New(stage, "failed to unmarshal config", err)
	}

	logger.SetLogLevel(cfg.System.Logging.Level)
	return cfg, nil
}
