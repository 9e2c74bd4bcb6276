package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig is the subset of a migrate.yaml that needs to be read
// directly from disk rather than through a viper instance: bootstrap
// settings a CLI invocation needs before a full Load has a chance to
// run, such as which target environment profile a bare `migrate
// import` should assume.
//
// Adapted from the teacher's LocalConfig/LoadLocalConfig split between
// bootstrap (file) and runtime (env) settings — here renamed to the
// migration engine's own bootstrap fields.
type FileConfig struct {
	Environment string `yaml:"environment"`
	BundlePath  string `yaml:"bundle-path"`
	NoManifest  bool   `yaml:"no-manifest"`
}

// LoadFileConfig reads migrate.yaml directly from dir, bypassing
// viper. Returns an empty FileConfig (not nil) if the file doesn't
// exist or can't be parsed — an optional bootstrap file never blocks a
// run.
func LoadFileConfig(dir string) *FileConfig {
	path := filepath.Join(dir, "migrate.yaml")
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from a caller-supplied directory
	if err != nil {
		return &FileConfig{}
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &FileConfig{}
	}
	return &cfg
}

// LoadFileConfigWithEnv reads migrate.yaml and applies environment
// variable overrides, env taking precedence over the file.
//
// Supported environment variables:
//   - XRM_ENVIRONMENT: overrides Environment
func LoadFileConfigWithEnv(dir string) *FileConfig {
	cfg := LoadFileConfig(dir)
	if env := os.Getenv("XRM_ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}
	return cfg
}
