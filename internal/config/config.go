// Package config loads the CLI-independent run configuration for an
// export or import: pool concurrency, paging/batching defaults, retry
// bounds, and artifact paths. Grounded on the teacher's configuration
// layer (internal/config/yaml_config.go + the file it replaces),
// generalized from bd's project-local config.yaml to a migration run's
// equivalent settings, and reading github.com/spf13/viper the same
// way — a scoped viper.New() instance rather than the package-global
// singleton, so a CLI invocation and a test can each load
// independently without interfering with each other.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config carries settings threaded into exporter.Options/importer.Options
// at startup.
type Config struct {
	PoolDOP        int
	PageSize       int
	BatchSize      int
	MaxRetries     int
	RequestTimeout time.Duration
	ManifestPath   string
	ReportPath     string
}

const envPrefix = "XRM"

// Defaults mirror the zero-value fallbacks exporter.Options/importer.Options
// already apply; Load exists so a deployment can override them without
// touching those structs directly.
const (
	DefaultPoolDOP            = 4
	DefaultPageSize           = 5000
	DefaultBatchSize          = 200
	DefaultMaxRetries         = 5
	DefaultRequestTimeoutSecs = 60
)

// Load reads run configuration from an optional YAML file (cfgFile, pass
// "" to skip) and XRM_-prefixed environment variables. Environment
// variables take precedence over the file, which takes precedence over
// the defaults above.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("pool_dop", DefaultPoolDOP)
	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("request_timeout_seconds", DefaultRequestTimeoutSecs)
	v.SetDefault("manifest_path", "")
	v.SetDefault("report_path", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	}

	return &Config{
		PoolDOP:        v.GetInt("pool_dop"),
		PageSize:       v.GetInt("page_size"),
		BatchSize:      v.GetInt("batch_size"),
		MaxRetries:     v.GetInt("max_retries"),
		RequestTimeout: time.Duration(v.GetInt("request_timeout_seconds")) * time.Second,
		ManifestPath:   v.GetString("manifest_path"),
		ReportPath:     v.GetString("report_path"),
	}, nil
}
