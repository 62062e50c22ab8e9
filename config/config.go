// Package config loads gmedia settings from an optional YAML file and
// GMEDIA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. GMEDIA_S3_BUCKET.
const envPrefix = "GMEDIA"

// Config holds all gmedia configuration
type Config struct {
	Adapter  string         `mapstructure:"adapter"`
	Local    LocalConfig    `mapstructure:"local"`
	Bolt     BoltConfig     `mapstructure:"bolt"`
	S3       S3Config       `mapstructure:"s3"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// LocalConfig holds the local disk adapter configuration
type LocalConfig struct {
	Root string `mapstructure:"root"`
}

// BoltConfig holds the embedded database adapter configuration
type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// S3Config holds the S3 adapter configuration
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// GCSConfig holds the Google Cloud Storage adapter configuration
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
}

// TransferConfig tunes folder copies. Jobs are journaled under StateDir
// when it is set.
type TransferConfig struct {
	Workers  int    `mapstructure:"workers"`
	Verify   bool   `mapstructure:"verify"`
	StateDir string `mapstructure:"state_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configPath, when given, and applies environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("adapter", "")

	v.SetDefault("local.root", "")
	v.SetDefault("bolt.path", "")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.force_path_style", false)

	v.SetDefault("transfer.workers", 8)
	v.SetDefault("transfer.verify", false)
	v.SetDefault("transfer.state_dir", "")

	v.SetDefault("logger.level", "warn")
	v.SetDefault("logger.output_path", "stderr")
	v.SetDefault("logger.format", "console")
}

// bindEnvVars makes keys without a default visible to Unmarshal. The
// credential keys also fall back to the SDKs' own environment handling
// when left empty.
func bindEnvVars(v *viper.Viper) {
	for _, key := range []string{
		"s3.bucket", "s3.prefix", "s3.endpoint",
		"s3.access_key_id", "s3.secret_access_key",
		"gcs.bucket", "gcs.prefix", "gcs.endpoint", "gcs.credentials_file",
	} {
		v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Adapter {
	case "", "local", "bolt", "s3", "gcs":
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}

	if c.Transfer.Workers < 1 {
		return errors.New("transfer.workers must be at least 1")
	}

	if c.S3.Bucket != "" && c.S3.Region == "" {
		return errors.New("s3.region is required")
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return errors.New("s3.access_key_id and s3.secret_access_key must be set together")
	}

	// The selected adapter must be configured.
	switch c.Adapter {
	case "local":
		if c.Local.Root == "" {
			return errors.New("local.root is required")
		}
	case "bolt":
		if c.Bolt.Path == "" {
			return errors.New("bolt.path is required")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3.bucket is required")
		}
	case "gcs":
		if c.GCS.Bucket == "" {
			return errors.New("gcs.bucket is required")
		}
	}

	return nil
}
