package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend identifiers for the buffered sink.
const (
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Duration is a time.Duration that parses yaml scalars like "20s". Plain
// integers are taken as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(dur)
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Orderflow OrderflowConfig `yaml:"orderflow"`
	Feed      FeedConfig      `yaml:"feed"`
	Writer    WriterConfig    `yaml:"writer"`
	Storage   StorageConfig   `yaml:"storage"`
	Job       JobConfig       `yaml:"job"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type OrderflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	BaseURL          string   `yaml:"base_url"`
	Symbols          []string `yaml:"symbols"`
	DepthSuffix      string   `yaml:"depth_suffix"`
	TradeSuffix      string   `yaml:"trade_suffix"`
	PingInterval     Duration `yaml:"ping_interval"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	ReadLimitBytes   int64    `yaml:"read_limit_bytes"`
	ValidateSymbols  bool     `yaml:"validate_symbols"`
}

type WriterConfig struct {
	Backend       string   `yaml:"backend"`
	FlushInterval Duration `yaml:"flush_interval"`
}

type StorageConfig struct {
	S3       S3Config       `yaml:"s3"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type JobConfig struct {
	DownloadsPerSecond int `yaml:"downloads_per_second"`
	DownloadBurst      int `yaml:"download_burst"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads and validates the yaml configuration file, applying
// defaults and environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)
	normalize(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			BaseURL:          "wss://fstream.binance.com/stream",
			Symbols:          []string{"BTCUSDT", "ETHUSDT"},
			DepthSuffix:      "depth5@100ms",
			TradeSuffix:      "aggTrade",
			PingInterval:     Duration(20 * time.Second),
			HandshakeTimeout: Duration(10 * time.Second),
			ReadLimitBytes:   10 * 1024 * 1024,
		},
		Writer: WriterConfig{
			Backend:       BackendS3,
			FlushInterval: Duration(60 * time.Second),
		},
		Job: JobConfig{
			DownloadsPerSecond: 20,
			DownloadBurst:      5,
		},
		API: APIConfig{
			Listen: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides lets deployment credentials win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.S3.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("DB_URL"); v != "" {
		cfg.Storage.Postgres.URL = strings.TrimSpace(v)
	}
}

// normalize upper-cases symbols so storage paths and dedup keys are uniform;
// the stream client lower-cases them again when building subscription tokens.
func normalize(cfg *Config) {
	cfg.Storage.S3.Bucket = strings.TrimSpace(cfg.Storage.S3.Bucket)
	cfg.Writer.Backend = strings.ToLower(strings.TrimSpace(cfg.Writer.Backend))
	for i, s := range cfg.Feed.Symbols {
		cfg.Feed.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Orderflow.Name == "" {
		return fmt.Errorf("orderflow.name is required")
	}

	if cfg.Orderflow.Version == "" {
		return fmt.Errorf("orderflow.version is required")
	}

	if len(cfg.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols must not be empty")
	}

	if cfg.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required")
	}

	if cfg.Feed.DepthSuffix == "" || cfg.Feed.TradeSuffix == "" {
		return fmt.Errorf("feed.depth_suffix and feed.trade_suffix are required")
	}

	if cfg.Feed.PingInterval <= 0 {
		return fmt.Errorf("feed.ping_interval must be greater than 0")
	}

	if cfg.Feed.HandshakeTimeout <= 0 {
		return fmt.Errorf("feed.handshake_timeout must be greater than 0")
	}

	if cfg.Feed.ReadLimitBytes <= 0 {
		return fmt.Errorf("feed.read_limit_bytes must be greater than 0")
	}

	if cfg.Writer.FlushInterval <= 0 {
		return fmt.Errorf("writer.flush_interval must be greater than 0")
	}

	switch cfg.Writer.Backend {
	case BackendS3:
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	case BackendPostgres:
		if cfg.Storage.Postgres.URL == "" {
			return fmt.Errorf("storage.postgres.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("writer.backend must be one of %q, %q", BackendS3, BackendPostgres)
	}

	if cfg.Job.DownloadsPerSecond <= 0 {
		return fmt.Errorf("job.downloads_per_second must be greater than 0")
	}

	return nil
}
